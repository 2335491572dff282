// Copyright 2019 The go-ultiledger Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/types"
)

// nopHandler carries no asset and accepts everything.
type nopHandler struct{}

func (nopHandler) Create(data *CreateData, trs *types.Transaction) *types.Transaction { return trs }
func (nopHandler) CalculateFee(*types.Transaction, *types.Account) int64           { return 10 }
func (nopHandler) Verify(*types.Transaction, *types.Account) error                  { return nil }
func (nopHandler) Process(*types.Transaction, *types.Account) error                 { return nil }
func (nopHandler) GetBytes(*types.Transaction) ([]byte, error)                      { return nil, nil }
func (nopHandler) Apply(*types.Transaction, *types.Block, *types.Account) error     { return nil }
func (nopHandler) Undo(*types.Transaction, *types.Block, *types.Account) error      { return nil }
func (nopHandler) ApplyUnconfirmed(*types.Transaction, *types.Account) error        { return nil }
func (nopHandler) UndoUnconfirmed(*types.Transaction, *types.Account) error         { return nil }
func (nopHandler) DBRead(Row) (*types.Asset, error)                                 { return nil, nil }
func (nopHandler) DBSave(*types.Transaction) (*PersistCommand, error)               { return nil, nil }
func (nopHandler) Ready(trs *types.Transaction, sender *types.Account) bool         { return Ready(trs, sender) }
func (nopHandler) ObjectNormalize(trs *types.Transaction) (*types.Transaction, error) {
	return trs, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Register(types.TxSend, nopHandler{}))
	assert.Error(t, r.Register(types.TxSend, nopHandler{}))

	_, err := r.Handler(types.TxSend)
	assert.NoError(t, err)
	_, err = r.Handler(types.TxDelegate)
	assert.Equal(t, ErrUnknownType, err)
	assert.True(t, types.IsKind(err, types.SchemaViolation))

	assert.NoError(t, r.Register(types.TxSignature, nopHandler{}))
	assert.Equal(t, []types.TxType{types.TxSend, types.TxSignature}, r.Types())
}

func TestReady(t *testing.T) {
	plain := &types.Account{}
	multi := &types.Account{Multisignatures: []string{"a", "b"}, Multimin: 3}
	trs := &types.Transaction{}

	assert.True(t, Ready(trs, plain))
	assert.False(t, Ready(trs, multi))
	trs.Signatures = []string{"x"}
	assert.False(t, Ready(trs, multi))
	trs.Signatures = []string{"x", "y"}
	assert.True(t, Ready(trs, multi))
}

func TestEncodeBytes(t *testing.T) {
	kp := crypto.KeypairFromSecret("sender")
	trs := &types.Transaction{
		Type:            types.TxSend,
		Timestamp:       42,
		SenderPublicKey: kp.PublicKeyHex(),
		RecipientID:     "1234L",
		Amount:          5,
	}
	unsigned, err := encodeBytes(trs, []byte("asset"), true)
	assert.NoError(t, err)
	assert.Len(t, unsigned, 1+8+32+8+8+5)

	trs.Signature = "zz"
	_, err = encodeBytes(trs, nil, false)
	assert.Equal(t, ErrInvalidSignature, err)

	trs.Signature = ""
	trs.RecipientID = "alice"
	_, err = encodeBytes(trs, nil, true)
	assert.Equal(t, ErrInvalidRecipient, err)

	// skipping the signature ignores it
	trs.RecipientID = ""
	a, _ := encodeBytes(trs, nil, true)
	trs.Signature = "zz"
	b, _ := encodeBytes(trs, nil, true)
	assert.Equal(t, a, b)
}

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
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrInvalidRecipient = types.NewError(types.SchemaViolation, "invalid recipient address")
	ErrInvalidSignature = types.NewError(types.SchemaViolation, "invalid signature encoding")
)

// encodeBytes lays out the fixed size header of a transaction followed
// by the asset bytes and, unless skipped, the sender signature:
//
//	type(1) timestamp(8) senderPublicKey(32) recipient(8) amount(8) asset signature(64)
func encodeBytes(trs *types.Transaction, asset []byte, skipSignature bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(trs.Type))

	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(trs.Timestamp))
	buf.Write(num[:])

	pk, err := crypto.DecodePublicKey(trs.SenderPublicKey)
	if err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "invalid sender public key")
	}
	buf.Write(pk)

	recipient, err := recipientNumber(trs.RecipientID)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(num[:], recipient)
	buf.Write(num[:])

	binary.BigEndian.PutUint64(num[:], uint64(trs.Amount))
	buf.Write(num[:])

	buf.Write(asset)

	if !skipSignature && trs.Signature != "" {
		sig, err := decodeSignature(trs.Signature)
		if err != nil {
			return nil, err
		}
		buf.Write(sig)
	}
	return buf.Bytes(), nil
}

func recipientNumber(recipient string) (uint64, error) {
	if recipient == "" {
		return 0, nil
	}
	if !crypto.IsAddress(recipient) {
		return 0, ErrInvalidRecipient
	}
	n, err := strconv.ParseUint(strings.TrimRight(recipient, "Ll"), 10, 64)
	if err != nil {
		return 0, ErrInvalidRecipient
	}
	return n, nil
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := hex.DecodeString(s)
	if err != nil || len(sig) != 64 {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// GetBytes returns the canonical bytes of the transaction.
func (m *Manager) GetBytes(trs *types.Transaction, skipSignature bool) ([]byte, error) {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return nil, err
	}
	asset, err := h.GetBytes(trs)
	if err != nil {
		return nil, fmt.Errorf("get asset bytes failed: %v", err)
	}
	return encodeBytes(trs, asset, skipSignature)
}

// GetID derives the transaction id from the hash of its bytes.
func (m *Manager) GetID(trs *types.Transaction) (string, error) {
	b, err := m.GetBytes(trs, false)
	if err != nil {
		return "", err
	}
	return crypto.IDFromHash(crypto.SHA256HashBytes(b)), nil
}

// Sign sets the sender signature over the unsigned bytes.
func (m *Manager) Sign(trs *types.Transaction, kp *crypto.Keypair) error {
	b, err := m.GetBytes(trs, true)
	if err != nil {
		return err
	}
	trs.Signature = hex.EncodeToString(kp.Sign(b))
	return nil
}

// VerifySignature checks the sender signature.
func (m *Manager) VerifySignature(trs *types.Transaction) error {
	b, err := m.GetBytes(trs, true)
	if err != nil {
		return err
	}
	return crypto.Verify(trs.SenderPublicKey, b, trs.Signature)
}

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
	"fmt"
	"sort"
	"sync"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrUnknownType   = types.NewError(types.SchemaViolation, "unknown transaction type")
	ErrDuplicateType = fmt.Errorf("transaction type already registered")
)

// CreateData is the user intent a transaction is created from.
type CreateData struct {
	Type      types.TxType
	Sender    *types.Account
	Keypair   *crypto.Keypair
	Timestamp int64

	RecipientID string
	Amount      int64
	Votes       []string
	Username    string
}

// Row is a persisted transaction row with its asset columns.
type Row map[string]string

// PersistCommand is the write a handler needs to persist its asset.
type PersistCommand struct {
	Table   string `codec:"table"`
	Columns Row    `codec:"columns"`
}

// Handler implements the lifecycle of one transaction type. Apply and
// Undo mutate confirmed state, ApplyUnconfirmed and UndoUnconfirmed the
// unconfirmed shadow state, everything else must not mutate.
type Handler interface {
	Create(data *CreateData, trs *types.Transaction) *types.Transaction
	CalculateFee(trs *types.Transaction, sender *types.Account) int64
	Verify(trs *types.Transaction, sender *types.Account) error
	Process(trs *types.Transaction, sender *types.Account) error
	// GetBytes returns the canonical bytes of the asset.
	GetBytes(trs *types.Transaction) ([]byte, error)
	Apply(trs *types.Transaction, block *types.Block, sender *types.Account) error
	Undo(trs *types.Transaction, block *types.Block, sender *types.Account) error
	ApplyUnconfirmed(trs *types.Transaction, sender *types.Account) error
	UndoUnconfirmed(trs *types.Transaction, sender *types.Account) error
	ObjectNormalize(trs *types.Transaction) (*types.Transaction, error)
	// DBRead returns nil if the row carries no asset of this type.
	DBRead(row Row) (*types.Asset, error)
	DBSave(trs *types.Transaction) (*PersistCommand, error)
	Ready(trs *types.Transaction, sender *types.Account) bool
}

// Registry maps transaction types to their handlers. New types are
// added by registering a handler, dispatch code never changes.
type Registry struct {
	lock     sync.RWMutex
	handlers map[types.TxType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.TxType]Handler)}
}

func (r *Registry) Register(t types.TxType, h Handler) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.handlers[t]; ok {
		return fmt.Errorf("register type %d failed: %v", t, ErrDuplicateType)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Handler(t types.TxType) (Handler, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, ErrUnknownType
	}
	return h, nil
}

// Types returns the registered types in ascending order.
func (r *Registry) Types() []types.TxType {
	r.lock.RLock()
	defer r.lock.RUnlock()
	ts := make([]types.TxType, 0, len(r.handlers))
	for t := range r.handlers {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts
}

// Ready is the default multisignature readiness rule.
func Ready(trs *types.Transaction, sender *types.Account) bool {
	if len(sender.Multisignatures) == 0 {
		return true
	}
	if trs.Signatures == nil {
		return false
	}
	return len(trs.Signatures) >= sender.Multimin-1
}

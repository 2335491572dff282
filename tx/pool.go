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
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrAlreadyConfirmed   = types.NewError(types.StateConflict, "transaction is already confirmed")
	ErrNotPooled          = types.NewError(types.StateConflict, "transaction is not in the unconfirmed pool")
	ErrNotMultisig        = types.NewError(types.StateConflict, "sender has no multisignatures")
	ErrDuplicateSignature = types.NewError(types.StateConflict, "signature already collected")
	ErrForeignSignature   = types.NewError(types.ProtocolViolation, "signature does not belong to a multisignature member")
)

// Publisher is the part of the message bus the pool needs.
type Publisher interface {
	Publish(topic string, data interface{})
}

// Unconfirmed is published on the bus when a transaction enters the pool.
type Unconfirmed struct {
	Tx        *types.Transaction
	Broadcast bool
}

// SignatureSet lists the co-signatures collected for a transaction.
type SignatureSet struct {
	Transaction string   `json:"transaction"`
	Signatures  []string `json:"signatures"`
}

// PoolContext represents contextual information Pool needs
type PoolContext struct {
	TM  *Manager
	AM  *account.Manager
	Bus Publisher
}

func ValidatePoolContext(pc *PoolContext) error {
	if pc == nil {
		return fmt.Errorf("pool context is nil")
	}
	if pc.TM == nil {
		return fmt.Errorf("tx manager is nil")
	}
	if pc.AM == nil {
		return fmt.Errorf("account manager is nil")
	}
	if pc.Bus == nil {
		return fmt.Errorf("bus is nil")
	}
	return nil
}

// Pool holds the unconfirmed transactions whose effects are applied to
// the unconfirmed shadow state. Mutating methods must be called from
// inside the mutation sequence.
type Pool struct {
	tm  *Manager
	am  *account.Manager
	bus Publisher

	lock  sync.RWMutex
	ids   mapset.Set
	txs   map[string]*types.Transaction
	order []string
}

func NewPool(ctx *PoolContext) (*Pool, error) {
	if err := ValidatePoolContext(ctx); err != nil {
		return nil, fmt.Errorf("pool context is invalid: %v", err)
	}
	return &Pool{
		tm:  ctx.TM,
		am:  ctx.AM,
		bus: ctx.Bus,
		ids: mapset.NewSet(),
		txs: make(map[string]*types.Transaction),
	}, nil
}

// ReceiveTransactions processes the transactions in order and stops at
// the first failure.
func (p *Pool) ReceiveTransactions(txs []*types.Transaction, broadcast bool) error {
	for _, trs := range txs {
		if err := p.ProcessUnconfirmed(trs, broadcast); err != nil {
			return types.Errorf(types.StateConflict, err, "process transaction %s failed", trs.ID)
		}
	}
	return nil
}

// ProcessUnconfirmed verifies the transaction against the sender and
// applies it to the unconfirmed state. A pooled transaction is ignored.
func (p *Pool) ProcessUnconfirmed(trs *types.Transaction, broadcast bool) error {
	if p.ids.Contains(trs.ID) {
		return nil
	}
	if _, err := p.tm.Load(p.tm.database, trs.ID); err == nil {
		return ErrAlreadyConfirmed
	}
	sender, err := p.am.SetAndGet(&account.Patch{PublicKey: trs.SenderPublicKey})
	if err != nil {
		return err
	}
	if err := p.tm.Process(trs, sender); err != nil {
		return err
	}
	if err := p.tm.Verify(trs, sender); err != nil {
		return err
	}
	if err := p.tm.ApplyUnconfirmed(trs, sender); err != nil {
		return err
	}
	p.add(trs)
	p.bus.Publish(bus.TopicUnconfirmedTransaction, &Unconfirmed{Tx: trs, Broadcast: broadcast})
	return nil
}

func (p *Pool) add(trs *types.Transaction) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.ids.Add(trs.ID)
	p.txs[trs.ID] = trs
	p.order = append(p.order, trs.ID)
}

// Remove drops a transaction from the pool without touching state.
func (p *Pool) Remove(id string) bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.ids.Contains(id) {
		return false
	}
	p.ids.Remove(id)
	delete(p.txs, id)
	for i, o := range p.order {
		if o == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// UndoAll reverts the unconfirmed effects of every pooled transaction in
// reverse order and empties the pool. The reverted transactions are
// returned in receipt order so they can be applied again later.
func (p *Pool) UndoAll() ([]*types.Transaction, error) {
	txs := p.List()
	for i := len(txs) - 1; i >= 0; i-- {
		trs := txs[i]
		sender, err := p.am.Get(account.Filter{PublicKey: trs.SenderPublicKey})
		if err != nil {
			return nil, err
		}
		if sender == nil {
			return nil, ErrMissingSender
		}
		if err := p.tm.UndoUnconfirmed(trs, sender); err != nil {
			return nil, fmt.Errorf("undo unconfirmed %s failed: %v", trs.ID, err)
		}
		p.Remove(trs.ID)
	}
	return txs, nil
}

// ApplyAll puts transactions back into the pool, the ones that are no
// longer valid are dropped.
func (p *Pool) ApplyAll(txs []*types.Transaction) {
	for _, trs := range txs {
		if err := p.ProcessUnconfirmed(trs, false); err != nil {
			log.Debugw("drop unconfirmed transaction", "id", trs.ID, "err", err)
		}
	}
}

func (p *Pool) Get(id string) (*types.Transaction, bool) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	trs, ok := p.txs[id]
	return trs, ok
}

// List returns the pooled transactions in receipt order.
func (p *Pool) List() []*types.Transaction {
	p.lock.RLock()
	defer p.lock.RUnlock()
	txs := make([]*types.Transaction, 0, len(p.order))
	for _, id := range p.order {
		txs = append(txs, p.txs[id])
	}
	return txs
}

func (p *Pool) Count() int {
	return p.ids.Cardinality()
}

// Signatures lists the pooled transactions with collected co-signatures.
func (p *Pool) Signatures() []*SignatureSet {
	p.lock.RLock()
	defer p.lock.RUnlock()
	sets := []*SignatureSet{}
	for _, id := range p.order {
		trs := p.txs[id]
		if len(trs.Signatures) == 0 {
			continue
		}
		sets = append(sets, &SignatureSet{
			Transaction: id,
			Signatures:  append([]string{}, trs.Signatures...),
		})
	}
	return sets
}

// ProcessSignature adds a co-signature of a multisignature member to a
// pooled transaction.
func (p *Pool) ProcessSignature(id, signature string) error {
	trs, ok := p.Get(id)
	if !ok {
		return ErrNotPooled
	}
	if _, err := decodeSignature(signature); err != nil {
		return err
	}
	sender, err := p.am.Get(account.Filter{PublicKey: trs.SenderPublicKey})
	if err != nil {
		return err
	}
	if sender == nil || len(sender.Multisignatures) == 0 {
		return ErrNotMultisig
	}
	b, err := p.tm.GetBytes(trs, true)
	if err != nil {
		return err
	}
	member := false
	for _, pk := range sender.Multisignatures {
		if crypto.Verify(pk, b, signature) == nil {
			member = true
			break
		}
	}
	if !member {
		return ErrForeignSignature
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	current, ok := p.txs[id]
	if !ok {
		return ErrNotPooled
	}
	for _, s := range current.Signatures {
		if s == signature {
			return ErrDuplicateSignature
		}
	}
	// pooled transactions are shared with readers, swap in a copy
	next := *current
	next.Signatures = make([]string, 0, len(current.Signatures)+1)
	next.Signatures = append(next.Signatures, current.Signatures...)
	next.Signatures = append(next.Signatures, signature)
	p.txs[id] = &next
	log.Debugw("co-signature collected", "tx", id, "count", len(next.Signatures))
	return nil
}

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

package ledger

import (
	"fmt"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/bus"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrForkedBlock = types.NewError(types.StateConflict, "block does not extend the chain head")
)

// ProcessBlock applies a normalized block on top of the chain head. It
// must run inside the mutation sequence. Blocks ahead of the head are
// buffered, known blocks are ignored. On failure every change made for
// the block is reverted and the unconfirmed pool is restored.
func (lm *Manager) ProcessBlock(block *types.Block) error {
	known, err := lm.GetBlock(block.ID)
	if err != nil {
		return err
	}
	if known != nil {
		return nil
	}
	last := lm.LastBlock()
	if last == nil {
		return ErrNoGenesis
	}
	if block.Height > last.Height+1 {
		if lm.buffer.Append(block) {
			log.Debugw("block buffered", "id", block.ID, "height", block.Height, "head", last.Height)
		}
		return nil
	}
	if block.Height != last.Height+1 || block.PreviousBlock != last.ID {
		return ErrForkedBlock
	}

	if err := lm.applyBlock(block); err != nil {
		return err
	}

	// drain buffered blocks that now extend the head
	for head := lm.buffer.PeekHead(); head != nil; head = lm.buffer.PeekHead() {
		last = lm.LastBlock()
		if head.Height <= last.Height {
			lm.buffer.PopHead()
			continue
		}
		if head.Height != last.Height+1 {
			break
		}
		lm.buffer.PopHead()
		if err := lm.applyBlock(head); err != nil {
			log.Warnw("apply buffered block failed", "id", head.ID, "err", err)
			lm.buffer.Clear()
			break
		}
	}
	return nil
}

func (lm *Manager) applyBlock(block *types.Block) error {
	unconfirmed, err := lm.pool.UndoAll()
	if err != nil {
		return fmt.Errorf("undo unconfirmed transactions failed: %v", err)
	}

	applied := 0
	rollback := func() {
		for i := applied - 1; i >= 0; i-- {
			trs := block.Transactions[i]
			sender, err := lm.am.Get(account.Filter{PublicKey: trs.SenderPublicKey})
			if err == nil && sender != nil {
				if err = lm.tm.Undo(trs, block, sender); err == nil {
					err = lm.tm.UndoUnconfirmed(trs, sender)
				}
			}
			if err != nil {
				log.Errorw("undo transaction failed", "id", trs.ID, "block", block.ID, "err", err)
			}
		}
		lm.pool.ApplyAll(unconfirmed)
	}

	for _, trs := range block.Transactions {
		sender, err := lm.am.SetAndGet(&account.Patch{PublicKey: trs.SenderPublicKey})
		if err == nil {
			err = lm.applyTransaction(trs, block, sender)
		}
		if err != nil {
			rollback()
			return types.Errorf(types.ProtocolViolation, err, "apply transaction %s of block %s failed", trs.ID, block.ID)
		}
		applied++
	}

	dt, err := lm.database.Begin()
	if err != nil {
		rollback()
		return fmt.Errorf("begin db transaction failed: %v", err)
	}
	err = lm.SaveBlock(dt, block)
	for _, trs := range block.Transactions {
		if err != nil {
			break
		}
		err = lm.tm.Save(dt, trs)
	}
	if err == nil {
		err = dt.Commit()
	} else {
		dt.Rollback()
	}
	if err != nil {
		rollback()
		return fmt.Errorf("save block %s failed: %v", block.ID, err)
	}
	lm.setLast(block)

	// return the still pending transactions to the pool
	included := make(map[string]bool, len(block.Transactions))
	for _, trs := range block.Transactions {
		included[trs.ID] = true
	}
	var pending []*types.Transaction
	for _, trs := range unconfirmed {
		if !included[trs.ID] {
			pending = append(pending, trs)
		}
	}
	lm.pool.ApplyAll(pending)

	log.Infow("block applied", "id", block.ID, "height", block.Height, "txs", len(block.Transactions))
	lm.bus.Publish(bus.TopicNewBlock, block)
	return nil
}

// applyTransaction applies a block transaction to the unconfirmed and
// the confirmed state, a failure leaves both untouched.
func (lm *Manager) applyTransaction(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	if err := lm.tm.Verify(trs, sender); err != nil {
		return err
	}
	if err := lm.tm.ApplyUnconfirmed(trs, sender); err != nil {
		return err
	}
	if err := lm.tm.Apply(trs, block, sender); err != nil {
		if uerr := lm.tm.UndoUnconfirmed(trs, sender); uerr != nil {
			log.Errorw("undo unconfirmed transaction failed", "id", trs.ID, "err", uerr)
		}
		return err
	}
	return nil
}

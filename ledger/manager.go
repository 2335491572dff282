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
	"errors"
	"fmt"
	"sync"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/db"
	"github.com/ultiledger/go-ultidpos/log"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrBlockNotFound = errors.New("block not found")
	ErrNoGenesis     = errors.New("chain has no genesis block")
)

const (
	blockBucket  = "BLOCKS"
	heightBucket = "HEIGHTS"

	// blocks buffered ahead of the chain head
	bufferLimit = 1440
)

// Allocation is a genesis balance, the account is addressed by its
// public key when one is given.
type Allocation struct {
	Address   string `mapstructure:"address"`
	PublicKey string `mapstructure:"public_key"`
	Balance   int64  `mapstructure:"balance"`
}

// ManagerContext represents contextual information ledger Manager needs
type ManagerContext struct {
	Database db.Database      // database instance
	AM       *account.Manager // account manager
	TM       *tx.Manager      // transaction lifecycle
	Pool     *tx.Pool         // unconfirmed pool
	Bus      tx.Publisher     // application message bus
}

func ValidateManagerContext(mc *ManagerContext) error {
	if mc == nil {
		return fmt.Errorf("ledger context is nil")
	}
	if mc.Database == nil {
		return fmt.Errorf("database instance is nil")
	}
	if mc.AM == nil {
		return fmt.Errorf("account manager is nil")
	}
	if mc.TM == nil {
		return fmt.Errorf("tx manager is nil")
	}
	if mc.Pool == nil {
		return fmt.Errorf("tx pool is nil")
	}
	if mc.Bus == nil {
		return fmt.Errorf("bus is nil")
	}
	return nil
}

// Manager stores blocks and applies them to the account state.
type Manager struct {
	database db.Database
	am       *account.Manager
	tm       *tx.Manager
	pool     *tx.Pool
	bus      tx.Publisher

	// blocks received ahead of the chain head
	buffer *BlockBuffer

	lock sync.RWMutex
	last *types.Block
}

func NewManager(ctx *ManagerContext) (*Manager, error) {
	if err := ValidateManagerContext(ctx); err != nil {
		return nil, fmt.Errorf("ledger manager context is invalid: %v", err)
	}
	for _, b := range []string{blockBucket, heightBucket} {
		if err := ctx.Database.NewBucket(b); err != nil {
			return nil, fmt.Errorf("create db bucket %s failed: %v", b, err)
		}
	}
	lm := &Manager{
		database: ctx.Database,
		am:       ctx.AM,
		tm:       ctx.TM,
		pool:     ctx.Pool,
		bus:      ctx.Bus,
		buffer:   NewBlockBuffer(bufferLimit),
	}
	ids, err := lm.database.GetAll(heightBucket, nil)
	if err != nil {
		return nil, fmt.Errorf("load block heights failed: %v", err)
	}
	if len(ids) > 0 {
		last, err := lm.GetBlock(string(ids[len(ids)-1]))
		if err != nil {
			return nil, fmt.Errorf("load last block failed: %v", err)
		}
		lm.last = last
	}
	return lm, nil
}

func heightKey(height uint64) []byte {
	return []byte(fmt.Sprintf("%020d", height))
}

// CreateGenesis saves the genesis block and credits the allocations if
// the chain is empty.
func (lm *Manager) CreateGenesis(block *types.Block, allocations []Allocation) error {
	if lm.LastBlock() != nil {
		return nil
	}
	block.Height = 1
	block.PreviousBlock = ""
	for _, a := range allocations {
		_, err := lm.am.SetAndGet(&account.Patch{
			Address:   a.Address,
			PublicKey: a.PublicKey,
			Balance:   account.Int64(a.Balance),
			UBalance:  account.Int64(a.Balance),
			BlockID:   block.ID,
		})
		if err != nil {
			return fmt.Errorf("credit genesis allocation failed: %v", err)
		}
	}
	if err := lm.SaveBlock(lm.database, block); err != nil {
		return err
	}
	lm.setLast(block)
	log.Infow("genesis block created", "id", block.ID, "allocations", len(allocations))
	return nil
}

// SaveBlock persists the block and its height index.
func (lm *Manager) SaveBlock(p db.Putter, block *types.Block) error {
	b, err := types.Encode(block)
	if err != nil {
		return fmt.Errorf("encode block failed: %v", err)
	}
	if err := p.Put(blockBucket, []byte(block.ID), b); err != nil {
		return fmt.Errorf("save block in db failed: %v", err)
	}
	if err := p.Put(heightBucket, heightKey(block.Height), []byte(block.ID)); err != nil {
		return fmt.Errorf("save block height in db failed: %v", err)
	}
	return nil
}

// GetBlock returns the block or nil when it is unknown.
func (lm *Manager) GetBlock(id string) (*types.Block, error) {
	b, err := lm.database.Get(blockBucket, []byte(id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	return types.DecodeBlock(b)
}

func (lm *Manager) blockAt(height uint64) (*types.Block, error) {
	id, err := lm.database.Get(heightBucket, heightKey(height))
	if err != nil || id == nil {
		return nil, err
	}
	return lm.GetBlock(string(id))
}

func (lm *Manager) LastBlock() *types.Block {
	lm.lock.RLock()
	defer lm.lock.RUnlock()
	return lm.last
}

func (lm *Manager) setLast(block *types.Block) {
	lm.lock.Lock()
	defer lm.lock.Unlock()
	lm.last = block
}

// Height returns the height of the chain head.
func (lm *Manager) Height() uint64 {
	if last := lm.LastBlock(); last != nil {
		return last.Height
	}
	return 0
}

// CommonBlock returns the header of the highest known block among ids
// whose height lies within [min, max], or nil.
func (lm *Manager) CommonBlock(ids []string, min, max uint64) (*types.Block, error) {
	var common *types.Block
	for _, id := range ids {
		block, err := lm.GetBlock(id)
		if err != nil {
			return nil, err
		}
		if block == nil || block.Height < min || block.Height > max {
			continue
		}
		if common == nil || block.Height > common.Height {
			common = block
		}
	}
	if common == nil {
		return nil, nil
	}
	return common.Header(), nil
}

// LoadBlocks returns up to limit blocks following lastID in height order,
// an empty lastID starts at the genesis block.
func (lm *Manager) LoadBlocks(lastID string, limit int) ([]*types.Block, error) {
	var from uint64
	if lastID != "" {
		last, err := lm.GetBlock(lastID)
		if err != nil {
			return nil, err
		}
		if last == nil {
			return nil, ErrBlockNotFound
		}
		from = last.Height
	}
	head := lm.Height()
	blocks := []*types.Block{}
	for h := from + 1; h <= head && len(blocks) < limit; h++ {
		block, err := lm.blockAt(h)
		if err != nil {
			return nil, err
		}
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

// RecentIDs returns the ids of up to n blocks ending at the head, highest
// first.
func (lm *Manager) RecentIDs(n int) ([]string, error) {
	var ids []string
	for h := lm.Height(); h > 0 && len(ids) < n; h-- {
		block, err := lm.blockAt(h)
		if err != nil {
			return nil, err
		}
		if block == nil {
			break
		}
		ids = append(ids, block.ID)
	}
	return ids, nil
}

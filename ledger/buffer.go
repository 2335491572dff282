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
	"sync"

	"github.com/ultiledger/go-ultidpos/types"
)

// BlockBuffer caches blocks received ahead of the local chain head until
// the local chain catches up. The buffered blocks form a run of
// consecutive heights.
type BlockBuffer struct {
	rwm    sync.RWMutex
	blocks []*types.Block
	limit  int
}

func NewBlockBuffer(limit int) *BlockBuffer {
	return &BlockBuffer{limit: limit}
}

// Returns the size of buffered blocks
func (b *BlockBuffer) Size() int {
	b.rwm.RLock()
	defer b.rwm.RUnlock()
	return len(b.blocks)
}

// Clear the buffer
func (b *BlockBuffer) Clear() {
	b.rwm.Lock()
	defer b.rwm.Unlock()
	b.blocks = nil
}

// Append new block to the tail of the buffer by checking whether
// the new block is the expected next-to-the-height block.
func (b *BlockBuffer) Append(block *types.Block) bool {
	if block == nil {
		return false
	}
	b.rwm.Lock()
	defer b.rwm.Unlock()
	if len(b.blocks) >= b.limit {
		return false
	}
	if len(b.blocks) > 0 {
		last := b.blocks[len(b.blocks)-1]
		if last.Height+1 != block.Height || last.ID != block.PreviousBlock {
			return false
		}
	}
	b.blocks = append(b.blocks, block)
	return true
}

// Return the first block without removing it
func (b *BlockBuffer) PeekHead() *types.Block {
	b.rwm.RLock()
	defer b.rwm.RUnlock()
	if len(b.blocks) == 0 {
		return nil
	}
	return b.blocks[0]
}

// Return the first block and remove it from internal buffer
func (b *BlockBuffer) PopHead() *types.Block {
	b.rwm.Lock()
	defer b.rwm.Unlock()
	if len(b.blocks) == 0 {
		return nil
	}
	h := b.blocks[0]
	b.blocks = b.blocks[1:]
	return h
}

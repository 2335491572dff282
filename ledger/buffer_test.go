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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/types"
)

func TestBlockBuffer(t *testing.T) {
	b := NewBlockBuffer(2)
	assert.Nil(t, b.PeekHead())
	assert.Nil(t, b.PopHead())
	assert.False(t, b.Append(nil))

	assert.True(t, b.Append(&types.Block{ID: "5", Height: 5}))
	// not the next height
	assert.False(t, b.Append(&types.Block{ID: "7", Height: 7, PreviousBlock: "6"}))
	// not linked to the tail
	assert.False(t, b.Append(&types.Block{ID: "6", Height: 6, PreviousBlock: "4"}))
	assert.True(t, b.Append(&types.Block{ID: "6", Height: 6, PreviousBlock: "5"}))
	// full
	assert.False(t, b.Append(&types.Block{ID: "7", Height: 7, PreviousBlock: "6"}))
	assert.Equal(t, 2, b.Size())

	assert.Equal(t, "5", b.PeekHead().ID)
	assert.Equal(t, "5", b.PopHead().ID)
	assert.Equal(t, 1, b.Size())
	b.Clear()
	assert.Equal(t, 0, b.Size())
}

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

package op

import (
	"github.com/ultiledger/go-ultidpos/types"
)

// Rounds maps block heights to rounds of Slots blocks, the first
// round contains heights 1 to Slots.
type Rounds struct {
	Slots uint64
}

func NewRounds() *Rounds {
	return &Rounds{Slots: types.MaxDelegates}
}

func (r *Rounds) Calc(height uint64) uint64 {
	round := height / r.Slots
	if height%r.Slots > 0 {
		round++
	}
	return round
}

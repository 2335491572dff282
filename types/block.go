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

package types

// Block carries the fields the node needs for chain reconciliation
// and for applying the contained transactions.
type Block struct {
	ID                 string         `json:"id" codec:"id"`
	Height             uint64         `json:"height" codec:"height"`
	PreviousBlock      string         `json:"previousBlock,omitempty" codec:"previousBlock"`
	Timestamp          int64          `json:"timestamp" codec:"timestamp"`
	GeneratorPublicKey string         `json:"generatorPublicKey,omitempty" codec:"generatorPublicKey"`
	TotalAmount        int64          `json:"totalAmount" codec:"totalAmount"`
	TotalFee           int64          `json:"totalFee" codec:"totalFee"`
	Transactions       []*Transaction `json:"transactions,omitempty" codec:"transactions"`
}

// Header returns a copy of the block without transactions.
func (b *Block) Header() *Block {
	h := *b
	h.Transactions = nil
	return &h
}

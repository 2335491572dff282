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
	"regexp"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/types"
)

// a block carries at most this many transactions
const MaxBlockTransactions = 100

var blockIDPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

func protocolError(msg string) error {
	return types.NewError(types.ProtocolViolation, msg)
}

// NormalizeBlock validates the shape of a block received from a peer and
// normalizes every contained transaction. Failures are ProtocolViolation.
func (lm *Manager) NormalizeBlock(block *types.Block) (*types.Block, error) {
	if block == nil {
		return nil, protocolError("block is empty")
	}
	if !blockIDPattern.MatchString(block.ID) {
		return nil, protocolError("invalid block id")
	}
	if block.Height < 1 {
		return nil, protocolError("invalid block height")
	}
	if block.Height > 1 && !blockIDPattern.MatchString(block.PreviousBlock) {
		return nil, protocolError("invalid previous block")
	}
	if block.Timestamp < 0 || block.TotalAmount < 0 || block.TotalFee < 0 {
		return nil, protocolError("negative block timestamp or totals")
	}
	if block.GeneratorPublicKey != "" {
		if _, err := crypto.DecodePublicKey(block.GeneratorPublicKey); err != nil {
			return nil, types.Errorf(types.ProtocolViolation, err, "invalid generator public key")
		}
	}
	if len(block.Transactions) > MaxBlockTransactions {
		return nil, protocolError("too many transactions in block")
	}

	var totalAmount, totalFee int64
	seen := make(map[string]bool, len(block.Transactions))
	for i, trs := range block.Transactions {
		normalized, err := lm.tm.ObjectNormalize(trs)
		if err != nil {
			return nil, &types.Error{Kind: types.ProtocolViolation, Msg: "invalid transaction in block", Err: err}
		}
		if seen[normalized.ID] {
			return nil, protocolError("duplicate transaction in block")
		}
		seen[normalized.ID] = true
		block.Transactions[i] = normalized
		totalAmount += normalized.Amount
		totalFee += normalized.Fee
	}
	if totalAmount != block.TotalAmount || totalFee != block.TotalFee {
		return nil, protocolError("block totals do not match transactions")
	}
	return block, nil
}

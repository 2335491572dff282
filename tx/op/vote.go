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
	"regexp"
	"strings"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/diff"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/types"
)

const (
	// votes a single transaction may carry
	MaxVotesPerTx = 33
	// votes accepted by normalization before application
	MaxVotesNormalized = 105

	VoteFee = 1 * types.FixedPoint
)

var (
	ErrRecipientNotSender = types.NewError(types.ProtocolViolation, "vote recipient must be the sender")
	ErrNoVotes            = types.NewError(types.ProtocolViolation, "not enough spare votes available")
	ErrVotesPerTx         = types.NewError(types.StateConflict, "voting limit exceeded, maximum is 33 per transaction")
	ErrInvalidVotes       = types.NewError(types.SchemaViolation, "incorrect votes in transaction")
)

var votePattern = regexp.MustCompile(`^[+-][0-9a-f]{64}$`)

// Vote adds and removes votes for delegates.
type Vote struct {
	AM      *account.Manager
	Checker *DelegateChecker
	Rounds  tx.RoundCalculator
}

func (v *Vote) Create(data *tx.CreateData, trs *types.Transaction) *types.Transaction {
	trs.RecipientID = data.Sender.Address
	trs.Amount = 0
	trs.Asset.Votes = data.Votes
	return trs
}

func (v *Vote) CalculateFee(trs *types.Transaction, sender *types.Account) int64 {
	return VoteFee
}

func (v *Vote) Verify(trs *types.Transaction, sender *types.Account) error {
	if trs.RecipientID != sender.Address {
		return ErrRecipientNotSender
	}
	if len(trs.Asset.Votes) == 0 {
		return ErrNoVotes
	}
	if len(trs.Asset.Votes) > MaxVotesPerTx {
		return ErrVotesPerTx
	}
	return v.Checker.Check(trs.SenderPublicKey, trs.Asset.Votes)
}

func (v *Vote) Process(trs *types.Transaction, sender *types.Account) error {
	return nil
}

// GetBytes concatenates the votes, every vote has the same length so
// distinct vote lists never share bytes.
func (v *Vote) GetBytes(trs *types.Transaction) ([]byte, error) {
	if trs.Asset.Votes == nil {
		return nil, nil
	}
	for _, vote := range trs.Asset.Votes {
		if !votePattern.MatchString(vote) {
			return nil, ErrInvalidVotes
		}
	}
	return []byte(strings.Join(trs.Asset.Votes, "")), nil
}

func (v *Vote) Apply(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	_, err := v.AM.Merge(sender.Address, &account.Patch{
		Delegates: trs.Asset.Votes,
		BlockID:   block.ID,
		Round:     v.Rounds.Calc(block.Height),
	})
	return err
}

func (v *Vote) Undo(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	if trs.Asset.Votes == nil {
		return nil
	}
	_, err := v.AM.Merge(sender.Address, &account.Patch{
		Delegates: diff.Reverse(trs.Asset.Votes),
		BlockID:   block.ID,
		Round:     v.Rounds.Calc(block.Height),
	})
	return err
}

func (v *Vote) ApplyUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	if err := v.Checker.CheckUnconfirmed(trs.SenderPublicKey, trs.Asset.Votes); err != nil {
		return err
	}
	_, err := v.AM.Merge(sender.Address, &account.Patch{UDelegates: trs.Asset.Votes})
	return err
}

func (v *Vote) UndoUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	if trs.Asset.Votes == nil {
		return nil
	}
	_, err := v.AM.Merge(sender.Address, &account.Patch{UDelegates: diff.Reverse(trs.Asset.Votes)})
	return err
}

func (v *Vote) ObjectNormalize(trs *types.Transaction) (*types.Transaction, error) {
	votes := trs.Asset.Votes
	if len(votes) < 1 || len(votes) > MaxVotesNormalized {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidVotes, "votes: expected 1 to %d items, got %d", MaxVotesNormalized, len(votes))
	}
	seen := make(map[string]bool, len(votes))
	for _, vote := range votes {
		if !votePattern.MatchString(vote) {
			return nil, types.Errorf(types.SchemaViolation, ErrInvalidVotes, "votes: malformed entry %q", vote)
		}
		if seen[vote] {
			return nil, types.Errorf(types.SchemaViolation, ErrInvalidVotes, "votes: duplicate entry %q", vote)
		}
		seen[vote] = true
	}
	if trs.Asset.Username != nil {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidVotes, "asset: unexpected username")
	}
	return trs, nil
}

func (v *Vote) DBRead(row tx.Row) (*types.Asset, error) {
	votes := row["votes"]
	if votes == "" {
		return nil, nil
	}
	return &types.Asset{Votes: strings.Split(votes, ",")}, nil
}

func (v *Vote) DBSave(trs *types.Transaction) (*tx.PersistCommand, error) {
	return &tx.PersistCommand{
		Table: "votes",
		Columns: tx.Row{
			"votes":         strings.Join(trs.Asset.Votes, ","),
			"transactionId": trs.ID,
		},
	}, nil
}

func (v *Vote) Ready(trs *types.Transaction, sender *types.Account) bool {
	return tx.Ready(trs, sender)
}

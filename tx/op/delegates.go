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
	"errors"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/diff"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrUnknownVoter    = types.NewError(types.StateConflict, "voter account not found")
	ErrUnknownDelegate = types.NewError(types.StateConflict, "delegate not found")
)

// DelegateLookup tells whether a public key belongs to a registered
// delegate.
type DelegateLookup interface {
	IsDelegate(publicKey string) (bool, error)
}

// DelegateChecker validates votes against the current votes of the
// voter. Without a lookup every public key is accepted as a delegate.
type DelegateChecker struct {
	am     *account.Manager
	lookup DelegateLookup
}

func NewDelegateChecker(am *account.Manager, lookup DelegateLookup) *DelegateChecker {
	return &DelegateChecker{am: am, lookup: lookup}
}

// Check validates votes against the confirmed votes of the voter.
func (c *DelegateChecker) Check(publicKey string, votes []string) error {
	return c.check(publicKey, votes, false)
}

// CheckUnconfirmed validates votes against the unconfirmed votes.
func (c *DelegateChecker) CheckUnconfirmed(publicKey string, votes []string) error {
	return c.check(publicKey, votes, true)
}

func (c *DelegateChecker) check(publicKey string, votes []string, unconfirmed bool) error {
	if len(votes) == 0 {
		return errors.New("votes are empty")
	}
	voter, err := c.am.Get(account.Filter{PublicKey: publicKey})
	if err != nil {
		return err
	}
	if voter == nil {
		return ErrUnknownVoter
	}
	current := voter.Delegates
	if unconfirmed {
		current = voter.UDelegates
	}
	// +x must be new, -x must exist
	next, err := diff.Apply(current, votes, true)
	if err != nil {
		return err
	}
	if len(next) > types.MaxDelegates {
		return account.ErrVoteLimit
	}
	if c.lookup == nil {
		return nil
	}
	for _, v := range votes {
		_, key, err := diff.Parse(v)
		if err != nil {
			return err
		}
		ok, err := c.lookup.IsDelegate(key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnknownDelegate
		}
	}
	return nil
}

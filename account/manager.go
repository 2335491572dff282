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

package account

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/db"
	"github.com/ultiledger/go-ultidpos/diff"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrMissingKey       = types.NewError(types.MissingKey, "missing address or public key")
	ErrEmptyFilter      = errors.New("account filter is empty")
	ErrBalanceOverflow  = errors.New("account balance overflow")
	ErrVoteLimit        = types.NewError(types.StateConflict, "maximum number of votes exceeded")
	ErrAliasTaken       = types.NewError(types.StateConflict, "username already exists")
	ErrPublicKeyChanged = types.NewError(types.StateConflict, "account public key mismatch")
)

const (
	accountBucket = "ACCOUNTS"
	aliasBucket   = "ALIASES"
	roundBucket   = "ROUNDS"

	confirmedAlias   = "c/"
	unconfirmedAlias = "u/"
)

// Patch describes a change to an account. Nil fields are left untouched.
// SetAndGet overwrites every non-nil field, Merge treats Balance and
// UBalance as deltas and Delegates and UDelegates as diffs.
type Patch struct {
	Address   string
	PublicKey string

	Balance  *int64
	UBalance *int64

	Delegates  []string
	UDelegates []string

	// a pointer to the empty string clears the alias
	Username  *string
	UUsername *string

	Multisignatures []string
	Multimin        *int

	// block context of a confirmed change, used for vote weights
	BlockID string
	Round   uint64
}

// Int64 and String are helpers to fill the pointer fields of a Patch.
func Int64(v int64) *int64 { return &v }

func String(v string) *string { return &v }

// Filter selects accounts by field equality. PublicKey is resolved to an
// address first. Without Or every non-empty field must match, with Or a
// single matching field is enough.
type Filter struct {
	Address   string
	PublicKey string
	Username  string
	UUsername string
	Or        bool
}

func (f Filter) empty() bool {
	return f.Address == "" && f.PublicKey == "" && f.Username == "" && f.UUsername == ""
}

func (f Filter) match(acc *types.Account) bool {
	checks := []struct {
		want, got string
	}{
		{f.Address, acc.Address},
		{f.Username, acc.Username},
		{f.UUsername, acc.UUsername},
	}
	matched := false
	for _, c := range checks {
		if c.want == "" {
			continue
		}
		if c.want == c.got {
			matched = true
			if f.Or {
				return true
			}
		} else if !f.Or {
			return false
		}
	}
	return matched
}

// Manager owns the account records and applies confirmed and
// unconfirmed changes to them.
type Manager struct {
	database db.Database

	// serializes writers, readers go through the cache and database
	lock sync.Mutex

	// LRU cache for accounts
	accounts *lru.Cache
}

func NewManager(d db.Database, cacheSize int) (*Manager, error) {
	for _, b := range []string{accountBucket, aliasBucket, roundBucket} {
		if err := d.NewBucket(b); err != nil {
			return nil, fmt.Errorf("create db bucket %s failed: %v", b, err)
		}
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create account LRU cache failed: %v", err)
	}
	return &Manager{database: d, accounts: cache}, nil
}

// DeriveAddress derives the address of a hex encoded public key.
func DeriveAddress(publicKey string) (string, error) {
	pk, err := crypto.DecodePublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return crypto.AddressFromPublicKey(pk), nil
}

func resolveAddress(address, publicKey string) (string, error) {
	if address != "" {
		return address, nil
	}
	if publicKey == "" {
		return "", ErrMissingKey
	}
	return DeriveAddress(publicKey)
}

// Get returns the first account matching the filter or nil.
func (am *Manager) Get(f Filter) (*types.Account, error) {
	accs, err := am.find(am.database, f, true)
	if err != nil || len(accs) == 0 {
		return nil, err
	}
	return accs[0], nil
}

// GetAll returns the accounts matching the filter ordered by address,
// an empty filter returns every account.
func (am *Manager) GetAll(f Filter) ([]*types.Account, error) {
	if f.empty() {
		vals, err := am.database.GetAll(accountBucket, nil)
		if err != nil {
			return nil, err
		}
		accs := make([]*types.Account, 0, len(vals))
		for _, v := range vals {
			acc, err := types.DecodeAccount(v)
			if err != nil {
				return nil, fmt.Errorf("decode account failed: %v", err)
			}
			accs = append(accs, acc)
		}
		return accs, nil
	}
	return am.find(am.database, f, false)
}

// Count returns the number of known accounts.
func (am *Manager) Count() (int, error) {
	vals, err := am.database.GetAll(accountBucket, nil)
	return len(vals), err
}

func (am *Manager) find(getter db.Getter, f Filter, first bool) ([]*types.Account, error) {
	if f.empty() {
		return nil, ErrEmptyFilter
	}
	if f.PublicKey != "" {
		addr, err := DeriveAddress(f.PublicKey)
		if err != nil {
			return nil, err
		}
		if f.Address != "" && f.Address != addr && !f.Or {
			return nil, nil
		}
		if f.Address == "" {
			f.Address = addr
		}
		f.PublicKey = ""
	}

	// collect candidate addresses from the primary key and alias indexes
	var candidates []string
	if f.Address != "" {
		candidates = append(candidates, f.Address)
	}
	for _, idx := range []struct{ prefix, alias string }{
		{confirmedAlias, f.Username},
		{unconfirmedAlias, f.UUsername},
	} {
		if idx.alias == "" {
			continue
		}
		addr, err := getter.Get(aliasBucket, []byte(idx.prefix+idx.alias))
		if err != nil {
			return nil, err
		}
		if addr != nil {
			candidates = append(candidates, string(addr))
		}
	}

	seen := make(map[string]bool)
	var accs []*types.Account
	for _, addr := range candidates {
		if seen[addr] {
			continue
		}
		seen[addr] = true
		acc, err := am.load(getter, addr)
		if err != nil {
			return nil, err
		}
		if acc == nil || !f.match(acc) {
			continue
		}
		accs = append(accs, acc)
		if first {
			return accs, nil
		}
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].Address < accs[j].Address })
	return accs, nil
}

// load returns a deep copy of the account or nil when it does not exist.
func (am *Manager) load(getter db.Getter, address string) (*types.Account, error) {
	if acc, ok := am.accounts.Get(address); ok {
		return acc.(*types.Account).Clone(), nil
	}
	b, err := getter.Get(accountBucket, []byte(address))
	if err != nil {
		return nil, fmt.Errorf("get account %s failed: %v", address, err)
	}
	if b == nil {
		return nil, nil
	}
	acc, err := types.DecodeAccount(b)
	if err != nil {
		return nil, fmt.Errorf("account %s decode failed: %v", address, err)
	}
	return acc, nil
}

// SetAndGet upserts the account addressed by the patch and overwrites
// its fields with the non-nil ones of the patch.
func (am *Manager) SetAndGet(p *Patch) (*types.Account, error) {
	address, err := resolveAddress(p.Address, p.PublicKey)
	if err != nil {
		return nil, err
	}
	return am.update(address, func(tx db.Tx, acc *types.Account) error {
		if err := setPublicKey(acc, p.PublicKey); err != nil {
			return err
		}
		if p.Balance != nil {
			acc.Balance = *p.Balance
		}
		if p.UBalance != nil {
			acc.UBalance = *p.UBalance
		}
		if p.Delegates != nil {
			if len(p.Delegates) > types.MaxDelegates {
				return ErrVoteLimit
			}
			acc.Delegates = append([]string{}, p.Delegates...)
		}
		if p.UDelegates != nil {
			if len(p.UDelegates) > types.MaxDelegates {
				return ErrVoteLimit
			}
			acc.UDelegates = append([]string{}, p.UDelegates...)
		}
		return am.overwrite(tx, acc, p)
	})
}

// Merge applies the patch semantically: balances are added, vote lists
// are passed through the diff engine and the other fields overwrite.
// Concurrent merges are serialized and each one is atomic.
func (am *Manager) Merge(address string, p *Patch) (*types.Account, error) {
	if address == "" {
		address = p.Address
	}
	address, err := resolveAddress(address, p.PublicKey)
	if err != nil {
		return nil, err
	}
	return am.update(address, func(tx db.Tx, acc *types.Account) error {
		if err := setPublicKey(acc, p.PublicKey); err != nil {
			return err
		}

		// vote weight follows the balance of the voter
		if p.Balance != nil && *p.Balance != 0 {
			balance, err := AddBalance(acc.Balance, *p.Balance)
			if err != nil {
				return err
			}
			acc.Balance = balance
			if p.BlockID != "" {
				for _, d := range acc.Delegates {
					if err := am.addRoundChange(tx, acc.Address, d, *p.Balance, p); err != nil {
						return err
					}
				}
			}
		}
		if p.UBalance != nil {
			balance, err := AddBalance(acc.UBalance, *p.UBalance)
			if err != nil {
				return err
			}
			acc.UBalance = balance
		}

		if len(p.Delegates) > 0 {
			next, err := applyVotes(acc.Delegates, p.Delegates)
			if err != nil {
				return err
			}
			acc.Delegates = next
			if p.BlockID != "" {
				for _, entry := range p.Delegates {
					op, key, _ := diff.Parse(entry)
					amount := acc.Balance
					if op == diff.Remove {
						amount = -amount
					}
					if err := am.addRoundChange(tx, acc.Address, key, amount, p); err != nil {
						return err
					}
				}
			}
		}
		if len(p.UDelegates) > 0 {
			next, err := applyVotes(acc.UDelegates, p.UDelegates)
			if err != nil {
				return err
			}
			acc.UDelegates = next
		}
		return am.overwrite(tx, acc, p)
	})
}

func applyVotes(current, votes []string) ([]string, error) {
	next, err := diff.Apply(current, votes, true)
	if err != nil {
		return nil, err
	}
	if len(next) > types.MaxDelegates {
		return nil, ErrVoteLimit
	}
	return next, nil
}

// AddBalance adds delta to balance, failing with ErrBalanceOverflow when
// the sum does not fit an int64.
func AddBalance(balance, delta int64) (int64, error) {
	if (delta > 0 && balance > math.MaxInt64-delta) || (delta < 0 && balance < math.MinInt64-delta) {
		return 0, ErrBalanceOverflow
	}
	return balance + delta, nil
}

func setPublicKey(acc *types.Account, publicKey string) error {
	if publicKey == "" {
		return nil
	}
	if acc.PublicKey == "" {
		acc.PublicKey = publicKey
		return nil
	}
	if acc.PublicKey != publicKey {
		return ErrPublicKeyChanged
	}
	return nil
}

// overwrite applies the fields shared by SetAndGet and Merge.
func (am *Manager) overwrite(tx db.Tx, acc *types.Account, p *Patch) error {
	if p.Username != nil {
		if err := am.setAlias(tx, confirmedAlias, acc.Address, acc.Username, *p.Username); err != nil {
			return err
		}
		acc.Username = *p.Username
	}
	if p.UUsername != nil {
		if err := am.setAlias(tx, unconfirmedAlias, acc.Address, acc.UUsername, *p.UUsername); err != nil {
			return err
		}
		acc.UUsername = *p.UUsername
	}
	if p.Multisignatures != nil {
		acc.Multisignatures = append([]string{}, p.Multisignatures...)
	}
	if p.Multimin != nil {
		acc.Multimin = *p.Multimin
	}
	if p.BlockID != "" {
		acc.BlockID = p.BlockID
	}
	return nil
}

// setAlias moves the alias index entry of an account from old to alias.
func (am *Manager) setAlias(tx db.Tx, prefix, address, old, alias string) error {
	if old == alias {
		return nil
	}
	if alias != "" {
		owner, err := tx.Get(aliasBucket, []byte(prefix+alias))
		if err != nil {
			return err
		}
		if owner != nil && string(owner) != address {
			return ErrAliasTaken
		}
		if err := tx.Put(aliasBucket, []byte(prefix+alias), []byte(address)); err != nil {
			return err
		}
	}
	if old != "" {
		owner, err := tx.Get(aliasBucket, []byte(prefix+old))
		if err != nil {
			return err
		}
		if string(owner) == address {
			return tx.Delete(aliasBucket, []byte(prefix+old))
		}
	}
	return nil
}

func roundKey(round uint64, blockID, address, delegate string) []byte {
	return []byte(fmt.Sprintf("%020d/%s/%s/%s", round, blockID, address, delegate))
}

// addRoundChange accumulates the vote weight change of a delegate.
func (am *Manager) addRoundChange(tx db.Tx, address, delegate string, amount int64, p *Patch) error {
	key := roundKey(p.Round, p.BlockID, address, delegate)
	rc := &types.RoundChange{Address: address, Delegate: delegate, BlockID: p.BlockID, Round: p.Round}
	b, err := tx.Get(roundBucket, key)
	if err != nil {
		return err
	}
	if b != nil {
		if err := types.Decode(b, rc); err != nil {
			return fmt.Errorf("decode round change failed: %v", err)
		}
	}
	rc.Amount += amount
	if rc.Amount == 0 {
		return tx.Delete(roundBucket, key)
	}
	if b, err = types.Encode(rc); err != nil {
		return err
	}
	return tx.Put(roundBucket, key, b)
}

// RoundChanges returns the vote weight changes recorded for a round.
func (am *Manager) RoundChanges(round uint64) ([]*types.RoundChange, error) {
	prefix := []byte(fmt.Sprintf("%020d/", round))
	vals, err := am.database.GetAll(roundBucket, prefix)
	if err != nil {
		return nil, err
	}
	var changes []*types.RoundChange
	for _, v := range vals {
		rc := &types.RoundChange{}
		if err := types.Decode(v, rc); err != nil {
			return nil, fmt.Errorf("decode round change failed: %v", err)
		}
		changes = append(changes, rc)
	}
	return changes, nil
}

// update runs fn on a copy of the account inside a database transaction,
// the cache is refreshed only when the transaction commits.
func (am *Manager) update(address string, fn func(db.Tx, *types.Account) error) (*types.Account, error) {
	am.lock.Lock()
	defer am.lock.Unlock()

	tx, err := am.database.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin db transaction failed: %v", err)
	}
	acc, err := am.load(tx, address)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{Address: address}
	}
	if err := fn(tx, acc); err != nil {
		tx.Rollback()
		return nil, err
	}
	b, err := types.Encode(acc)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("encode account failed: %v", err)
	}
	if err := tx.Put(accountBucket, []byte(address), b); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("save account in db failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit account %s failed: %v", address, err)
	}
	am.accounts.Add(address, acc.Clone())
	return acc, nil
}

// FormatBalance renders base units as a decimal token amount.
func FormatBalance(balance int64) string {
	sign := ""
	if balance < 0 {
		sign = "-"
		balance = -balance
	}
	whole := balance / types.FixedPoint
	frac := balance % types.FixedPoint
	return sign + strconv.FormatInt(whole, 10) + "." + fmt.Sprintf("%08d", frac)
}

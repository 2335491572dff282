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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/db/memdb"
	"github.com/ultiledger/go-ultidpos/types"
)

func newTestManager(t *testing.T) *Manager {
	am, err := NewManager(memdb.New(), 100)
	assert.NoError(t, err)
	return am
}

func testPublicKey(secret string) string {
	return crypto.KeypairFromSecret(secret).PublicKeyHex()
}

func TestDeriveAddress(t *testing.T) {
	pk := testPublicKey("account secret")
	addr, err := DeriveAddress(pk)
	assert.NoError(t, err)
	assert.True(t, crypto.IsAddress(addr))

	again, err := DeriveAddress(pk)
	assert.NoError(t, err)
	assert.Equal(t, addr, again)

	_, err = DeriveAddress("zz")
	assert.Error(t, err)
}

func TestSetAndGet(t *testing.T) {
	am := newTestManager(t)

	_, err := am.SetAndGet(&Patch{Balance: Int64(1)})
	assert.True(t, types.IsKind(err, types.MissingKey))

	pk := testPublicKey("alice")
	acc, err := am.SetAndGet(&Patch{PublicKey: pk, Balance: Int64(500)})
	assert.NoError(t, err)
	assert.Equal(t, int64(500), acc.Balance)
	addr, _ := DeriveAddress(pk)
	assert.Equal(t, addr, acc.Address)

	got, err := am.Get(Filter{PublicKey: pk})
	assert.NoError(t, err)
	assert.Equal(t, acc, got)

	// overwrite semantics
	acc, err = am.SetAndGet(&Patch{Address: addr, Balance: Int64(7), Multimin: intPtr(2)})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), acc.Balance)
	assert.Equal(t, 2, acc.Multimin)
	assert.Equal(t, pk, acc.PublicKey)

	// returned accounts are copies
	acc.Balance = 1000
	got, _ = am.Get(Filter{Address: addr})
	assert.Equal(t, int64(7), got.Balance)

	missing, err := am.Get(Filter{Address: "1L"})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = am.Get(Filter{})
	assert.Equal(t, ErrEmptyFilter, err)
}

func intPtr(v int) *int { return &v }

func TestMergeBalances(t *testing.T) {
	am := newTestManager(t)

	acc, err := am.Merge("10L", &Patch{Balance: Int64(50), UBalance: Int64(50)})
	assert.NoError(t, err)
	assert.Equal(t, int64(50), acc.Balance)

	acc, err = am.Merge("10L", &Patch{Balance: Int64(-20)})
	assert.NoError(t, err)
	assert.Equal(t, int64(30), acc.Balance)
	assert.Equal(t, int64(50), acc.UBalance)

	_, err = am.Merge("10L", &Patch{Balance: Int64(int64(^uint64(0) >> 1))})
	assert.Equal(t, ErrBalanceOverflow, err)

	// failed merge leaves the account untouched
	acc, _ = am.Get(Filter{Address: "10L"})
	assert.Equal(t, int64(30), acc.Balance)
}

func TestConcurrentMerge(t *testing.T) {
	deltas := []int64{50, -20}
	for _, order := range [][]int{{0, 1}, {1, 0}} {
		am := newTestManager(t)
		for _, i := range order {
			_, err := am.Merge("20L", &Patch{Balance: Int64(deltas[i])})
			assert.NoError(t, err)
		}
		acc, _ := am.Get(Filter{Address: "20L"})
		assert.Equal(t, int64(30), acc.Balance)
	}

	am := newTestManager(t)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			am.Merge("20L", &Patch{Balance: Int64(50)})
		}()
		go func() {
			defer wg.Done()
			am.Merge("20L", &Patch{Balance: Int64(-20)})
		}()
	}
	wg.Wait()
	acc, _ := am.Get(Filter{Address: "20L"})
	assert.Equal(t, int64(3000), acc.Balance)
}

func vote(op byte, secret string) string {
	return string(op) + testPublicKey(secret)
}

func TestMergeDelegates(t *testing.T) {
	am := newTestManager(t)

	acc, err := am.Merge("30L", &Patch{
		Balance:   Int64(100),
		Delegates: []string{vote('+', "d1"), vote('+', "d2")},
		BlockID:   "1",
		Round:     1,
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{testPublicKey("d1"), testPublicKey("d2")}, acc.Delegates)

	_, err = am.Merge("30L", &Patch{Delegates: []string{vote('+', "d1")}})
	assert.True(t, types.IsKind(err, types.StateConflict))

	_, err = am.Merge("30L", &Patch{Delegates: []string{vote('-', "d3")}})
	assert.True(t, types.IsKind(err, types.StateConflict))

	acc, err = am.Merge("30L", &Patch{Delegates: []string{vote('-', "d1")}, BlockID: "2", Round: 1})
	assert.NoError(t, err)
	assert.Equal(t, []string{testPublicKey("d2")}, acc.Delegates)

	changes, err := am.RoundChanges(1)
	assert.NoError(t, err)
	weights := make(map[string]int64)
	for _, rc := range changes {
		weights[rc.Delegate] += rc.Amount
	}
	assert.Equal(t, int64(0), weights[testPublicKey("d1")])
	assert.Equal(t, int64(100), weights[testPublicKey("d2")])

	changes, err = am.RoundChanges(2)
	assert.NoError(t, err)
	assert.Empty(t, changes)
}

func TestVoteLimit(t *testing.T) {
	am := newTestManager(t)
	var votes []string
	for i := 0; i < types.MaxDelegates; i++ {
		votes = append(votes, vote('+', strings.Repeat("x", i+1)))
	}
	_, err := am.Merge("40L", &Patch{Delegates: votes})
	assert.NoError(t, err)

	_, err = am.Merge("40L", &Patch{Delegates: []string{vote('+', "one more")}})
	assert.Equal(t, ErrVoteLimit, err)
}

func TestAliases(t *testing.T) {
	am := newTestManager(t)

	_, err := am.SetAndGet(&Patch{Address: "50L", Username: String("alice")})
	assert.NoError(t, err)
	_, err = am.SetAndGet(&Patch{Address: "51L", Username: String("alice")})
	assert.Equal(t, ErrAliasTaken, err)

	// case sensitive aliases
	_, err = am.SetAndGet(&Patch{Address: "51L", Username: String("ALICE"), UUsername: String("ALICE")})
	assert.NoError(t, err)

	acc, err := am.Get(Filter{Username: "alice"})
	assert.NoError(t, err)
	assert.Equal(t, "50L", acc.Address)

	acc, err = am.Get(Filter{UUsername: "ALICE"})
	assert.NoError(t, err)
	assert.Equal(t, "51L", acc.Address)

	accs, err := am.GetAll(Filter{Username: "alice", UUsername: "ALICE", Or: true})
	assert.NoError(t, err)
	assert.Len(t, accs, 2)

	accs, err = am.GetAll(Filter{Username: "alice", UUsername: "ALICE"})
	assert.NoError(t, err)
	assert.Empty(t, accs)

	// clearing the alias frees it
	_, err = am.SetAndGet(&Patch{Address: "50L", Username: String("")})
	assert.NoError(t, err)
	acc, err = am.Get(Filter{Username: "alice"})
	assert.NoError(t, err)
	assert.Nil(t, acc)

	all, err := am.GetAll(Filter{})
	assert.NoError(t, err)
	assert.Len(t, all, 2)
	n, _ := am.Count()
	assert.Equal(t, 2, n)
}

func TestFormatBalance(t *testing.T) {
	assert.Equal(t, "1.00000000", FormatBalance(types.FixedPoint))
	assert.Equal(t, "-0.00000005", FormatBalance(-5))
}

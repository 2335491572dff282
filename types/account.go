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

// MaxDelegates is the protocol wide limit of votes an account can hold.
const MaxDelegates = 101

// Account is keyed by its address which is derived from the public key.
// The u_ prefixed fields mirror the confirmed ones with the effects of
// transactions that are not included in a block yet.
type Account struct {
	Address         string   `json:"address" codec:"address"`
	PublicKey       string   `json:"publicKey,omitempty" codec:"publicKey"`
	Balance         int64    `json:"balance" codec:"balance"`
	UBalance        int64    `json:"u_balance" codec:"u_balance"`
	Delegates       []string `json:"delegates" codec:"delegates"`
	UDelegates      []string `json:"u_delegates" codec:"u_delegates"`
	Username        string   `json:"username,omitempty" codec:"username"`
	UUsername       string   `json:"u_username,omitempty" codec:"u_username"`
	Multisignatures []string `json:"multisignatures" codec:"multisignatures"`
	Multimin        int      `json:"multimin" codec:"multimin"`
	BlockID         string   `json:"blockId,omitempty" codec:"blockId"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Delegates = cloneStrings(a.Delegates)
	c.UDelegates = cloneStrings(a.UDelegates)
	c.Multisignatures = cloneStrings(a.Multisignatures)
	return &c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	c := make([]string, len(s))
	copy(c, s)
	return c
}

// RoundChange records a change of a delegate's vote weight caused by a
// confirmed merge, the round module sums them when a round closes.
type RoundChange struct {
	Address  string `json:"address" codec:"address"`
	Delegate string `json:"delegate" codec:"delegate"`
	Amount   int64  `json:"amount" codec:"amount"`
	BlockID  string `json:"blockId" codec:"blockId"`
	Round    uint64 `json:"round" codec:"round"`
}

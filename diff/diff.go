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

// Package diff implements sign-prefixed deltas over string sets. An
// entry "+k" adds k to the set and "-k" removes it, a diff is an ordered
// list of entries and can be inverted with Reverse.
package diff

import (
	"strings"

	mapset "github.com/deckarep/golang-set"

	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrMalformedEntry = types.NewError(types.SchemaViolation, "malformed diff entry")
	ErrDuplicateVote  = types.NewError(types.StateConflict, "duplicate vote")
	ErrMissingVote    = types.NewError(types.StateConflict, "missing vote")
)

// Op is the sign of a diff entry.
type Op byte

const (
	Add    Op = '+'
	Remove Op = '-'
)

// Parse splits an entry into its sign and key.
func Parse(entry string) (Op, string, error) {
	if len(entry) < 2 {
		return 0, "", ErrMalformedEntry
	}
	op := Op(entry[0])
	if op != Add && op != Remove {
		return 0, "", ErrMalformedEntry
	}
	return op, entry[1:], nil
}

// Encode builds an entry from a sign and a key.
func Encode(op Op, key string) string {
	var sb strings.Builder
	sb.WriteByte(byte(op))
	sb.WriteString(key)
	return sb.String()
}

// Reverse flips the sign of every entry and keeps the order. Entries
// without a sign are copied unchanged.
func Reverse(diff []string) []string {
	if diff == nil {
		return nil
	}
	out := make([]string, len(diff))
	for i, entry := range diff {
		op, key, err := Parse(entry)
		if err != nil {
			out[i] = entry
			continue
		}
		if op == Add {
			out[i] = Encode(Remove, key)
		} else {
			out[i] = Encode(Add, key)
		}
	}
	return out
}

// Apply returns the set obtained by applying diff to current. Removing an
// absent key fails with ErrMissingVote, adding a present key fails with
// ErrDuplicateVote in strict mode and is a no-op otherwise. current is
// never modified, on failure nothing is applied. Surviving keys keep their
// order and added keys are appended in diff order.
func Apply(current []string, diff []string, strict bool) ([]string, error) {
	set := mapset.NewThreadUnsafeSet()
	for _, k := range current {
		set.Add(k)
	}

	var added []string
	for _, entry := range diff {
		op, key, err := Parse(entry)
		if err != nil {
			return nil, types.Errorf(types.SchemaViolation, err, "parse %q", entry)
		}
		switch op {
		case Add:
			if !set.Add(key) {
				if strict {
					return nil, types.Errorf(types.StateConflict, ErrDuplicateVote, "add %s", key)
				}
				continue
			}
			added = append(added, key)
		case Remove:
			if !set.Contains(key) {
				return nil, types.Errorf(types.StateConflict, ErrMissingVote, "remove %s", key)
			}
			set.Remove(key)
		}
	}

	out := make([]string, 0, set.Cardinality())
	for _, k := range current {
		if set.Contains(k) {
			out = append(out, k)
			set.Remove(k)
		}
	}
	for _, k := range added {
		if set.Contains(k) {
			out = append(out, k)
			set.Remove(k)
		}
	}
	return out, nil
}

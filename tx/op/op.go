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

// Package op implements the transaction types of the node. Each type
// is a tx.Handler registered under its type id, Register wires all of
// them into a registry.
package op

import (
	"fmt"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/types"
)

// Context represents contextual information the handlers need
type Context struct {
	AM      *account.Manager
	Checker *DelegateChecker
	Rounds  tx.RoundCalculator
}

func ValidateContext(ctx *Context) error {
	if ctx == nil {
		return fmt.Errorf("op context is nil")
	}
	if ctx.AM == nil {
		return fmt.Errorf("account manager is nil")
	}
	if ctx.Checker == nil {
		return fmt.Errorf("delegate checker is nil")
	}
	if ctx.Rounds == nil {
		return fmt.Errorf("round calculator is nil")
	}
	return nil
}

// Register adds the handlers of every transaction type to r.
func Register(r *tx.Registry, ctx *Context) error {
	if err := ValidateContext(ctx); err != nil {
		return fmt.Errorf("op context is invalid: %v", err)
	}
	handlers := map[types.TxType]tx.Handler{
		types.TxVote:     &Vote{AM: ctx.AM, Checker: ctx.Checker, Rounds: ctx.Rounds},
		types.TxUsername: &Username{AM: ctx.AM},
	}
	for t, h := range handlers {
		if err := r.Register(t, h); err != nil {
			return err
		}
	}
	return nil
}

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

import (
	"errors"
	"fmt"
)

// Kind classifies failures so that callers can decide how to answer
// a peer or a client without inspecting error strings.
type Kind uint8

const (
	// Malformed input shape, rejected locally and never banned.
	SchemaViolation Kind = iota + 1
	// Malformed block or transaction content sent by a peer.
	ProtocolViolation
	// Duplicate alias, duplicate vote, vote limit, missing vote.
	StateConflict
	// Integrity hash of an inter-node message does not match.
	HashMismatch
	// The node has not finished loading.
	NotReady
	// Neither address nor public key was supplied.
	MissingKey
)

func (k Kind) String() string {
	switch k {
	case SchemaViolation:
		return "SchemaViolation"
	case ProtocolViolation:
		return "ProtocolViolation"
	case StateConflict:
		return "StateConflict"
	case HashMismatch:
		return "HashMismatch"
	case NotReady:
		return "NotReady"
	case MissingKey:
		return "MissingKey"
	}
	return "Unknown"
}

// Error is an error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a sentinel error of the kind.
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf wraps err with a message while keeping the kind of err
// when it has one, otherwise the supplied kind is used.
func Errorf(kind Kind, err error, format string, args ...interface{}) error {
	if k, ok := KindOf(err); ok {
		kind = k
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first tagged error in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

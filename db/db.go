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

package db

import (
	"fmt"
	"sort"
	"sync"
)

// Getter reads values, a missing key yields a nil value and nil error.
type Getter interface {
	Get(bucket string, key []byte) ([]byte, error)
	// GetAll returns the values whose keys start with keyPrefix.
	GetAll(bucket string, keyPrefix []byte) ([][]byte, error)
}

// Putter writes values.
type Putter interface {
	Put(bucket string, key, value []byte) error
	Delete(bucket string, key []byte) error
}

// Tx is a writable database transaction.
type Tx interface {
	Getter
	Putter
	Rollback() error
	Commit() error
}

// Database is the key-value contract the ledger is persisted through.
type Database interface {
	Getter
	Putter
	NewBucket(name string) error
	Begin() (Tx, error)
	Close() error
}

// Ctor creates a database in the specified path.
type Ctor func(path string) (Database, error)

var (
	ctorLock     sync.RWMutex
	constructors = make(map[string]Ctor)
)

// Database backend should call this function to register itself
// in order to be used by application.
func Register(name string, ctor Ctor) {
	ctorLock.Lock()
	defer ctorLock.Unlock()
	constructors[name] = ctor
}

// Open creates the database with the registered backend.
func Open(name string, path string) (Database, error) {
	ctorLock.RLock()
	ctor, ok := constructors[name]
	ctorLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("database %s not registered", name)
	}
	return ctor(path)
}

// Backends lists the registered backend names.
func Backends() []string {
	ctorLock.RLock()
	defer ctorLock.RUnlock()
	var names []string
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

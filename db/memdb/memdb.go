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

package memdb

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/ultiledger/go-ultidpos/db"
)

var ErrClosed = errors.New("memdb is closed")

func init() {
	db.Register("memdb", func(string) (db.Database, error) { return New(), nil })
}

type memdb struct {
	sync.RWMutex
	buckets map[string]map[string][]byte
}

// New creates a memory-based key-value store
// which is mainly used for testing.
func New() db.Database {
	return &memdb{buckets: make(map[string]map[string][]byte)}
}

func (m *memdb) NewBucket(name string) error {
	m.Lock()
	defer m.Unlock()
	if m.buckets == nil {
		return ErrClosed
	}
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = make(map[string][]byte)
	}
	return nil
}

// Put writes the key/value pair to database.
func (m *memdb) Put(bucket string, key, value []byte) error {
	m.Lock()
	defer m.Unlock()
	return m.put(bucket, key, value)
}

func (m *memdb) put(bucket string, key, value []byte) error {
	if m.buckets == nil {
		return ErrClosed
	}
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	b[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete deletes the key from the database.
func (m *memdb) Delete(bucket string, key []byte) error {
	m.Lock()
	defer m.Unlock()
	if m.buckets == nil {
		return ErrClosed
	}
	delete(m.buckets[bucket], string(key))
	return nil
}

// Get retrieves the value of the key from database.
func (m *memdb) Get(bucket string, key []byte) ([]byte, error) {
	m.RLock()
	defer m.RUnlock()
	if m.buckets == nil {
		return nil, ErrClosed
	}
	if val, ok := m.buckets[bucket][string(key)]; ok {
		return append([]byte(nil), val...), nil
	}
	return nil, nil
}

// GetAll retrieves the values of the keys with prefix in key order.
func (m *memdb) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	m.RLock()
	defer m.RUnlock()
	if m.buckets == nil {
		return nil, ErrClosed
	}
	b := m.buckets[bucket]
	var keys []string
	for k := range b {
		if strings.HasPrefix(k, string(keyPrefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, append([]byte(nil), b[k]...))
	}
	return vals, nil
}

// Close closes the underlying database.
func (m *memdb) Close() error {
	m.Lock()
	defer m.Unlock()
	m.buckets = nil
	return nil
}

// Begin returns a transaction which stages writes in memory
// until Commit applies them at once.
func (m *memdb) Begin() (db.Tx, error) {
	m.RLock()
	defer m.RUnlock()
	if m.buckets == nil {
		return nil, ErrClosed
	}
	return &memdbTx{db: m, writes: make(map[string]map[string][]byte)}, nil
}

// memdbTx keeps staged writes, a nil value marks a deletion.
type memdbTx struct {
	db     *memdb
	writes map[string]map[string][]byte
	done   bool
}

func (tx *memdbTx) stage(bucket string) map[string][]byte {
	w, ok := tx.writes[bucket]
	if !ok {
		w = make(map[string][]byte)
		tx.writes[bucket] = w
	}
	return w
}

func (tx *memdbTx) Get(bucket string, key []byte) ([]byte, error) {
	if w, ok := tx.writes[bucket]; ok {
		if v, ok := w[string(key)]; ok {
			return append([]byte(nil), v...), nil
		}
	}
	return tx.db.Get(bucket, key)
}

func (tx *memdbTx) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	tx.db.RLock()
	merged := make(map[string][]byte)
	for k, v := range tx.db.buckets[bucket] {
		if strings.HasPrefix(k, string(keyPrefix)) {
			merged[k] = v
		}
	}
	tx.db.RUnlock()
	for k, v := range tx.writes[bucket] {
		if !strings.HasPrefix(k, string(keyPrefix)) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([][]byte, 0, len(keys))
	for _, k := range keys {
		vals = append(vals, append([]byte(nil), merged[k]...))
	}
	return vals, nil
}

func (tx *memdbTx) Put(bucket string, key, value []byte) error {
	if tx.done {
		return errors.New("transaction is finished")
	}
	if value == nil {
		value = []byte{}
	}
	tx.stage(bucket)[string(key)] = append([]byte{}, value...)
	return nil
}

func (tx *memdbTx) Delete(bucket string, key []byte) error {
	if tx.done {
		return errors.New("transaction is finished")
	}
	tx.stage(bucket)[string(key)] = nil
	return nil
}

func (tx *memdbTx) Rollback() error {
	tx.done = true
	tx.writes = nil
	return nil
}

func (tx *memdbTx) Commit() error {
	if tx.done {
		return errors.New("transaction is finished")
	}
	tx.done = true
	tx.db.Lock()
	defer tx.db.Unlock()
	for bucket, w := range tx.writes {
		for k, v := range w {
			if v == nil {
				delete(tx.db.buckets[bucket], k)
				continue
			}
			if err := tx.db.put(bucket, []byte(k), v); err != nil {
				return err
			}
		}
	}
	return nil
}

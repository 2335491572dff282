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

// Package badgerdb stores buckets as key prefixes of a badger database.
package badgerdb

import (
	"fmt"

	"github.com/dgraph-io/badger"

	"github.com/ultiledger/go-ultidpos/db"
)

func init() {
	db.Register("badger", New)
}

type badgerdb struct {
	db *badger.DB
}

// New opens (or creates) a badger database in the directory path.
func New(path string) (db.Database, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s failed: %v", path, err)
	}
	return &badgerdb{db: handle}, nil
}

func bucketKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, '/')
	return append(k, key...)
}

// Buckets are implicit key prefixes.
func (bd *badgerdb) NewBucket(name string) error {
	if name == "" {
		return fmt.Errorf("database bucket name is empty")
	}
	return nil
}

func (bd *badgerdb) Put(bucket string, key, value []byte) error {
	return bd.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bucketKey(bucket, key), value)
	})
}

func (bd *badgerdb) Delete(bucket string, key []byte) error {
	return bd.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(bucketKey(bucket, key))
	})
}

func (bd *badgerdb) Get(bucket string, key []byte) ([]byte, error) {
	var val []byte
	err := bd.db.View(func(txn *badger.Txn) error {
		var err error
		val, err = get(txn, bucket, key)
		return err
	})
	return val, err
}

func (bd *badgerdb) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	var vals [][]byte
	err := bd.db.View(func(txn *badger.Txn) error {
		var err error
		vals, err = getAll(txn, bucket, keyPrefix)
		return err
	})
	return vals, err
}

func (bd *badgerdb) Close() error {
	return bd.db.Close()
}

func (bd *badgerdb) Begin() (db.Tx, error) {
	return &badgerTx{txn: bd.db.NewTransaction(true)}, nil
}

type badgerTx struct {
	txn *badger.Txn
}

func (bt *badgerTx) Get(bucket string, key []byte) ([]byte, error) {
	return get(bt.txn, bucket, key)
}

func (bt *badgerTx) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	return getAll(bt.txn, bucket, keyPrefix)
}

func (bt *badgerTx) Put(bucket string, key, value []byte) error {
	return bt.txn.Set(bucketKey(bucket, key), value)
}

func (bt *badgerTx) Delete(bucket string, key []byte) error {
	return bt.txn.Delete(bucketKey(bucket, key))
}

func (bt *badgerTx) Rollback() error {
	bt.txn.Discard()
	return nil
}

func (bt *badgerTx) Commit() error {
	return bt.txn.Commit()
}

func get(txn *badger.Txn, bucket string, key []byte) ([]byte, error) {
	item, err := txn.Get(bucketKey(bucket, key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getAll(txn *badger.Txn, bucket string, keyPrefix []byte) ([][]byte, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	prefix := bucketKey(bucket, keyPrefix)
	var vals [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

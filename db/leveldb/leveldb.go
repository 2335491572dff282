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

// Package leveldb stores buckets as key prefixes of a goleveldb database.
package leveldb

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ultiledger/go-ultidpos/db"
)

func init() {
	db.Register("leveldb", New)
}

type leveldbWrapper struct {
	db *leveldb.DB
}

// New opens (or creates) a leveldb database in the directory path.
func New(path string) (db.Database, error) {
	options := &opt.Options{
		BlockCacheCapacity: 32 * opt.MiB,
		WriteBuffer:        16 * opt.MiB,
	}
	handle, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s failed: %v", path, err)
	}
	return &leveldbWrapper{db: handle}, nil
}

func bucketKey(bucket string, key []byte) []byte {
	k := make([]byte, 0, len(bucket)+1+len(key))
	k = append(k, bucket...)
	k = append(k, '/')
	return append(k, key...)
}

// Buckets are implicit key prefixes.
func (lw *leveldbWrapper) NewBucket(name string) error {
	if name == "" {
		return fmt.Errorf("database bucket name is empty")
	}
	return nil
}

func (lw *leveldbWrapper) Put(bucket string, key, value []byte) error {
	return lw.db.Put(bucketKey(bucket, key), value, nil)
}

func (lw *leveldbWrapper) Delete(bucket string, key []byte) error {
	return lw.db.Delete(bucketKey(bucket, key), nil)
}

func (lw *leveldbWrapper) Get(bucket string, key []byte) ([]byte, error) {
	v, err := lw.db.Get(bucketKey(bucket, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (lw *leveldbWrapper) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	iter := lw.db.NewIterator(util.BytesPrefix(bucketKey(bucket, keyPrefix)), nil)
	defer iter.Release()
	var vals [][]byte
	for iter.Next() {
		vals = append(vals, append([]byte(nil), iter.Value()...))
	}
	return vals, iter.Error()
}

func (lw *leveldbWrapper) Close() error {
	return lw.db.Close()
}

// Begin opens a leveldb transaction, leveldb allows a single open
// transaction and blocks writes outside of it until it is finished.
func (lw *leveldbWrapper) Begin() (db.Tx, error) {
	tr, err := lw.db.OpenTransaction()
	if err != nil {
		return nil, err
	}
	return &leveldbTx{tr: tr}, nil
}

type leveldbTx struct {
	tr *leveldb.Transaction
}

func (lt *leveldbTx) Get(bucket string, key []byte) ([]byte, error) {
	v, err := lt.tr.Get(bucketKey(bucket, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return v, err
}

func (lt *leveldbTx) GetAll(bucket string, keyPrefix []byte) ([][]byte, error) {
	iter := lt.tr.NewIterator(util.BytesPrefix(bucketKey(bucket, keyPrefix)), nil)
	defer iter.Release()
	var vals [][]byte
	for iter.Next() {
		vals = append(vals, append([]byte(nil), iter.Value()...))
	}
	return vals, iter.Error()
}

func (lt *leveldbTx) Put(bucket string, key, value []byte) error {
	return lt.tr.Put(bucketKey(bucket, key), value, nil)
}

func (lt *leveldbTx) Delete(bucket string, key []byte) error {
	return lt.tr.Delete(bucketKey(bucket, key), nil)
}

func (lt *leveldbTx) Rollback() error {
	lt.tr.Discard()
	return nil
}

func (lt *leveldbTx) Commit() error {
	return lt.tr.Commit()
}

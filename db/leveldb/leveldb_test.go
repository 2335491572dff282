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

package leveldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDBOps(t *testing.T) {
	db, err := New(t.TempDir())
	assert.Nil(t, err)
	defer db.Close()
	assert.Nil(t, db.NewBucket("TEST"))

	val, err := db.Get("TEST", []byte("none"))
	assert.Nil(t, err)
	assert.Nil(t, val)

	assert.Nil(t, db.Put("TEST", []byte("k1"), []byte("v1")))
	assert.Nil(t, db.Put("TEST", []byte("k2"), []byte("v2")))
	assert.Nil(t, db.Put("OTHER", []byte("k3"), []byte("v3")))

	val, err = db.Get("TEST", []byte("k1"))
	assert.Nil(t, err)
	assert.Equal(t, []byte("v1"), val)

	// buckets do not leak into each other
	vals, err := db.GetAll("TEST", []byte("k"))
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("v1"), []byte("v2")}, vals)

	assert.Nil(t, db.Delete("TEST", []byte("k1")))
	val, _ = db.Get("TEST", []byte("k1"))
	assert.Nil(t, val)
}

func TestDBTx(t *testing.T) {
	db, err := New(t.TempDir())
	assert.Nil(t, err)
	defer db.Close()

	tx, err := db.Begin()
	assert.Nil(t, err)
	assert.Nil(t, tx.Put("TEST", []byte("a"), []byte("1")))
	v, _ := tx.Get("TEST", []byte("a"))
	assert.Equal(t, []byte("1"), v)
	assert.Nil(t, tx.Commit())

	tx, _ = db.Begin()
	assert.Nil(t, tx.Put("TEST", []byte("b"), []byte("2")))
	assert.Nil(t, tx.Rollback())

	v, _ = db.Get("TEST", []byte("a"))
	assert.Equal(t, []byte("1"), v)
	v, _ = db.Get("TEST", []byte("b"))
	assert.Nil(t, v)
}

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
	"bytes"

	"github.com/ugorji/go/codec"
)

// Encode serializes a record to canonical json for the database.
func Encode(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode deserializes a record written by Encode.
func Decode(data []byte, v interface{}) error {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoderBytes(data, jh)
	return dec.Decode(v)
}

func DecodeAccount(b []byte) (*Account, error) {
	acc := &Account{}
	if err := Decode(b, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func DecodeBlock(b []byte) (*Block, error) {
	blk := &Block{}
	if err := Decode(b, blk); err != nil {
		return nil, err
	}
	return blk, nil
}

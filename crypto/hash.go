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

package crypto

import (
	"crypto/sha256"
	"strconv"

	b58 "github.com/mr-tron/base58/base58"
)

// compute sha256 checksum (32 bytes) rendered in base58
func SHA256Hash(b []byte) string {
	v := sha256.Sum256(b)
	return b58.Encode(v[:])
}

// compute sha256 checksum (32 bytes)
func SHA256HashBytes(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// MessageHash computes the integrity hash of an inter-node application
// message, the timestamp is appended to the body in decimal form.
func MessageHash(body []byte, timestamp int64) string {
	buf := make([]byte, 0, len(body)+20)
	buf = append(buf, body...)
	buf = strconv.AppendInt(buf, timestamp, 10)
	return SHA256Hash(buf)
}

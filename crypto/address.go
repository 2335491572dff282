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
	"encoding/binary"
	"regexp"
	"strconv"
)

// AddressSuffix terminates every rendered account address.
const AddressSuffix = "L"

var addressRegexp = regexp.MustCompile(`^[0-9]+[Ll]$`)

// AddressFromPublicKey derives the account address of a raw public key.
//
// Only 64 bits of the digest survive, so two public keys may map to the
// same address with a probability of about 2^-64 per pair. Accounts are
// keyed by address alone and such a collision is not detected.
func AddressFromPublicKey(publicKey []byte) string {
	return IDFromHash(sha256.Sum256(publicKey)) + AddressSuffix
}

// IDFromHash takes the last 8 bytes of the digest, reverses their order
// and renders them as an unsigned decimal integer. Block and transaction
// ids use the same rule as addresses without the suffix.
func IDFromHash(h [32]byte) string {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = h[len(h)-1-i]
	}
	return strconv.FormatUint(binary.BigEndian.Uint64(tmp[:]), 10)
}

// IsAddress reports whether s has the shape of an account address.
func IsAddress(s string) bool {
	return addressRegexp.MatchString(s)
}

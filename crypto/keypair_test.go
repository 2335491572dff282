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
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeypairFromSecret(t *testing.T) {
	kp := KeypairFromSecret("secret")
	assert.Equal(t, kp.PublicKeyHex(), KeypairFromSecret("secret").PublicKeyHex())
	assert.Equal(t, 64, len(kp.PublicKeyHex()))
}

func TestSignVerify(t *testing.T) {
	kp := KeypairFromSecret("secret")
	data := []byte("payload")
	sig := hex.EncodeToString(kp.Sign(data))

	assert.NoError(t, Verify(kp.PublicKeyHex(), data, sig))
	assert.Equal(t, ErrInvalidSignature, Verify(kp.PublicKeyHex(), []byte("other"), sig))
	assert.Equal(t, ErrInvalidSignature, Verify(kp.PublicKeyHex(), data, "zz"))

	_, err := DecodePublicKey("abcd")
	assert.Equal(t, ErrInvalidPublicKey, err)
	assert.Error(t, Verify("nothex", data, sig))
}

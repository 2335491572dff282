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
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ed25519"
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Keypair is an ed25519 key pair derived from a passphrase.
type Keypair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// KeypairFromSecret uses the sha256 digest of the secret as the
// ed25519 seed, so the same secret always yields the same keys.
func KeypairFromSecret(secret string) *Keypair {
	seed := sha256.Sum256([]byte(secret))
	privateKey := ed25519.NewKeyFromSeed(seed[:])
	return &Keypair{
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		PrivateKey: privateKey,
	}
}

// PublicKeyHex returns the hex encoding of the public key.
func (k *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(k.PublicKey)
}

// Sign signs the sha256 digest of data.
func (k *Keypair) Sign(data []byte) []byte {
	h := sha256.Sum256(data)
	return ed25519.Sign(k.PrivateKey, h[:])
}

// DecodePublicKey decodes a hex encoded ed25519 public key.
func DecodePublicKey(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key failed: %v", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	return b, nil
}

// Verify checks the hex encoded signature of the sha256 digest of data.
func Verify(publicKey string, data []byte, signature string) error {
	pk, err := DecodePublicKey(publicKey)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}
	h := sha256.Sum256(data)
	if !ed25519.Verify(ed25519.PublicKey(pk), h[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

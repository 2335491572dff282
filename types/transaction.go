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

// TxType is the discriminator of the transaction type registry.
type TxType uint8

const (
	TxSend TxType = iota
	TxSignature
	TxDelegate
	TxVote
	TxUsername
)

// FixedPoint is the number of base units in one token.
const FixedPoint int64 = 100000000

// TotalSupply bounds every amount a transaction can move.
const TotalSupply = 100000000 * FixedPoint

// Transaction is immutable once signed.
type Transaction struct {
	ID              string   `json:"id" codec:"id"`
	Type            TxType   `json:"type" codec:"type"`
	Timestamp       int64    `json:"timestamp" codec:"timestamp"`
	SenderPublicKey string   `json:"senderPublicKey" codec:"senderPublicKey"`
	SenderID        string   `json:"senderId" codec:"senderId"`
	RecipientID     string   `json:"recipientId,omitempty" codec:"recipientId"`
	Amount          int64    `json:"amount" codec:"amount"`
	Fee             int64    `json:"fee" codec:"fee"`
	Signature       string   `json:"signature" codec:"signature"`
	Signatures      []string `json:"signatures,omitempty" codec:"signatures"`
	Asset           Asset    `json:"asset" codec:"asset"`
}

// Asset is the type specific payload, only the field matching the
// transaction type is populated.
type Asset struct {
	Votes    []string       `json:"votes,omitempty" codec:"votes"`
	Username *UsernameAsset `json:"username,omitempty" codec:"username"`
}

// UsernameAsset registers an alias for the sender.
type UsernameAsset struct {
	Alias     string `json:"alias" codec:"alias"`
	PublicKey string `json:"publicKey" codec:"publicKey"`
}

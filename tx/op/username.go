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

package op

import (
	"regexp"
	"strings"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/tx"
	"github.com/ultiledger/go-ultidpos/types"
)

const (
	MaxAliasLength = 20

	UsernameFee = 100 * types.FixedPoint
)

var (
	ErrInvalidRecipient = types.NewError(types.ProtocolViolation, "invalid recipient")
	ErrInvalidAmount    = types.NewError(types.ProtocolViolation, "invalid transaction amount")
	ErrInvalidAsset     = types.NewError(types.SchemaViolation, "invalid transaction asset")
	ErrAliasCharset     = types.NewError(types.ProtocolViolation, "username must only contain alphanumeric characters (with the exception of !@$&_.)")
	ErrAliasIsAddress   = types.NewError(types.ProtocolViolation, "username cannot be a potential address")
	ErrAliasLength      = types.NewError(types.ProtocolViolation, "invalid username length, must be between 1 to 20 characters")
	ErrAliasMismatch    = types.NewError(types.StateConflict, "invalid username, does not match transaction asset")
	ErrHasUsername      = types.NewError(types.StateConflict, "account already has a username")
	ErrAssetKeyMismatch = types.NewError(types.ProtocolViolation, "username public key does not match sender")
)

var aliasPattern = regexp.MustCompile(`^[a-z0-9!@$&_.]+$`)

// Username registers an alias for the sender. Aliases are compared
// case sensitively, the charset rule applies to the lower-cased alias.
type Username struct {
	AM *account.Manager
}

func (u *Username) Create(data *tx.CreateData, trs *types.Transaction) *types.Transaction {
	trs.RecipientID = ""
	trs.Amount = 0
	trs.Asset.Username = &types.UsernameAsset{
		Alias:     data.Username,
		PublicKey: trs.SenderPublicKey,
	}
	return trs
}

func (u *Username) CalculateFee(trs *types.Transaction, sender *types.Account) int64 {
	return UsernameFee
}

func (u *Username) Verify(trs *types.Transaction, sender *types.Account) error {
	if trs.RecipientID != "" {
		return ErrInvalidRecipient
	}
	if trs.Amount != 0 {
		return ErrInvalidAmount
	}
	asset := trs.Asset.Username
	if asset == nil || asset.Alias == "" {
		return ErrInvalidAsset
	}
	if asset.PublicKey != trs.SenderPublicKey {
		return ErrAssetKeyMismatch
	}
	if err := checkAlias(asset.Alias); err != nil {
		return err
	}

	holders, err := u.AM.GetAll(account.Filter{Username: asset.Alias, UUsername: asset.Alias, Or: true})
	if err != nil {
		return err
	}
	for _, acc := range holders {
		if acc.Username == asset.Alias {
			return account.ErrAliasTaken
		}
	}
	if sender.Username != "" && sender.Username != asset.Alias {
		return ErrAliasMismatch
	}
	if sender.UUsername != "" && sender.UUsername != asset.Alias {
		return ErrHasUsername
	}
	return nil
}

func checkAlias(alias string) error {
	lower := strings.ToLower(alias)
	if !aliasPattern.MatchString(lower) {
		return ErrAliasCharset
	}
	if crypto.IsAddress(lower) {
		return ErrAliasIsAddress
	}
	if len(alias) == 0 || len(alias) > MaxAliasLength {
		return ErrAliasLength
	}
	return nil
}

func (u *Username) Process(trs *types.Transaction, sender *types.Account) error {
	return nil
}

// GetBytes returns the alias followed by the raw public key, the fixed
// key length keeps distinct assets apart.
func (u *Username) GetBytes(trs *types.Transaction) ([]byte, error) {
	asset := trs.Asset.Username
	if asset == nil {
		return nil, ErrInvalidAsset
	}
	pk, err := crypto.DecodePublicKey(asset.PublicKey)
	if err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "invalid username public key")
	}
	return append([]byte(asset.Alias), pk...), nil
}

func (u *Username) Apply(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	_, err := u.AM.SetAndGet(&account.Patch{
		Address:   sender.Address,
		UUsername: account.String(""),
		Username:  account.String(trs.Asset.Username.Alias),
	})
	return err
}

func (u *Username) Undo(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	if trs.Asset.Username == nil {
		return nil
	}
	_, err := u.AM.SetAndGet(&account.Patch{
		Address:   sender.Address,
		Username:  account.String(""),
		UUsername: account.String(trs.Asset.Username.Alias),
	})
	return err
}

func (u *Username) ApplyUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	if sender.Username != "" || sender.UUsername != "" {
		return ErrHasUsername
	}
	alias := trs.Asset.Username.Alias
	holders, err := u.AM.GetAll(account.Filter{UUsername: alias, Address: sender.Address, Or: true})
	if err != nil {
		return err
	}
	for _, acc := range holders {
		if acc.UUsername != "" {
			return account.ErrAliasTaken
		}
	}
	_, err = u.AM.SetAndGet(&account.Patch{Address: sender.Address, UUsername: account.String(alias)})
	return err
}

func (u *Username) UndoUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	_, err := u.AM.SetAndGet(&account.Patch{Address: sender.Address, UUsername: account.String("")})
	return err
}

func (u *Username) ObjectNormalize(trs *types.Transaction) (*types.Transaction, error) {
	asset := trs.Asset.Username
	if asset == nil {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidAsset, "username: missing")
	}
	if len(asset.Alias) < 1 || len(asset.Alias) > MaxAliasLength {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidAsset, "alias: expected 1 to %d characters", MaxAliasLength)
	}
	if _, err := crypto.DecodePublicKey(asset.PublicKey); err != nil {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidAsset, "publicKey: %v", err)
	}
	if trs.Asset.Votes != nil {
		return nil, types.Errorf(types.SchemaViolation, ErrInvalidAsset, "asset: unexpected votes")
	}
	return trs, nil
}

func (u *Username) DBRead(row tx.Row) (*types.Asset, error) {
	alias := row["username"]
	if alias == "" {
		return nil, nil
	}
	return &types.Asset{Username: &types.UsernameAsset{
		Alias:     alias,
		PublicKey: row["t_senderPublicKey"],
	}}, nil
}

func (u *Username) DBSave(trs *types.Transaction) (*tx.PersistCommand, error) {
	if trs.Asset.Username == nil {
		return nil, ErrInvalidAsset
	}
	return &tx.PersistCommand{
		Table: "usernames",
		Columns: tx.Row{
			"username":      trs.Asset.Username.Alias,
			"transactionId": trs.ID,
		},
	}, nil
}

func (u *Username) Ready(trs *types.Transaction, sender *types.Account) bool {
	return tx.Ready(trs, sender)
}

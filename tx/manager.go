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

package tx

import (
	"fmt"
	"regexp"

	"github.com/ultiledger/go-ultidpos/account"
	"github.com/ultiledger/go-ultidpos/crypto"
	"github.com/ultiledger/go-ultidpos/db"
	"github.com/ultiledger/go-ultidpos/types"
)

var (
	ErrInsufficientBalance = types.NewError(types.StateConflict, "insufficient balance")
	ErrNotReady            = types.NewError(types.StateConflict, "transaction lacks multisignatures")
	ErrMissingSender       = types.NewError(types.ProtocolViolation, "missing sender account")
	ErrSenderMismatch      = types.NewError(types.ProtocolViolation, "sender does not match public key")
	ErrIDMismatch          = types.NewError(types.ProtocolViolation, "transaction id mismatch")
	ErrFeeMismatch         = types.NewError(types.ProtocolViolation, "transaction fee mismatch")
	ErrBadSignature        = types.NewError(types.ProtocolViolation, "transaction signature is invalid")
	ErrTxNotFound          = fmt.Errorf("transaction not found")
)

var idPattern = regexp.MustCompile(`^[0-9]{1,20}$`)

const (
	txBucket    = "TRANSACTIONS"
	assetBucket = "ASSETS"
)

// RoundCalculator maps a block height to its delegate round.
type RoundCalculator interface {
	Calc(height uint64) uint64
}

// ManagerContext represents contextual information tx Manager needs
type ManagerContext struct {
	Database db.Database      // database instance
	AM       *account.Manager // account manager
	Registry *Registry        // transaction type handlers
	Rounds   RoundCalculator  // height to round mapping
}

func ValidateManagerContext(mc *ManagerContext) error {
	if mc == nil {
		return fmt.Errorf("tx context is nil")
	}
	if mc.Database == nil {
		return fmt.Errorf("database instance is nil")
	}
	if mc.AM == nil {
		return fmt.Errorf("account manager is nil")
	}
	if mc.Registry == nil {
		return fmt.Errorf("tx registry is nil")
	}
	if mc.Rounds == nil {
		return fmt.Errorf("round calculator is nil")
	}
	return nil
}

// Manager drives a transaction through the lifecycle of its type. The
// common parts (fees, balances, signatures) are handled here and the
// type specific parts are dispatched to the registered handler.
type Manager struct {
	database db.Database
	am       *account.Manager
	registry *Registry
	rounds   RoundCalculator
}

// NewManager creates an instance of Manager with ManagerContext
func NewManager(ctx *ManagerContext) (*Manager, error) {
	if err := ValidateManagerContext(ctx); err != nil {
		return nil, fmt.Errorf("tx manager context is invalid: %v", err)
	}
	for _, b := range []string{txBucket, assetBucket} {
		if err := ctx.Database.NewBucket(b); err != nil {
			return nil, fmt.Errorf("create db bucket %s failed: %v", b, err)
		}
	}
	m := &Manager{
		database: ctx.Database,
		am:       ctx.AM,
		registry: ctx.Registry,
		rounds:   ctx.Rounds,
	}
	return m, nil
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Create builds and signs a transaction from user intent.
func (m *Manager) Create(data *CreateData) (*types.Transaction, error) {
	h, err := m.registry.Handler(data.Type)
	if err != nil {
		return nil, err
	}
	if data.Sender == nil || data.Keypair == nil {
		return nil, ErrMissingSender
	}
	trs := &types.Transaction{
		Type:            data.Type,
		Timestamp:       data.Timestamp,
		SenderPublicKey: data.Keypair.PublicKeyHex(),
		SenderID:        data.Sender.Address,
		RecipientID:     data.RecipientID,
		Amount:          data.Amount,
	}
	trs = h.Create(data, trs)
	trs.Fee = h.CalculateFee(trs, data.Sender)
	if err := m.Sign(trs, data.Keypair); err != nil {
		return nil, err
	}
	if trs.ID, err = m.GetID(trs); err != nil {
		return nil, err
	}
	return trs, nil
}

// ObjectNormalize validates the shape of the transaction and its asset.
func (m *Manager) ObjectNormalize(trs *types.Transaction) (*types.Transaction, error) {
	if trs == nil {
		return nil, types.NewError(types.SchemaViolation, "transaction is empty")
	}
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return nil, err
	}
	if !idPattern.MatchString(trs.ID) {
		return nil, types.NewError(types.SchemaViolation, "invalid transaction id")
	}
	if _, err := crypto.DecodePublicKey(trs.SenderPublicKey); err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "invalid senderPublicKey")
	}
	if _, err := decodeSignature(trs.Signature); err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "invalid signature")
	}
	for _, s := range trs.Signatures {
		if _, err := decodeSignature(s); err != nil {
			return nil, types.Errorf(types.SchemaViolation, err, "invalid signatures")
		}
	}
	if trs.SenderID != "" && !crypto.IsAddress(trs.SenderID) {
		return nil, types.NewError(types.SchemaViolation, "invalid senderId")
	}
	if _, err := recipientNumber(trs.RecipientID); err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "invalid recipientId")
	}
	if trs.Amount < 0 || trs.Fee < 0 || trs.Timestamp < 0 {
		return nil, types.NewError(types.SchemaViolation, "negative amount, fee or timestamp")
	}
	if trs.Amount > types.TotalSupply || trs.Fee > types.TotalSupply {
		return nil, types.NewError(types.SchemaViolation, "amount or fee exceeds total supply")
	}
	trs, err = h.ObjectNormalize(trs)
	if err != nil {
		return nil, types.Errorf(types.SchemaViolation, err, "normalize asset failed")
	}
	return trs, nil
}

// Verify runs the common and the type specific validation.
func (m *Manager) Verify(trs *types.Transaction, sender *types.Account) error {
	if sender == nil {
		return ErrMissingSender
	}
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	address, err := account.DeriveAddress(trs.SenderPublicKey)
	if err != nil {
		return types.Errorf(types.ProtocolViolation, err, "derive sender address failed")
	}
	if address != sender.Address || (trs.SenderID != "" && trs.SenderID != address) {
		return ErrSenderMismatch
	}
	if sender.PublicKey != "" && sender.PublicKey != trs.SenderPublicKey {
		return ErrSenderMismatch
	}
	if err := m.VerifySignature(trs); err != nil {
		return types.Errorf(types.ProtocolViolation, ErrBadSignature, "verify %s failed: %v", trs.ID, err)
	}
	id, err := m.GetID(trs)
	if err != nil {
		return err
	}
	if id != trs.ID {
		return ErrIDMismatch
	}
	if trs.Fee != h.CalculateFee(trs, sender) {
		return ErrFeeMismatch
	}
	return h.Verify(trs, sender)
}

// Process fills derived fields and runs the late validation hook.
func (m *Manager) Process(trs *types.Transaction, sender *types.Account) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	if trs.SenderID == "" && sender != nil {
		trs.SenderID = sender.Address
	}
	return h.Process(trs, sender)
}

func (m *Manager) Ready(trs *types.Transaction, sender *types.Account) (bool, error) {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return false, err
	}
	return h.Ready(trs, sender), nil
}

// ApplyUnconfirmed debits amount and fee from the unconfirmed balance
// of the sender and runs the unconfirmed hook of the type.
func (m *Manager) ApplyUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	total, err := spend(trs)
	if err != nil {
		return err
	}
	if sender.UBalance < total {
		return ErrInsufficientBalance
	}
	if _, err := m.am.Merge(sender.Address, &account.Patch{UBalance: account.Int64(-total)}); err != nil {
		return err
	}
	if err := h.ApplyUnconfirmed(trs, sender); err != nil {
		if _, rerr := m.am.Merge(sender.Address, &account.Patch{UBalance: account.Int64(total)}); rerr != nil {
			return fmt.Errorf("restore u_balance failed: %v: %v", rerr, err)
		}
		return err
	}
	return nil
}

func (m *Manager) UndoUnconfirmed(trs *types.Transaction, sender *types.Account) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	if err := h.UndoUnconfirmed(trs, sender); err != nil {
		return err
	}
	total, err := spend(trs)
	if err != nil {
		return err
	}
	_, err = m.am.Merge(sender.Address, &account.Patch{UBalance: account.Int64(total)})
	return err
}

// Apply mutates the confirmed state of the sender and the recipient
// in the context of block.
func (m *Manager) Apply(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	if !h.Ready(trs, sender) {
		return ErrNotReady
	}
	total, err := spend(trs)
	if err != nil {
		return err
	}
	if sender.Balance < total {
		return ErrInsufficientBalance
	}
	round := m.rounds.Calc(block.Height)
	if err := m.transfer(trs, block.ID, round, 1); err != nil {
		return err
	}
	if err := h.Apply(trs, block, sender); err != nil {
		if rerr := m.transfer(trs, block.ID, round, -1); rerr != nil {
			return fmt.Errorf("revert transfer failed: %v: %v", rerr, err)
		}
		return err
	}
	return nil
}

func (m *Manager) Undo(trs *types.Transaction, block *types.Block, sender *types.Account) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	if err := h.Undo(trs, block, sender); err != nil {
		return err
	}
	return m.transfer(trs, block.ID, m.rounds.Calc(block.Height), -1)
}

// transfer moves amount and fee out of the sender balance and amount
// into the recipient, sign -1 reverts a previous transfer.
func (m *Manager) transfer(trs *types.Transaction, blockID string, round uint64, sign int64) error {
	sender, err := account.DeriveAddress(trs.SenderPublicKey)
	if err != nil {
		return err
	}
	total, err := spend(trs)
	if err != nil {
		return err
	}
	_, err = m.am.Merge(sender, &account.Patch{
		Balance: account.Int64(-sign * total),
		BlockID: blockID,
		Round:   round,
	})
	if err != nil {
		return err
	}
	if trs.RecipientID == "" || trs.Amount == 0 {
		return nil
	}
	_, err = m.am.Merge(trs.RecipientID, &account.Patch{
		Balance:  account.Int64(sign * trs.Amount),
		UBalance: account.Int64(sign * trs.Amount),
		BlockID:  blockID,
		Round:    round,
	})
	if err != nil {
		_, rerr := m.am.Merge(sender, &account.Patch{
			Balance: account.Int64(sign * total),
			BlockID: blockID,
			Round:   round,
		})
		if rerr != nil {
			return fmt.Errorf("revert sender transfer failed: %v: %v", rerr, err)
		}
		return err
	}
	return nil
}

// spend returns amount plus fee of the transaction.
func spend(trs *types.Transaction) (int64, error) {
	if trs.Amount < 0 || trs.Fee < 0 {
		return 0, types.NewError(types.SchemaViolation, "negative amount or fee")
	}
	total, err := account.AddBalance(trs.Amount, trs.Fee)
	if err != nil {
		return 0, types.Errorf(types.SchemaViolation, err, "amount plus fee")
	}
	return total, nil
}

// Save persists the transaction and the asset write of its type.
func (m *Manager) Save(p db.Putter, trs *types.Transaction) error {
	h, err := m.registry.Handler(trs.Type)
	if err != nil {
		return err
	}
	cmd, err := h.DBSave(trs)
	if err != nil {
		return fmt.Errorf("build asset persist command failed: %v", err)
	}
	record := *trs
	record.Asset = types.Asset{}
	b, err := types.Encode(&record)
	if err != nil {
		return fmt.Errorf("encode transaction failed: %v", err)
	}
	if err := p.Put(txBucket, []byte(trs.ID), b); err != nil {
		return fmt.Errorf("save transaction in db failed: %v", err)
	}
	if cmd == nil {
		return nil
	}
	if b, err = types.Encode(cmd); err != nil {
		return fmt.Errorf("encode asset failed: %v", err)
	}
	return p.Put(assetBucket, []byte(trs.ID), b)
}

// Load reads a persisted transaction and reconstructs its asset.
func (m *Manager) Load(g db.Getter, id string) (*types.Transaction, error) {
	b, err := g.Get(txBucket, []byte(id))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrTxNotFound
	}
	trs := &types.Transaction{}
	if err := types.Decode(b, trs); err != nil {
		return nil, fmt.Errorf("decode transaction failed: %v", err)
	}
	row := Row{"t_id": trs.ID, "t_senderPublicKey": trs.SenderPublicKey}
	if b, err = g.Get(assetBucket, []byte(id)); err != nil {
		return nil, err
	}
	if b != nil {
		cmd := &PersistCommand{}
		if err := types.Decode(b, cmd); err != nil {
			return nil, fmt.Errorf("decode asset failed: %v", err)
		}
		for k, v := range cmd.Columns {
			row[k] = v
		}
	}
	asset, err := m.ReadAsset(trs.Type, row)
	if err != nil {
		return nil, err
	}
	if asset != nil {
		trs.Asset = *asset
	}
	return trs, nil
}

// ReadAsset reconstructs the asset of a transaction type from a row.
func (m *Manager) ReadAsset(t types.TxType, row Row) (*types.Asset, error) {
	h, err := m.registry.Handler(t)
	if err != nil {
		return nil, err
	}
	return h.DBRead(row)
}

package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"offerchain/core/types"
	"offerchain/crypto"
)

var errOverlayClosed = errors.New("state: overlay already committed or discarded")

// Overlay stages account and KV writes in memory. Reads see staged values
// first. Commit writes everything staged in a single storage batch so either
// all of it lands or none does.
type Overlay struct {
	base     *Manager
	accounts map[crypto.Address]*types.Account
	kv       map[string][]byte
	closed   bool
}

func newOverlay(base *Manager) *Overlay {
	return &Overlay{
		base:     base,
		accounts: make(map[crypto.Address]*types.Account),
		kv:       make(map[string][]byte),
	}
}

// GetAccount returns a copy of the staged or stored account.
func (o *Overlay) GetAccount(addr crypto.Address) (*types.Account, error) {
	if o.closed {
		return nil, errOverlayClosed
	}
	if staged, ok := o.accounts[addr]; ok {
		return staged.Copy(), nil
	}
	return o.base.GetAccount(addr)
}

// PutAccount stages a copy of the account.
func (o *Overlay) PutAccount(addr crypto.Address, account *types.Account) error {
	if o.closed {
		return errOverlayClosed
	}
	if account == nil {
		return errors.New("state: nil account")
	}
	o.accounts[addr] = account.Copy()
	return nil
}

// KVPut stages value under key using RLP encoding.
func (o *Overlay) KVPut(key []byte, value interface{}) error {
	if o.closed {
		return errOverlayClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	o.kv[string(key)] = encoded
	return nil
}

// KVGet decodes the staged or stored value under key into out.
func (o *Overlay) KVGet(key []byte, out interface{}) (bool, error) {
	if o.closed {
		return false, errOverlayClosed
	}
	staged, ok := o.kv[string(key)]
	if !ok {
		return o.base.KVGet(key, out)
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(staged, out); err != nil {
		return false, err
	}
	return true, nil
}

// Dirty returns the staged addresses in byte order.
func (o *Overlay) Dirty() []crypto.Address {
	addrs := make([]crypto.Address, 0, len(o.accounts))
	for addr := range o.accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// Commit flushes all staged accounts and KV values in one batch and closes
// the overlay.
func (o *Overlay) Commit() error {
	if o.closed {
		return errOverlayClosed
	}
	batch := o.base.db.NewBatch()
	for _, addr := range o.Dirty() {
		encoded, err := encodeAccount(o.accounts[addr])
		if err != nil {
			return fmt.Errorf("state: encode %s: %w", addr, err)
		}
		batch.Put(accountKey(addr), encoded)
	}
	for key, encoded := range o.kv {
		batch.Put(kvKey([]byte(key)), encoded)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit overlay: %w", err)
	}
	o.closed = true
	o.accounts = nil
	o.kv = nil
	return nil
}

// Discard drops every staged write.
func (o *Overlay) Discard() {
	o.closed = true
	o.accounts = nil
	o.kv = nil
}

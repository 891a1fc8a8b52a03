package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/storage"
)

var (
	accountPrefix = []byte("account:")
	kvPrefix      = []byte("kv:")
)

// AccountStore is the read/write surface programs execute against. Both the
// Manager and an Overlay satisfy it.
type AccountStore interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

// Manager reads and writes account envelopes directly against the database.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+crypto.AddressLength)
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr[:])
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	buf := make([]byte, len(kvPrefix)+len(key))
	copy(buf, kvPrefix)
	copy(buf[len(kvPrefix):], key)
	return ethcrypto.Keccak256(buf)
}

func encodeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("state: nil account")
	}
	return rlp.EncodeToBytes(account)
}

func decodeAccount(data []byte) (*types.Account, error) {
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode account: %w", err)
	}
	return account, nil
}

// GetAccount returns the stored account, or an empty account when the address
// has never been written.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(data)
}

// PutAccount writes the account envelope immediately.
func (m *Manager) PutAccount(addr crypto.Address, account *types.Account) error {
	encoded, err := encodeAccount(account)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Begin opens an overlay that stages writes on top of the manager.
func (m *Manager) Begin() *Overlay {
	return newOverlay(m)
}

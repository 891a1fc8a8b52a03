package types

import (
	"encoding/hex"
	"errors"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"offerchain/crypto"
)

// ErrInvalidSignature is returned when a transaction signature does not verify
// against its signer.
var ErrInvalidSignature = errors.New("types: invalid transaction signature")

// Transaction carries one instruction signed by one signer. The nonce must
// match the signer's account nonce so a signed transaction applies at most once.
type Transaction struct {
	Signer      crypto.Address `json:"signer"`
	Nonce       uint64         `json:"nonce"`
	Instruction Instruction    `json:"instruction"`
	Signature   []byte         `json:"signature"`
}

type txPayload struct {
	Signer   crypto.Address
	Nonce    uint64
	Program  crypto.Address
	Accounts []AccountMeta
	Data     []byte
}

// Hash returns keccak256 over the RLP encoding of everything but the signature.
func (tx *Transaction) Hash() ([]byte, error) {
	payload := txPayload{
		Signer:   tx.Signer,
		Nonce:    tx.Nonce,
		Program:  tx.Instruction.Program,
		Accounts: tx.Instruction.Accounts,
		Data:     tx.Instruction.Data,
	}
	if payload.Accounts == nil {
		payload.Accounts = []AccountMeta{}
	}
	b, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return ethcrypto.Keccak256(b), nil
}

// HashHex returns the transaction hash as a 0x-prefixed hex string.
func (tx *Transaction) HashHex() (string, error) {
	h, err := tx.Hash()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(h), nil
}

// Sign sets the signer to the key's address and signs the transaction hash.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("types: nil signing key")
	}
	tx.Signer = key.PubKey().Address()
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	tx.Signature = key.Sign(hash)
	return nil
}

// Verify checks the signature against the declared signer.
func (tx *Transaction) Verify() error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	if !crypto.Verify(tx.Signer, hash, tx.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

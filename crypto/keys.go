package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressLength is the size of an account address in bytes.
const AddressLength = ed25519.PublicKeySize

// Address identifies an account. Wallet addresses are ed25519 public keys;
// program-derived addresses are off-curve hashes with no private key.
type Address [AddressLength]byte

// ZeroAddress is the owner of plain wallet accounts.
var ZeroAddress Address

var errInvalidAddressLength = errors.New("crypto: address must be 32 bytes")

// NewAddress copies b into an Address. b must be exactly 32 bytes long.
func NewAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, errInvalidAddressLength
	}
	copy(addr[:], b)
	return addr, nil
}

// MustAddress is NewAddress that panics on malformed input. Intended for
// constants and tests.
func MustAddress(b []byte) Address {
	addr, err := NewAddress(b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

// MarshalText encodes the address as base58.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base58 address.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a base58-encoded address.
func DecodeAddress(addrStr string) (Address, error) {
	decoded, err := base58.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58 string: %w", err)
	}
	return NewAddress(decoded)
}

// --- Key Management ---

type PrivateKey struct {
	key ed25519.PrivateKey
}

type PublicKey struct {
	key ed25519.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte seed of the private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.key.Seed()...)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: k.key.Public().(ed25519.PublicKey)}
}

// Sign signs msg with the private key.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.key, msg)
}

func (k *PublicKey) Address() Address {
	return MustAddress(k.key)
}

// PrivateKeyFromBytes rebuilds a key from its 32-byte seed.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: private key seed must be %d bytes", ed25519.SeedSize)
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(b)}, nil
}

// Verify reports whether sig is a valid signature of msg by the key behind addr.
func Verify(addr Address, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(addr[:]), msg, sig)
}

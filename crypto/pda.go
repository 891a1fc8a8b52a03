package crypto

import (
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNoViableBump     = errors.New("unable to find a viable program address bump seed")
)

var (
	programHashCtor = sha256.New
)

// CreateProgramAddress hashes the seeds together with the program id and
// returns the result as an address.
//
// Program addresses must _not_ lie on the ed25519 curve so that no private
// key exists for them. If the program and seeds produce a valid public key,
// ErrInvalidPublicKey is returned.
func CreateProgramAddress(program Address, seeds ...[]byte) (Address, error) {
	if len(seeds) > maxSeeds {
		return Address{}, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return Address{}, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return Address{}, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program[:], []byte("ProgramDerivedAddress")} {
		if _, err := h.Write(v); err != nil {
			return Address{}, errors.Wrap(err, "failed to hash seed")
		}
	}

	var pub [32]byte
	copy(pub[:], h.Sum(nil))

	// Reject the digest when it decodes as a compressed Edwards point. The
	// standard library keeps its point type internal, so the check goes
	// through the edwards25519 package directly.
	var A edwards25519.ExtendedGroupElement
	if A.FromBytes(&pub) {
		return Address{}, ErrInvalidPublicKey
	}

	return Address(pub), nil
}

// FindProgramAddressAndBump searches bump seeds from 255 downward and returns
// the first off-curve address together with the bump that produced it.
func FindProgramAddressAndBump(program Address, seeds ...[]byte) (Address, uint8, error) {
	bumpSeed := []byte{math.MaxUint8}
	for i := 0; i < math.MaxUint8; i++ {
		pub, err := CreateProgramAddress(program, append(seeds, bumpSeed)...)
		if err == nil {
			return pub, bumpSeed[0], nil
		}
		if err != ErrInvalidPublicKey {
			return Address{}, 0, err
		}

		bumpSeed[0]--
	}

	return Address{}, 0, ErrNoViableBump
}

// FindProgramAddress is FindProgramAddressAndBump without the bump.
func FindProgramAddress(program Address, seeds ...[]byte) (Address, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

// IsOnCurve reports whether addr decodes as a valid ed25519 public key.
func IsOnCurve(addr Address) bool {
	var A edwards25519.ExtendedGroupElement
	raw := [32]byte(addr)
	return A.FromBytes(&raw)
}

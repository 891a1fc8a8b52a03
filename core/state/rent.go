package state

import (
	"errors"
	"math/bits"
)

const (
	DefaultLamportsPerByteYear    uint64 = 3480
	DefaultExemptionThreshold     uint64 = 2
	DefaultAccountStorageOverhead uint64 = 128
)

// Rent prices the minimum balance a data-carrying account must hold.
type Rent struct {
	LamportsPerByteYear    uint64 `toml:"LamportsPerByteYear"`
	ExemptionThreshold     uint64 `toml:"ExemptionThreshold"`
	AccountStorageOverhead uint64 `toml:"AccountStorageOverhead"`
}

// DefaultRent returns the standard rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear:    DefaultLamportsPerByteYear,
		ExemptionThreshold:     DefaultExemptionThreshold,
		AccountStorageOverhead: DefaultAccountStorageOverhead,
	}
}

// MinimumBalance returns the lamports an account of the given data size must
// hold to be exempt from rent. Results that would overflow saturate.
func (r Rent) MinimumBalance(space uint64) uint64 {
	size, carry := bits.Add64(r.AccountStorageOverhead, space, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	hi, perYear := bits.Mul64(size, r.LamportsPerByteYear)
	if hi != 0 {
		return ^uint64(0)
	}
	hi, total := bits.Mul64(perYear, r.ExemptionThreshold)
	if hi != 0 {
		return ^uint64(0)
	}
	return total
}

// Validate rejects parameters that would make every account free.
func (r Rent) Validate() error {
	if r.LamportsPerByteYear == 0 {
		return errors.New("rent: LamportsPerByteYear must be positive")
	}
	if r.ExemptionThreshold == 0 {
		return errors.New("rent: ExemptionThreshold must be positive")
	}
	return nil
}

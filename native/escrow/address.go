package escrow

import (
	"errors"

	"offerchain/crypto"
)

// OfferSeedPrefix is the first derivation seed of every offer address.
var OfferSeedPrefix = []byte("offer")

// OfferSeeds returns the derivation seeds for an offer, without the bump.
func OfferSeeds(creator crypto.Address, offerID string) [][]byte {
	return [][]byte{OfferSeedPrefix, creator[:], []byte(offerID)}
}

// DeriveOfferAddress computes the address that holds the offer created by
// creator under offerID, together with the bump seed that places it off the
// ed25519 curve. The result depends only on its inputs.
func DeriveOfferAddress(program, creator crypto.Address, offerID string) (crypto.Address, uint8, error) {
	if len(offerID) == 0 {
		return crypto.Address{}, 0, ErrOfferIDEmpty
	}
	if len(offerID) > MaxOfferIDBytes {
		return crypto.Address{}, 0, ErrOfferIDTooLong
	}
	addr, bump, err := crypto.FindProgramAddressAndBump(program, OfferSeeds(creator, offerID)...)
	if err != nil {
		if errors.Is(err, crypto.ErrMaxSeedLengthExceeded) {
			return crypto.Address{}, 0, ErrOfferIDTooLong
		}
		return crypto.Address{}, 0, err
	}
	return addr, bump, nil
}

// VerifyOfferAddress recomputes the address from the stored bump.
func VerifyOfferAddress(program crypto.Address, offer *Offer, addr crypto.Address) bool {
	if offer == nil {
		return false
	}
	seeds := append(OfferSeeds(offer.Creator, offer.ID), []byte{offer.Bump})
	derived, err := crypto.CreateProgramAddress(program, seeds...)
	return err == nil && derived == addr
}

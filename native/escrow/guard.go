package escrow

import (
	"offerchain/core/types"
	"offerchain/crypto"
)

// requireSigner checks that the instruction names the transaction signer at
// the given position and marks it as signing.
func requireSigner(meta types.AccountMeta, signer crypto.Address) error {
	if !meta.IsSigner || meta.Address != signer {
		return ErrMissingSigner
	}
	return nil
}

// requireCreator checks that the signer created the offer. The code reported
// on mismatch depends on the transition being attempted.
func requireCreator(offer *Offer, signer crypto.Address, onMismatch *Error) error {
	if offer.Creator != signer {
		return onMismatch
	}
	return nil
}

// requireReceiver checks that the signer is the receiver recorded at accept.
func requireReceiver(offer *Offer, signer crypto.Address) error {
	if offer.Receiver == nil || *offer.Receiver != signer {
		return ErrOnlyApprovedReceiverCanReceivePayment
	}
	return nil
}

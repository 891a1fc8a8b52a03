package escrow

import (
	"fmt"
	"unicode/utf8"

	"offerchain/crypto"
)

// Field limits. Character limits count Unicode code points; the offer id is
// limited in bytes because it is used verbatim as a derivation seed.
const (
	MaxOfferIDBytes      = 32
	MaxDeliverablesChars = 50
	MaxCategoryChars     = 50
	MaxDescriptionChars  = 240

	maxUTF8Width = 4
)

// OfferSpace is the largest encoded size of an offer account: discriminator,
// creator, optional receiver, amount, three flags, length-prefixed id, bump,
// length-prefixed deliverables, category and description, and the cancelled
// flag.
const OfferSpace = DiscriminatorLength +
	crypto.AddressLength +
	1 + crypto.AddressLength +
	8 +
	3 +
	4 + MaxOfferIDBytes +
	1 +
	4 + MaxDeliverablesChars*maxUTF8Width +
	4 + MaxCategoryChars*maxUTF8Width +
	4 + MaxDescriptionChars*maxUTF8Width +
	1

// OfferStatus is a display summary derived from the offer flags.
type OfferStatus uint8

const (
	StatusCreated OfferStatus = iota
	StatusAccepted
	StatusCompleted
	StatusWithdrawn
	StatusCancelled
)

func (s OfferStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	case StatusWithdrawn:
		return "withdrawn"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Offer is the record stored at an offer's derived address. Creator, amount,
// id and bump never change after creation. The progress flags only ever move
// from false to true.
type Offer struct {
	Creator      crypto.Address
	Receiver     *crypto.Address
	Amount       uint64
	Accepted     bool
	Completed    bool
	Withdrawn    bool
	ID           string
	Bump         uint8
	Deliverables string
	Category     string
	Description  string
	Cancelled    bool
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.Receiver != nil {
		receiver := *o.Receiver
		clone.Receiver = &receiver
	}
	return &clone
}

// Status derives the lifecycle state from the flags.
func (o *Offer) Status() OfferStatus {
	switch {
	case o.Cancelled:
		return StatusCancelled
	case o.Withdrawn:
		return StatusWithdrawn
	case o.Completed:
		return StatusCompleted
	case o.Accepted:
		return StatusAccepted
	default:
		return StatusCreated
	}
}

// CreateOfferArgs are the caller-supplied parameters of create_offer.
type CreateOfferArgs struct {
	Amount       uint64
	OfferID      string
	Deliverables string
	Category     string
	Description  string
}

// Validate checks the field limits in the order the program reports them.
func (a CreateOfferArgs) Validate() error {
	if len(a.OfferID) == 0 {
		return ErrOfferIDEmpty
	}
	if len(a.OfferID) > MaxOfferIDBytes {
		return ErrOfferIDTooLong
	}
	if utf8.RuneCountInString(a.Deliverables) > MaxDeliverablesChars {
		return ErrDeliverablesTooLong
	}
	if utf8.RuneCountInString(a.Category) > MaxCategoryChars {
		return ErrCategoryTooLong
	}
	if utf8.RuneCountInString(a.Description) > MaxDescriptionChars {
		return ErrDescriptionTooLong
	}
	if a.Amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}

package escrow

import (
	"strconv"

	"offerchain/core/types"
	"offerchain/crypto"
)

const (
	EventTypeOfferCreated   = "offer.created"
	EventTypeOfferAccepted  = "offer.accepted"
	EventTypeOfferApproved  = "offer.approved"
	EventTypeOfferWithdrawn = "offer.withdrawn"
	EventTypeOfferCancelled = "offer.cancelled"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// offer.
func NewCreatedEvent(addr crypto.Address, o *Offer) *types.Event {
	evt := newOfferEvent(EventTypeOfferCreated, addr, o)
	if o != nil {
		evt.Attributes["bump"] = strconv.FormatUint(uint64(o.Bump), 10)
		evt.Attributes["category"] = o.Category
		evt.Attributes["deliverables"] = o.Deliverables
		evt.Attributes["description"] = o.Description
	}
	return evt
}

// NewAcceptedEvent returns the payload emitted when a receiver takes the offer.
func NewAcceptedEvent(addr crypto.Address, o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferAccepted, addr, o)
}

// NewApprovedEvent returns the payload emitted when the creator approves
// completion.
func NewApprovedEvent(addr crypto.Address, o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferApproved, addr, o)
}

// NewWithdrawnEvent returns the payload for the payout to the receiver.
func NewWithdrawnEvent(addr crypto.Address, o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferWithdrawn, addr, o)
}

// NewCancelledEvent returns the payload for a refund to the creator.
func NewCancelledEvent(addr crypto.Address, o *Offer) *types.Event {
	return newOfferEvent(EventTypeOfferCancelled, addr, o)
}

func newOfferEvent(eventType string, addr crypto.Address, o *Offer) *types.Event {
	attrs := make(map[string]string)
	attrs["offer"] = addr.String()
	if o == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["offerId"] = o.ID
	attrs["creator"] = o.Creator.String()
	attrs["amount"] = strconv.FormatUint(o.Amount, 10)
	attrs["status"] = o.Status().String()
	if o.Receiver != nil {
		attrs["receiver"] = o.Receiver.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

package escrow

import (
	"bytes"
	"errors"
	"math/bits"

	"offerchain/core/events"
	"offerchain/core/state"
	"offerchain/core/types"
	"offerchain/crypto"
)

var (
	errNilState = errors.New("escrow engine: state not configured")
)

type engineState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, account *types.Account) error
}

type offerEvent struct {
	evt *types.Event
}

func (e offerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e offerEvent) Event() *types.Event { return e.evt }

// Engine executes the offer program. Every handler checks all of its
// preconditions before writing anything, so a rejected instruction leaves the
// state untouched even without an overlay.
type Engine struct {
	program crypto.Address
	rent    state.Rent
	state   engineState
	emitter events.Emitter
}

// NewEngine creates an offer engine with a no-op emitter. Callers can override
// the emitter via SetEmitter.
func NewEngine(program crypto.Address, rent state.Rent) *Engine {
	return &Engine{
		program: program,
		rent:    rent,
		emitter: events.NoopEmitter{},
	}
}

// ProgramID returns the address that owns offer accounts.
func (e *Engine) ProgramID() crypto.Address { return e.program }

// Rent returns the rent parameters used to size offer accounts.
func (e *Engine) Rent() state.Rent { return e.rent }

// MinimumBalance is the rent-exempt minimum an offer account holds on top of
// the escrowed amount.
func (e *Engine) MinimumBalance() uint64 { return e.rent.MinimumBalance(OfferSpace) }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(st engineState) { e.state = st }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// WithState returns a copy of the engine bound to st and emitter. The original
// is left unchanged, so one engine can serve many overlays.
func (e *Engine) WithState(st engineState, emitter events.Emitter) *Engine {
	clone := *e
	clone.state = st
	clone.SetEmitter(emitter)
	return &clone
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(offerEvent{evt: event})
}

// Offer loads and decodes the offer stored at addr.
func (e *Engine) Offer(addr crypto.Address) (*Offer, error) {
	offer, _, err := e.loadOffer(addr)
	return offer, err
}

func (e *Engine) loadOffer(addr crypto.Address) (*Offer, *types.Account, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	acct, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, nil, err
	}
	if acct == nil || len(acct.Data) == 0 {
		return nil, nil, ErrOfferNotFound
	}
	if !IsOfferAccount(e.program, acct) {
		return nil, nil, ErrAccountMismatch
	}
	offer, err := DecodeOffer(acct.Data)
	if err != nil {
		return nil, nil, ErrAccountMismatch
	}
	// the stored seeds and bump must derive the address the account lives at
	if !VerifyOfferAddress(e.program, offer, addr) {
		return nil, nil, ErrAccountMismatch
	}
	return offer, acct, nil
}

func (e *Engine) storeOffer(addr crypto.Address, acct *types.Account, offer *Offer) error {
	data, err := EncodeOffer(offer)
	if err != nil {
		return err
	}
	acct.Data = data
	return e.state.PutAccount(addr, acct)
}

// transfer moves lamports between two accounts that the caller has already
// loaded. Both balances are checked before either is changed.
func transfer(from, to *types.Account, amount uint64) error {
	if from.Lamports < amount {
		return ErrInsufficientFunds
	}
	credited, carry := bits.Add64(to.Lamports, amount, 0)
	if carry != 0 {
		return ErrArithmeticOverflow
	}
	from.Lamports -= amount
	to.Lamports = credited
	return nil
}

// CreateOffer places args.Amount plus the rent minimum in custody at the
// derived offer address and records the offer. offerAddr must equal the
// derived address.
func (e *Engine) CreateOffer(creator, offerAddr crypto.Address, args CreateOfferArgs) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := args.Validate(); err != nil {
		return nil, err
	}
	derived, bump, err := DeriveOfferAddress(e.program, creator, args.OfferID)
	if err != nil {
		return nil, err
	}
	if derived != offerAddr || offerAddr == creator {
		return nil, ErrAccountMismatch
	}
	offerAcct, err := e.state.GetAccount(offerAddr)
	if err != nil {
		return nil, err
	}
	if !offerAcct.Owner.IsZero() || len(offerAcct.Data) > 0 {
		return nil, ErrAccountAlreadyExists
	}
	total, carry := bits.Add64(args.Amount, e.MinimumBalance(), 0)
	if carry != 0 {
		return nil, ErrArithmeticOverflow
	}
	creatorAcct, err := e.state.GetAccount(creator)
	if err != nil {
		return nil, err
	}
	if err := transfer(creatorAcct, offerAcct, total); err != nil {
		return nil, err
	}

	offer := &Offer{
		Creator:      creator,
		Amount:       args.Amount,
		ID:           args.OfferID,
		Bump:         bump,
		Deliverables: args.Deliverables,
		Category:     args.Category,
		Description:  args.Description,
	}
	data, err := EncodeOffer(offer)
	if err != nil {
		return nil, err
	}
	offerAcct.Owner = e.program
	offerAcct.Data = data
	if err := e.state.PutAccount(creator, creatorAcct); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(offerAddr, offerAcct); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(offerAddr, offer))
	return offer.Clone(), nil
}

// AcceptOffer records the signer as the receiver. The first valid accept
// wins; no funds move.
func (e *Engine) AcceptOffer(receiver, offerAddr crypto.Address) (*Offer, error) {
	offer, acct, err := e.loadOffer(offerAddr)
	if err != nil {
		return nil, err
	}
	if offer.Cancelled {
		return nil, ErrOfferCancelled
	}
	if offer.Accepted || offer.Receiver != nil {
		return nil, ErrOfferAlreadyAccepted
	}
	if offer.Creator == receiver {
		return nil, ErrOfferCreatorCannotAcceptOffer
	}
	offer.Accepted = true
	offer.Receiver = &receiver
	if err := e.storeOffer(offerAddr, acct, offer); err != nil {
		return nil, err
	}
	e.emit(NewAcceptedEvent(offerAddr, offer))
	return offer.Clone(), nil
}

// ApproveCompletion lets the creator confirm the receiver delivered.
func (e *Engine) ApproveCompletion(creator, offerAddr crypto.Address) (*Offer, error) {
	offer, acct, err := e.loadOffer(offerAddr)
	if err != nil {
		return nil, err
	}
	if err := requireCreator(offer, creator, ErrOnlyOfferCreatorCanApproveOffer); err != nil {
		return nil, err
	}
	if offer.Completed {
		return nil, ErrOfferAlreadyApprovedAsCompleted
	}
	if offer.Cancelled {
		return nil, ErrOfferCancelled
	}
	if !offer.Accepted {
		return nil, ErrOfferNotAccepted
	}
	offer.Completed = true
	if err := e.storeOffer(offerAddr, acct, offer); err != nil {
		return nil, err
	}
	e.emit(NewApprovedEvent(offerAddr, offer))
	return offer.Clone(), nil
}

// WithdrawOffer pays the escrowed amount to the receiver. The rent minimum
// stays with the offer account.
func (e *Engine) WithdrawOffer(receiver, offerAddr crypto.Address) (*Offer, error) {
	offer, acct, err := e.loadOffer(offerAddr)
	if err != nil {
		return nil, err
	}
	if err := requireReceiver(offer, receiver); err != nil {
		return nil, err
	}
	if offer.Withdrawn {
		return nil, ErrOfferAlreadyWithdrawn
	}
	if !offer.Completed {
		return nil, ErrOfferNotCompleted
	}
	receiverAcct, err := e.state.GetAccount(receiver)
	if err != nil {
		return nil, err
	}
	if err := transfer(acct, receiverAcct, offer.Amount); err != nil {
		return nil, err
	}
	offer.Withdrawn = true
	if err := e.state.PutAccount(receiver, receiverAcct); err != nil {
		return nil, err
	}
	if err := e.storeOffer(offerAddr, acct, offer); err != nil {
		return nil, err
	}
	e.emit(NewWithdrawnEvent(offerAddr, offer))
	return offer.Clone(), nil
}

// CancelOffer refunds the escrowed amount to the creator. Only offers nobody
// has accepted can be cancelled.
func (e *Engine) CancelOffer(creator, offerAddr crypto.Address) (*Offer, error) {
	offer, acct, err := e.loadOffer(offerAddr)
	if err != nil {
		return nil, err
	}
	if err := requireCreator(offer, creator, ErrOnlyOfferCreatorCanCancelOffer); err != nil {
		return nil, err
	}
	if offer.Cancelled {
		return nil, ErrOfferCancelled
	}
	if offer.Accepted {
		return nil, ErrOfferAlreadyAccepted
	}
	creatorAcct, err := e.state.GetAccount(creator)
	if err != nil {
		return nil, err
	}
	if err := transfer(acct, creatorAcct, offer.Amount); err != nil {
		return nil, err
	}
	offer.Cancelled = true
	if err := e.state.PutAccount(creator, creatorAcct); err != nil {
		return nil, err
	}
	if err := e.storeOffer(offerAddr, acct, offer); err != nil {
		return nil, err
	}
	e.emit(NewCancelledEvent(offerAddr, offer))
	return offer.Clone(), nil
}

// Execute decodes ix and routes it to its handler. signer is the verified
// transaction signer.
func (e *Engine) Execute(signer crypto.Address, ix types.Instruction) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if ix.Program != e.program {
		return ErrInvalidProgram
	}
	if len(ix.Data) < DiscriminatorLength {
		return ErrInvalidInstruction
	}
	if len(ix.Accounts) != 2 {
		return ErrAccountMismatch
	}
	offerMeta, signerMeta := ix.Accounts[0], ix.Accounts[1]
	if !offerMeta.IsWritable {
		return ErrAccountMismatch
	}
	if err := requireSigner(signerMeta, signer); err != nil {
		return err
	}

	var disc Discriminator
	copy(disc[:], ix.Data[:DiscriminatorLength])
	body := ix.Data[DiscriminatorLength:]

	if disc == createOfferDiscriminator {
		if !signerMeta.IsWritable {
			return ErrAccountMismatch
		}
		args, err := decodeCreateOfferData(body)
		if err != nil {
			return ErrInvalidInstruction
		}
		_, err = e.CreateOffer(signer, offerMeta.Address, args)
		return err
	}

	if len(body) != 0 {
		return ErrInvalidInstruction
	}
	var err error
	switch disc {
	case acceptOfferDiscriminator:
		_, err = e.AcceptOffer(signer, offerMeta.Address)
	case approveCompletionDiscriminator:
		_, err = e.ApproveCompletion(signer, offerMeta.Address)
	case withdrawOfferDiscriminator:
		if !signerMeta.IsWritable {
			return ErrAccountMismatch
		}
		_, err = e.WithdrawOffer(signer, offerMeta.Address)
	case cancelOfferDiscriminator:
		if !signerMeta.IsWritable {
			return ErrAccountMismatch
		}
		_, err = e.CancelOffer(signer, offerMeta.Address)
	default:
		return ErrInvalidInstruction
	}
	return err
}

// IsOfferAccount reports whether acct holds an offer owned by program.
func IsOfferAccount(program crypto.Address, acct *types.Account) bool {
	return acct != nil && acct.Owner == program && len(acct.Data) >= DiscriminatorLength &&
		bytes.Equal(acct.Data[:DiscriminatorLength], OfferAccountDiscriminator[:])
}

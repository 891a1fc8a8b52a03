package escrow

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"offerchain/core/events"
	"offerchain/core/state"
	"offerchain/core/types"
	"offerchain/crypto"
)

const lamportsPerSOL = 1_000_000_000

type mockState struct {
	accounts map[crypto.Address]*types.Account
}

func newMockState() *mockState {
	return &mockState{accounts: make(map[crypto.Address]*types.Account)}
}

func (m *mockState) GetAccount(addr crypto.Address) (*types.Account, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return &types.Account{}, nil
	}
	return acct.Copy(), nil
}

func (m *mockState) PutAccount(addr crypto.Address, account *types.Account) error {
	m.accounts[addr] = account.Copy()
	return nil
}

func (m *mockState) balance(addr crypto.Address) uint64 {
	if acct, ok := m.accounts[addr]; ok {
		return acct.Lamports
	}
	return 0
}

func (m *mockState) snapshot() map[crypto.Address]types.Account {
	out := make(map[crypto.Address]types.Account, len(m.accounts))
	for addr, acct := range m.accounts {
		out[addr] = *acct.Copy()
	}
	return out
}

func (m *mockState) total() uint64 {
	var sum uint64
	for _, acct := range m.accounts {
		sum += acct.Lamports
	}
	return sum
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

func newTestAddress(fill byte) crypto.Address {
	var addr crypto.Address
	copy(addr[:], bytes.Repeat([]byte{fill}, crypto.AddressLength))
	return addr
}

var testProgram = newTestAddress(0xEE)

type harness struct {
	t       *testing.T
	state   *mockState
	engine  *Engine
	emitter *recordingEmitter
	creator crypto.Address
	worker  crypto.Address
	other   crypto.Address
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := newMockState()
	emitter := &recordingEmitter{}
	engine := NewEngine(testProgram, state.DefaultRent())
	engine.SetState(st)
	engine.SetEmitter(emitter)
	h := &harness{
		t:       t,
		state:   st,
		engine:  engine,
		emitter: emitter,
		creator: newTestAddress(0x01),
		worker:  newTestAddress(0x02),
		other:   newTestAddress(0x03),
	}
	for _, addr := range []crypto.Address{h.creator, h.worker, h.other} {
		st.accounts[addr] = &types.Account{Lamports: 1000 * lamportsPerSOL}
	}
	return h
}

func defaultArgs() CreateOfferArgs {
	return CreateOfferArgs{
		Amount:       100 * lamportsPerSOL,
		OfferID:      "offer1",
		Deliverables: "logo in svg",
		Category:     "design",
		Description:  "Design a logo for the project",
	}
}

func (h *harness) create(args CreateOfferArgs) crypto.Address {
	h.t.Helper()
	addr, _, err := DeriveOfferAddress(testProgram, h.creator, args.OfferID)
	if err != nil {
		h.t.Fatalf("derive: %v", err)
	}
	if _, err := h.engine.CreateOffer(h.creator, addr, args); err != nil {
		h.t.Fatalf("create offer: %v", err)
	}
	return addr
}

func expectCode(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code.Name(), err)
	}
}

func TestCreateOffer(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	addr := h.create(args)

	minimum := h.engine.MinimumBalance()
	if got := h.state.balance(h.creator); got != 1000*lamportsPerSOL-args.Amount-minimum {
		t.Fatalf("unexpected creator balance: %d", got)
	}
	acct := h.state.accounts[addr]
	if acct.Lamports != args.Amount+minimum {
		t.Fatalf("unexpected custody balance: %d", acct.Lamports)
	}
	if acct.Owner != testProgram {
		t.Fatalf("offer account not owned by program")
	}
	offer, err := h.engine.Offer(addr)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Creator != h.creator || offer.Amount != args.Amount || offer.ID != "offer1" {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if offer.Receiver != nil || offer.Accepted || offer.Completed || offer.Withdrawn || offer.Cancelled {
		t.Fatalf("new offer should have no receiver and no flags: %+v", offer)
	}
	if offer.Description != args.Description || offer.Deliverables != args.Deliverables || offer.Category != args.Category {
		t.Fatalf("metadata not stored verbatim: %+v", offer)
	}
	if !VerifyOfferAddress(testProgram, offer, addr) {
		t.Fatalf("stored bump does not reproduce the address")
	}
	if got := h.emitter.types(); len(got) != 1 || got[0] != EventTypeOfferCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestCreateOfferValidation(t *testing.T) {
	long := func(n int) string { return string(bytes.Repeat([]byte("a"), n)) }
	cases := []struct {
		name   string
		mutate func(*CreateOfferArgs)
		want   *Error
	}{
		{"empty id", func(a *CreateOfferArgs) { a.OfferID = "" }, ErrOfferIDEmpty},
		{"long id", func(a *CreateOfferArgs) { a.OfferID = long(MaxOfferIDBytes + 1) }, ErrOfferIDTooLong},
		{"long deliverables", func(a *CreateOfferArgs) { a.Deliverables = long(51) }, ErrDeliverablesTooLong},
		{"long category", func(a *CreateOfferArgs) { a.Category = long(51) }, ErrCategoryTooLong},
		{"long description", func(a *CreateOfferArgs) { a.Description = long(241) }, ErrDescriptionTooLong},
		{"zero amount", func(a *CreateOfferArgs) { a.Amount = 0 }, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			args := defaultArgs()
			tc.mutate(&args)
			before := h.state.snapshot()
			_, err := h.engine.CreateOffer(h.creator, newTestAddress(0x44), args)
			expectCode(t, err, tc.want)
			assertUnchanged(t, before, h.state)
		})
	}
}

func TestCreateOfferLimitsCountCharacters(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	// 240 four-byte characters fit; the byte length is far above 240.
	args.Description = string(bytes.Repeat([]byte("😀"), MaxDescriptionChars))
	args.Category = string(bytes.Repeat([]byte("é"), MaxCategoryChars))
	addr := h.create(args)
	offer, err := h.engine.Offer(addr)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Description != args.Description {
		t.Fatalf("description not preserved")
	}
	if len(h.state.accounts[addr].Data) > OfferSpace {
		t.Fatalf("encoded offer exceeds OfferSpace: %d", len(h.state.accounts[addr].Data))
	}
}

func TestCreateOfferDuplicate(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())
	before := h.state.snapshot()
	_, err := h.engine.CreateOffer(h.creator, addr, defaultArgs())
	expectCode(t, err, ErrAccountAlreadyExists)
	assertUnchanged(t, before, h.state)
}

func TestCreateOfferWrongAddress(t *testing.T) {
	h := newHarness(t)
	other, _, err := DeriveOfferAddress(testProgram, h.other, "offer1")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	_, err = h.engine.CreateOffer(h.creator, other, defaultArgs())
	expectCode(t, err, ErrAccountMismatch)
}

func TestCreateOfferInsufficientFunds(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	args.Amount = 1000 * lamportsPerSOL
	addr, _, _ := DeriveOfferAddress(testProgram, h.creator, args.OfferID)
	before := h.state.snapshot()
	_, err := h.engine.CreateOffer(h.creator, addr, args)
	expectCode(t, err, ErrInsufficientFunds)
	assertUnchanged(t, before, h.state)

	args.Amount = ^uint64(0)
	_, err = h.engine.CreateOffer(h.creator, addr, args)
	expectCode(t, err, ErrArithmeticOverflow)
}

func TestAcceptOffer(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())

	_, err := h.engine.AcceptOffer(h.creator, addr)
	expectCode(t, err, ErrOfferCreatorCannotAcceptOffer)

	offer, err := h.engine.AcceptOffer(h.worker, addr)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !offer.Accepted || offer.Receiver == nil || *offer.Receiver != h.worker {
		t.Fatalf("unexpected offer after accept: %+v", offer)
	}

	before := h.state.snapshot()
	_, err = h.engine.AcceptOffer(h.other, addr)
	expectCode(t, err, ErrOfferAlreadyAccepted)
	_, err = h.engine.AcceptOffer(h.worker, addr)
	expectCode(t, err, ErrOfferAlreadyAccepted)
	assertUnchanged(t, before, h.state)

	stored, _ := h.engine.Offer(addr)
	if *stored.Receiver != h.worker {
		t.Fatalf("receiver overwritten")
	}
}

func TestAcceptMissingOffer(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.AcceptOffer(h.worker, newTestAddress(0x55))
	expectCode(t, err, ErrOfferNotFound)

	// A wallet with data that the program does not own is not an offer.
	h.state.accounts[newTestAddress(0x56)] = &types.Account{Lamports: 1, Data: []byte{1}}
	_, err = h.engine.AcceptOffer(h.worker, newTestAddress(0x56))
	expectCode(t, err, ErrAccountMismatch)
}

func TestOfferAtForeignAddressIsRejected(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())
	genuine := h.state.accounts[addr].Copy()

	// a byte-for-byte copy of a real offer parked elsewhere
	planted := newTestAddress(0x57)
	h.state.accounts[planted] = genuine.Copy()
	_, err := h.engine.AcceptOffer(h.worker, planted)
	expectCode(t, err, ErrAccountMismatch)
	_, err = h.engine.CancelOffer(h.creator, planted)
	expectCode(t, err, ErrAccountMismatch)

	// the right address with a tampered bump
	offer, err := DecodeOffer(genuine.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	offer.Bump--
	tampered := genuine.Copy()
	if tampered.Data, err = EncodeOffer(offer); err != nil {
		t.Fatalf("encode: %v", err)
	}
	h.state.accounts[addr] = tampered
	_, err = h.engine.Offer(addr)
	expectCode(t, err, ErrAccountMismatch)

	// program-owned data without the offer discriminator
	h.state.accounts[addr] = &types.Account{Lamports: genuine.Lamports, Owner: testProgram, Data: bytes.Repeat([]byte{0xAB}, len(genuine.Data))}
	_, err = h.engine.AcceptOffer(h.worker, addr)
	expectCode(t, err, ErrAccountMismatch)

	h.state.accounts[addr] = genuine
	if _, err := h.engine.AcceptOffer(h.worker, addr); err != nil {
		t.Fatalf("accept genuine offer: %v", err)
	}
}

func TestApproveCompletion(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())

	_, err := h.engine.ApproveCompletion(h.creator, addr)
	expectCode(t, err, ErrOfferNotAccepted)

	if _, err := h.engine.AcceptOffer(h.worker, addr); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = h.engine.ApproveCompletion(h.worker, addr)
	expectCode(t, err, ErrOnlyOfferCreatorCanApproveOffer)
	if err.Error() != "Only the creator of an offer can approve the offer" {
		t.Fatalf("unexpected message: %q", err.Error())
	}

	offer, err := h.engine.ApproveCompletion(h.creator, addr)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !offer.Completed {
		t.Fatalf("offer not completed")
	}
	_, err = h.engine.ApproveCompletion(h.creator, addr)
	expectCode(t, err, ErrOfferAlreadyApprovedAsCompleted)
	if err.Error() != "Offer already approved as completed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWithdrawOffer(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	addr := h.create(args)
	if _, err := h.engine.AcceptOffer(h.worker, addr); err != nil {
		t.Fatalf("accept: %v", err)
	}

	_, err := h.engine.WithdrawOffer(h.worker, addr)
	expectCode(t, err, ErrOfferNotCompleted)

	if _, err := h.engine.ApproveCompletion(h.creator, addr); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err = h.engine.WithdrawOffer(h.other, addr)
	expectCode(t, err, ErrOnlyApprovedReceiverCanReceivePayment)
	if err.Error() != "Only approved receiver can receive payment" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	_, err = h.engine.WithdrawOffer(h.creator, addr)
	expectCode(t, err, ErrOnlyApprovedReceiverCanReceivePayment)

	receiverBefore := h.state.balance(h.worker)
	if _, err := h.engine.WithdrawOffer(h.worker, addr); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if delta := h.state.balance(h.worker) - receiverBefore; delta != args.Amount {
		t.Fatalf("receiver delta = %d, want %d", delta, args.Amount)
	}
	if got := h.state.balance(addr); got != h.engine.MinimumBalance() {
		t.Fatalf("custody should keep only the rent minimum, has %d", got)
	}

	before := h.state.snapshot()
	_, err = h.engine.WithdrawOffer(h.worker, addr)
	expectCode(t, err, ErrOfferAlreadyWithdrawn)
	if err.Error() != "The reward for this offer has already been claimed" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	assertUnchanged(t, before, h.state)
}

func TestWithdrawBeforeAccept(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())
	_, err := h.engine.WithdrawOffer(h.worker, addr)
	expectCode(t, err, ErrOnlyApprovedReceiverCanReceivePayment)
}

func TestHappyPathEndToEnd(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	total := h.state.total()
	addr := h.create(args)
	receiverBefore := h.state.balance(h.worker)

	if _, err := h.engine.AcceptOffer(h.worker, addr); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := h.engine.ApproveCompletion(h.creator, addr); err != nil {
		t.Fatalf("approve: %v", err)
	}
	offer, err := h.engine.WithdrawOffer(h.worker, addr)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !offer.Accepted || !offer.Completed || !offer.Withdrawn || offer.Status() != StatusWithdrawn {
		t.Fatalf("unexpected final offer: %+v", offer)
	}
	if h.state.balance(h.worker)-receiverBefore != 100*lamportsPerSOL {
		t.Fatalf("receiver did not gain the offer amount")
	}
	if h.state.total() != total {
		t.Fatalf("lamports not conserved: %d != %d", h.state.total(), total)
	}
	want := []string{EventTypeOfferCreated, EventTypeOfferAccepted, EventTypeOfferApproved, EventTypeOfferWithdrawn}
	got := h.emitter.types()
	if len(got) != len(want) {
		t.Fatalf("unexpected events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestCancelOffer(t *testing.T) {
	h := newHarness(t)
	args := defaultArgs()
	addr := h.create(args)
	creatorAfterCreate := h.state.balance(h.creator)

	_, err := h.engine.CancelOffer(h.worker, addr)
	expectCode(t, err, ErrOnlyOfferCreatorCanCancelOffer)

	offer, err := h.engine.CancelOffer(h.creator, addr)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !offer.Cancelled || offer.Status() != StatusCancelled {
		t.Fatalf("offer not cancelled: %+v", offer)
	}
	if h.state.balance(h.creator)-creatorAfterCreate != args.Amount {
		t.Fatalf("creator not refunded")
	}

	_, err = h.engine.AcceptOffer(h.worker, addr)
	expectCode(t, err, ErrOfferCancelled)
	_, err = h.engine.CancelOffer(h.creator, addr)
	expectCode(t, err, ErrOfferCancelled)
	_, err = h.engine.ApproveCompletion(h.creator, addr)
	expectCode(t, err, ErrOfferCancelled)

	// The id stays taken: the account still exists.
	_, err = h.engine.CreateOffer(h.creator, addr, args)
	expectCode(t, err, ErrAccountAlreadyExists)
}

func TestCancelAfterAccept(t *testing.T) {
	h := newHarness(t)
	addr := h.create(defaultArgs())
	if _, err := h.engine.AcceptOffer(h.worker, addr); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err := h.engine.CancelOffer(h.creator, addr)
	expectCode(t, err, ErrOfferAlreadyAccepted)
}

func TestEngineWithoutState(t *testing.T) {
	engine := NewEngine(testProgram, state.DefaultRent())
	if _, err := engine.AcceptOffer(newTestAddress(1), newTestAddress(2)); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
	if err := engine.Execute(newTestAddress(1), types.Instruction{}); !errors.Is(err, errNilState) {
		t.Fatalf("expected errNilState, got %v", err)
	}
}

func TestWithStateDoesNotMutateOriginal(t *testing.T) {
	engine := NewEngine(testProgram, state.DefaultRent())
	bound := engine.WithState(newMockState(), nil)
	if bound.state == nil || engine.state != nil {
		t.Fatalf("WithState should bind only the copy")
	}
	if _, ok := bound.emitter.(events.NoopEmitter); !ok {
		t.Fatalf("nil emitter should reset to noop")
	}
}

func assertUnchanged(t *testing.T, before map[crypto.Address]types.Account, st *mockState) {
	t.Helper()
	after := st.snapshot()
	if len(before) != len(after) {
		t.Fatalf("account set changed: %d -> %d", len(before), len(after))
	}
	for addr, acct := range before {
		got, ok := after[addr]
		if !ok || got.Lamports != acct.Lamports || got.Nonce != acct.Nonce || got.Owner != acct.Owner || !bytes.Equal(got.Data, acct.Data) {
			t.Fatalf("account %s changed by failed instruction", addr)
		}
	}
}

// Random interleavings from random signers must never skip a state, move a
// flag backwards, pay out twice or create lamports.
func TestRandomInterleavingsPreserveOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		h := newHarness(t)
		addr := h.create(defaultArgs())
		total := h.state.total()
		signers := []crypto.Address{h.creator, h.worker, h.other}
		var prev Offer
		payouts := 0

		for step := 0; step < 12; step++ {
			signer := signers[rng.Intn(len(signers))]
			var err error
			switch rng.Intn(5) {
			case 0:
				_, err = h.engine.AcceptOffer(signer, addr)
			case 1:
				_, err = h.engine.ApproveCompletion(signer, addr)
			case 2:
				_, err = h.engine.WithdrawOffer(signer, addr)
				if err == nil {
					payouts++
				}
			case 3:
				_, err = h.engine.CancelOffer(signer, addr)
			default:
				_, err = h.engine.AcceptOffer(signer, addr)
			}
			if err != nil {
				if _, ok := AsError(err); !ok {
					t.Fatalf("round %d: non-program error %v", round, err)
				}
			}

			cur, err := h.engine.Offer(addr)
			if err != nil {
				t.Fatalf("round %d: load offer: %v", round, err)
			}
			if (prev.Accepted && !cur.Accepted) || (prev.Completed && !cur.Completed) ||
				(prev.Withdrawn && !cur.Withdrawn) || (prev.Cancelled && !cur.Cancelled) {
				t.Fatalf("round %d: flag moved backwards: %+v -> %+v", round, prev, *cur)
			}
			if cur.Completed && !cur.Accepted {
				t.Fatalf("round %d: completed without accept", round)
			}
			if cur.Withdrawn && !cur.Completed {
				t.Fatalf("round %d: withdrawn without completion", round)
			}
			if cur.Cancelled && cur.Accepted {
				t.Fatalf("round %d: cancelled offer was accepted", round)
			}
			if cur.Accepted != (cur.Receiver != nil) {
				t.Fatalf("round %d: receiver set without accept", round)
			}
			if prev.Receiver != nil && *cur.Receiver != *prev.Receiver {
				t.Fatalf("round %d: receiver changed", round)
			}
			if cur.Accepted && *cur.Receiver == h.creator {
				t.Fatalf("round %d: creator accepted own offer", round)
			}
			if h.state.total() != total {
				t.Fatalf("round %d: lamports not conserved", round)
			}
			prev = *cur.Clone()
		}
		if payouts > 1 {
			t.Fatalf("round %d: paid out %d times", round, payouts)
		}
	}
}

package escrow

import (
	"bytes"
	"errors"
	"testing"

	"offerchain/core/types"
	"offerchain/crypto"
)

func TestExecuteFullFlow(t *testing.T) {
	h := newHarness(t)
	ix, addr, err := NewCreateOfferInstruction(testProgram, h.creator, defaultArgs())
	if err != nil {
		t.Fatalf("build create: %v", err)
	}
	if InstructionName(ix.Data) != InstructionCreateOffer {
		t.Fatalf("unexpected instruction name %q", InstructionName(ix.Data))
	}
	steps := []struct {
		signer crypto.Address
		ix     types.Instruction
	}{
		{h.creator, ix},
		{h.worker, NewAcceptOfferInstruction(testProgram, addr, h.worker)},
		{h.creator, NewApproveCompletionInstruction(testProgram, addr, h.creator)},
		{h.worker, NewWithdrawOfferInstruction(testProgram, addr, h.worker)},
	}
	for i, step := range steps {
		if err := h.engine.Execute(step.signer, step.ix); err != nil {
			t.Fatalf("step %d (%s): %v", i, InstructionName(step.ix.Data), err)
		}
	}
	offer, err := h.engine.Offer(addr)
	if err != nil {
		t.Fatalf("load offer: %v", err)
	}
	if offer.Status() != StatusWithdrawn {
		t.Fatalf("unexpected status %s", offer.Status())
	}
}

func TestExecuteCancel(t *testing.T) {
	h := newHarness(t)
	ix, addr, err := NewCreateOfferInstruction(testProgram, h.creator, defaultArgs())
	if err != nil {
		t.Fatalf("build create: %v", err)
	}
	if err := h.engine.Execute(h.creator, ix); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.engine.Execute(h.creator, NewCancelOfferInstruction(testProgram, addr, h.creator)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
}

func TestExecuteRejectsMalformedInstructions(t *testing.T) {
	h := newHarness(t)
	create, addr, err := NewCreateOfferInstruction(testProgram, h.creator, defaultArgs())
	if err != nil {
		t.Fatalf("build create: %v", err)
	}
	accept := NewAcceptOfferInstruction(testProgram, addr, h.worker)

	wrongProgram := accept
	wrongProgram.Program = newTestAddress(0x77)

	shortData := accept
	shortData.Data = []byte{1, 2, 3}

	unknown := accept
	unknown.Data = bytes.Repeat([]byte{0xFF}, DiscriminatorLength)

	trailing := accept
	trailing.Data = append(append([]byte(nil), accept.Data...), 0x00)

	truncatedCreate := create
	truncatedCreate.Data = create.Data[:len(create.Data)-3]

	readonlyOffer := types.Instruction{
		Program:  testProgram,
		Accounts: []types.AccountMeta{types.NewReadonlyAccountMeta(addr, false), types.NewReadonlyAccountMeta(h.worker, true)},
		Data:     accept.Data,
	}
	unsignedSigner := types.Instruction{
		Program:  testProgram,
		Accounts: []types.AccountMeta{types.NewAccountMeta(addr, false), types.NewReadonlyAccountMeta(h.worker, false)},
		Data:     accept.Data,
	}
	missingAccounts := types.Instruction{Program: testProgram, Data: accept.Data}

	readonlyWithdraw := NewWithdrawOfferInstruction(testProgram, addr, h.worker)
	readonlyWithdraw.Accounts[1].IsWritable = false

	cases := []struct {
		name   string
		signer crypto.Address
		ix     types.Instruction
		want   *Error
	}{
		{"wrong program", h.worker, wrongProgram, ErrInvalidProgram},
		{"short data", h.worker, shortData, ErrInvalidInstruction},
		{"unknown discriminator", h.worker, unknown, ErrInvalidInstruction},
		{"trailing bytes", h.worker, trailing, ErrInvalidInstruction},
		{"truncated create", h.creator, truncatedCreate, ErrInvalidInstruction},
		{"readonly offer", h.worker, readonlyOffer, ErrAccountMismatch},
		{"unsigned signer meta", h.worker, unsignedSigner, ErrMissingSigner},
		{"signer mismatch", h.other, accept, ErrMissingSigner},
		{"missing accounts", h.worker, missingAccounts, ErrAccountMismatch},
		{"readonly receiver on withdraw", h.worker, readonlyWithdraw, ErrAccountMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.Execute(tc.signer, tc.ix)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %s, got %v", tc.want.Code.Name(), err)
			}
		})
	}
}

func TestInstructionNameUnknown(t *testing.T) {
	if InstructionName(nil) != "unknown" {
		t.Fatalf("short data should be unknown")
	}
	if InstructionName(bytes.Repeat([]byte{1}, 8)) != "unknown" {
		t.Fatalf("unknown discriminator should be unknown")
	}
}

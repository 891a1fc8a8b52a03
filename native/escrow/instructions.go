package escrow

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"offerchain/core/types"
	"offerchain/crypto"
)

// Instruction names. The data of each instruction starts with
// sha256("global:<name>")[:8].
const (
	InstructionCreateOffer       = "create_offer"
	InstructionAcceptOffer       = "accept_offer"
	InstructionApproveCompletion = "approve_completion"
	InstructionWithdrawOffer     = "withdraw_offer"
	InstructionCancelOffer       = "cancel_offer"
)

var (
	createOfferDiscriminator       = newDiscriminator("global:" + InstructionCreateOffer)
	acceptOfferDiscriminator       = newDiscriminator("global:" + InstructionAcceptOffer)
	approveCompletionDiscriminator = newDiscriminator("global:" + InstructionApproveCompletion)
	withdrawOfferDiscriminator     = newDiscriminator("global:" + InstructionWithdrawOffer)
	cancelOfferDiscriminator       = newDiscriminator("global:" + InstructionCancelOffer)
)

var instructionNames = map[Discriminator]string{
	createOfferDiscriminator:       InstructionCreateOffer,
	acceptOfferDiscriminator:       InstructionAcceptOffer,
	approveCompletionDiscriminator: InstructionApproveCompletion,
	withdrawOfferDiscriminator:     InstructionWithdrawOffer,
	cancelOfferDiscriminator:       InstructionCancelOffer,
}

// createOfferData is the Borsh layout of create_offer arguments.
type createOfferData struct {
	Amount       uint64
	OfferID      string
	Deliverables string
	Category     string
	Description  string
}

// InstructionName returns the instruction name encoded in data, or "unknown".
func InstructionName(data []byte) string {
	if len(data) < DiscriminatorLength {
		return "unknown"
	}
	var d Discriminator
	copy(d[:], data[:DiscriminatorLength])
	if name, ok := instructionNames[d]; ok {
		return name
	}
	return "unknown"
}

func encodeCreateOfferData(args CreateOfferArgs) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(createOfferDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(createOfferData{
		Amount:       args.Amount,
		OfferID:      args.OfferID,
		Deliverables: args.Deliverables,
		Category:     args.Category,
		Description:  args.Description,
	}); err != nil {
		return nil, fmt.Errorf("escrow: encode create_offer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCreateOfferData(body []byte) (CreateOfferArgs, error) {
	var data createOfferData
	dec := bin.NewBorshDecoder(body)
	if err := dec.Decode(&data); err != nil {
		return CreateOfferArgs{}, err
	}
	if dec.Remaining() != 0 {
		return CreateOfferArgs{}, fmt.Errorf("escrow: %d trailing bytes", dec.Remaining())
	}
	return CreateOfferArgs(data), nil
}

// NewCreateOfferInstruction derives the offer address and builds the
// create_offer instruction. It returns the derived address alongside.
func NewCreateOfferInstruction(program, creator crypto.Address, args CreateOfferArgs) (types.Instruction, crypto.Address, error) {
	offer, _, err := DeriveOfferAddress(program, creator, args.OfferID)
	if err != nil {
		return types.Instruction{}, crypto.Address{}, err
	}
	data, err := encodeCreateOfferData(args)
	if err != nil {
		return types.Instruction{}, crypto.Address{}, err
	}
	return types.Instruction{
		Program: program,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(offer, false),
			types.NewAccountMeta(creator, true),
		},
		Data: data,
	}, offer, nil
}

func newOfferInstruction(program, offer, signer crypto.Address, d Discriminator, signerWritable bool) types.Instruction {
	signerMeta := types.NewReadonlyAccountMeta(signer, true)
	if signerWritable {
		signerMeta = types.NewAccountMeta(signer, true)
	}
	return types.Instruction{
		Program: program,
		Accounts: []types.AccountMeta{
			types.NewAccountMeta(offer, false),
			signerMeta,
		},
		Data: append([]byte(nil), d[:]...),
	}
}

// NewAcceptOfferInstruction builds accept_offer signed by the receiver.
func NewAcceptOfferInstruction(program, offer, receiver crypto.Address) types.Instruction {
	return newOfferInstruction(program, offer, receiver, acceptOfferDiscriminator, false)
}

// NewApproveCompletionInstruction builds approve_completion signed by the creator.
func NewApproveCompletionInstruction(program, offer, creator crypto.Address) types.Instruction {
	return newOfferInstruction(program, offer, creator, approveCompletionDiscriminator, false)
}

// NewWithdrawOfferInstruction builds withdraw_offer signed by the receiver.
func NewWithdrawOfferInstruction(program, offer, receiver crypto.Address) types.Instruction {
	return newOfferInstruction(program, offer, receiver, withdrawOfferDiscriminator, true)
}

// NewCancelOfferInstruction builds cancel_offer signed by the creator.
func NewCancelOfferInstruction(program, offer, creator crypto.Address) types.Instruction {
	return newOfferInstruction(program, offer, creator, cancelOfferDiscriminator, true)
}

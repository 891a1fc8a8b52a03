package escrow

import (
	"errors"
	"fmt"
)

// ErrorKind groups error codes by what went wrong.
type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindState
	KindResource
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// ErrorCode is the closed set of failures the escrow program reports.
type ErrorCode uint32

const (
	CodeOfferNotAccepted ErrorCode = 6000 + iota
	CodeOfferNotCompleted
	CodeCategoryTooLong
	CodeDescriptionTooLong
	CodeDeliverablesTooLong
	CodeInsufficientFunds
	CodeOfferAlreadyAccepted
	CodeOfferAlreadyApprovedAsCompleted
	// 6008 to 6010 keep their published numbers but are never returned.
	CodeNoReceiverAttached
	CodeNoReceiverKeyAttached
	CodeOfferWithdrawalKeyNotMatchOfferReceiverKey
	CodeOnlyOfferCreatorCanApproveOffer
	CodeOnlyApprovedReceiverCanReceivePayment
	CodeOfferIDTooLong
	CodeOfferAlreadyWithdrawn
	CodeOfferCreatorCannotAcceptOffer
	CodeAccountAlreadyExists
	CodeInvalidAmount
	CodeOfferIDEmpty
	CodeOfferNotFound
	CodeOfferCancelled
	CodeOnlyOfferCreatorCanCancelOffer
	CodeInvalidInstruction
	CodeAccountMismatch
	CodeMissingSigner
	CodeArithmeticOverflow
	CodeInvalidProgram
)

type codeInfo struct {
	name    string
	kind    ErrorKind
	message string
}

var codeTable = map[ErrorCode]codeInfo{
	CodeOfferNotAccepted:                           {"OfferNotAccepted", KindState, "The offer has not been accepted yet."},
	CodeOfferNotCompleted:                          {"OfferNotCompleted", KindState, "The completion of the offer has not yet been approved by its creator"},
	CodeCategoryTooLong:                            {"CategoryTooLong", KindValidation, "Category must not exceed 50 characters"},
	CodeDescriptionTooLong:                         {"DescriptionTooLong", KindValidation, "Description must not exceed 240 characters"},
	CodeDeliverablesTooLong:                        {"DeliverablesTooLong", KindValidation, "Deliverables must not exceed 50 characters"},
	CodeInsufficientFunds:                          {"InsufficientFunds", KindResource, "Insufficient funds to complete transaction"},
	CodeOfferAlreadyAccepted:                       {"OfferAlreadyAccepted", KindState, "Offer already accepted"},
	CodeOfferAlreadyApprovedAsCompleted:            {"OfferAlreadyApprovedAsCompleted", KindState, "Offer already approved as completed"},
	CodeNoReceiverAttached:                         {"NoReceiverAttached", KindState, "No receiver attached to offer"},
	CodeNoReceiverKeyAttached:                      {"NoReceiverKeyAttached", KindState, "No receiver key attached to offer"},
	CodeOfferWithdrawalKeyNotMatchOfferReceiverKey: {"OfferWithdrawalKeyNotMatchOfferReceiverKey", KindAuthorization, "Approval receiver key does not match offer receiver key"},
	CodeOnlyOfferCreatorCanApproveOffer:            {"OnlyOfferCreatorCanApproveOffer", KindAuthorization, "Only the creator of an offer can approve the offer"},
	CodeOnlyApprovedReceiverCanReceivePayment:      {"OnlyApprovedReceiverCanReceivePayment", KindAuthorization, "Only approved receiver can receive payment"},
	CodeOfferIDTooLong:                             {"OfferIdTooLong", KindValidation, "Offer id must not exceed 32 bytes"},
	CodeOfferAlreadyWithdrawn:                      {"OfferAlreadyWithdrawn", KindState, "The reward for this offer has already been claimed"},
	CodeOfferCreatorCannotAcceptOffer:              {"OfferCreatorCannotAcceptOffer", KindAuthorization, "Offer cannot be accepted by its creator"},
	CodeAccountAlreadyExists:                       {"AccountAlreadyExists", KindResource, "Offer account already exists"},
	CodeInvalidAmount:                              {"InvalidAmount", KindValidation, "Offer amount must be positive"},
	CodeOfferIDEmpty:                               {"OfferIdEmpty", KindValidation, "Offer id must not be empty"},
	CodeOfferNotFound:                              {"OfferNotFound", KindResource, "Offer account not found"},
	CodeOfferCancelled:                             {"OfferCancelled", KindState, "Offer has been cancelled"},
	CodeOnlyOfferCreatorCanCancelOffer:             {"OnlyOfferCreatorCanCancelOffer", KindAuthorization, "Only the creator of an offer can cancel the offer"},
	CodeInvalidInstruction:                         {"InvalidInstruction", KindValidation, "Instruction data is not a valid escrow instruction"},
	CodeAccountMismatch:                            {"AccountMismatch", KindValidation, "Instruction accounts do not match the offer"},
	CodeMissingSigner:                              {"MissingSigner", KindAuthorization, "Instruction signer does not match the transaction signer"},
	CodeArithmeticOverflow:                         {"ArithmeticOverflow", KindResource, "Arithmetic overflow"},
	CodeInvalidProgram:                             {"InvalidProgram", KindValidation, "Instruction targets a different program"},
}

// Name returns the symbolic name of the code.
func (c ErrorCode) Name() string {
	if info, ok := codeTable[c]; ok {
		return info.name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// Kind returns the fixed category of the code.
func (c ErrorCode) Kind() ErrorKind {
	return codeTable[c].kind
}

// Message returns the human-readable message reported to callers.
func (c ErrorCode) Message() string {
	if info, ok := codeTable[c]; ok {
		return info.message
	}
	return fmt.Sprintf("unknown escrow error %d", uint32(c))
}

// Codes returns every defined code in ascending order.
func Codes() []ErrorCode {
	out := make([]ErrorCode, 0, len(codeTable))
	for c := CodeOfferNotAccepted; c <= CodeInvalidProgram; c++ {
		out = append(out, c)
	}
	return out
}

// Error is a program failure. Two errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code ErrorCode
}

func (e *Error) Error() string { return e.Code.Message() }

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Kind returns the category of the error.
func (e *Error) Kind() ErrorKind { return e.Code.Kind() }

var (
	ErrOfferNotAccepted                      = &Error{Code: CodeOfferNotAccepted}
	ErrOfferNotCompleted                     = &Error{Code: CodeOfferNotCompleted}
	ErrCategoryTooLong                       = &Error{Code: CodeCategoryTooLong}
	ErrDescriptionTooLong                    = &Error{Code: CodeDescriptionTooLong}
	ErrDeliverablesTooLong                   = &Error{Code: CodeDeliverablesTooLong}
	ErrInsufficientFunds                     = &Error{Code: CodeInsufficientFunds}
	ErrOfferAlreadyAccepted                  = &Error{Code: CodeOfferAlreadyAccepted}
	ErrOfferAlreadyApprovedAsCompleted       = &Error{Code: CodeOfferAlreadyApprovedAsCompleted}
	ErrOnlyOfferCreatorCanApproveOffer       = &Error{Code: CodeOnlyOfferCreatorCanApproveOffer}
	ErrOnlyApprovedReceiverCanReceivePayment = &Error{Code: CodeOnlyApprovedReceiverCanReceivePayment}
	ErrOfferIDTooLong                        = &Error{Code: CodeOfferIDTooLong}
	ErrOfferAlreadyWithdrawn                 = &Error{Code: CodeOfferAlreadyWithdrawn}
	ErrOfferCreatorCannotAcceptOffer         = &Error{Code: CodeOfferCreatorCannotAcceptOffer}
	ErrAccountAlreadyExists                  = &Error{Code: CodeAccountAlreadyExists}
	ErrInvalidAmount                         = &Error{Code: CodeInvalidAmount}
	ErrOfferIDEmpty                          = &Error{Code: CodeOfferIDEmpty}
	ErrOfferNotFound                         = &Error{Code: CodeOfferNotFound}
	ErrOfferCancelled                        = &Error{Code: CodeOfferCancelled}
	ErrOnlyOfferCreatorCanCancelOffer        = &Error{Code: CodeOnlyOfferCreatorCanCancelOffer}
	ErrInvalidInstruction                    = &Error{Code: CodeInvalidInstruction}
	ErrAccountMismatch                       = &Error{Code: CodeAccountMismatch}
	ErrMissingSigner                         = &Error{Code: CodeMissingSigner}
	ErrArithmeticOverflow                    = &Error{Code: CodeArithmeticOverflow}
	ErrInvalidProgram                        = &Error{Code: CodeInvalidProgram}
)

// AsError extracts the program error from err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the category of a program error, or false when err did not
// originate from the program.
func KindOf(err error) (ErrorKind, bool) {
	e, ok := AsError(err)
	if !ok {
		return 0, false
	}
	return e.Kind(), true
}

package rpc

import (
	"encoding/json"

	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/native/escrow"
)

// RPCRequest is a JSON-RPC 2.0 request. Params is a single object, optionally
// wrapped in a one-element array.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`

	status int
}

func (e *RPCError) Error() string { return e.Message }

// OfferErrorData is attached to errors raised by the offer program.
type OfferErrorData struct {
	Kind string `json:"kind"`
	Code uint32 `json:"code"`
	Name string `json:"name"`
}

// SendTransactionParams carries a signed transaction.
type SendTransactionParams struct {
	Tx *types.Transaction `json:"tx"`
}

// OfferParams selects an offer by address or by creator and offer id.
type OfferParams struct {
	Address string `json:"address,omitempty"`
	Creator string `json:"creator,omitempty"`
	OfferID string `json:"offerId,omitempty"`
}

type AddressParams struct {
	Address string `json:"address"`
}

type ListParams struct {
	Address  string `json:"address,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Receiver string `json:"receiver,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// OfferResult is the decoded offer record plus its address.
type OfferResult struct {
	Address      string `json:"address"`
	Creator      string `json:"creator"`
	Receiver     string `json:"receiver,omitempty"`
	Amount       uint64 `json:"amount"`
	OfferID      string `json:"offerId"`
	Bump         uint8  `json:"bump"`
	Deliverables string `json:"deliverables"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	Accepted     bool   `json:"accepted"`
	Completed    bool   `json:"completed"`
	Withdrawn    bool   `json:"withdrawn"`
	Cancelled    bool   `json:"cancelled"`
	Status       string `json:"status"`
	Lamports     uint64 `json:"lamports"`
}

func offerResultFrom(addr crypto.Address, offer *escrow.Offer, lamports uint64) OfferResult {
	res := OfferResult{
		Address:      addr.String(),
		Creator:      offer.Creator.String(),
		Amount:       offer.Amount,
		OfferID:      offer.ID,
		Bump:         offer.Bump,
		Deliverables: offer.Deliverables,
		Category:     offer.Category,
		Description:  offer.Description,
		Accepted:     offer.Accepted,
		Completed:    offer.Completed,
		Withdrawn:    offer.Withdrawn,
		Cancelled:    offer.Cancelled,
		Status:       offer.Status().String(),
		Lamports:     lamports,
	}
	if offer.Receiver != nil {
		res.Receiver = offer.Receiver.String()
	}
	return res
}

type DeriveAddressResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

type AccountResult struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Nonce    uint64 `json:"nonce"`
	Owner    string `json:"owner"`
	DataLen  int    `json:"dataLength"`
}

type MinimumBalanceResult struct {
	Lamports uint64 `json:"lamports"`
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"offerchain/core"
	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/native/escrow"
)

// offerError maps program errors to JSON-RPC errors carrying the catalog
// message and code.
func offerError(err error) *RPCError {
	e, ok := escrow.AsError(err)
	if !ok {
		return serverError("internal error", err)
	}
	status := http.StatusBadRequest
	switch e.Kind() {
	case escrow.KindAuthorization:
		status = http.StatusForbidden
	case escrow.KindState:
		status = http.StatusConflict
	case escrow.KindResource:
		if e.Code == escrow.CodeOfferNotFound {
			status = http.StatusNotFound
		}
	}
	return &RPCError{
		Code:    codeOfferErrorBase - int(e.Kind()),
		Message: e.Error(),
		Data: OfferErrorData{
			Kind: e.Kind().String(),
			Code: uint32(e.Code),
			Name: e.Code.Name(),
		},
		status: status,
	}
}

func parseAddress(field, value string) (crypto.Address, *RPCError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return crypto.Address{}, invalidParams(field+" required", nil)
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, invalidParams("invalid "+field, err.Error())
	}
	return addr, nil
}

func (s *Server) handleSendTransaction(ctx context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	var params SendTransactionParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if params.Tx == nil {
		return nil, invalidParams("tx required", nil)
	}
	receipt, err := s.node.SubmitTransaction(ctx, params.Tx)
	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, types.ErrInvalidSignature):
		return nil, invalidParams("invalid transaction signature", nil)
	case errors.Is(err, core.ErrNonceMismatch):
		return nil, &RPCError{Code: codeNonceMismatch, Message: err.Error(), status: http.StatusConflict}
	default:
		s.logger.Error("submit transaction", "error", err)
		return nil, serverError("failed to execute transaction", err)
	}
}

func (s *Server) resolveOffer(params OfferParams) (crypto.Address, *RPCError) {
	if strings.TrimSpace(params.Address) != "" {
		return parseAddress("address", params.Address)
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return crypto.Address{}, invalidParams("address or creator and offerId required", nil)
	}
	addr, _, err := s.node.DeriveOfferAddress(creator, params.OfferID)
	if err != nil {
		return crypto.Address{}, offerError(err)
	}
	return addr, nil
}

func (s *Server) handleGetOffer(_ context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	var params OfferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := s.resolveOffer(params)
	if rpcErr != nil {
		return nil, rpcErr
	}
	offer, err := s.node.Offer(addr)
	if err != nil {
		return nil, offerError(err)
	}
	acct, err := s.node.Account(addr)
	if err != nil {
		return nil, serverError("failed to load offer account", err)
	}
	return offerResultFrom(addr, offer, acct.Lamports), nil
}

func (s *Server) handleDeriveAddress(_ context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	var params OfferParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, bump, err := s.node.DeriveOfferAddress(creator, params.OfferID)
	if err != nil {
		return nil, offerError(err)
	}
	return DeriveAddressResult{Address: addr.String(), Bump: bump}, nil
}

func (s *Server) handleGetAccount(_ context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	var params AddressParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acct, err := s.node.Account(addr)
	if err != nil {
		return nil, serverError("failed to load account", err)
	}
	return AccountResult{
		Address:  addr.String(),
		Lamports: acct.Lamports,
		Nonce:    acct.Nonce,
		Owner:    acct.Owner.String(),
		DataLen:  len(acct.Data),
	}, nil
}

func (s *Server) handleMinimumBalance(_ context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	var params struct{}
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return MinimumBalanceResult{Lamports: s.node.MinimumBalance()}, nil
}

func (s *Server) requireIndex() *RPCError {
	if s.index == nil {
		return &RPCError{Code: codeIndexDisabled, Message: "event index disabled", status: http.StatusServiceUnavailable}
	}
	return nil
}

func (s *Server) handleListByCreator(ctx context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	if err := s.requireIndex(); err != nil {
		return nil, err
	}
	var params ListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	creator, rpcErr := parseAddress("creator", params.Creator)
	if rpcErr != nil {
		return nil, rpcErr
	}
	offers, err := s.index.ListByCreator(ctx, creator.String(), params.Limit)
	if err != nil {
		return nil, serverError("failed to query index", err)
	}
	return offers, nil
}

func (s *Server) handleListByReceiver(ctx context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	if err := s.requireIndex(); err != nil {
		return nil, err
	}
	var params ListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	receiver, rpcErr := parseAddress("receiver", params.Receiver)
	if rpcErr != nil {
		return nil, rpcErr
	}
	offers, err := s.index.ListByReceiver(ctx, receiver.String(), params.Limit)
	if err != nil {
		return nil, serverError("failed to query index", err)
	}
	return offers, nil
}

func (s *Server) handleListEvents(ctx context.Context, _ *http.Request, raw json.RawMessage) (interface{}, *RPCError) {
	if err := s.requireIndex(); err != nil {
		return nil, err
	}
	var params ListParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	addr, rpcErr := parseAddress("address", params.Address)
	if rpcErr != nil {
		return nil, rpcErr
	}
	evts, err := s.index.ListEvents(ctx, addr.String(), params.Limit)
	if err != nil {
		return nil, serverError("failed to query index", err)
	}
	return evts, nil
}

// Package sdk is a JSON-RPC client for offerd.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/indexer"
	"offerchain/native/escrow"
	"offerchain/rpc"
)

const defaultTimeout = 15 * time.Second

// Error is a JSON-RPC error returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// OfferError decodes the program error details, if any.
func (e *Error) OfferError() (rpc.OfferErrorData, bool) {
	var data rpc.OfferErrorData
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &data) != nil || data.Name == "" {
		return rpc.OfferErrorData{}, false
	}
	return data, true
}

// Client talks to a single node endpoint.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	nextID   atomic.Uint64
}

// Option configures a Client.
type Option func(*Client)

// WithBearerToken sets the token sent with every call.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New returns a client for endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/") + "/",
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.nextID.Add(1),
		"method":  method,
	}
	if params != nil {
		payload["params"] = params
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s request", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", c.endpoint)
	}
	defer resp.Body.Close()

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return errors.Wrapf(err, "decode %s response (HTTP %d)", method, resp.StatusCode)
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

// SendTransaction submits a signed transaction. A program rejection comes
// back as a failed receipt, not an error.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	var receipt types.Receipt
	if err := c.call(ctx, "offer_sendTransaction", rpc.SendTransactionParams{Tx: tx}, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// SignAndSend fetches the signer's nonce, signs ix and submits it.
func (c *Client) SignAndSend(ctx context.Context, key *crypto.PrivateKey, ix types.Instruction) (*types.Receipt, error) {
	if key == nil {
		return nil, errors.New("sdk: nil signing key")
	}
	acct, err := c.GetAccount(ctx, key.PubKey().Address())
	if err != nil {
		return nil, errors.Wrap(err, "fetch nonce")
	}
	tx := &types.Transaction{Nonce: acct.Nonce, Instruction: ix}
	if err := tx.Sign(key); err != nil {
		return nil, errors.Wrap(err, "sign transaction")
	}
	return c.SendTransaction(ctx, tx)
}

// GetOffer loads an offer by address.
func (c *Client) GetOffer(ctx context.Context, addr crypto.Address) (*rpc.OfferResult, error) {
	return c.getOffer(ctx, rpc.OfferParams{Address: addr.String()})
}

// GetOfferByID loads an offer by its creator and offer id.
func (c *Client) GetOfferByID(ctx context.Context, creator crypto.Address, offerID string) (*rpc.OfferResult, error) {
	return c.getOffer(ctx, rpc.OfferParams{Creator: creator.String(), OfferID: offerID})
}

func (c *Client) getOffer(ctx context.Context, params rpc.OfferParams) (*rpc.OfferResult, error) {
	var out rpc.OfferResult
	if err := c.call(ctx, "offer_get", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeriveAddress asks the node for the offer address of (creator, offerID).
func (c *Client) DeriveAddress(ctx context.Context, creator crypto.Address, offerID string) (crypto.Address, uint8, error) {
	var out rpc.DeriveAddressResult
	if err := c.call(ctx, "offer_deriveAddress", rpc.OfferParams{Creator: creator.String(), OfferID: offerID}, &out); err != nil {
		return crypto.Address{}, 0, err
	}
	addr, err := crypto.DecodeAddress(out.Address)
	if err != nil {
		return crypto.Address{}, 0, errors.Wrap(err, "decode derived address")
	}
	return addr, out.Bump, nil
}

// GetAccount returns the balance and nonce of addr.
func (c *Client) GetAccount(ctx context.Context, addr crypto.Address) (*rpc.AccountResult, error) {
	var out rpc.AccountResult
	if err := c.call(ctx, "offer_getAccount", rpc.AddressParams{Address: addr.String()}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MinimumBalance returns the rent-exempt minimum of an offer account.
func (c *Client) MinimumBalance(ctx context.Context) (uint64, error) {
	var out rpc.MinimumBalanceResult
	if err := c.call(ctx, "offer_minimumBalance", nil, &out); err != nil {
		return 0, err
	}
	return out.Lamports, nil
}

// ListByCreator lists indexed offers created by creator.
func (c *Client) ListByCreator(ctx context.Context, creator crypto.Address, limit int) ([]indexer.Offer, error) {
	var out []indexer.Offer
	err := c.call(ctx, "offer_listByCreator", rpc.ListParams{Creator: creator.String(), Limit: limit}, &out)
	return out, err
}

// ListByReceiver lists indexed offers accepted by receiver.
func (c *Client) ListByReceiver(ctx context.Context, receiver crypto.Address, limit int) ([]indexer.Offer, error) {
	var out []indexer.Offer
	err := c.call(ctx, "offer_listByReceiver", rpc.ListParams{Receiver: receiver.String(), Limit: limit}, &out)
	return out, err
}

// ListEvents lists indexed events for an offer address.
func (c *Client) ListEvents(ctx context.Context, offer crypto.Address, limit int) ([]indexer.Event, error) {
	var out []indexer.Event
	err := c.call(ctx, "offer_listEvents", rpc.ListParams{Address: offer.String(), Limit: limit}, &out)
	return out, err
}

// IsProgramError reports whether err is a program rejection with the given
// code.
func IsProgramError(err error, code escrow.ErrorCode) bool {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	data, ok := rpcErr.OfferError()
	return ok && data.Code == uint32(code)
}

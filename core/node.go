package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"offerchain/core/events"
	"offerchain/core/genesis"
	"offerchain/core/state"
	"offerchain/core/types"
	"offerchain/crypto"
	"offerchain/native/escrow"
	"offerchain/observability"
	"offerchain/observability/metrics"
	offerotel "offerchain/observability/otel"
	"offerchain/storage"
)

// ErrNonceMismatch is returned when a transaction nonce differs from the
// signer's account nonce.
var ErrNonceMismatch = errors.New("node: nonce mismatch")

var errNilTransaction = errors.New("node: nil transaction")

var (
	sequenceKey = []byte("events:sequence")
	custodyKey  = []byte("offers:custody")
)

// Config describes the program the node hosts and its initial balances.
type Config struct {
	ProgramID crypto.Address
	Rent      state.Rent
	Genesis   []genesis.Alloc
}

// Option customises a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithSink registers a sink that receives committed events in order.
func WithSink(sink events.Sink) Option {
	return func(n *Node) {
		if sink != nil {
			n.sinks = append(n.sinks, sink)
		}
	}
}

// WithTracer overrides the tracer used for transaction spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(n *Node) {
		if tracer != nil {
			n.tracer = tracer
		}
	}
}

// Node hosts the offer program. It serialises transactions, verifies their
// signers and commits each program run atomically.
type Node struct {
	mu      sync.RWMutex
	state   *state.Manager
	engine  *escrow.Engine
	broker  *events.Broker
	sinks   []events.Sink
	logger  *slog.Logger
	metrics *metrics.OfferMetrics
	tracer  trace.Tracer

	sequence uint64
	custody  uint64
}

// NewNode opens the node over db, applying genesis balances on first start.
func NewNode(db storage.Database, cfg Config, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("node: database must not be nil")
	}
	if cfg.ProgramID.IsZero() {
		return nil, fmt.Errorf("node: program id must be set")
	}
	if err := cfg.Rent.Validate(); err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	n := &Node{
		state:   state.NewManager(db),
		engine:  escrow.NewEngine(cfg.ProgramID, cfg.Rent),
		broker:  events.NewBroker(),
		logger:  slog.Default(),
		metrics: metrics.Offers(),
		tracer:  offerotel.Tracer(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.engine.SetState(n.state)

	applied, err := genesis.Apply(n.state, cfg.Genesis)
	if err != nil {
		return nil, fmt.Errorf("node: genesis: %w", err)
	}
	if applied {
		n.logger.Info("genesis applied", "accounts", len(cfg.Genesis))
	}
	if _, err := n.state.KVGet(sequenceKey, &n.sequence); err != nil {
		return nil, fmt.Errorf("node: load event sequence: %w", err)
	}
	if _, err := n.state.KVGet(custodyKey, &n.custody); err != nil {
		return nil, fmt.Errorf("node: load custody total: %w", err)
	}
	n.metrics.SetCustody(float64(n.custody))
	return n, nil
}

// ProgramID returns the hosted program id.
func (n *Node) ProgramID() crypto.Address { return n.engine.ProgramID() }

// Broker returns the broker carrying committed events.
func (n *Node) Broker() *events.Broker { return n.broker }

// MinimumBalance returns the rent minimum each offer account keeps.
func (n *Node) MinimumBalance() uint64 { return n.engine.MinimumBalance() }

// Custody returns the lamports escrowed in open offers, excluding rent.
func (n *Node) Custody() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.custody
}

// Sequence returns the sequence number of the last committed event.
func (n *Node) Sequence() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sequence
}

// Account returns the account at addr. Unknown addresses yield an empty account.
func (n *Node) Account(addr crypto.Address) (*types.Account, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state.GetAccount(addr)
}

// Offer loads the offer stored at addr.
func (n *Node) Offer(addr crypto.Address) (*escrow.Offer, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.engine.Offer(addr)
}

// DeriveOfferAddress returns the address of creator's offer offerID.
func (n *Node) DeriveOfferAddress(creator crypto.Address, offerID string) (crypto.Address, uint8, error) {
	return escrow.DeriveOfferAddress(n.engine.ProgramID(), creator, offerID)
}

// SubmitTransaction verifies and executes tx. A nil error means the nonce was
// consumed; the receipt reports whether the program accepted the instruction.
// Program rejections leave every account except the signer nonce untouched.
func (n *Node) SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, errNilTransaction
	}
	instruction := escrow.InstructionName(tx.Instruction.Data)
	ctx, span := n.tracer.Start(ctx, "node.SubmitTransaction", trace.WithAttributes(
		attribute.String("offer.instruction", instruction),
		attribute.String("offer.signer", tx.Signer.String()),
	))
	defer span.End()

	receipt, err := n.submit(ctx, tx, instruction)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("offer.status", string(receipt.Status)))
	if receipt.Error != nil {
		span.SetStatus(codes.Error, receipt.Error.Name)
	}
	return receipt, nil
}

func (n *Node) submit(ctx context.Context, tx *types.Transaction, instruction string) (*types.Receipt, error) {
	if err := tx.Verify(); err != nil {
		return nil, err
	}
	hash, err := tx.HashHex()
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	signer, err := n.state.GetAccount(tx.Signer)
	if err != nil {
		return nil, err
	}
	if tx.Nonce != signer.Nonce {
		return nil, fmt.Errorf("%w: got %d, account at %d", ErrNonceMismatch, tx.Nonce, signer.Nonce)
	}

	overlay := n.state.Begin()
	buffer := &events.Buffer{}
	execErr := n.engine.WithState(overlay, buffer).Execute(tx.Signer, tx.Instruction)
	if execErr != nil {
		overlay.Discard()
		progErr, ok := escrow.AsError(execErr)
		if !ok {
			n.metrics.RecordError(0, "")
			n.logger.Error("instruction failed", "tx", hash, "instruction", instruction, "error", execErr)
			return nil, execErr
		}
		if err := n.consumeNonce(tx.Signer); err != nil {
			return nil, err
		}
		n.metrics.RecordInstruction(instruction, metrics.ResultFailed)
		n.metrics.RecordError(uint32(progErr.Code), progErr.Kind().String())
		n.logger.Info("instruction rejected",
			"tx", hash,
			"instruction", instruction,
			"signer", tx.Signer.String(),
			"code", progErr.Code.Name(),
			"kind", progErr.Kind().String())
		return &types.Receipt{
			TxHash: hash,
			Status: types.ReceiptStatusFailed,
			Error: &types.ReceiptError{
				Code:    uint32(progErr.Code),
				Name:    progErr.Code.Name(),
				Kind:    progErr.Kind().String(),
				Message: progErr.Error(),
			},
			Events: []types.Event{},
		}, nil
	}

	signer, err = overlay.GetAccount(tx.Signer)
	if err != nil {
		overlay.Discard()
		return nil, err
	}
	signer.Nonce++
	if err := overlay.PutAccount(tx.Signer, signer); err != nil {
		overlay.Discard()
		return nil, err
	}

	flat := events.Flatten(buffer.Events())
	records, sequence, custody := n.assignSequence(hash, flat)
	if len(records) > 0 {
		if err := overlay.KVPut(sequenceKey, sequence); err != nil {
			overlay.Discard()
			return nil, err
		}
		if err := overlay.KVPut(custodyKey, custody); err != nil {
			overlay.Discard()
			return nil, err
		}
	}
	if err := overlay.Commit(); err != nil {
		overlay.Discard()
		n.logger.Error("commit failed", "tx", hash, "error", err)
		return nil, err
	}
	n.sequence, n.custody = sequence, custody
	n.metrics.SetCustody(float64(custody))

	n.metrics.RecordInstruction(instruction, metrics.ResultSuccess)
	n.logger.Debug("instruction committed", "tx", hash, "instruction", instruction, "events", len(flat))
	n.publish(ctx, hash, records)

	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccess, Events: flat}, nil
}

func (n *Node) consumeNonce(addr crypto.Address) error {
	acct, err := n.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acct.Nonce++
	return n.state.PutAccount(addr, acct)
}

// assignSequence numbers flat after the last committed event and returns the
// records with the sequence and custody totals they would leave behind. It
// does not touch node state.
func (n *Node) assignSequence(hash string, flat []types.Event) ([]events.Record, uint64, uint64) {
	sequence, custody := n.sequence, n.custody
	records := make([]events.Record, 0, len(flat))
	for _, evt := range flat {
		sequence++
		records = append(records, events.Record{
			Sequence:   sequence,
			TxHash:     hash,
			Type:       evt.Type,
			Attributes: evt.Attributes,
		})
		custody = applyCustody(custody, evt)
	}
	return records, sequence, custody
}

// publish hands committed records to sinks and subscribers. Must be called
// with n.mu held.
func (n *Node) publish(ctx context.Context, hash string, records []events.Record) {
	if len(records) == 0 {
		return
	}
	for _, rec := range records {
		observability.Events().RecordPublished(rec.Type)
	}
	for _, sink := range n.sinks {
		if err := sink.Consume(ctx, records); err != nil {
			observability.Events().RecordSinkFailure()
			n.logger.Error("event sink failed", "tx", hash, "error", err)
		}
	}
	n.broker.Publish(records...)
}

func applyCustody(custody uint64, evt types.Event) uint64 {
	amount, err := strconv.ParseUint(evt.Attributes["amount"], 10, 64)
	if err != nil {
		return custody
	}
	switch evt.Type {
	case escrow.EventTypeOfferCreated:
		return custody + amount
	case escrow.EventTypeOfferWithdrawn, escrow.EventTypeOfferCancelled:
		if amount > custody {
			return 0
		}
		return custody - amount
	}
	return custody
}

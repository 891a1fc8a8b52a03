package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"offerchain/core"
	"offerchain/indexer"
	"offerchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeIndexDisabled  = -32003
	codeNonceMismatch  = -32010
	codeRateLimited    = -32020
	// Offer program errors use codeOfferErrorBase minus the error kind.
	codeOfferErrorBase = -32030
)

// EventIndex is the read side of the event indexer.
type EventIndex interface {
	ListByCreator(ctx context.Context, creator string, limit int) ([]indexer.Offer, error)
	ListByReceiver(ctx context.Context, receiver string, limit int) ([]indexer.Offer, error)
	ListEvents(ctx context.Context, offer string, limit int) ([]indexer.Event, error)
}

// ServerConfig tunes the RPC server.
type ServerConfig struct {
	Auth               AuthConfig
	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustedProxies     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

type methodHandler func(ctx context.Context, r *http.Request, params json.RawMessage) (interface{}, *RPCError)

// Server exposes the node over JSON-RPC, websocket and Prometheus endpoints.
type Server struct {
	node    *core.Node
	index   EventIndex
	auth    *Authenticator
	limiter *rateLimiter
	logger  *slog.Logger
	cfg     ServerConfig
	methods map[string]methodHandler
	writes  map[string]bool

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires the handlers. index may be nil when indexing is disabled.
func NewServer(node *core.Node, index EventIndex, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		index:   index,
		auth:    NewAuthenticator(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.TrustedProxies),
		logger:  logger,
		cfg:     cfg,
	}
	s.methods = map[string]methodHandler{
		"offer_sendTransaction": s.handleSendTransaction,
		"offer_get":             s.handleGetOffer,
		"offer_deriveAddress":   s.handleDeriveAddress,
		"offer_getAccount":      s.handleGetAccount,
		"offer_minimumBalance":  s.handleMinimumBalance,
		"offer_listByCreator":   s.handleListByCreator,
		"offer_listByReceiver":  s.handleListByReceiver,
		"offer_listEvents":      s.handleListEvents,
	}
	s.writes = map[string]bool{"offer_sendTransaction": true}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/", s.handle)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws/events", s.handleEventsWS)
	r.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(r, "offer-rpc")
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	s.logger.Info("json-rpc server listening", "listen", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(l)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func writeResponse(w http.ResponseWriter, id json.RawMessage, result interface{}, rpcErr *RPCError) {
	w.Header().Set("Content-Type", "application/json")
	if id == nil {
		id = json.RawMessage("null")
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id}
	if rpcErr != nil {
		status := rpcErr.status
		if status <= 0 {
			status = http.StatusBadRequest
		}
		w.WriteHeader(status)
		resp.Error = rpcErr
	} else {
		resp.Result = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		rpcErr := &RPCError{Code: codeInvalidRequest, Message: "failed to read request body", status: http.StatusBadRequest}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			rpcErr.status = http.StatusRequestEntityTooLarge
			rpcErr.Message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeResponse(w, nil, nil, rpcErr)
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeResponse(w, nil, nil, invalidRequest("request body required"))
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeResponse(w, nil, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error(), status: http.StatusBadRequest})
		return
	}

	result, rpcErr := s.dispatch(r.Context(), r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	observability.RPC().Observe(req.Method, code, time.Since(start))
	writeResponse(w, req.ID, result, rpcErr)
}

func (s *Server) dispatch(ctx context.Context, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return nil, invalidRequest("unsupported jsonrpc version")
	}
	if req.Method == "" {
		return nil, invalidRequest("method required")
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		return nil, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method, status: http.StatusNotFound}
	}
	if s.writes[req.Method] {
		if authErr := s.auth.Authorize(r); authErr != nil {
			observability.RPC().RecordThrottle("unauthorized")
			return nil, authErr
		}
		source := s.limiter.clientSource(r)
		if !s.limiter.allow(source) {
			observability.RPC().RecordThrottle("rate_limit")
			return nil, &RPCError{Code: codeRateLimited, Message: "transaction rate limit exceeded", Data: source, status: http.StatusTooManyRequests}
		}
	}
	return handler(ctx, r, req.Params)
}

// decodeParams accepts either a params object or a one-element array holding
// it.
func decodeParams(raw json.RawMessage, dst interface{}) *RPCError {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return invalidParams("invalid params", err.Error())
		}
		if len(list) == 0 {
			return nil
		}
		if len(list) != 1 {
			return invalidParams("expected a single parameter object", nil)
		}
		trimmed = list[0]
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalidParams("invalid params", err.Error())
	}
	return nil
}

func invalidRequest(message string) *RPCError {
	return &RPCError{Code: codeInvalidRequest, Message: message, status: http.StatusBadRequest}
}

func invalidParams(message string, data interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: message, Data: data, status: http.StatusBadRequest}
}

func serverError(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeServerError, Message: message, status: http.StatusInternalServerError}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.node == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"program":  s.node.ProgramID().String(),
		"sequence": s.node.Sequence(),
	})
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"offerchain/config"
	"offerchain/core"
	"offerchain/indexer"
	"offerchain/observability/logging"
	offerotel "offerchain/observability/otel"
	"offerchain/rpc"
	"offerchain/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("offerd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("offerd", cfg.Environment, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := offerotel.Init(ctx, offerotel.Config{
		ServiceName: "offerd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     offerotel.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	program, err := cfg.Program()
	if err != nil {
		return fmt.Errorf("decode program id: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts := []core.Option{core.WithLogger(logger.With("component", "node"))}
	var index rpc.EventIndex
	if cfg.Indexer.Enabled {
		idx, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		defer idx.Close()
		logger.Info("event indexer enabled",
			slog.String("driver", cfg.Indexer.Driver),
			logging.MaskField("dsn", cfg.Indexer.DSN))
		opts = append(opts, core.WithSink(idx))
		index = idx
	}

	node, err := core.NewNode(db, core.Config{
		ProgramID: program,
		Rent:      cfg.Rent,
		Genesis:   cfg.Genesis,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	auth := rpc.AuthConfig{
		Enabled:  cfg.RPC.JWTEnable,
		Issuer:   strings.TrimSpace(cfg.RPC.JWTIssuer),
		Audience: strings.TrimSpace(cfg.RPC.JWTAudience),
	}
	if auth.Enabled {
		secret, err := cfg.JWTSecret()
		if err != nil {
			return fmt.Errorf("rpc jwt: %w", err)
		}
		auth.HMACSecret = secret
	}
	server := rpc.NewServer(node, index, rpc.ServerConfig{
		Auth:               auth,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		TrustedProxies:     append([]string{}, cfg.RPC.TrustedProxies...),
		ReadTimeout:        time.Duration(cfg.RPC.ReadTimeoutSecs) * time.Second,
		WriteTimeout:       time.Duration(cfg.RPC.WriteTimeoutSecs) * time.Second,
	}, logger.With("component", "rpc"))

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddress, err)
	}
	rpcErrCh := make(chan error, 1)
	go func() {
		rpcErrCh <- server.Serve(listener)
		close(rpcErrCh)
	}()

	logger.Info("offerd running",
		slog.String("program", program.String()),
		slog.String("listen", listener.Addr().String()),
		slog.Uint64("sequence", node.Sequence()))

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-rpcErrCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown", slog.Any("error", err))
	}
	return nil
}

package config

import (
	"fmt"
	"net"
	"strings"

	"offerchain/core/genesis"
	"offerchain/crypto"
)

// MaxRateLimitBurst caps the per-client write burst.
var MaxRateLimitBurst = 1000

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("ListenAddress: %w", err)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	program, err := crypto.DecodeAddress(c.ProgramID)
	if err != nil {
		return fmt.Errorf("ProgramID: %w", err)
	}
	if program.IsZero() {
		return fmt.Errorf("ProgramID must not be the zero address")
	}
	if err := c.Rent.Validate(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitBurst < 0 || c.RPC.RateLimitBurst > MaxRateLimitBurst {
		return fmt.Errorf("rpc: RateLimitBurst must be within [0, %d]", MaxRateLimitBurst)
	}
	if c.RPC.JWTEnable && strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		return fmt.Errorf("rpc: JWTSecretEnv required when JWTEnable is set")
	}
	if c.Indexer.Enabled {
		switch c.Indexer.Driver {
		case IndexerDriverSQLite, IndexerDriverPostgres:
		default:
			return fmt.Errorf("indexer: unsupported driver %q", c.Indexer.Driver)
		}
		if strings.TrimSpace(c.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN must be set")
		}
	}
	if _, err := genesis.Resolve(c.Genesis); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	return nil
}

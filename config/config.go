package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"offerchain/core/genesis"
	"offerchain/core/state"
	"offerchain/crypto"
)

// Environment variables that override file settings.
const (
	EnvEnvironment        = "OFFER_ENV"
	DefaultJWTSecretEnv   = "OFFER_RPC_JWT_SECRET"
	defaultProgramKeyFile = "program.keystore"
)

// Config is the offerd node configuration file.
type Config struct {
	ListenAddress       string          `toml:"ListenAddress"`
	DataDir             string          `toml:"DataDir"`
	ProgramID           string          `toml:"ProgramID"`
	ProgramKeystorePath string          `toml:"ProgramKeystorePath"`
	Environment         string          `toml:"Environment"`
	LogFile             string          `toml:"LogFile"`
	GenesisFile         string          `toml:"GenesisFile"`
	Rent                state.Rent      `toml:"Rent"`
	RPC                 RPC             `toml:"RPC"`
	Indexer             Indexer         `toml:"Indexer"`
	Telemetry           Telemetry       `toml:"Telemetry"`
	Genesis             []genesis.Alloc `toml:"Genesis"`
}

// Load loads the configuration from the given path, creating a default file
// and a program keystore when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		if err := ensureProgramKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	if cfg.GenesisFile != "" {
		spec, err := genesis.LoadSpec(cfg.GenesisFile)
		if err != nil {
			return nil, err
		}
		cfg.Genesis = append(cfg.Genesis, spec.Alloc...)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddress: "127.0.0.1:8899",
		DataDir:       "./offer-data",
		Environment:   "local",
		Rent:          state.DefaultRent(),
		RPC: RPC{
			JWTSecretEnv:       DefaultJWTSecretEnv,
			RateLimitPerSecond: 20,
			RateLimitBurst:     40,
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   15,
		},
		Indexer: Indexer{
			Enabled: true,
			Driver:  IndexerDriverSQLite,
			DSN:     "offer-index.db",
		},
		Telemetry: Telemetry{Endpoint: "localhost:4318", Insecure: true},
	}
}

// applyEnv lets the deployment environment override the file.
func (c *Config) applyEnv() {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		c.Environment = env
	}
}

// JWTSecret resolves the RPC signing secret from the configured environment
// variable.
func (c *Config) JWTSecret() (string, error) {
	name := strings.TrimSpace(c.RPC.JWTSecretEnv)
	if name == "" {
		name = DefaultJWTSecretEnv
	}
	secret := strings.TrimSpace(os.Getenv(name))
	if secret == "" {
		return "", fmt.Errorf("environment variable %s is empty", name)
	}
	return secret, nil
}

// Program returns the decoded program id.
func (c *Config) Program() (crypto.Address, error) {
	return crypto.DecodeAddress(c.ProgramID)
}

func ensureProgramKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.ProgramKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	var key *crypto.PrivateKey
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, err = crypto.GeneratePrivateKey()
		if err != nil {
			return err
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		key, err = crypto.LoadFromKeystore(keystorePath, "")
		if err != nil {
			return fmt.Errorf("load program keystore: %w", err)
		}
	}

	cfg.ProgramKeystorePath = keystorePath
	cfg.ProgramID = key.PubKey().Address().String()
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaults()
	if err := ensureProgramKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), defaultProgramKeyFile)
}

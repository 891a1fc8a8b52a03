package config

// RPC configures the JSON-RPC server. With JWTEnable set,
// offer_sendTransaction requires a bearer token signed with the secret held in
// JWTSecretEnv. RateLimitPerSecond and RateLimitBurst bound writes per client IP.
type RPC struct {
	JWTEnable          bool     `toml:"JWTEnable"`
	JWTSecretEnv       string   `toml:"JWTSecretEnv"`
	JWTIssuer          string   `toml:"JWTIssuer"`
	JWTAudience        string   `toml:"JWTAudience"`
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`
	ReadTimeoutSecs    int      `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs   int      `toml:"WriteTimeoutSecs"`
	TrustedProxies     []string `toml:"TrustedProxies"`
}

// Indexer selects the database backing the event index.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"` // sqlite or postgres
	DSN     string `toml:"DSN"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

const (
	IndexerDriverSQLite   = "sqlite"
	IndexerDriverPostgres = "postgres"
)

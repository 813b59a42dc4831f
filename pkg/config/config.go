package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Rainsonet validator node.
type Config struct {
	// Node identity
	DataDir        string // Base directory for data files and the persistent KV store
	Ed25519KeyPath string // Path to this node's Ed25519 validator key file
	IsValidator    bool   // Whether this node participates in consensus voting
	ValidatorID    string
	LogLevel       string

	// Server configuration
	ListenAddr  string // HTTP API address
	MetricsAddr string
	HealthAddr  string

	// Database configuration (certificate archive)
	DatabaseURL       string
	DatabaseRequired  bool // if true, startup fails if the certificate archive is unreachable
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Ledger/mempool/consensus tunables (§7, §4.3)
	MinFee              uint64 // minimum fee accepted into the mempool
	MaxTxAmount         uint64 // maximum single-transaction amount
	BurnPercent         uint64 // percentage of each fee burned on execution (§4.2)
	MempoolMaxSize      int    // total pending-transaction capacity
	MempoolMaxPerSender int    // per-sender pending-transaction cap
	TxTTLSeconds        int64  // mempool eviction age for unexecuted transactions
	ProposalBatchSize   int    // max transactions drawn from the mempool per proposal

	// Genesis
	GenesisPath string
}

// Load reads configuration from environment variables. Call Validate()
// afterward before starting the node.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:        getEnv("DATA_DIR", "./data"),
		Ed25519KeyPath: getEnv("ED25519_KEY_PATH", ""),
		IsValidator:    getEnvBool("IS_VALIDATOR", false),
		ValidatorID:    getEnv("VALIDATOR_ID", "validator-default"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DatabaseRequired:  getEnvBool("DATABASE_REQUIRED", false),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),

		MinFee:              getEnvUint64("MIN_FEE", 1),
		MaxTxAmount:         getEnvUint64("MAX_TX_AMOUNT", 1_000_000_000),
		BurnPercent:         getEnvUint64("BURN_PERCENT", 10),
		MempoolMaxSize:      getEnvInt("MEMPOOL_MAX_SIZE", 10_000),
		MempoolMaxPerSender: getEnvInt("MEMPOOL_MAX_PER_SENDER", 64),
		TxTTLSeconds:        int64(getEnvInt("TX_TTL_SECONDS", 3600)),
		ProposalBatchSize:   getEnvInt("PROPOSAL_BATCH_SIZE", 100),

		GenesisPath: getEnv("GENESIS_PATH", "./genesis.json"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present and internally
// consistent.
func (c *Config) Validate() error {
	var errs []string

	if c.DataDir == "" {
		errs = append(errs, "DATA_DIR is required but not set")
	}
	if c.IsValidator && c.Ed25519KeyPath == "" {
		errs = append(errs, "ED25519_KEY_PATH is required when IS_VALIDATOR=true")
	}
	if c.BurnPercent > 100 {
		errs = append(errs, "BURN_PERCENT must be between 0 and 100")
	}
	if c.MempoolMaxSize <= 0 {
		errs = append(errs, "MEMPOOL_MAX_SIZE must be positive")
	}
	if c.ProposalBatchSize <= 0 {
		errs = append(errs, "PROPOSAL_BATCH_SIZE must be positive")
	}
	if c.DatabaseRequired && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required when DATABASE_REQUIRED=true")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mselser95/lmsr-amm/pkg/wad"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string `validate:"oneof=debug info warn error"`
	HTTPPort string `validate:"required,numeric"`

	// Engine
	MinSubsidy       *big.Int      `validate:"required"`
	ArbitrationFee   *big.Int      `validate:"required"`
	ProtocolTreasury string        `validate:"omitempty,eth_addr"`
	AllowDeposits    bool          `validate:"-"`
	GracePeriod      time.Duration `validate:"gt=0s"`
	DisputePeriod    time.Duration `validate:"gt=0s"`
	VotingWindow     time.Duration `validate:"gt=0s"`

	// Sequencer
	InboxSize         int           `validate:"min=1"`
	SnapshotCacheTTL  time.Duration `validate:"gte=0s"`
	SnapshotCacheSize int64         `validate:"min=1"`

	// Journal circuit breaker
	JournalFailureThreshold int           `validate:"min=1"`
	JournalCooldown         time.Duration `validate:"gt=0s"`

	// Event stream
	WSPingInterval time.Duration `validate:"gt=0s"`
	WSPongTimeout  time.Duration `validate:"gtfield=WSPingInterval"`
	WSWriteTimeout time.Duration `validate:"gt=0s"`
	WSSendBuffer   int           `validate:"min=1"`

	// Storage
	StorageMode  string `validate:"oneof=memory postgres"`
	PostgresHost string `validate:"required_if=StorageMode postgres"`
	PostgresPort string `validate:"required_if=StorageMode postgres"`
	PostgresUser string
	PostgresPass string
	PostgresDB   string `validate:"required_if=StorageMode postgres"`
	PostgresSSL  string `validate:"oneof=disable require verify-ca verify-full"`
}

// LoadDotEnv loads a .env file into the environment if one exists. Values
// already set in the environment win.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	minSubsidy, err := getWADOrDefault("AMM_MIN_SUBSIDY", "10")
	if err != nil {
		return nil, err
	}
	arbitrationFee, err := getWADOrDefault("AMM_ARBITRATION_FEE", "10")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Engine defaults
		MinSubsidy:       minSubsidy,
		ArbitrationFee:   arbitrationFee,
		ProtocolTreasury: os.Getenv("AMM_PROTOCOL_TREASURY"),
		AllowDeposits:    getBoolOrDefault("AMM_ALLOW_DEPOSITS", false),
		GracePeriod:      getDurationOrDefault("AMM_GRACE_PERIOD", 24*time.Hour),
		DisputePeriod:    getDurationOrDefault("AMM_DISPUTE_PERIOD", 24*time.Hour),
		VotingWindow:     getDurationOrDefault("AMM_VOTING_WINDOW", 72*time.Hour),

		// Sequencer defaults
		InboxSize:         getIntOrDefault("AMM_INBOX_SIZE", 1024),
		SnapshotCacheTTL:  getDurationOrDefault("AMM_SNAPSHOT_CACHE_TTL", 5*time.Second),
		SnapshotCacheSize: int64(getIntOrDefault("AMM_SNAPSHOT_CACHE_SIZE", 10000)),

		// Journal circuit breaker defaults
		JournalFailureThreshold: getIntOrDefault("AMM_JOURNAL_FAILURE_THRESHOLD", 5),
		JournalCooldown:         getDurationOrDefault("AMM_JOURNAL_COOLDOWN", 5*time.Second),

		// Event stream defaults
		WSPingInterval: getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSPongTimeout:  getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSWriteTimeout: getDurationOrDefault("WS_WRITE_TIMEOUT", 5*time.Second),
		WSSendBuffer:   getIntOrDefault("WS_SEND_BUFFER", 256),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "memory"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "lmsr"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "lmsr"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "lmsr_amm"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		return err
	}

	if !wad.IsPositive(c.MinSubsidy) {
		return fmt.Errorf("AMM_MIN_SUBSIDY must be positive, got %s", wad.Format(c.MinSubsidy))
	}
	if c.ArbitrationFee.Sign() < 0 {
		return fmt.Errorf("AMM_ARBITRATION_FEE cannot be negative, got %s", wad.Format(c.ArbitrationFee))
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getWADOrDefault parses a decimal token amount. Unlike the other getters
// it fails on malformed input, since a silently defaulted amount is a
// different market.
func getWADOrDefault(key string, defaultValue string) (*big.Int, error) {
	value := getEnvOrDefault(key, defaultValue)
	v, err := wad.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

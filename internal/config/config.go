// Package config provides configuration management for the carbon tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Chain   ChainConfig
	Wallet  WalletConfig
	Relayer RelayerConfig
	Cache   CacheConfig
	Logging LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ChainConfig holds ledger connection configuration
type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	RequestsPerSec  int
}

// WalletConfig holds the signing identity. An empty private key runs the
// tracker in read-only mode.
type WalletConfig struct {
	PrivateKey string
}

// RelayerConfig holds FHE relayer configuration
type RelayerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// CacheConfig holds the optional redis snapshot cache configuration
type CacheConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", "http://localhost:8545"),
			ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
			ChainID:         int64(getEnvAsInt("CHAIN_ID", 11155111)),
			RequestsPerSec:  getEnvAsInt("CHAIN_REQUESTS_PER_SEC", 10),
		},
		Wallet: WalletConfig{
			PrivateKey: getEnv("WALLET_PRIVATE_KEY", ""),
		},
		Relayer: RelayerConfig{
			BaseURL: getEnv("RELAYER_BASE_URL", ""),
			Timeout: getEnvAsDuration("RELAYER_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			TTL:      getEnvAsDuration("REDIS_SNAPSHOT_TTL", 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for values that would fail later in a
// less obvious place
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("CHAIN_RPC_URL cannot be empty")
	}
	if c.Chain.ContractAddress == "" {
		return fmt.Errorf("CONTRACT_ADDRESS cannot be empty")
	}
	if c.Relayer.BaseURL == "" {
		return fmt.Errorf("RELAYER_BASE_URL cannot be empty")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

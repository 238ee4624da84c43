package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the daemon's process-wide configuration, loaded once at
// startup from the environment: chain RPC URL, store connection string,
// key-escrow master key, and polling interval are all environment inputs.
type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Server (Marketplace Service)
	Port      string
	GinMode   string
	JWTSecret string

	// Chain
	ChainRPCURL string
	NativeMint  string
	QuoteMint   string

	// Key Escrow
	EscrowMasterKeyHex string

	// Redis (optional price cache)
	RedisAddr string

	// External APIs
	CoinGeckoAPIKey     string
	JupiterAPIKey       string
	PlatformFeeAccount  string
	PlatformFeeBps      int

	// Scheduling
	PollInterval time.Duration
}

// Load reads the process environment (and .env, if present) into a
// Config, applying the same defaults-with-override pattern as the rest of
// this repository's ambient configuration.
func Load() (*Config, error) {
	godotenv.Load()

	pollSeconds, err := strconv.Atoi(getEnv("POLL_INTERVAL_SECONDS", "60"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid POLL_INTERVAL_SECONDS: %w", err)
	}

	platformFeeBps, err := strconv.Atoi(getEnv("PLATFORM_FEE_BPS", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid PLATFORM_FEE_BPS: %w", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "tradedaemon"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		Port:      getEnv("PORT", "8080"),
		GinMode:   getEnv("GIN_MODE", "release"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		ChainRPCURL: getEnv("CHAIN_RPC_URL", "https://api.mainnet-beta.solana.com"),
		NativeMint:  getEnv("NATIVE_MINT", "So11111111111111111111111111111111111111112"),
		QuoteMint:   getEnv("QUOTE_MINT", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),

		EscrowMasterKeyHex: getEnv("ESCROW_MASTER_KEY", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		CoinGeckoAPIKey:    getEnv("COINGECKO_API_KEY", ""),
		JupiterAPIKey:      getEnv("JUPITER_API_KEY", ""),
		PlatformFeeAccount: getEnv("PLATFORM_FEE_ACCOUNT", ""),
		PlatformFeeBps:     platformFeeBps,

		PollInterval: time.Duration(pollSeconds) * time.Second,
	}, nil
}

// DBDSN builds the Postgres DSN gorm's postgres driver expects.
func (c *Config) DBDSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser + " dbname=" + c.DBName + " password=" + c.DBPassword + " sslmode=" + c.DBSSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

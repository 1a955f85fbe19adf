package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Port string `envconfig:"PORT" default:"8080"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName     string `envconfig:"DB_NAME" default:"defi_custody"`

	RPCURL         string `envconfig:"RPC_URL" required:"true"`
	ChainID        int64  `envconfig:"CHAIN_ID" default:"11155111"`
	PoolAddress    string `envconfig:"POOL_ADDRESS" required:"true"`
	ReserveAddress string `envconfig:"RESERVE_ADDRESS" required:"true"`

	// Remote signing service. When empty, SignerMnemonic must be set and
	// transactions are signed with a locally derived key (development only).
	SignerURL      string `envconfig:"SIGNER_URL"`
	SignerMnemonic string `envconfig:"SIGNER_MNEMONIC"`

	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	TokenTTLHours int    `envconfig:"TOKEN_TTL_HOURS" default:"24"`

	ReceiptPollSeconds int `envconfig:"RECEIPT_POLL_SECONDS" default:"15"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	if cfg.SignerURL == "" && cfg.SignerMnemonic == "" {
		return nil, fmt.Errorf("either SIGNER_URL or SIGNER_MNEMONIC must be set")
	}
	return &cfg, nil
}

// DSN builds the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

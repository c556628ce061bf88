package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// ─── Configuration ──────────────────────────────────────────────────────────
// Layered: compiled defaults, then ~/.firstdate/config.toml (or the path in
// FIRSTDATE_CONFIG), then FIRSTDATE_* environment variables. Later layers win.

type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Broker   BrokerConfig   `toml:"broker"`
	Payment  PaymentConfig  `toml:"payment"`
	Sweep    SweepConfig    `toml:"sweep"`
	Credits  CreditsConfig  `toml:"credits"`
}

type APIConfig struct {
	Host    string `toml:"host" envconfig:"API_HOST"`
	Port    int    `toml:"port" envconfig:"API_PORT"`
	Metrics bool   `toml:"metrics" envconfig:"API_METRICS"`
}

type DatabaseConfig struct {
	Path string `toml:"path" envconfig:"DB_PATH"`
}

type BrokerConfig struct {
	// URL is the AMQP broker address. Empty means notifications go to the
	// process log instead of the broker.
	URL      string `toml:"url" envconfig:"BROKER_URL"`
	Exchange string `toml:"exchange" envconfig:"BROKER_EXCHANGE"`
}

type PaymentConfig struct {
	// Omise API keys. Both empty means the top-up webhook is not mounted.
	PublicKey string `toml:"public_key" envconfig:"OMISE_PUBLIC_KEY"`
	SecretKey string `toml:"secret_key" envconfig:"OMISE_SECRET_KEY"`

	// CreditUnitPrice is the charge amount, in the currency's smallest
	// unit, that buys one credit.
	CreditUnitPrice int64 `toml:"credit_unit_price" envconfig:"CREDIT_UNIT_PRICE"`
}

type SweepConfig struct {
	// Interval between background sweeps, as a duration string ("15s").
	Interval string `toml:"interval" envconfig:"SWEEP_INTERVAL"`
}

type CreditsConfig struct {
	EscrowCost int64 `toml:"escrow_cost" envconfig:"ESCROW_COST"`
}

func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8320,
			Metrics: true,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(homeDir(), "firstdate.db"),
		},
		Broker: BrokerConfig{
			Exchange: "firstdate.events",
		},
		Payment: PaymentConfig{
			CreditUnitPrice: 100,
		},
		Sweep: SweepConfig{
			Interval: "15s",
		},
		Credits: CreditsConfig{
			EscrowCost: 200,
		},
	}
}

// Load builds the effective configuration: defaults, the TOML file if one
// exists, then FIRSTDATE_* environment overrides.
func Load() (Config, error) {
	cfg := DefaultConfig()

	path := configPath()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	for _, section := range []interface{}{
		&cfg.API, &cfg.Database, &cfg.Broker, &cfg.Payment, &cfg.Sweep, &cfg.Credits,
	} {
		if err := envconfig.Process("FIRSTDATE", section); err != nil {
			return cfg, fmt.Errorf("environment overrides: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	if c.Credits.EscrowCost <= 0 {
		return fmt.Errorf("credits.escrow_cost must be positive")
	}
	if c.Payment.CreditUnitPrice <= 0 {
		return fmt.Errorf("payment.credit_unit_price must be positive")
	}
	if _, err := c.SweepInterval(); err != nil {
		return err
	}
	return nil
}

// SweepInterval parses the configured sweep interval.
func (c Config) SweepInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Sweep.Interval)
	if err != nil {
		return 0, fmt.Errorf("sweep.interval %q: %w", c.Sweep.Interval, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("sweep.interval %q below 1s floor", c.Sweep.Interval)
	}
	return d, nil
}

// Addr returns the host:port the API server binds to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

func configPath() string {
	if env := os.Getenv("FIRSTDATE_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(homeDir(), "config.toml")
}

func homeDir() string {
	if env := os.Getenv("FIRSTDATE_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".firstdate")
}

package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8320 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8320)
	}
	if !cfg.API.Metrics {
		t.Error("API.Metrics should be true by default")
	}
	if cfg.Credits.EscrowCost != 200 {
		t.Errorf("Credits.EscrowCost = %d, want 200", cfg.Credits.EscrowCost)
	}
	if cfg.Sweep.Interval != "15s" {
		t.Errorf("Sweep.Interval = %q, want %q", cfg.Sweep.Interval, "15s")
	}

	// The broker is opt-in: no URL means log-only notifications.
	if cfg.Broker.URL != "" {
		t.Errorf("Broker.URL = %q, want empty", cfg.Broker.URL)
	}
	if cfg.Broker.Exchange != "firstdate.events" {
		t.Errorf("Broker.Exchange = %q, want %q", cfg.Broker.Exchange, "firstdate.events")
	}

	// Payments are opt-in too: no keys by default.
	if cfg.Payment.PublicKey != "" || cfg.Payment.SecretKey != "" {
		t.Error("Payment keys should be empty by default")
	}
	if cfg.Payment.CreditUnitPrice != 100 {
		t.Errorf("Payment.CreditUnitPrice = %d, want 100", cfg.Payment.CreditUnitPrice)
	}

	if err := cfg.validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestSweepInterval(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"15s", 15 * time.Second, false},
		{"2m", 2 * time.Minute, false},
		{"500ms", 0, true}, // below the 1s floor
		{"fast", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sweep.Interval = tt.input
			got, err := cfg.SweepInterval()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SweepInterval(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("SweepInterval(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("SweepInterval(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.API.Port = 0 }},
		{"port too large", func(c *Config) { c.API.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"zero escrow", func(c *Config) { c.Credits.EscrowCost = 0 }},
		{"zero unit price", func(c *Config) { c.Payment.CreditUnitPrice = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate() = nil, want error")
			}
		})
	}
}

func TestLoadLayersFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("FIRSTDATE_HOME", home)
	t.Setenv("FIRSTDATE_CONFIG", filepath.Join(home, "config.toml"))

	tomlBody := `
[api]
port = 9000

[credits]
escrow_cost = 150
`
	if err := os.WriteFile(filepath.Join(home, "config.toml"), []byte(tomlBody), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	// Environment beats the file.
	t.Setenv("FIRSTDATE_API_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want env override 9100", cfg.API.Port)
	}
	if cfg.Credits.EscrowCost != 150 {
		t.Errorf("Credits.EscrowCost = %d, want file value 150", cfg.Credits.EscrowCost)
	}
	// Untouched keys keep their defaults.
	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want default", cfg.API.Host)
	}
}

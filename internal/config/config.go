// Package config handles Valet configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration.
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Owner
	Owner OwnerConfig `json:"owner"`

	// Gmail accounts, in configuration order
	Accounts []AccountConfig `json:"accounts"`

	// Reminders
	Reminders ReminderConfig `json:"reminders"`

	// Inbox polling
	Poll PollConfig `json:"poll"`

	// Daily digest cron expression; empty disables the digest
	DigestCron string `json:"digest_cron"`

	// Senders whose inbound webhook messages are accepted
	AllowedSenders []string `json:"allowed_senders"`

	// Claude API
	LLM LLMConfig `json:"llm"`

	// Google OAuth
	Google GoogleConfig `json:"google"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// OwnerConfig identifies where the owner is reached.
type OwnerConfig struct {
	// Contact is the notification target, usually the SMS gateway address.
	Contact string `json:"contact"`
	// GatewayAddress is the email-to-SMS gateway address, used for loop
	// prevention. Usually the same as Contact.
	GatewayAddress string `json:"gateway_address"`
	// NotifyAccount is the account id notifications are sent from.
	NotifyAccount string `json:"notify_account"`
}

// AccountConfig is one Gmail account.
type AccountConfig struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	TokenFile string `json:"token_file"`
}

// ReminderConfig for the reminder engine.
type ReminderConfig struct {
	MergeWindowMinutes   int `json:"merge_window_minutes"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds"`
}

// MergeWindow returns the proximity window as a duration.
func (r ReminderConfig) MergeWindow() time.Duration {
	if r.MergeWindowMinutes <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(r.MergeWindowMinutes) * time.Minute
}

// SweepInterval returns the sweep cadence as a duration.
func (r ReminderConfig) SweepInterval() time.Duration {
	if r.SweepIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.SweepIntervalSeconds) * time.Second
}

// PollConfig for the inbox poll.
type PollConfig struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"interval_seconds"`
}

// Interval returns the poll cadence as a duration.
func (p PollConfig) Interval() time.Duration {
	if p.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// LLMConfig for the Claude API.
type LLMConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

// GoogleConfig for OAuth credentials.
type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Default returns default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".valet"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Reminders: ReminderConfig{
			MergeWindowMinutes:   120,
			SweepIntervalSeconds: 30,
		},
		Poll: PollConfig{
			Enabled:         false,
			IntervalSeconds: 300,
		},
		LLM: LLMConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
			Model:  "claude-sonnet-4-20250514",
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
	}
}

// Load loads config from file, falling back to defaults. Secrets from the
// environment override the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.Google.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.Google.ClientSecret = secret
	}

	return cfg, nil
}

// Validate checks invariants a running daemon needs.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for _, a := range c.Accounts {
		if a.ID == "" {
			return fmt.Errorf("account with empty id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	if c.Owner.NotifyAccount != "" && !seen[c.Owner.NotifyAccount] {
		return fmt.Errorf("notify_account %q is not a configured account", c.Owner.NotifyAccount)
	}
	return nil
}

// Save saves config to file. Secrets never land on disk.
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	safeCfg := *c
	safeCfg.LLM.APIKey = ""
	safeCfg.Google.ClientSecret = ""

	data, err := json.MarshalIndent(safeCfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for launchguard.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Endpoints  EndpointsConfig  `yaml:"endpoints"`
	Origins    OriginsConfig    `yaml:"origins"`
	Entry      EntryConfig      `yaml:"entry"`
	Heat       HeatConfig       `yaml:"heat"`
	MintVerify MintVerifyConfig `yaml:"mint_verify"`
	TxLookup   TxLookupConfig   `yaml:"tx_lookup"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Quotes     QuotesConfig     `yaml:"quotes"`
	Store      StoreConfig      `yaml:"store"`
}

type GeneralConfig struct {
	InstanceID string `yaml:"instance_id"`
	DryRun     bool   `yaml:"dry_run"`
	LogLevel   string `yaml:"log_level"`
	HTTPPort   int    `yaml:"http_port"`
}

// EndpointsConfig carries the dual primary/backup WS+HTTP endpoints the
// watcher fails over between.
type EndpointsConfig struct {
	WSPrimary    string `yaml:"ws_primary"`
	WSBackup     string `yaml:"ws_backup"`
	HTTPPrimary  string `yaml:"http_primary"`
	HTTPBackup   string `yaml:"http_backup"`
}

// OriginsConfig holds the five per-origin program-ID lists, in the fixed
// priority order pumpfun, letsbonk, moonshot, raydium, orca.
type OriginsConfig struct {
	Pumpfun  []string `yaml:"pumpfun"`
	Letsbonk []string `yaml:"letsbonk"`
	Moonshot []string `yaml:"moonshot"`
	Raydium  []string `yaml:"raydium"`
	Orca     []string `yaml:"orca"`
}

type EntryConfig struct {
	MinScore          int `yaml:"min_score"`
	ApexScore         int `yaml:"apex_score"`
	CooldownSec       int `yaml:"cooldown_sec"`
	ReevalCooldownSec int `yaml:"reeval_cooldown_sec"`
	AcceptCooldownSec int `yaml:"accept_cooldown_sec"`
	MinObsBuyers      int `yaml:"min_obs_buyers"`
	MinObsUnique      int `yaml:"min_obs_unique"`
	HoldTTLSec        int `yaml:"hold_ttl_sec"`
	HoldMaxReevals    int `yaml:"hold_max_reevals"`
}

type HeatConfig struct {
	Enabled          bool      `yaml:"enabled"`
	WindowMin        int       `yaml:"window_min"`
	MinAcceptsPerHr  float64   `yaml:"min_accepts_per_hr"`
	MaxAcceptsPerHr  float64   `yaml:"max_accepts_per_hr"`
	LoosenDelta      HeatDelta `yaml:"loosen_delta"`
	TightenDelta     HeatDelta `yaml:"tighten_delta"`
	Floor            HeatDelta `yaml:"floor"`
	Ceil             HeatDelta `yaml:"ceil"`
}

// HeatDelta bundles the score/buyers pair every heat knob is expressed as.
type HeatDelta struct {
	Score  int `yaml:"score"`
	Buyers int `yaml:"buyers"`
}

type MintVerifyConfig struct {
	Mode   string `yaml:"mode"` // eager|deferred|off
	TTLSec int    `yaml:"ttl_sec"`
}

type TxLookupConfig struct {
	Mode      string `yaml:"mode"` // off|pumpfun_only|all
	QPS       int    `yaml:"qps"`
	MaxPerMin int    `yaml:"max_per_min"`
}

type AlertsConfig struct {
	AcceptedOnly    bool    `yaml:"accepted_only"`
	MinScore        int     `yaml:"min_score"`
	RateLimitSec    int     `yaml:"rate_limit_sec"`
	SummaryEverySec int     `yaml:"summary_every_sec"`
	WebhookURL      string  `yaml:"webhook_url"`
}

type QuotesConfig struct {
	Enabled    bool      `yaml:"enabled"`
	IntervalMs int       `yaml:"interval_ms"`
	MaxMinutes int       `yaml:"max_minutes"`
	SizesSOL   []float64 `yaml:"sizes_sol"`
}

type StoreConfig struct {
	Path           string `yaml:"path"`
	BusyTimeoutMs  int    `yaml:"busy_timeout_ms"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "launchguard-1"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.HTTPPort == 0 {
		cfg.General.HTTPPort = 8080
	}

	if cfg.Entry.MinScore == 0 {
		cfg.Entry.MinScore = 60
	}
	if cfg.Entry.ApexScore == 0 {
		cfg.Entry.ApexScore = 80
	}
	if cfg.Entry.ReevalCooldownSec == 0 {
		cfg.Entry.ReevalCooldownSec = 5
	}
	if cfg.Entry.AcceptCooldownSec == 0 {
		cfg.Entry.AcceptCooldownSec = 60
	}
	if cfg.Entry.MinObsBuyers == 0 {
		cfg.Entry.MinObsBuyers = 4
	}
	if cfg.Entry.MinObsUnique == 0 {
		cfg.Entry.MinObsUnique = 3
	}
	if cfg.Entry.HoldTTLSec == 0 {
		cfg.Entry.HoldTTLSec = 180
	}

	if cfg.Heat.WindowMin == 0 {
		cfg.Heat.WindowMin = 15
	}
	if cfg.Heat.MinAcceptsPerHr == 0 {
		cfg.Heat.MinAcceptsPerHr = 2
	}
	if cfg.Heat.MaxAcceptsPerHr == 0 {
		cfg.Heat.MaxAcceptsPerHr = 40
	}

	if cfg.MintVerify.Mode == "" {
		cfg.MintVerify.Mode = "deferred"
	}
	if cfg.MintVerify.TTLSec == 0 {
		cfg.MintVerify.TTLSec = 3600
	}

	if cfg.TxLookup.Mode == "" {
		cfg.TxLookup.Mode = "pumpfun_only"
	}
	if cfg.TxLookup.QPS == 0 {
		cfg.TxLookup.QPS = 5
	}
	if cfg.TxLookup.MaxPerMin == 0 {
		cfg.TxLookup.MaxPerMin = 120
	}

	if cfg.Alerts.RateLimitSec == 0 {
		cfg.Alerts.RateLimitSec = 10
	}
	if cfg.Alerts.SummaryEverySec == 0 {
		cfg.Alerts.SummaryEverySec = 300
	}

	if cfg.Quotes.IntervalMs == 0 {
		cfg.Quotes.IntervalMs = 2000
	}
	if cfg.Quotes.MaxMinutes == 0 {
		cfg.Quotes.MaxMinutes = 5
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = "launchguard.db"
	}
	if cfg.Store.BusyTimeoutMs == 0 {
		cfg.Store.BusyTimeoutMs = 3000
	}
}

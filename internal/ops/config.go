// Package ops loads and resolves the daemon's JSON configuration.
package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"stockquest/internal/scheduler"
	"stockquest/internal/valuation"
	"stockquest/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Simulation SimulationConfig `json:"simulation"`
	Valuation  ValuationConfig  `json:"valuation"`
	Database   DatabaseConfig   `json:"database"`
	Admin      AdminConfig      `json:"admin"`
	Profiling  ProfilingConfig  `json:"profiling"`
}

// SimulationConfig tunes the scheduler loops. Durations are strings in
// time.ParseDuration syntax.
type SimulationConfig struct {
	TickInterval       string `json:"tickInterval"`
	MaxSessionsPerTick int    `json:"maxSessionsPerTick"`
	ReaperInterval     string `json:"reaperInterval"`
	StaleAfter         string `json:"staleAfter"`
	StatsInterval      string `json:"statsInterval"`
	RecalcQueueSize    int    `json:"recalcQueueSize"`
}

// ValuationConfig tunes price resolution.
type ValuationConfig struct {
	LookbackDays  int               `json:"lookbackDays"`
	DefaultPrices map[string]string `json:"defaultPrices"`
}

// DatabaseConfig describes the PostgreSQL connection.
type DatabaseConfig struct {
	Host         string            `json:"host"`
	Port         int               `json:"port"`
	User         string            `json:"user"`
	Password     string            `json:"password"`
	Database     string            `json:"database"`
	SSLMode      string            `json:"sslMode"`
	Params       map[string]string `json:"params"`
	ConnString   string            `json:"connString"`
	MaxOpenConns int               `json:"maxOpenConns"`
	MaxIdleConns int               `json:"maxIdleConns"`
}

// AdminConfig describes the admin HTTP listener.
type AdminConfig struct {
	Addr string `json:"addr"`
}

// ProfilingConfig enables continuous profiling when a server address is set.
type ProfilingConfig struct {
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Scheduler       scheduler.Config
	Valuation       valuation.Config
	Database        conn.Option
	AdminAddr       string
	Profiling       ProfilingConfig
	RecalcQueueSize int
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// LoadValuation reads a JSON config file and only resolves the valuation
// section. Used by config hot reload.
func LoadValuation(path string) (valuation.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return valuation.Config{}, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return valuation.Config{}, err
	}
	return resolveValuation(cfg.Valuation)
}

// Resolve validates and converts the raw file layout.
func Resolve(cfg FileConfig) (Loaded, error) {
	schedCfg, err := resolveSimulation(cfg.Simulation)
	if err != nil {
		return Loaded{}, err
	}
	valCfg, err := resolveValuation(cfg.Valuation)
	if err != nil {
		return Loaded{}, err
	}

	addr := cfg.Admin.Addr
	if addr == "" {
		addr = ":8090"
	}

	queueSize := cfg.Simulation.RecalcQueueSize
	if queueSize <= 0 {
		queueSize = 256
	}

	return Loaded{
		Scheduler: schedCfg,
		Valuation: valCfg,
		Database: conn.Option{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Database,
			SSLMode:      cfg.Database.SSLMode,
			Params:       cfg.Database.Params,
			ConnString:   cfg.Database.ConnString,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		},
		AdminAddr:       addr,
		Profiling:       cfg.Profiling,
		RecalcQueueSize: queueSize,
	}, nil
}

func resolveSimulation(cfg SimulationConfig) (scheduler.Config, error) {
	out := scheduler.Config{MaxSessionsPerTick: cfg.MaxSessionsPerTick}

	fields := []struct {
		name  string
		raw   string
		value *time.Duration
	}{
		{"tickInterval", cfg.TickInterval, &out.TickInterval},
		{"reaperInterval", cfg.ReaperInterval, &out.ReaperInterval},
		{"staleAfter", cfg.StaleAfter, &out.StaleAfter},
		{"statsInterval", cfg.StatsInterval, &out.StatsInterval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return scheduler.Config{}, fmt.Errorf("invalid simulation.%s %q: %w", f.name, f.raw, err)
		}
		if d <= 0 {
			return scheduler.Config{}, fmt.Errorf("simulation.%s must be > 0", f.name)
		}
		*f.value = d
	}

	if cfg.MaxSessionsPerTick < 0 {
		return scheduler.Config{}, fmt.Errorf("simulation.maxSessionsPerTick must be >= 0")
	}
	return out, nil
}

func resolveValuation(cfg ValuationConfig) (valuation.Config, error) {
	if cfg.LookbackDays < 0 {
		return valuation.Config{}, fmt.Errorf("valuation.lookbackDays must be >= 0")
	}

	defaults := valuation.DefaultPrices{}
	for key, raw := range cfg.DefaultPrices {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return valuation.Config{}, fmt.Errorf("invalid default price for %s: %w", key, err)
		}
		if price.IsNegative() {
			return valuation.Config{}, fmt.Errorf("default price for %s must be >= 0", key)
		}
		defaults[key] = price
	}

	return valuation.Config{
		LookbackDays: cfg.LookbackDays,
		Defaults:     defaults,
	}, nil
}

package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/vk/cmipconv/internal/config"
)

// LedgerDisabled as the ledger path turns the run ledger off.
const LedgerDisabled = "-"

// DefaultNumProc is the default size of the worker pool.
const DefaultNumProc = 6

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Variables      []string
	InputPath      string
	OutputPath     string
	TablesPath     string
	UserMetadata   string
	CustomMetadata string
	MapPath        string
	LogDir         string
	HandlersPath   string // extra manifests layered over the built-in ones
	Realm          string
	Frequency      string

	NumProc int
	Serial  bool
	Simple  bool
	Timeout time.Duration

	PrecheckPath string
	Info         bool
	InfoOut      string
	LedgerPath   string

	LogFormat string
	LogLevel  string

	// Worker process command. Executable defaults to the running binary.
	Executable string
	WorkerArgs []string
	WorkerEnv  []string
}

// NewConfig validates cfg and fills in derived defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Variables) == 0 {
		return nil, errors.New("at least one variable is required (use \"all\" for every handler)")
	}
	if !cfg.Info {
		if cfg.InputPath == "" {
			return nil, errors.New("input path is required")
		}
		if cfg.OutputPath == "" {
			return nil, errors.New("output path is required")
		}
		if !cfg.Simple {
			if cfg.TablesPath == "" {
				return nil, errors.New("tables path is required unless running in simple mode")
			}
			if cfg.UserMetadata == "" {
				return nil, errors.New("user metadata is required unless running in simple mode")
			}
		}
	}
	if cfg.NumProc == 0 {
		cfg.NumProc = DefaultNumProc
	}
	if cfg.NumProc < 0 {
		return nil, fmt.Errorf("num-proc must be positive, got %d", cfg.NumProc)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Frequency == "" {
		cfg.Frequency = config.DefaultFrequency
	}
	if cfg.OutputPath != "" {
		if cfg.LogDir == "" {
			cfg.LogDir = filepath.Join(cfg.OutputPath, "cmor_logs")
		}
		if cfg.LedgerPath == "" {
			cfg.LedgerPath = filepath.Join(cfg.OutputPath, "ledger.db")
		}
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	return &cfg, nil
}

// mode is the write mode jobs run with.
func (c *Config) mode() string {
	if c.Simple {
		return "simple"
	}
	return "standard"
}

// strategy names the scheduling strategy.
func (c *Config) strategy() string {
	if c.Serial {
		return "serial"
	}
	return "parallel"
}

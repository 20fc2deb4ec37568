// Package config loads and validates the sortengine configuration.
// Configuration is JSON with environment overrides for deployment
// secrets; SafeConfig provides thread-safe access with validated atomic
// updates for the reload hook.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zakyip/sortengine/correlation"
	"github.com/zakyip/sortengine/errors"
	"github.com/zakyip/sortengine/parcel"
	"github.com/zakyip/sortengine/rule"
)

// NATSConfig holds connection settings for the messaging layer
type NATSConfig struct {
	URL           string `json:"url"`
	MaxReconnects int    `json:"max_reconnects"`
	ReconnectWait string `json:"reconnect_wait"`
}

// CorrelationConfig holds the matching-window timing, immutable at runtime
type CorrelationConfig struct {
	MinWaitSeconds      float64 `json:"min_wait_seconds"`
	MaxWaitSeconds      float64 `json:"max_wait_seconds"`
	ScanIntervalSeconds float64 `json:"scan_interval_seconds"`
	ExceptionChuteID    string  `json:"exception_chute_id"`
}

// Window converts the timing config into a correlation window.
func (c CorrelationConfig) Window() correlation.Window {
	return correlation.Window{
		MinWait:          time.Duration(c.MinWaitSeconds * float64(time.Second)),
		MaxWait:          time.Duration(c.MaxWaitSeconds * float64(time.Second)),
		ExceptionChuteID: c.ExceptionChuteID,
	}
}

// ScanInterval returns the timeout-scan period.
func (c CorrelationConfig) ScanInterval() time.Duration {
	if c.ScanIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.ScanIntervalSeconds * float64(time.Second))
}

// SortingConfig selects the decision strategy
type SortingConfig struct {
	Mode            parcel.SortingMode `json:"mode"`
	AutoChutes      []string           `json:"auto_chutes,omitempty"`
	DecisionWorkers int                `json:"decision_workers,omitempty"`
}

// RulesConfig locates sorting-rule definitions. File rules load at
// startup; the KV bucket, when set, drives wholesale hot reloads.
type RulesConfig struct {
	File     string             `json:"file,omitempty"`
	Inline   []rule.SortingRule `json:"inline,omitempty"`
	KVBucket string             `json:"kv_bucket,omitempty"`
	KVKey    string             `json:"kv_key,omitempty"`
}

// SubjectsConfig names the NATS subjects of the wire contract
type SubjectsConfig struct {
	ParcelDetected   string `json:"parcel_detected"`
	DwsReading       string `json:"dws_reading"`
	SortingCompleted string `json:"sorting_completed"`
	ChuteAssignment  string `json:"chute_assignment"`
	ChuteRequest     string `json:"chute_request"`
	ParcelLost       string `json:"parcel_lost"`
}

// MetricsConfig controls the Prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// FeedConfig controls the live decision websocket feed
type FeedConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

// Config is the complete application configuration
type Config struct {
	NATS        NATSConfig        `json:"nats"`
	Correlation CorrelationConfig `json:"correlation"`
	Sorting     SortingConfig     `json:"sorting"`
	Rules       RulesConfig       `json:"rules"`
	Subjects    SubjectsConfig    `json:"subjects"`
	Metrics     MetricsConfig     `json:"metrics"`
	Feed        FeedConfig        `json:"feed"`
}

// Default returns a runnable local configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: -1,
			ReconnectWait: "2s",
		},
		Correlation: CorrelationConfig{
			MinWaitSeconds:      1,
			MaxWaitSeconds:      30,
			ScanIntervalSeconds: 1,
			ExceptionChuteID:    "EXC",
		},
		Sorting: SortingConfig{Mode: parcel.ModeRuleBased},
		Subjects: SubjectsConfig{
			ParcelDetected:   "sortation.parcel.detected",
			DwsReading:       "sortation.dws.reading",
			SortingCompleted: "sortation.sorting.completed",
			ChuteAssignment:  "sortation.chute.assignment",
			ChuteRequest:     "sortation.chute.request",
			ParcelLost:       "sortation.parcel.lost",
		},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
	}
}

// Load reads a JSON config file over the defaults and applies
// environment overrides. An empty path returns defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "read config file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "parse config file")
		}
	}

	if url := os.Getenv("SORTENGINE_NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}
	if mode := os.Getenv("SORTENGINE_SORTING_MODE"); mode != "" {
		cfg.Sorting.Mode = parcel.SortingMode(mode)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats.url", errors.ErrMissingConfig),
			"config.Config", "Validate", "check NATS")
	}
	if _, err := time.ParseDuration(c.NATS.ReconnectWait); c.NATS.ReconnectWait != "" && err != nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: nats.reconnect_wait %q", errors.ErrInvalidConfig, c.NATS.ReconnectWait),
			"config.Config", "Validate", "check NATS")
	}

	if err := c.Correlation.Window().Validate(); err != nil {
		return err
	}

	if !c.Sorting.Mode.Valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: sorting.mode %q", errors.ErrInvalidConfig, c.Sorting.Mode),
			"config.Config", "Validate", "check sorting mode")
	}
	if c.Sorting.Mode == parcel.ModeAutoResponse && len(c.Sorting.AutoChutes) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: sorting.auto_chutes required in AutoResponse mode", errors.ErrMissingConfig),
			"config.Config", "Validate", "check chute set")
	}
	if c.Sorting.Mode == parcel.ModeApiDriven && c.Subjects.ChuteRequest == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: subjects.chute_request required in ApiDriven mode", errors.ErrMissingConfig),
			"config.Config", "Validate", "check resolver subject")
	}

	for _, subject := range []string{
		c.Subjects.ParcelDetected,
		c.Subjects.DwsReading,
		c.Subjects.SortingCompleted,
		c.Subjects.ChuteAssignment,
	} {
		if subject == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: all subjects must be set", errors.ErrMissingConfig),
				"config.Config", "Validate", "check subjects")
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return Default()
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: config cannot be nil", errors.ErrInvalidConfig),
			"config.SafeConfig", "Update", "validate config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

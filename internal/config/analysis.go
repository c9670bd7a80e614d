package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// Built-in fallbacks used by the Get* methods when a field is omitted.
const (
	DefaultSampleRate         = 30.0
	DefaultRequiredSessions   = 7
	DefaultDeviationThreshold = 2.5
	DefaultOnlineUpdate       = true
	DefaultSessionTimeout     = 30 * time.Second
	DefaultBaselineCacheSize  = 128
)

// AnalysisConfig holds the tunable parameters of the motion analysis
// pipeline. Every field is optional; omitted fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type AnalysisConfig struct {
	// Capture
	SampleRate *float64 `json:"sample_rate,omitempty"` // Hz

	// Baseline
	RequiredSessions   *int     `json:"required_sessions,omitempty"`
	DeviationThreshold *float64 `json:"deviation_threshold,omitempty"`
	OnlineUpdate       *bool    `json:"online_update,omitempty"`

	// Processing
	SessionTimeout    *string `json:"session_timeout,omitempty"` // duration string like "30s"
	BaselineCacheSize *int    `json:"baseline_cache_size,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field populated from the
// built-in defaults. It matches config/analysis.defaults.json.
func DefaultAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{
		SampleRate:         ptrFloat64(DefaultSampleRate),
		RequiredSessions:   ptrInt(DefaultRequiredSessions),
		DeviationThreshold: ptrFloat64(DefaultDeviationThreshold),
		OnlineUpdate:       ptrBool(DefaultOnlineUpdate),
		SessionTimeout:     ptrString(DefaultSessionTimeout.String()),
		BaselineCacheSize:  ptrInt(DefaultBaselineCacheSize),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.SampleRate != nil && *c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %f", *c.SampleRate)
	}

	if c.RequiredSessions != nil && *c.RequiredSessions < 1 {
		return fmt.Errorf("required_sessions must be at least 1, got %d", *c.RequiredSessions)
	}

	if c.DeviationThreshold != nil && *c.DeviationThreshold <= 0 {
		return fmt.Errorf("deviation_threshold must be positive, got %f", *c.DeviationThreshold)
	}

	if c.SessionTimeout != nil && *c.SessionTimeout != "" {
		d, err := time.ParseDuration(*c.SessionTimeout)
		if err != nil {
			return fmt.Errorf("invalid session_timeout '%s': %w", *c.SessionTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("session_timeout must be non-negative, got %s", d)
		}
	}

	if c.BaselineCacheSize != nil && *c.BaselineCacheSize < 1 {
		return fmt.Errorf("baseline_cache_size must be at least 1, got %d", *c.BaselineCacheSize)
	}

	return nil
}

// GetSampleRate returns the sample_rate value or the default.
func (c *AnalysisConfig) GetSampleRate() float64 {
	if c.SampleRate == nil {
		return DefaultSampleRate
	}
	return *c.SampleRate
}

// GetRequiredSessions returns the required_sessions value or the default.
func (c *AnalysisConfig) GetRequiredSessions() int {
	if c.RequiredSessions == nil {
		return DefaultRequiredSessions
	}
	return *c.RequiredSessions
}

// GetDeviationThreshold returns the deviation_threshold value or the default.
func (c *AnalysisConfig) GetDeviationThreshold() float64 {
	if c.DeviationThreshold == nil {
		return DefaultDeviationThreshold
	}
	return *c.DeviationThreshold
}

// GetOnlineUpdate returns the online_update value or the default.
func (c *AnalysisConfig) GetOnlineUpdate() bool {
	if c.OnlineUpdate == nil {
		return DefaultOnlineUpdate
	}
	return *c.OnlineUpdate
}

// GetSessionTimeout parses and returns the SessionTimeout. Zero disables the
// per-session deadline.
func (c *AnalysisConfig) GetSessionTimeout() time.Duration {
	if c.SessionTimeout == nil || *c.SessionTimeout == "" {
		return DefaultSessionTimeout
	}
	d, err := time.ParseDuration(*c.SessionTimeout)
	if err != nil {
		return DefaultSessionTimeout // default on parse error
	}
	return d
}

// GetBaselineCacheSize returns the baseline_cache_size value or the default.
func (c *AnalysisConfig) GetBaselineCacheSize() int {
	if c.BaselineCacheSize == nil {
		return DefaultBaselineCacheSize
	}
	return *c.BaselineCacheSize
}

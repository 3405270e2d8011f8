// Package config handles configuration loading, validation, and management for iocscan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"

	"iocscan/internal/ioc"
	"iocscan/internal/logging"
	"iocscan/internal/textsrc"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete tool configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Analysis controls how the statistic is computed.
	Analysis AnalysisConfig `toml:"analysis" json:"analysis" yaml:"analysis"`

	// Input controls how the text file is read.
	Input InputConfig `toml:"input" json:"input" yaml:"input"`

	// Output controls result reporting.
	Output OutputConfig `toml:"output" json:"output" yaml:"output"`

	// History controls the run history database.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Watch controls watch mode.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// AnalysisConfig holds estimator settings.
type AnalysisConfig struct {
	// Mode is the denominator mode: "shared", "exact" or "legacy".
	Mode string `toml:"mode" json:"mode" yaml:"mode"`

	// Unit is the character unit: "byte" or "rune".
	Unit string `toml:"unit" json:"unit" yaml:"unit"`

	// LettersOnly drops non-letters and folds case before counting.
	LettersOnly bool `toml:"letters_only" json:"letters_only" yaml:"letters_only"`

	// Workers is the number of goroutines used per analysis.
	// 0 selects the number of CPUs.
	Workers int `toml:"workers" json:"workers" yaml:"workers"`

	// Precision is the number of decimal digits in text reports.
	Precision int `toml:"precision" json:"precision" yaml:"precision"`
}

// InputConfig holds text source settings.
type InputConfig struct {
	// MaxFileSize is the largest accepted input in bytes.
	MaxFileSize int64 `toml:"max_file_size" json:"max_file_size" yaml:"max_file_size"`

	// Lock takes a shared advisory lock while reading.
	Lock bool `toml:"lock" json:"lock" yaml:"lock"`
}

// OutputConfig holds reporting settings.
type OutputConfig struct {
	// Format is one of "text", "json", "yaml", "markdown".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Verbose includes the per-offset table.
	Verbose bool `toml:"verbose" json:"verbose" yaml:"verbose"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	// Enabled records every successful run.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database path.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays prunes older runs on open. 0 keeps everything.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	// DebounceMs is how long the input must be stable before recomputing.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", "both" or "discard".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Analysis: AnalysisConfig{
			Mode:      ioc.ModeShared.String(),
			Unit:      ioc.UnitByte.String(),
			Workers:   1,
			Precision: 5,
		},
		Input: InputConfig{
			MaxFileSize: textsrc.DefaultMaxSize,
			Lock:        true,
		},
		Output: OutputConfig{
			Format: "text",
		},
		History: HistoryConfig{
			Enabled:       false,
			Path:          filepath.Join(dir, "history.db"),
			RetentionDays: 0,
		},
		Watch: WatchConfig{
			DebounceMs: 500,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(dir, "iocscan.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with IOCSCAN_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("IOCSCAN_MODE"); v != "" {
		c.Analysis.Mode = v
	}
	if v := os.Getenv("IOCSCAN_UNIT"); v != "" {
		c.Analysis.Unit = v
	}
	if v := os.Getenv("IOCSCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Analysis.Workers = n
		}
	}
	if v := os.Getenv("IOCSCAN_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("IOCSCAN_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("IOCSCAN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IOCSCAN_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// EstimatorOptions translates the analysis section into estimator options.
func (c *Config) EstimatorOptions() ([]ioc.Option, error) {
	mode, err := ioc.ParseMode(c.Analysis.Mode)
	if err != nil {
		return nil, err
	}
	unit, err := ioc.ParseUnit(c.Analysis.Unit)
	if err != nil {
		return nil, err
	}

	workers := c.Analysis.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	return []ioc.Option{
		ioc.WithMode(mode),
		ioc.WithUnit(unit),
		ioc.WithWorkers(workers),
		ioc.WithLettersOnly(c.Analysis.LettersOnly),
	}, nil
}

// TextSourceOptions returns the options for reading the input file.
func (c *Config) TextSourceOptions() textsrc.Options {
	return textsrc.Options{
		MaxSize: c.Input.MaxFileSize,
		Lock:    c.Input.Lock,
	}
}

// LoggerConfig translates the logging section into a logging.Config.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}

	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  "iocscan",
	}, nil
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	return f.Close()
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iocscan/internal/ioc"
	"iocscan/internal/logging"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Analysis.Mode != "shared" {
		t.Errorf("expected shared mode, got %s", cfg.Analysis.Mode)
	}
	if cfg.Analysis.Precision != 5 {
		t.Errorf("expected precision 5, got %d", cfg.Analysis.Precision)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("expected text output, got %s", cfg.Output.Format)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled by default")
	}
	if !strings.HasSuffix(cfg.History.Path, "history.db") {
		t.Errorf("unexpected history path: %s", cfg.History.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("IOCSCAN_DATA_DIR", "/srv/iocscan")
	if dir := DataDir(); dir != "/srv/iocscan" {
		t.Errorf("expected override, got %s", dir)
	}
	if cfg := DefaultConfig(); cfg.History.Path != filepath.Join("/srv/iocscan", "history.db") {
		t.Errorf("history path should follow data dir, got %s", cfg.History.Path)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Analysis.Workers != 1 {
		t.Errorf("expected default workers, got %d", cfg.Analysis.Workers)
	}
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `version = 1
[analysis]
mode = "exact"
unit = "rune"
letters_only = true
workers = 4
`,
		},
		{
			name:    "json",
			file:    "config.json",
			content: `{"version": 1, "analysis": {"mode": "exact", "unit": "rune", "letters_only": true, "workers": 4}}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `version: 1
analysis:
  mode: exact
  unit: rune
  letters_only: true
  workers: 4
`,
		},
		{
			name:    "upper-case extension",
			file:    "CONFIG.JSON",
			content: `{"analysis": {"mode": "exact", "unit": "rune", "letters_only": true, "workers": 4}}`,
		},
		{
			name: "auto-detected dotfile",
			file: ".iocscanrc",
			content: `analysis:
  mode: exact
  unit: rune
  letters_only: true
  workers: 4
`,
		},
		{
			name: "auto-detected toml",
			file: "iocscanrc",
			content: `[analysis]
mode = "exact"
unit = "rune"
letters_only = true
workers = 4
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("write config: %v", err)
			}

			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.Analysis.Mode != "exact" || cfg.Analysis.Unit != "rune" {
				t.Errorf("unexpected analysis section: %+v", cfg.Analysis)
			}
			if !cfg.Analysis.LettersOnly || cfg.Analysis.Workers != 4 {
				t.Errorf("unexpected analysis section: %+v", cfg.Analysis)
			}
			// Untouched sections keep their defaults.
			if cfg.Analysis.Precision != 5 || cfg.Output.Format != "text" {
				t.Errorf("defaults lost: precision=%d format=%s", cfg.Analysis.Precision, cfg.Output.Format)
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte("[analysis]\nmode = \"exact\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected unsupported format error")
	}
	for _, ext := range SupportedConfigFormats() {
		if !strings.Contains(err.Error(), ext) {
			t.Errorf("error %q does not list %s", err, ext)
		}
	}
}

func TestLoadInvalidSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[analysis\nmode = "), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected decode error")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `[analysis]
mode = "median"
workers = -2

[output]
format = "html"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{"analysis.mode", "analysis.workers", "output.format"} {
		if !fields[want] {
			t.Errorf("expected error for %s, got %v", want, verrs)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 0 }, "version"},
		{"bad unit", func(c *Config) { c.Analysis.Unit = "word" }, "analysis.unit"},
		{"precision too high", func(c *Config) { c.Analysis.Precision = 30 }, "analysis.precision"},
		{"max file size", func(c *Config) { c.Input.MaxFileSize = 0 }, "input.max_file_size"},
		{"history path", func(c *Config) { c.History.Enabled = true; c.History.Path = "" }, "history.path"},
		{"retention", func(c *Config) { c.History.RetentionDays = -1 }, "history.retention_days"},
		{"debounce", func(c *Config) { c.Watch.DebounceMs = -1 }, "watch.debounce_ms"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"log file", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)

			err := ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error mentioning %s, got %v", tt.field, err)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("IOCSCAN_MODE", "legacy")
	t.Setenv("IOCSCAN_UNIT", "rune")
	t.Setenv("IOCSCAN_WORKERS", "3")
	t.Setenv("IOCSCAN_FORMAT", "json")
	t.Setenv("IOCSCAN_HISTORY_PATH", "/var/lib/iocscan/h.db")
	t.Setenv("IOCSCAN_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Analysis.Mode != "legacy" || cfg.Analysis.Unit != "rune" || cfg.Analysis.Workers != 3 {
		t.Errorf("analysis overrides not applied: %+v", cfg.Analysis)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("expected json, got %s", cfg.Output.Format)
	}
	if cfg.History.Path != "/var/lib/iocscan/h.db" {
		t.Errorf("unexpected history path %s", cfg.History.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level %s", cfg.Logging.Level)
	}
}

func TestEstimatorOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Analysis.Mode = "exact"

	opts, err := cfg.EstimatorOptions()
	if err != nil {
		t.Fatalf("EstimatorOptions failed: %v", err)
	}

	res, err := ioc.New(opts...).Analyze([]byte("AAAAA"), 2)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if res.Mode != ioc.ModeExact || res.Average != 1.0 {
		t.Errorf("expected exact mode average 1.0, got %s %v", res.Mode, res.Average)
	}

	cfg.Analysis.Unit = "word"
	if _, err := cfg.EstimatorOptions(); err == nil {
		t.Error("expected error for bad unit")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	lc, err := cfg.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig failed: %v", err)
	}
	if lc.Level != logging.LevelInfo || lc.Format != logging.FormatJSON {
		t.Errorf("unexpected logger config: %+v", lc)
	}
	if lc.MaxSize != 10 {
		t.Errorf("expected max size 10, got %d", lc.MaxSize)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Analysis.Mode = "legacy"
	cfg.Output.Verbose = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Analysis.Mode != "legacy" || !loaded.Output.Verbose {
		t.Errorf("round trip lost values: %+v %+v", loaded.Analysis, loaded.Output)
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[analysis]\nmode = \"shared\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path)
	defer loader.Close()

	if _, err := loader.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.OnChange(func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})

	if err := loader.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[analysis]\nmode = \"exact\"\n"), 0600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case c := <-changed:
		if c.Analysis.Mode != "exact" {
			t.Errorf("expected reloaded mode exact, got %s", c.Analysis.Mode)
		}
		if loader.Config().Analysis.Mode != "exact" {
			t.Error("loader did not store the reloaded config")
		}
	case err := <-loader.Errors():
		t.Fatalf("watch error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

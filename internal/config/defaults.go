package config

import (
	"os"
	"path/filepath"
)

// DataDir returns the directory holding the history database and log file.
// IOCSCAN_DATA_DIR overrides the platform default.
func DataDir() string {
	if dir := os.Getenv("IOCSCAN_DATA_DIR"); dir != "" {
		return dir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "iocscan")
	}
	return filepath.Join(os.TempDir(), "iocscan")
}

// ConfigDir returns the platform configuration directory for iocscan.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "iocscan")
	}
	return DataDir()
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats returns the accepted config file extensions.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

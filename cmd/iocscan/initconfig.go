package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"iocscan/internal/config"
)

// runInitConfig implements "iocscan init-config [flags]".
func runInitConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("iocscan init-config", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.ConfigPath(), "path of the TOML config file to write")
	force := fs.Bool("force", false, "overwrite an existing file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: iocscan init-config [flags]\n\n")
		fmt.Fprintf(stderr, "Writes the default configuration as TOML.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return exitUsage
	}

	path := *configPath
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".toml" {
		return fail(stderr, fmt.Errorf("%w: init-config writes TOML, got %q", errUsage, path))
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fail(stderr, fmt.Errorf("%w: %s already exists (use -force to overwrite)", errUsage, path))
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return fail(stderr, fmt.Errorf("%w: %w", errConfig, err))
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return exitOK
}

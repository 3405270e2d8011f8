package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"iocscan/internal/config"
	"iocscan/internal/store"
	"iocscan/internal/textsrc"
)

// historyEntry is the JSON form of a recorded run.
type historyEntry struct {
	ID          int64     `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	File        string    `json:"file"`
	Digest      string    `json:"digest"`
	TextLength  int       `json:"text_length"`
	KeyLength   int       `json:"key_length"`
	Mode        string    `json:"mode"`
	Unit        string    `json:"unit"`
	LettersOnly bool      `json:"letters_only"`
	AverageIoC  float64   `json:"average_ioc"`
}

// runHistory implements "iocscan history [flags] [text file]".
func runHistory(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("iocscan history", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to config file")
	limit := fs.Int("limit", 20, "maximum number of runs to show (0: all)")
	format := fs.String("format", "text", "output format: text, json")
	verify := fs.Bool("verify", false, "check every recorded run for corruption")
	pruneDays := fs.Int("prune", 0, "delete runs older than this many days before listing")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: iocscan history [flags] [text file]\n\n")
		fmt.Fprintf(stderr, "Lists recorded runs, newest first. With a file, only runs for that file.\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitUsage
	}
	if *format != "text" && *format != "json" {
		return fail(stderr, fmt.Errorf("%w: unknown history format %q (use text or json)", errUsage, *format))
	}
	if *pruneDays < 0 {
		return fail(stderr, fmt.Errorf("%w: -prune must not be negative", errUsage))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %w", errConfig, err))
	}

	s, err := store.Open(cfg.History.Path)
	if err != nil {
		return fail(stderr, fmt.Errorf("open history: %w", err))
	}
	defer s.Close()

	if *pruneDays > 0 {
		n, err := s.DeleteRunsBefore(time.Now().AddDate(0, 0, -*pruneDays))
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stderr, "Pruned %d runs.\n", n)
	}

	if *verify {
		status, err := s.SchemaStatus()
		if err != nil {
			return fail(stderr, fmt.Errorf("%w: history schema: %w", textsrc.ErrInputUnavailable, err))
		}
		fmt.Fprintf(stderr, "Schema version %d of %d.\n", status.CurrentVersion, status.LatestVersion)

		corrupted, err := s.VerifyAllRuns()
		if err != nil {
			return fail(stderr, err)
		}
		if len(corrupted) > 0 {
			fmt.Fprintf(stderr, "Corrupted runs: %v\n", corrupted)
			return exitInput
		}
		fmt.Fprintln(stderr, "All recorded runs verified.")
	}

	path := ""
	if fs.NArg() == 1 {
		if path, err = filepath.Abs(fs.Arg(0)); err != nil {
			return fail(stderr, fmt.Errorf("%w: invalid path: %w", errUsage, err))
		}
	}

	runs, err := s.ListRuns(path, *limit)
	if err != nil {
		return fail(stderr, err)
	}

	if *format == "json" {
		entries := make([]historyEntry, len(runs))
		for i := range runs {
			r := &runs[i]
			entries[i] = historyEntry{
				ID:          r.ID,
				RecordedAt:  r.CreatedAt().UTC(),
				File:        r.FilePath,
				Digest:      r.DigestHex(),
				TextLength:  r.TextLength,
				KeyLength:   r.KeyLength,
				Mode:        r.Mode,
				Unit:        r.Unit,
				LettersOnly: r.LettersOnly,
				AverageIoC:  r.AverageIoC,
			}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(entries); err != nil {
			return fail(stderr, err)
		}
		return exitOK
	}

	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRECORDED\tK\tMODE\tUNIT\tLETTERS\tAVERAGE IOC\tFILE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%t\t%.*f\t%s\n",
			r.ID, r.CreatedAt().Format(time.RFC3339), r.KeyLength, r.Mode, r.Unit, r.LettersOnly,
			cfg.Analysis.Precision, r.AverageIoC, r.FilePath)
	}
	if err := tw.Flush(); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

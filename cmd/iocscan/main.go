// Command iocscan computes the average Index of Coincidence of a text for one
// candidate key length of a repeating-key polyalphabetic cipher.
//
// The text is split into as many interleaved subsequences as the key length,
// the IoC of each subsequence is computed, and their mean is reported. A mean
// near the plaintext language's IoC (about 0.066 for English letters) suggests
// the candidate is the true key length; a mean near the uniform value
// (1/26 for letters) suggests it is not.
//
// Usage:
//
//	iocscan [flags] <key length> <text file>
//	iocscan history [flags] [text file]
//	iocscan init-config [flags]
//
// Examples:
//
//	# Average IoC for key length 5
//	iocscan 5 cipher.txt
//
//	# Letters only, per-offset breakdown
//	iocscan -letters -verbose 5 cipher.txt
//
//	# JSON report recorded in the run history
//	iocscan -format json -record 5 cipher.txt
//
//	# Recompute whenever the file changes
//	iocscan -watch 5 cipher.txt
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"iocscan/internal/config"
	"iocscan/internal/ioc"
	"iocscan/internal/logging"
	"iocscan/internal/report"
	"iocscan/internal/store"
	"iocscan/internal/textsrc"
)

var (
	// Version information (set at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// keyLengthMessage is printed when the key length is below 1.
const keyLengthMessage = "The keyword length value must be greater than 0."

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// options holds the parsed command-line flags.
type options struct {
	configPath string
	mode       string
	unit       string
	letters    bool
	workers    int
	format     string
	precision  int
	verbose    bool
	output     string
	record     bool
	watch      bool
	logLevel   string
	version    bool
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *options) {
	opts := &options{}
	fs := flag.NewFlagSet("iocscan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "path to config file, "+strings.Join(config.SupportedConfigFormats(), " ")+" (default: "+config.ConfigPath()+")")
	fs.StringVar(&opts.mode, "mode", "shared", "denominator mode: shared, exact, legacy")
	fs.StringVar(&opts.unit, "unit", "byte", "character unit: byte, rune")
	fs.BoolVar(&opts.letters, "letters", false, "count letters only, folded to upper case")
	fs.IntVar(&opts.workers, "workers", 1, "goroutines per analysis (0: one per CPU)")
	fs.StringVar(&opts.format, "format", "text", "output format: text, json, yaml, markdown")
	fs.IntVar(&opts.precision, "precision", report.DefaultPrecision, "decimal digits in text output")
	fs.BoolVar(&opts.verbose, "verbose", false, "include the per-offset breakdown")
	fs.StringVar(&opts.output, "output", "", "output file (default: stdout)")
	fs.BoolVar(&opts.record, "record", false, "record the run in the history database")
	fs.BoolVar(&opts.watch, "watch", false, "recompute whenever the text file changes")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "iocscan - Average Index of Coincidence for a candidate key length\n\n")
		fmt.Fprintf(stderr, "Usage: iocscan [flags] <key length> <text file>\n")
		fmt.Fprintf(stderr, "       iocscan history [flags] [text file]\n")
		fmt.Fprintf(stderr, "       iocscan init-config [flags]\n\n")
		fmt.Fprintf(stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nDenominator Modes:\n")
		fmt.Fprintf(stderr, "  shared  - L*(L-1) with L = floor(N/k) for every offset (default)\n")
		fmt.Fprintf(stderr, "  exact   - each offset's own subsequence length\n")
		fmt.Fprintf(stderr, "  legacy  - floor(N/k)*floor((N-1)/k)\n")
		fmt.Fprintf(stderr, "\nExit Codes:\n")
		fmt.Fprintf(stderr, "  0 success, 1 input error, 2 usage error, 3 text too short, 4 configuration error\n")
	}

	return fs, opts
}

// run executes the command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "history":
			return runHistory(args[1:], stdout, stderr)
		case "init-config":
			return runInitConfig(args[1:], stdout, stderr)
		}
	}

	fs, opts := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if opts.version {
		fmt.Fprintf(stdout, "iocscan %s (commit: %s, built: %s)\n", version, commit, buildTime)
		return exitOK
	}

	if fs.NArg() != 2 {
		fmt.Fprintf(stderr, "Error: key length and text file required\n\n")
		fs.Usage()
		return exitUsage
	}

	keyLength, err := parseKeyLength(fs.Arg(0))
	if err != nil {
		if errors.Is(err, ioc.ErrInvalidKeyLength) {
			fmt.Fprintln(stderr, keyLengthMessage)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return exitCode(err)
	}
	path := fs.Arg(1)

	set := visitedFlags(fs)

	loader := config.NewLoader(opts.configPath)
	defer loader.Close()
	cfg, err := loader.Load()
	if err != nil {
		return fail(stderr, fmt.Errorf("%w: %w", errConfig, err))
	}
	if err := applyFlags(cfg, opts, set); err != nil {
		return fail(stderr, err)
	}

	a, err := newApp(cfg, stdout, stderr, opts.output)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.close()

	if opts.watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		err = a.watch(ctx, loader, func(c *config.Config) error { return applyFlags(c, opts, set) }, path, keyLength)
	} else {
		err = a.runOnce(path, keyLength)
	}
	if err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitCode(err)
}

// parseKeyLength parses the key length argument. Non-numeric input is a usage
// error; numbers below 1 wrap ioc.ErrInvalidKeyLength.
func parseKeyLength(s string) (int, error) {
	k, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: key length %q is not an integer", errUsage, s)
	}
	if k < 1 {
		return 0, fmt.Errorf("%w: got %d", ioc.ErrInvalidKeyLength, k)
	}
	return k, nil
}

// visitedFlags returns the names of the flags given on the command line.
func visitedFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

// applyFlags overrides cfg with the flags given on the command line. Flags
// take precedence over the file and the environment.
func applyFlags(cfg *config.Config, opts *options, set map[string]bool) error {
	if set["mode"] {
		if _, err := ioc.ParseMode(opts.mode); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		cfg.Analysis.Mode = opts.mode
	}
	if set["unit"] {
		if _, err := ioc.ParseUnit(opts.unit); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		cfg.Analysis.Unit = opts.unit
	}
	if set["letters"] {
		cfg.Analysis.LettersOnly = opts.letters
	}
	if set["workers"] {
		if opts.workers < 0 {
			return fmt.Errorf("%w: -workers must not be negative", errUsage)
		}
		cfg.Analysis.Workers = opts.workers
	}
	if set["precision"] {
		if opts.precision < 0 || opts.precision > 17 {
			return fmt.Errorf("%w: -precision must be between 0 and 17", errUsage)
		}
		cfg.Analysis.Precision = opts.precision
	}
	if set["format"] {
		if _, err := report.ParseFormat(opts.format); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		cfg.Output.Format = opts.format
	}
	if set["verbose"] {
		cfg.Output.Verbose = opts.verbose
	}
	if set["record"] {
		cfg.History.Enabled = opts.record
	}
	if set["log-level"] {
		if _, err := logging.ParseLevel(opts.logLevel); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	return nil
}

// app carries the state shared by single runs and watch mode.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	out     io.Writer
	outFile *os.File
	history *store.Store
}

func newApp(cfg *config.Config, stdout, stderr io.Writer, output string) (*app, error) {
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	if strings.EqualFold(lc.Output, "stderr") {
		lc.Writer = stderr
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	logging.SetDefault(logger)

	a := &app{cfg: cfg, log: logger, out: stdout}

	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create output file: %w", err)
		}
		a.outFile = f
		a.out = f
	}

	if cfg.History.Enabled {
		if err := a.openHistory(); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *app) openHistory() error {
	s, err := store.Open(a.cfg.History.Path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.history = s

	if days := a.cfg.History.RetentionDays; days > 0 {
		cutoff := time.Now().AddDate(0, 0, -days)
		n, err := s.DeleteRunsBefore(cutoff)
		if err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
		if n > 0 {
			a.log.Info("pruned history", "runs", n, "before", cutoff.Format(time.RFC3339))
		}
	}
	return nil
}

func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.outFile != nil {
		a.outFile.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}

// runOnce analyses path and writes one report.
func (a *app) runOnce(path string, keyLength int) error {
	doc, err := a.analyze(path, keyLength)
	if err != nil {
		return err
	}

	format, err := report.ParseFormat(a.cfg.Output.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	gen := report.NewGenerator(format).
		WithVerbose(a.cfg.Output.Verbose).
		WithPrecision(a.cfg.Analysis.Precision)
	if err := gen.Generate(doc, a.out); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}
	return nil
}

// analyze reads the text and computes its statistic, reusing a recorded run
// over identical content when history is enabled.
func (a *app) analyze(path string, keyLength int) (*report.Document, error) {
	text, err := textsrc.Read(path, a.cfg.TextSourceOptions())
	if err != nil {
		return nil, err
	}
	a.log.Debug("read text", "path", text.Path, "bytes", text.Len(), "digest", text.DigestHex())

	opts, err := a.cfg.EstimatorOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	if a.history != nil {
		params, err := runParams(a.cfg, keyLength)
		if err != nil {
			return nil, err
		}
		prev, err := a.history.FindByDigest(text.Digest, params)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			if err := store.VerifyRunIntegrity(prev); err != nil {
				a.log.Warn("ignoring corrupted history entry", "run", prev.ID, "error", err)
			} else if res, err := prev.Result(); err == nil {
				a.log.Info("reusing recorded run", "run", prev.ID, "recorded", prev.CreatedAt().Format(time.RFC3339))
				return report.NewDocument(text.Path, text.DigestHex(), res), nil
			}
		}
	}

	start := time.Now()
	res, err := ioc.New(opts...).Analyze(text.Data, keyLength)
	if err != nil {
		return nil, err
	}
	a.log.Info("analysed text",
		"path", text.Path,
		"key_length", keyLength,
		"mode", res.Mode.String(),
		"unit", res.Unit.String(),
		"average_ioc", res.Average,
		"elapsed", time.Since(start),
	)

	if a.history != nil {
		id, err := a.history.InsertRun(store.NewRun(text.Path, text.Digest, res))
		if err != nil {
			return nil, err
		}
		a.log.Debug("recorded run", "run", id)
	}

	return report.NewDocument(text.Path, text.DigestHex(), res), nil
}

// runParams returns the canonical history parameters for cfg.
func runParams(cfg *config.Config, keyLength int) (store.Params, error) {
	mode, err := ioc.ParseMode(cfg.Analysis.Mode)
	if err != nil {
		return store.Params{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	unit, err := ioc.ParseUnit(cfg.Analysis.Unit)
	if err != nil {
		return store.Params{}, fmt.Errorf("%w: %w", errConfig, err)
	}
	return store.Params{
		KeyLength:   keyLength,
		Mode:        mode.String(),
		Unit:        unit.String(),
		LettersOnly: cfg.Analysis.LettersOnly,
	}, nil
}

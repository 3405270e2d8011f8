package config

import (
	"fmt"
	"strings"

	"iocscan/internal/ioc"
	"iocscan/internal/logging"
	"iocscan/internal/report"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// maxPrecision is the number of significant decimal digits a float64 holds.
const maxPrecision = 17

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateAnalysis(&c.Analysis)...)
	errs = append(errs, validateInput(&c.Input)...)
	errs = append(errs, validateOutput(&c.Output)...)
	errs = append(errs, validateHistory(&c.History)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	if c.Watch.DebounceMs < 0 {
		errs = append(errs, ValidationError{Field: "watch.debounce_ms", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateAnalysis(a *AnalysisConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := ioc.ParseMode(a.Mode); err != nil {
		errs = append(errs, ValidationError{Field: "analysis.mode", Message: err.Error()})
	}
	if _, err := ioc.ParseUnit(a.Unit); err != nil {
		errs = append(errs, ValidationError{Field: "analysis.unit", Message: err.Error()})
	}
	if a.Workers < 0 {
		errs = append(errs, ValidationError{Field: "analysis.workers", Message: "must not be negative"})
	}
	if a.Precision < 0 || a.Precision > maxPrecision {
		errs = append(errs, ValidationError{
			Field:   "analysis.precision",
			Message: fmt.Sprintf("must be between 0 and %d", maxPrecision),
		})
	}

	return errs
}

func validateInput(in *InputConfig) ValidationErrors {
	if in.MaxFileSize <= 0 {
		return ValidationErrors{{Field: "input.max_file_size", Message: "must be positive"}}
	}
	return nil
}

func validateOutput(o *OutputConfig) ValidationErrors {
	if _, err := report.ParseFormat(o.Format); err != nil {
		return ValidationErrors{{Field: "output.format", Message: err.Error()}}
	}
	return nil
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors

	if h.Enabled && h.Path == "" {
		errs = append(errs, ValidationError{Field: "history.path", Message: "required when history is enabled"})
	}
	if h.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "history.retention_days", Message: "must not be negative"})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if _, err := logging.ParseFormat(l.Format); err != nil {
		errs = append(errs, ValidationError{Field: "logging.format", Message: err.Error()})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr", "discard":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{Field: "logging.file_path", Message: "required for file output"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q (use stdout, stderr, file, both, or discard)", l.Output),
		})
	}

	if l.MaxSizeMB < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_size_mb", Message: "must not be negative"})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{Field: "logging.max_backups", Message: "must not be negative"})
	}

	return errs
}

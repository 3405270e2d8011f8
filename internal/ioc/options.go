package ioc

import (
	"fmt"
	"strings"
)

// Mode selects how the coincidence count of a residue class is normalized.
type Mode int

const (
	// ModeShared divides every offset by L*(L-1) with L = floor(N/k).
	// This reproduces classical tooling output but is mildly biased when
	// N is not a multiple of k, since residue classes differ in length by
	// at most one.
	ModeShared Mode = iota

	// ModeExact divides each offset by Lo*(Lo-1), Lo being that offset's
	// own subsequence length.
	ModeExact

	// ModeLegacy divides by floor(N/k) * floor((N-1)/k).
	ModeLegacy
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeExact:
		return "exact"
	case ModeLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shared", "":
		return ModeShared, nil
	case "exact":
		return ModeExact, nil
	case "legacy":
		return ModeLegacy, nil
	default:
		return ModeShared, fmt.Errorf("unknown denominator mode: %s (use shared, exact, or legacy)", s)
	}
}

// Unit selects what a "character" of the text is.
type Unit int

const (
	// UnitByte treats every byte as one character.
	UnitByte Unit = iota
	// UnitRune decodes the text as UTF-8 and treats every rune as one character.
	UnitRune
)

// String returns the configuration name of the unit.
func (u Unit) String() string {
	switch u {
	case UnitByte:
		return "byte"
	case UnitRune:
		return "rune"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(b []byte) error {
	parsed, err := ParseUnit(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUnit parses a unit name.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "byte", "bytes", "":
		return UnitByte, nil
	case "rune", "runes", "char":
		return UnitRune, nil
	default:
		return UnitByte, fmt.Errorf("unknown unit: %s (use byte or rune)", s)
	}
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithMode sets the normalization mode.
func WithMode(m Mode) Option {
	return func(e *Estimator) {
		e.mode = m
	}
}

// WithUnit sets the character unit.
func WithUnit(u Unit) Option {
	return func(e *Estimator) {
		e.unit = u
	}
}

// WithWorkers sets the number of goroutines used to process offsets.
// Values below 2 run sequentially.
func WithWorkers(n int) Option {
	return func(e *Estimator) {
		e.workers = n
	}
}

// WithLettersOnly drops every non-letter and folds letters to upper case
// before partitioning.
func WithLettersOnly(on bool) Option {
	return func(e *Estimator) {
		e.lettersOnly = on
	}
}

// SubsequenceLength returns the exact number of positions p in [0, n) with
// p = offset (mod stride).
func SubsequenceLength(n, offset, stride int) int {
	if stride < 1 || offset < 0 || offset >= n {
		return 0
	}
	return (n-offset-1)/stride + 1
}

// denominator returns the normalization term for a residue class of length
// classLen in a text of n characters. Only ModeExact uses classLen.
func denominator(mode Mode, n, classLen, stride int) (float64, error) {
	switch mode {
	case ModeExact:
		if classLen <= 1 {
			return 0, fmt.Errorf("%w: residue class of %d characters with key length %d", ErrDegenerateDenominator, classLen, stride)
		}
		return float64(classLen) * float64(classLen-1), nil

	case ModeLegacy:
		a, b := n/stride, (n-1)/stride
		if a <= 0 || b <= 0 {
			return 0, fmt.Errorf("%w: text of %d characters is too short for key length %d", ErrDegenerateDenominator, n, stride)
		}
		return float64(a) * float64(b), nil

	default:
		l := n / stride
		if l <= 1 {
			return 0, fmt.Errorf("%w: text of %d characters is too short for key length %d", ErrDegenerateDenominator, n, stride)
		}
		return float64(l) * float64(l-1), nil
	}
}

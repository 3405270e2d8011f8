// Package ioc computes the Index of Coincidence of interleaved subsequences
// of a text, the statistic used to estimate the key length of a repeating-key
// polyalphabetic cipher.
//
// For a candidate key length k the text is split into k residue classes
// (positions o, o+k, o+2k, ...). Each class is assumed to be enciphered with a
// single alphabet, so its IoC approaches that of the plaintext language when k
// is the true period and approaches the uniform value otherwise.
package ioc

import (
	"errors"
	"fmt"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Errors returned by the estimator.
var (
	// ErrInvalidKeyLength is returned when the key length (stride) is below 1.
	ErrInvalidKeyLength = errors.New("ioc: key length must be greater than 0")

	// ErrInvalidOffset is returned when an offset is outside [0, stride).
	ErrInvalidOffset = errors.New("ioc: offset out of range")

	// ErrDegenerateDenominator is returned when the normalization term would
	// be zero or negative, which happens when the key length is too large
	// relative to the text.
	ErrDegenerateDenominator = errors.New("ioc: degenerate denominator")
)

// OffsetResult holds the statistic for a single residue class.
type OffsetResult struct {
	Offset       int     `json:"offset" yaml:"offset"`
	Length       int     `json:"length" yaml:"length"`
	Coincidences int64   `json:"coincidences" yaml:"coincidences"`
	IoC          float64 `json:"ioc" yaml:"ioc"`
}

// Result is the outcome of analysing a text for one candidate key length.
type Result struct {
	KeyLength   int            `json:"key_length" yaml:"key_length"`
	TextLength  int            `json:"text_length" yaml:"text_length"`
	Mode        Mode           `json:"mode" yaml:"mode"`
	Unit        Unit           `json:"unit" yaml:"unit"`
	LettersOnly bool           `json:"letters_only" yaml:"letters_only"`
	Average     float64        `json:"average_ioc" yaml:"average_ioc"`
	Offsets     []OffsetResult `json:"offsets" yaml:"offsets"`
}

// Estimator computes IoC statistics. The zero value is not usable; use New.
// An Estimator holds only configuration and is safe for concurrent use.
type Estimator struct {
	mode        Mode
	unit        Unit
	workers     int
	lettersOnly bool
}

// New creates an Estimator. Without options it counts raw bytes, uses the
// shared denominator and runs sequentially.
func New(opts ...Option) *Estimator {
	e := &Estimator{
		mode:    ModeShared,
		unit:    UnitByte,
		workers: 1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

var defaultEstimator = New()

// ComputeIoC returns the IoC of the subsequence of text starting at offset
// with the given stride, using the default estimator.
func ComputeIoC(text []byte, offset, stride int) (float64, error) {
	return defaultEstimator.ComputeIoC(text, offset, stride)
}

// ComputeAverageIoC returns the mean IoC over all keyLength residue classes,
// using the default estimator.
func ComputeAverageIoC(text []byte, keyLength int) (float64, error) {
	return defaultEstimator.ComputeAverageIoC(text, keyLength)
}

// Analyze returns the full per-offset breakdown using the default estimator.
func Analyze(text []byte, keyLength int) (*Result, error) {
	return defaultEstimator.Analyze(text, keyLength)
}

// ComputeIoC returns the IoC of the subsequence at positions offset,
// offset+stride, offset+2*stride, ...
//
// Formula: sum_c f(c)*(f(c)-1) / D, where D depends on the estimator mode.
func (e *Estimator) ComputeIoC(text []byte, offset, stride int) (float64, error) {
	if stride < 1 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, stride)
	}
	if offset < 0 || offset >= stride {
		return 0, fmt.Errorf("%w: offset %d with stride %d", ErrInvalidOffset, offset, stride)
	}

	seq := e.prepare(text)
	r, err := offsetIoC(seq, e.mode, offset, stride)
	if err != nil {
		return 0, err
	}
	return r.IoC, nil
}

// ComputeAverageIoC returns the arithmetic mean of ComputeIoC over every
// offset in [0, keyLength).
func (e *Estimator) ComputeAverageIoC(text []byte, keyLength int) (float64, error) {
	res, err := e.Analyze(text, keyLength)
	if err != nil {
		return 0, err
	}
	return res.Average, nil
}

// Analyze computes the IoC of every residue class and their mean.
// No partial result is returned on error.
func (e *Estimator) Analyze(text []byte, keyLength int) (*Result, error) {
	if keyLength < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, keyLength)
	}

	seq := e.prepare(text)

	// The last residue class is the shortest, so checking it covers every
	// offset in every mode. This runs before any per-offset allocation.
	n := seq.len()
	if _, err := denominator(e.mode, n, SubsequenceLength(n, keyLength-1, keyLength), keyLength); err != nil {
		return nil, err
	}

	offsets, err := e.computeOffsets(seq, keyLength)
	if err != nil {
		return nil, err
	}

	// Summed in offset order so sequential and parallel runs agree exactly.
	sum := 0.0
	for _, r := range offsets {
		sum += r.IoC
	}

	return &Result{
		KeyLength:   keyLength,
		TextLength:  n,
		Mode:        e.mode,
		Unit:        e.unit,
		LettersOnly: e.lettersOnly,
		Average:     sum / float64(keyLength),
		Offsets:     offsets,
	}, nil
}

// computeOffsets fills one OffsetResult per residue class, fanning out to a
// bounded pool of workers when configured.
func (e *Estimator) computeOffsets(seq sequence, keyLength int) ([]OffsetResult, error) {
	results := make([]OffsetResult, keyLength)

	workers := e.workers
	if workers > keyLength {
		workers = keyLength
	}

	if workers <= 1 {
		for i := 0; i < keyLength; i++ {
			r, err := offsetIoC(seq, e.mode, i, keyLength)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	errs := make([]error, keyLength)
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = offsetIoC(seq, e.mode, i, keyLength)
			}
		}()
	}
	for i := 0; i < keyLength; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// prepare converts raw text into the sequence of code units the estimator
// counts over.
func (e *Estimator) prepare(text []byte) sequence {
	if e.unit == UnitRune {
		runes := make([]rune, 0, utf8.RuneCount(text))
		for len(text) > 0 {
			r, size := utf8.DecodeRune(text)
			text = text[size:]
			if e.lettersOnly {
				if !unicode.IsLetter(r) {
					continue
				}
				r = unicode.ToUpper(r)
			}
			runes = append(runes, r)
		}
		return runeSequence(runes)
	}

	if !e.lettersOnly {
		return byteSequence(text)
	}
	letters := make([]byte, 0, len(text))
	for _, b := range text {
		switch {
		case b >= 'A' && b <= 'Z':
			letters = append(letters, b)
		case b >= 'a' && b <= 'z':
			letters = append(letters, b-('a'-'A'))
		}
	}
	return byteSequence(letters)
}

// sequence is the text as seen by the estimator.
type sequence interface {
	len() int
	// count returns the subsequence length and the number of ordered
	// coincident pairs, sum f*(f-1).
	count(offset, stride int) (int, int64)
}

type byteSequence []byte

func (s byteSequence) len() int { return len(s) }

func (s byteSequence) count(offset, stride int) (int, int64) {
	var freq [256]int64
	n := 0
	for i := offset; i < len(s); i += stride {
		freq[s[i]]++
		n++
	}
	var pairs int64
	for _, f := range freq {
		pairs += f * (f - 1)
	}
	return n, pairs
}

type runeSequence []rune

func (s runeSequence) len() int { return len(s) }

func (s runeSequence) count(offset, stride int) (int, int64) {
	freq := make(map[rune]int64)
	n := 0
	for i := offset; i < len(s); i += stride {
		freq[s[i]]++
		n++
	}
	var pairs int64
	for _, f := range freq {
		pairs += f * (f - 1)
	}
	return n, pairs
}

// offsetIoC computes the statistic for one residue class of seq. In exact
// mode the denominator uses the length found while counting.
func offsetIoC(seq sequence, mode Mode, offset, stride int) (OffsetResult, error) {
	length, pairs := seq.count(offset, stride)

	denom, err := denominator(mode, seq.len(), length, stride)
	if err != nil {
		return OffsetResult{}, err
	}

	r := OffsetResult{
		Offset:       offset,
		Length:       length,
		Coincidences: pairs,
	}
	if pairs != 0 {
		r.IoC = float64(pairs) / denom
	}
	return r, nil
}

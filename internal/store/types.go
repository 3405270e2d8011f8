// Package store provides SQLite-based run history for iocscan.
package store

import (
	"encoding/hex"
	"fmt"
	"time"

	"iocscan/internal/ioc"
)

// Params identifies the analysis settings a run was computed with. Two runs
// over the same content with equal Params produce the same values.
type Params struct {
	KeyLength   int
	Mode        string
	Unit        string
	LettersOnly bool
}

// Run is one recorded analysis of one file for one key length.
type Run struct {
	ID         int64
	CreatedNs  int64
	FilePath   string
	Digest     [32]byte
	TextLength int
	Params
	AverageIoC float64
	RecordHash [32]byte
	Offsets    []OffsetRow
}

// OffsetRow is the stored statistic for one residue class of a run.
type OffsetRow struct {
	RunID        int64
	Offset       int
	Length       int
	Coincidences int64
	IoC          float64
}

// NewRun builds a Run from an analysis result.
func NewRun(path string, digest [32]byte, res *ioc.Result) *Run {
	r := &Run{
		CreatedNs:  time.Now().UnixNano(),
		FilePath:   path,
		Digest:     digest,
		TextLength: res.TextLength,
		Params: Params{
			KeyLength:   res.KeyLength,
			Mode:        res.Mode.String(),
			Unit:        res.Unit.String(),
			LettersOnly: res.LettersOnly,
		},
		AverageIoC: res.Average,
		Offsets:    make([]OffsetRow, len(res.Offsets)),
	}
	for i, o := range res.Offsets {
		r.Offsets[i] = OffsetRow{
			Offset:       o.Offset,
			Length:       o.Length,
			Coincidences: o.Coincidences,
			IoC:          o.IoC,
		}
	}
	return r
}

// CreatedAt returns the time the run was recorded.
func (r *Run) CreatedAt() time.Time {
	return time.Unix(0, r.CreatedNs)
}

// DigestHex returns the content digest as a hex string.
func (r *Run) DigestHex() string {
	return hex.EncodeToString(r.Digest[:])
}

// Result converts the run back into an analysis result.
func (r *Run) Result() (*ioc.Result, error) {
	mode, err := ioc.ParseMode(r.Mode)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", r.ID, err)
	}
	unit, err := ioc.ParseUnit(r.Unit)
	if err != nil {
		return nil, fmt.Errorf("run %d: %w", r.ID, err)
	}

	res := &ioc.Result{
		KeyLength:   r.KeyLength,
		TextLength:  r.TextLength,
		Mode:        mode,
		Unit:        unit,
		LettersOnly: r.LettersOnly,
		Average:     r.AverageIoC,
		Offsets:     make([]ioc.OffsetResult, len(r.Offsets)),
	}
	for i, o := range r.Offsets {
		res.Offsets[i] = ioc.OffsetResult{
			Offset:       o.Offset,
			Length:       o.Length,
			Coincidences: o.Coincidences,
			IoC:          o.IoC,
		}
	}
	return res, nil
}

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/blake2b"
)

// averageTolerance bounds the difference between a stored average and the
// mean of its stored offsets.
const averageTolerance = 1e-9

// VerifyRunIntegrity checks that a run with loaded offsets matches its record
// hash and that its average is the mean of its offsets.
func VerifyRunIntegrity(r *Run) error {
	computed := computeRecordHash(r)
	if !bytes.Equal(computed[:], r.RecordHash[:]) {
		return fmt.Errorf("record hash mismatch for run %d: computed %x, stored %x",
			r.ID, computed, r.RecordHash)
	}

	if len(r.Offsets) != r.KeyLength {
		return fmt.Errorf("run %d has %d offsets for key length %d", r.ID, len(r.Offsets), r.KeyLength)
	}

	sum := 0.0
	for i, o := range r.Offsets {
		if o.Offset != i {
			return fmt.Errorf("run %d: offset %d stored at position %d", r.ID, o.Offset, i)
		}
		sum += o.IoC
	}
	if mean := sum / float64(r.KeyLength); math.Abs(mean-r.AverageIoC) > averageTolerance {
		return fmt.Errorf("run %d: stored average %v differs from offset mean %v", r.ID, r.AverageIoC, mean)
	}

	return nil
}

// VerifyAllRuns verifies every run in the store and returns the IDs of the
// runs that fail.
func (s *Store) VerifyAllRuns() ([]int64, error) {
	runs, err := s.ListRuns("", 0)
	if err != nil {
		return nil, err
	}

	var corrupted []int64
	for i := range runs {
		r := &runs[i]
		if r.Offsets, err = s.GetRunOffsets(r.ID); err != nil {
			return nil, fmt.Errorf("get offsets for run %d: %w", r.ID, err)
		}
		if err := VerifyRunIntegrity(r); err != nil {
			corrupted = append(corrupted, r.ID)
		}
	}

	return corrupted, nil
}

// computeRecordHash hashes the identifying fields and values of a run.
// The database ID is excluded so a hash can be computed before insertion.
func computeRecordHash(r *Run) [32]byte {
	h, _ := blake2b.New256(nil)

	h.Write([]byte("iocscan-run-v1"))
	writeInt(h, r.CreatedNs)
	writeInt(h, int64(len(r.FilePath)))
	h.Write([]byte(r.FilePath))
	h.Write(r.Digest[:])
	writeInt(h, int64(r.TextLength))
	writeInt(h, int64(r.KeyLength))
	h.Write([]byte(r.Mode))
	h.Write([]byte{0})
	h.Write([]byte(r.Unit))
	h.Write([]byte{0})
	if r.LettersOnly {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	writeInt(h, int64(math.Float64bits(r.AverageIoC)))

	for _, o := range r.Offsets {
		writeInt(h, int64(o.Offset))
		writeInt(h, int64(o.Length))
		writeInt(h, o.Coincidences)
		writeInt(h, int64(math.Float64bits(o.IoC)))
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeInt(w io.Writer, n int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	w.Write(buf[:])
}

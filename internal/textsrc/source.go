// Package textsrc loads the text to be analysed from disk.
//
// The whole file is read into memory in one pass while a shared advisory lock
// is held, so a cooperating writer cannot hand the analysis a half-written
// file.
package textsrc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DefaultMaxSize is the default upper bound on input size.
const DefaultMaxSize int64 = 64 * 1024 * 1024

// Errors returned by Read. Every error returned by Read wraps
// ErrInputUnavailable.
var (
	ErrInputUnavailable = errors.New("textsrc: input unavailable")
	ErrFileTooLarge     = errors.New("textsrc: file exceeds maximum size")
	ErrNotRegular       = errors.New("textsrc: not a regular file")
)

// Options controls how a text file is read.
type Options struct {
	// MaxSize is the largest accepted file in bytes. Zero or negative
	// means DefaultMaxSize.
	MaxSize int64

	// Lock takes a shared advisory lock for the duration of the read.
	Lock bool
}

// DefaultOptions returns the options used by the command line tool.
func DefaultOptions() Options {
	return Options{
		MaxSize: DefaultMaxSize,
		Lock:    true,
	}
}

// Text is the content of one input file.
type Text struct {
	Path    string
	Data    []byte
	Digest  [32]byte
	ModTime time.Time
}

// DigestHex returns the content digest as lowercase hex.
func (t *Text) DigestHex() string {
	return hex.EncodeToString(t.Digest[:])
}

// Len returns the content length in bytes.
func (t *Text) Len() int {
	return len(t.Data)
}

// Digest returns the BLAKE2b-256 digest of data.
func Digest(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// Read loads the file at path.
func Read(path string, opts Options) (*Text, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, unavailable(fmt.Errorf("invalid path: %w", err))
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, unavailable(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, unavailable(fmt.Errorf("stat %s: %w", absPath, err))
	}
	if !info.Mode().IsRegular() {
		return nil, unavailable(fmt.Errorf("%w: %s", ErrNotRegular, absPath))
	}
	if info.Size() > opts.MaxSize {
		return nil, unavailable(fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, absPath, info.Size(), opts.MaxSize))
	}

	if opts.Lock {
		if err := lockShared(f); err != nil {
			return nil, unavailable(fmt.Errorf("lock %s: %w", absPath, err))
		}
		defer unlock(f)
	}

	// The file may have grown since Stat.
	data, err := io.ReadAll(io.LimitReader(f, opts.MaxSize+1))
	if err != nil {
		return nil, unavailable(fmt.Errorf("read %s: %w", absPath, err))
	}
	if int64(len(data)) > opts.MaxSize {
		return nil, unavailable(fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, absPath, opts.MaxSize))
	}

	return &Text{
		Path:    absPath,
		Data:    data,
		Digest:  Digest(data),
		ModTime: info.ModTime(),
	}, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrInputUnavailable, err)
}

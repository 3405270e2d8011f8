package textsrc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "cipher.txt")
	content := []byte("LXFOPVEFRNHR\n")

	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	text, err := Read(path, DefaultOptions())
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if string(text.Data) != string(content) {
		t.Errorf("expected %q, got %q", content, text.Data)
	}
	if text.Len() != len(content) {
		t.Errorf("expected length %d, got %d", len(content), text.Len())
	}
	if !filepath.IsAbs(text.Path) {
		t.Errorf("expected absolute path, got %s", text.Path)
	}
	if text.Digest != Digest(content) {
		t.Error("digest does not match content")
	}
	if len(text.DigestHex()) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(text.DigestHex()))
	}
}

func TestReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	text, err := Read(path, Options{})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if text.Len() != 0 {
		t.Errorf("expected empty text, got %d bytes", text.Len())
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.txt"), DefaultOptions())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, ErrInputUnavailable) {
		t.Errorf("expected ErrInputUnavailable, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestReadDirectory(t *testing.T) {
	_, err := Read(t.TempDir(), DefaultOptions())
	if !errors.Is(err, ErrNotRegular) {
		t.Errorf("expected ErrNotRegular, got %v", err)
	}
	if !errors.Is(err, ErrInputUnavailable) {
		t.Errorf("expected ErrInputUnavailable, got %v", err)
	}
}

func TestReadTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("A", 128)), 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	_, err := Read(path, Options{MaxSize: 64, Lock: true})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}

	if _, err := Read(path, Options{MaxSize: 128}); err != nil {
		t.Errorf("file at the limit should be accepted: %v", err)
	}
}

func TestDigestDiffers(t *testing.T) {
	if Digest([]byte("ABCD")) == Digest([]byte("ABCE")) {
		t.Error("different content should produce different digests")
	}
}

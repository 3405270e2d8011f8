package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store represents the SQLite run history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertRun records a run and its offsets in one transaction, sets r.ID and
// r.RecordHash, and returns the new ID.
func (s *Store) InsertRun(r *Run) (int64, error) {
	if r.KeyLength < 1 {
		return 0, fmt.Errorf("insert run: invalid key length %d", r.KeyLength)
	}
	if len(r.Offsets) != r.KeyLength {
		return 0, fmt.Errorf("insert run: %d offsets for key length %d", len(r.Offsets), r.KeyLength)
	}
	if r.CreatedNs == 0 {
		r.CreatedNs = time.Now().UnixNano()
	}
	r.RecordHash = computeRecordHash(r)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO runs (created_ns, file_path, digest, text_length, key_length, mode, unit, letters_only, average_ioc, record_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CreatedNs, r.FilePath, r.Digest[:], r.TextLength, r.KeyLength, r.Mode, r.Unit, r.LettersOnly, r.AverageIoC, r.RecordHash[:],
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO run_offsets (run_id, residue, length, coincidences, ioc)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range r.Offsets {
		o := &r.Offsets[i]
		if _, err := stmt.Exec(id, o.Offset, o.Length, o.Coincidences, o.IoC); err != nil {
			return 0, fmt.Errorf("insert run offset: %w", err)
		}
		o.RunID = id
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	r.ID = id
	return id, nil
}

// GetRun retrieves a run and its offsets by ID. It returns nil, nil when no
// such run exists.
func (s *Store) GetRun(id int64) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`
		SELECT `+runColumns+`
		FROM runs WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	if r.Offsets, err = s.GetRunOffsets(r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// GetRunOffsets retrieves the offsets of a run in offset order.
func (s *Store) GetRunOffsets(runID int64) ([]OffsetRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, residue, length, coincidences, ioc
		FROM run_offsets
		WHERE run_id = ?
		ORDER BY residue ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run offsets: %w", err)
	}
	defer rows.Close()

	var offsets []OffsetRow
	for rows.Next() {
		var o OffsetRow
		if err := rows.Scan(&o.RunID, &o.Offset, &o.Length, &o.Coincidences, &o.IoC); err != nil {
			return nil, fmt.Errorf("scan run offset: %w", err)
		}
		offsets = append(offsets, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run offsets: %w", err)
	}

	return offsets, nil
}

// ListRuns returns the most recent runs first. An empty path lists runs for
// every file; limit <= 0 returns all of them. Offsets are not loaded.
func (s *Store) ListRuns(path string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if path == "" {
		rows, err = s.db.Query(`
			SELECT `+runColumns+`
			FROM runs
			ORDER BY created_ns DESC, id DESC
			LIMIT ?`, limit,
		)
	} else {
		rows, err = s.db.Query(`
			SELECT `+runColumns+`
			FROM runs
			WHERE file_path = ?
			ORDER BY created_ns DESC, id DESC
			LIMIT ?`, path, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// FindByDigest returns the most recent run over content with the given
// digest and analysis parameters, or nil, nil if there is none.
func (s *Store) FindByDigest(digest [32]byte, p Params) (*Run, error) {
	r, err := scanRun(s.db.QueryRow(`
		SELECT `+runColumns+`
		FROM runs
		WHERE digest = ? AND key_length = ? AND mode = ? AND unit = ? AND letters_only = ?
		ORDER BY created_ns DESC, id DESC
		LIMIT 1`,
		digest[:], p.KeyLength, p.Mode, p.Unit, p.LettersOnly,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find run by digest: %w", err)
	}

	if r.Offsets, err = s.GetRunOffsets(r.ID); err != nil {
		return nil, err
	}
	return r, nil
}

// DeleteRunsBefore removes runs recorded before t and returns how many were
// removed. Their offsets are removed by cascade.
func (s *Store) DeleteRunsBefore(t time.Time) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM runs WHERE created_ns < ?`, t.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete runs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

// CountRuns returns the number of recorded runs.
func (s *Store) CountRuns() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

const runColumns = `id, created_ns, file_path, digest, text_length, key_length, mode, unit, letters_only, average_ioc, record_hash`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var digest, recordHash []byte

	if err := row.Scan(&r.ID, &r.CreatedNs, &r.FilePath, &digest, &r.TextLength, &r.KeyLength,
		&r.Mode, &r.Unit, &r.LettersOnly, &r.AverageIoC, &recordHash); err != nil {
		return nil, err
	}

	copy(r.Digest[:], digest)
	copy(r.RecordHash[:], recordHash)

	return &r, nil
}

// scanRuns is a helper to scan run rows into a slice.
func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

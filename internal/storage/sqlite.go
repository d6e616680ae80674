// Package storage provides the advisory sqlite projection of dead-letter
// records. Writes are best-effort and may lag the in-memory queue; there
// is no recovery protocol.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mahavishnu/mahavishnu/internal/dlq"
)

const schema = `
CREATE TABLE IF NOT EXISTS dlq_records (
	task_id    TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteStore persists one document per failed-task record, keyed by
// task-id. Implements dlq.Store.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the projection database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open projection db: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent projection updates.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply projection schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts the record's projection document.
func (s *SQLiteStore) Save(rec *dlq.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.TaskID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO dlq_records (task_id, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			record = excluded.record,
			updated_at = excluded.updated_at`,
		rec.TaskID, string(doc), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.TaskID, err)
	}
	return nil
}

// Delete removes the record's projection document. Deleting an absent
// record is not an error.
func (s *SQLiteStore) Delete(taskID string) error {
	if _, err := s.db.Exec(`DELETE FROM dlq_records WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete record %s: %w", taskID, err)
	}
	return nil
}

// Get reads one projected record back. Used by tooling and tests; the
// queue itself never reads the projection.
func (s *SQLiteStore) Get(taskID string) (*dlq.Record, error) {
	var doc string
	err := s.db.QueryRow(`SELECT record FROM dlq_records WHERE task_id = ?`, taskID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", taskID, err)
	}
	var rec dlq.Record
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", taskID, err)
	}
	return &rec, nil
}

// Count returns the number of projected records.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM dlq_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

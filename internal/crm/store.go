package crm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// RecordStore caches fetched CRM records in a local SQLite database so
// index rebuilds don't have to refetch from the upstream API.
type RecordStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewRecordStore opens (creating if needed) the record database at path.
func NewRecordStore(path string) (*RecordStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create record db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open record db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &RecordStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *RecordStore) initSchema() error {
	pragmas := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
	}
	for _, stmt := range pragmas {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init record db: %w", err)
		}
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT NOT NULL,
			kind TEXT NOT NULL,
			properties TEXT NOT NULL,
			fetched_at INTEGER NOT NULL,
			PRIMARY KEY (id, kind)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_kind ON records (kind);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init record db: %w", err)
		}
	}
	return nil
}

// SaveRecords upserts a batch of records for a kind in one transaction.
func (s *RecordStore) SaveRecords(ctx context.Context, kind EntityKind, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records
		(id, kind, properties, fetched_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		props, err := json.Marshal(rec.Properties)
		if err != nil {
			return fmt.Errorf("encode properties for record %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, string(kind), string(props), now); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRecords returns all cached records of a kind, ordered by id.
func (s *RecordStore) LoadRecords(ctx context.Context, kind EntityKind) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, properties FROM records WHERE kind = ? ORDER BY id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var id, props string
		if err := rows.Scan(&id, &props); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := Record{ID: id}
		if err := json.Unmarshal([]byte(props), &rec.Properties); err != nil {
			continue // skip malformed rows
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count returns the number of cached records for a kind.
func (s *RecordStore) Count(ctx context.Context, kind EntityKind) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ?`, string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// DeleteKind removes all cached records of a kind.
func (s *RecordStore) DeleteKind(ctx context.Context, kind EntityKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, string(kind))
	if err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (s *RecordStore) Close() error {
	return s.db.Close()
}

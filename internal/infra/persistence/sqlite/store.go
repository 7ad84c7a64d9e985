// Package sqlite provides a record store backed by a private in-memory SQLite
// database. Nothing is written to disk; the database disappears on Close.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"growpilot/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

const schema = `CREATE TABLE records (
	seq      INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	payload  BLOB NOT NULL
)`

// Store keeps one row per record; seq preserves insertion order.
type Store struct {
	db *sql.DB
}

// NewStore opens a fresh in-memory database.
func NewStore(ctx context.Context) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is its own database, so pin the pool to one
	// connection that is never recycled.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &Store{db: db}, nil
}

func checkCategory(c domain.Category) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownCategory, c)
	}
	return nil
}

// Append inserts the record at the end of its category.
func (s *Store) Append(ctx context.Context, category domain.Category, record domain.Record) error {
	if err := checkCategory(category); err != nil {
		return err
	}
	if record == nil {
		record = domain.Record{}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO records(category, payload) VALUES(?, ?)`, string(category), payload); err != nil {
		return fmt.Errorf("insert %s record: %w", category, err)
	}
	return nil
}

// Records returns the category's records in insertion order.
func (s *Store) Records(ctx context.Context, category domain.Category) ([]domain.Record, error) {
	if err := checkCategory(category); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM records WHERE category = ? ORDER BY seq`, string(category))
	if err != nil {
		return nil, fmt.Errorf("select %s records: %w", category, err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.Record{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var rec domain.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", category, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AsTable lays the category's records out as a table.
func (s *Store) AsTable(ctx context.Context, category domain.Category) (domain.Table, error) {
	records, err := s.Records(ctx, category)
	if err != nil {
		return domain.Table{}, err
	}
	return domain.BuildTable(category, records), nil
}

// Counts returns the number of records per category, including empty ones.
func (s *Store) Counts(ctx context.Context) (map[domain.Category]int, error) {
	out := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		out[c] = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM records GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[domain.Category(category)] = n
	}
	return out, rows.Err()
}

// Close releases the database and every record in it.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for tests.
func (s *Store) DB() *sql.DB { return s.db }

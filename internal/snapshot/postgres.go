// Package snapshot persists point-in-time copies of the annotation corpus in
// Postgres so a session can be restored after a restart.
package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"skein/internal/corpus"
)

// ErrNoSnapshots indicates no snapshot has been saved yet.
var ErrNoSnapshots = errors.New("no snapshots saved")

// Record describes one saved snapshot.
type Record struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Store reads and writes corpus snapshots.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the snapshots table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS snapshots (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			body JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure snapshots schema: %w", err)
	}
	return nil
}

// Save stores a snapshot and returns its record.
func (s *Store) Save(ctx context.Context, snap corpus.Snapshot, label string) (Record, error) {
	body, err := snap.Encode()
	if err != nil {
		return Record{}, fmt.Errorf("encode snapshot: %w", err)
	}

	var rec Record
	rec.Label = label
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO snapshots (label, body)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, label, body).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return rec, nil
}

// LoadLatest returns the most recently saved snapshot.
func (s *Store) LoadLatest(ctx context.Context) (corpus.Snapshot, Record, error) {
	var (
		rec  Record
		body []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, body, created_at
		FROM snapshots
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.Label, &body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Snapshot{}, Record{}, ErrNoSnapshots
	}
	if err != nil {
		return corpus.Snapshot{}, Record{}, fmt.Errorf("load latest snapshot: %w", err)
	}

	snap, err := corpus.DecodeSnapshot(body)
	if err != nil {
		return corpus.Snapshot{}, Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, rec, nil
}

// Load returns a snapshot by id.
func (s *Store) Load(ctx context.Context, id int64) (corpus.Snapshot, Record, error) {
	var (
		rec  Record
		body []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, body, created_at FROM snapshots WHERE id = $1
	`, id).Scan(&rec.ID, &rec.Label, &body, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Snapshot{}, Record{}, ErrNoSnapshots
	}
	if err != nil {
		return corpus.Snapshot{}, Record{}, fmt.Errorf("load snapshot %d: %w", id, err)
	}

	snap, err := corpus.DecodeSnapshot(body)
	if err != nil {
		return corpus.Snapshot{}, Record{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, rec, nil
}

// List returns snapshot records newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, created_at
		FROM snapshots
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Label, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

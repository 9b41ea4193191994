package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tinybeatz/internal/models"
)

// MemoryPath opens a private in-memory history database.
const MemoryPath = ":memory:"

// SQLiteStore implements HistoryStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != MemoryPath {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS inputs (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		k INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_inputs_created_at ON inputs(created_at);

	CREATE TABLE IF NOT EXISTS outputs (
		id TEXT PRIMARY KEY,
		input_id TEXT NOT NULL,
		genre TEXT NOT NULL,
		score REAL NOT NULL,
		track_id TEXT,
		name TEXT NOT NULL,
		artist TEXT,
		url TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (input_id) REFERENCES inputs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_outputs_input_id ON outputs(input_id);
	`
	_, err := db.Exec(schema)
	return err
}

// AppendInput inserts a query and returns its UUID.
func (s *SQLiteStore) AppendInput(ctx context.Context, query string, k int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO inputs (id, query, k, created_at) VALUES (?, ?, ?, ?)`,
		id, query, k, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append input: %w", err)
	}
	return id, nil
}

// AppendOutput inserts one returned track for inputID.
func (s *SQLiteStore) AppendOutput(ctx context.Context, inputID, genre string, score float64, track *models.Track) error {
	if track == nil {
		return fmt.Errorf("track is nil")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outputs (id, input_id, genre, score, track_id, name, artist, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), inputID, genre, score, track.ID, track.Name, track.Artist, track.URL, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append output: %w", err)
	}
	return nil
}

// AppendOutputs inserts multiple outputs in a transaction.
func (s *SQLiteStore) AppendOutputs(ctx context.Context, inputID string, matches []*models.TrackMatch) error {
	if len(matches) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outputs (id, input_id, genre, score, track_id, name, artist, url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, m := range matches {
		if m == nil || m.Track == nil {
			continue
		}
		t := m.Track
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), inputID, m.Genre, m.Score, t.ID, t.Name, t.Artist, t.URL, now); err != nil {
			return fmt.Errorf("failed to append output: %w", err)
		}
	}
	return tx.Commit()
}

// CountInputs returns the number of recorded queries.
func (s *SQLiteStore) CountInputs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM inputs`).Scan(&count)
	return count, err
}

// CountOutputs returns the number of recorded tracks.
func (s *SQLiteStore) CountOutputs(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outputs`).Scan(&count)
	return count, err
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/osa030/slidecast/internal/domain/slide"
)

const createDecksTable = `
CREATE TABLE IF NOT EXISTS decks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	slide_count INTEGER NOT NULL DEFAULT 0,
	data TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// SQLiteStore stores decks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. A path ending in
// a separator or naming a directory stores into decks.db inside it.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "decks.db")
	} else if filepath.Ext(path) == "" && path != ":memory:" {
		path = filepath.Join(path, "decks.db")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if _, err := db.ExecContext(ctx, createDecksTable); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create decks table")
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces a deck.
func (s *SQLiteStore) Save(ctx context.Context, deck *slide.Deck) (string, error) {
	id, err := ensureID(deck)
	if err != nil {
		return "", err
	}
	data, err := encodeRecord(deck)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decks (id, title, slide_count, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			slide_count = excluded.slide_count,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP`,
		id, deck.Meta.Title, len(deck.Slides), string(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to save deck")
	}
	return id, nil
}

// Load retrieves a deck.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*slide.Deck, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM decks WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrDeckNotFound, "%s", id)
		}
		return nil, errors.Wrap(err, "failed to load deck")
	}
	return decodeRecord([]byte(data))
}

// Delete removes a deck.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete deck")
	}
	return nil
}

// List returns deck IDs in lexical order.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM decks ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list decks")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan deck id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate decks")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/slidecast/internal/domain/slide"
)

// FileStore stores each deck as a JSON file in a directory.
type FileStore struct {
	BasePath string
}

// NewFileStore creates a FileStore. An empty basePath means "data/decks".
func NewFileStore(basePath string) *FileStore {
	if basePath == "" {
		basePath = filepath.Join("data", "decks")
	}
	return &FileStore{BasePath: basePath}
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Save writes the deck atomically: temp file, fsync, rename.
func (s *FileStore) Save(_ context.Context, deck *slide.Deck) (string, error) {
	id, err := ensureID(deck)
	if err != nil {
		return "", err
	}
	data, err := encodeRecord(deck)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create deck directory")
	}

	tmp, err := os.CreateTemp(s.BasePath, "tmp-"+id+"-*.json")
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		return "", errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpPath, s.path(id)); err != nil {
		return "", errors.Wrap(err, "failed to rename temp file")
	}
	return id, nil
}

// Load reads a deck.
func (s *FileStore) Load(_ context.Context, id string) (*slide.Deck, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(ErrDeckNotFound, "%s", id)
		}
		return nil, errors.Wrap(err, "failed to read deck file")
	}
	return decodeRecord(data)
}

// Delete removes a deck. Deleting a missing deck is not an error.
func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to delete deck file")
	}
	return nil
}

// List returns stored deck IDs in lexical order.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, errors.Wrap(err, "failed to list decks")
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// Package store persists published decks.
package store

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/config"
)

// Errors
var (
	ErrDeckNotFound = errors.New("deck not found")
	ErrInvalidID    = errors.New("invalid deck id")
)

// DeckStore persists decks by ID.
type DeckStore interface {
	// Save stores deck, assigning a new ID when deck.ID is empty, and
	// returns the ID.
	Save(ctx context.Context, deck *slide.Deck) (string, error)
	Load(ctx context.Context, id string) (*slide.Deck, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NewFromConfig opens the configured store.
func NewFromConfig(ctx context.Context, cfg config.StoreConfig) (DeckStore, error) {
	switch cfg.Type {
	case "file", "":
		return NewFileStore(cfg.Path), nil
	case "redis":
		s := NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			WithPrefix(cfg.Redis.Prefix), WithTTL(cfg.TTL()))
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	default:
		return nil, errors.Newf("unsupported store type: %s", cfg.Type)
	}
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return errors.Wrapf(ErrInvalidID, "%q", id)
	}
	return nil
}

// ensureID assigns a fresh ID to deck if it has none.
func ensureID(deck *slide.Deck) (string, error) {
	if deck == nil {
		return "", errors.New("nil deck")
	}
	if deck.ID == "" {
		deck.ID = uuid.New().String()
	}
	return deck.ID, validateID(deck.ID)
}

// record is the persisted form of a deck. Unlike the slide JSON wire
// format it keeps each slide's Markdown source.
type record struct {
	ID        string        `json:"id"`
	Meta      slide.Meta    `json:"meta"`
	Slides    []slideRecord `json:"slides"`
	CreatedAt time.Time     `json:"created_at"`
}

type slideRecord struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown,omitempty"`
}

func encodeRecord(deck *slide.Deck) ([]byte, error) {
	rec := record{
		ID:        deck.ID,
		Meta:      deck.Meta,
		Slides:    make([]slideRecord, len(deck.Slides)),
		CreatedAt: time.Now().UTC(),
	}
	for i, s := range deck.Slides {
		rec.Slides[i] = slideRecord{HTML: s.HTML, Markdown: s.Markdown}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal deck")
	}
	return data, nil
}

func decodeRecord(data []byte) (*slide.Deck, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal deck")
	}
	deck := &slide.Deck{
		ID:     rec.ID,
		Meta:   rec.Meta,
		Slides: make([]slide.Slide, len(rec.Slides)),
	}
	for i, s := range rec.Slides {
		deck.Slides[i] = slide.Slide{HTML: s.HTML, Markdown: s.Markdown}
	}
	return deck, nil
}

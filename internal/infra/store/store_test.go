package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/slidecast/internal/domain/slide"
	"github.com/osa030/slidecast/internal/infra/config"
)

func sampleDeck(id string) *slide.Deck {
	return &slide.Deck{
		ID:   id,
		Meta: slide.Meta{Title: "Quarterly Review", Rate: 1.1},
		Slides: []slide.Slide{
			{HTML: "<h1>Intro</h1>", Markdown: "# Intro"},
			{HTML: "<h2>Numbers</h2>\n<p>Up.</p>", Markdown: "## Numbers\n\nUp."},
		},
	}
}

// runDeckStoreContract checks behavior every DeckStore must share.
func runDeckStoreContract(t *testing.T, s DeckStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		id, err := s.Save(ctx, sampleDeck("deck-1"))
		require.NoError(t, err)
		assert.Equal(t, "deck-1", id)

		loaded, err := s.Load(ctx, "deck-1")
		require.NoError(t, err)
		assert.Equal(t, "deck-1", loaded.ID)
		assert.Equal(t, "Quarterly Review", loaded.Meta.Title)
		assert.InDelta(t, 1.1, loaded.Meta.Rate, 1e-9)
		require.Len(t, loaded.Slides, 2)
		assert.Equal(t, "<h2>Numbers</h2>\n<p>Up.</p>", loaded.Slides[1].HTML)
		assert.Equal(t, "## Numbers\n\nUp.", loaded.Slides[1].Markdown)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		deck := sampleDeck("deck-1")
		deck.Meta.Title = "Revised"
		_, err := s.Save(ctx, deck)
		require.NoError(t, err)

		loaded, err := s.Load(ctx, "deck-1")
		require.NoError(t, err)
		assert.Equal(t, "Revised", loaded.Meta.Title)
	})

	t.Run("Save Assigns ID", func(t *testing.T) {
		deck := sampleDeck("")
		id, err := s.Save(ctx, deck)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, deck.ID)

		_, err = s.Load(ctx, id)
		assert.NoError(t, err)
		require.NoError(t, s.Delete(ctx, id))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := s.Load(ctx, "missing")
		assert.ErrorIs(t, err, ErrDeckNotFound)
	})

	t.Run("Invalid ID", func(t *testing.T) {
		_, err := s.Load(ctx, "../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidID)

		_, err = s.Save(ctx, sampleDeck("a b"))
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("List", func(t *testing.T) {
		_, err := s.Save(ctx, sampleDeck("deck-2"))
		require.NoError(t, err)

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"deck-1", "deck-2"}, ids)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "deck-1"))
		_, err := s.Load(ctx, "deck-1")
		assert.ErrorIs(t, err, ErrDeckNotFound)

		// Deleting twice is fine.
		assert.NoError(t, s.Delete(ctx, "deck-1"))

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"deck-2"}, ids)
	})
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "decks")
	s := NewFileStore(dir)
	runDeckStoreContract(t, s)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "tmp-", "temp files must not be left behind")
	}
}

func TestFileStore_ListMissingDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "absent"))
	ids, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, WithPrefix("test:"))
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	runDeckStoreContract(t, s)

	assert.True(t, mr.Exists("test:deck:deck-2"))
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "", 0, WithTTL(time.Minute))
	defer s.Close()
	ctx := context.Background()

	_, err := s.Save(ctx, sampleDeck("short"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("slidecast:deck:short"))

	mr.FastForward(2 * time.Minute)
	_, err = s.Load(ctx, "short")
	assert.ErrorIs(t, err, ErrDeckNotFound)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "decks.db")
	s, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	runDeckStoreContract(t, s)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr bool
	}{
		{
			name: "file",
			cfg:  config.StoreConfig{Type: "file", Path: t.TempDir()},
			want: &FileStore{},
		},
		{
			name: "sqlite",
			cfg:  config.StoreConfig{Type: "sqlite", Path: t.TempDir()},
			want: &SQLiteStore{},
		},
		{
			name: "redis",
			cfg: config.StoreConfig{Type: "redis", Redis: config.RedisConfig{
				Addr: mr.Addr(), Prefix: "x:",
			}},
			want: &RedisStore{},
		},
		{
			name:    "unknown",
			cfg:     config.StoreConfig{Type: "mongo"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFromConfig(ctx, tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}

package store

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	backend "github.com/redis/go-redis/v9"

	"github.com/osa030/slidecast/internal/domain/slide"
)

// noExpiryScore is the index score for decks without a TTL (2100-01-01).
const noExpiryScore = 4102444800

// RedisStore stores decks as JSON strings with a sorted-set index whose
// scores are expiry times.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL sets the expiration for decks.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore connects to redis.
func NewRedisStore(address, password string, db int, opts ...Option) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "slidecast:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "deck:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "decks"
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "failed to connect to redis")
	}
	return nil
}

// Save stores the deck and indexes it.
func (s *RedisStore) Save(ctx context.Context, deck *slide.Deck) (string, error) {
	id, err := ensureID(deck)
	if err != nil {
		return "", err
	}
	data, err := encodeRecord(deck)
	if err != nil {
		return "", err
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = noExpiryScore
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(id), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", errors.Wrap(err, "failed to save deck to redis")
	}
	return id, nil
}

// Load retrieves a deck.
func (s *RedisStore) Load(ctx context.Context, id string) (*slide.Deck, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, errors.Wrapf(ErrDeckNotFound, "%s", id)
		}
		return nil, errors.Wrap(err, "failed to get deck from redis")
	}
	return decodeRecord(val)
}

// Delete removes a deck and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to delete deck from redis")
	}
	return nil
}

// List prunes expired index entries and returns the remaining IDs.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, errors.Wrap(err, "failed to prune expired decks")
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list decks")
	}
	return ids, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelEspejo/DreamDX-AI/internal/model/dream"
)

// Common errors for session store operations.
var (
	ErrInvalidConfig   = errors.New("invalid store configuration")
	ErrInvalidDriver   = errors.New("invalid store driver")
	ErrAlreadyExists   = errors.New("session already exists")
	ErrVersionConflict = errors.New("session version conflict")
	ErrNotFound        = errors.New("session not found")
)

// Store is durable key-value persistence for dream sessions. It carries
// no business logic; correctness under concurrent writers relies on the
// compare-and-swap semantics of Update.
type Store interface {
	// Create persists a new session with Version set to 1.
	// Returns ErrAlreadyExists if the session ID is taken.
	Create(ctx context.Context, sess *dream.Session) error

	// Get retrieves a session by ID.
	// Returns nil if the session is not found (not an error).
	Get(ctx context.Context, id string) (*dream.Session, error)

	// Update persists an existing session with optimistic locking:
	// the write applies only if sess.Version matches the stored
	// version, and increments Version atomically with the rest of
	// the record. Returns ErrVersionConflict on a mismatch and
	// ErrNotFound if the session does not exist.
	Update(ctx context.Context, sess *dream.Session) error

	// ListByOwner returns every session owned by ownerID, including
	// ended and soft-deleted ones. Filtering is the caller's job.
	ListByOwner(ctx context.Context, ownerID string) ([]*dream.Session, error)

	// Delete removes a session record entirely.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// Driver selects the storage backend.
type Driver string

const (
	DriverMemory Driver = "memory"
	DriverRedis  Driver = "redis"
)

// Option is a functional option for configuring a store.
type Option func(*config)

type config struct {
	redisClient *redis.Client
	redisTTL    time.Duration
}

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *config) {
		c.redisClient = client
	}
}

// WithRedisTTL sets the TTL applied to Redis session keys.
func WithRedisTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.redisTTL = ttl
	}
}

// New creates a Store for the given driver. The Redis driver requires
// WithRedisClient.
func New(driver Driver, opts ...Option) (Store, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	switch driver {
	case DriverMemory:
		return newMemoryStore(), nil

	case DriverRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return newRedisStore(cfg.redisClient, cfg.redisTTL), nil

	default:
		return nil, ErrInvalidDriver
	}
}

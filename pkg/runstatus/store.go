// Package runstatus publishes the progress of running linkage runs to Redis.
package runstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	DefaultKeyPrefix = "fern:run:"
	DefaultTTL       = 24 * time.Hour
)

// ErrNotFound is returned when no progress is stored for a run
var ErrNotFound = errors.New("run progress not found")

// Config holds Redis connection configuration
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Backend is the part of the Redis client the store uses
type Backend interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Store reads and writes run progress
type Store struct {
	rdb       Backend
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
}

// Connect opens a Redis client and verifies it answers
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewStore(rdb Backend, cfg Config, logger ectologger.Logger) *Store {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, logger: logger, keyPrefix: prefix, ttl: ttl}
}

func (s *Store) key(runID string) string {
	return s.keyPrefix + runID
}

// Put stores the progress of a run
func (s *Store) Put(ctx context.Context, progress models.RunProgress) error {
	ctx, span := tracing.StartSpan(ctx, "runstatus.Store.Put")
	defer span.End()

	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode run progress: %w", err)
	}

	if err := s.rdb.Set(ctx, s.key(progress.RunID), data, s.ttl).Err(); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("run_id", progress.RunID).Error("Failed to store run progress")
		return fmt.Errorf("failed to store run progress: %w", err)
	}
	return nil
}

// Get returns the stored progress of a run
func (s *Store) Get(ctx context.Context, runID string) (*models.RunProgress, error) {
	ctx, span := tracing.StartSpan(ctx, "runstatus.Store.Get")
	defer span.End()

	raw, err := s.rdb.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read run progress: %w", err)
	}

	var progress models.RunProgress
	if err := json.Unmarshal([]byte(raw), &progress); err != nil {
		return nil, fmt.Errorf("failed to decode run progress: %w", err)
	}
	return &progress, nil
}

// Tracker writes the progress of one run, at most once per interval while running
type Tracker struct {
	store    *Store
	interval time.Duration

	mu        sync.Mutex
	progress  models.RunProgress
	lastWrite time.Time
}

// Track stores the run as running with zero processed records and returns its tracker
func (s *Store) Track(ctx context.Context, runID string, kind models.RunKind, total int, interval time.Duration) (*Tracker, error) {
	t := &Tracker{
		store:    s,
		interval: interval,
		progress: models.RunProgress{
			RunID:  runID,
			Kind:   kind,
			Status: models.RunStatusRunning,
			Total:  total,
		},
	}
	if err := t.write(ctx, time.Now()); err != nil {
		return nil, err
	}
	return t, nil
}

// Report records processed of total records. Safe for concurrent use.
func (t *Tracker) Report(ctx context.Context, processed, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if processed < t.progress.Processed {
		return nil
	}
	t.progress.Processed = processed
	t.progress.Total = total

	now := time.Now()
	if processed < total && now.Sub(t.lastWrite) < t.interval {
		return nil
	}
	return t.write(ctx, now)
}

// Finish stores the final status of the run
func (t *Tracker) Finish(ctx context.Context, runErr error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress.Status = models.RunStatusCompleted
	if runErr != nil {
		t.progress.Status = models.RunStatusFailed
		t.progress.Error = runErr.Error()
	}
	return t.write(ctx, time.Now())
}

func (t *Tracker) write(ctx context.Context, now time.Time) error {
	t.progress.UpdatedAt = now.UTC()
	if err := t.store.Put(ctx, t.progress); err != nil {
		return err
	}
	t.lastWrite = now
	return nil
}

// Package cache mirrors the latest market snapshot into Redis so other
// processes can read it without calling the desk.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/navid-fn/flowscope/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "flowscope:snapshot:"

// Setter is the part of the Redis client the mirror uses.
type Setter interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// SnapshotSource returns the latest published snapshot, or nil before the
// first one.
type SnapshotSource interface {
	Snapshot() *models.MarketSnapshot
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Interval time.Duration
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key is the Redis key holding the snapshot for symbol.
func Key(symbol string) string { return keyPrefix + symbol }

// Mirror copies the snapshot to Redis on every interval when it changed.
// Entries expire after TTL, so a stopped desk leaves no stale data behind.
type Mirror struct {
	client   Setter
	source   SnapshotSource
	ttl      time.Duration
	interval time.Duration
	logger   *logrus.Logger

	lastEpoch   uint64
	lastUpdated time.Time
}

func NewMirror(client Setter, source SnapshotSource, cfg Config, logger *logrus.Logger) *Mirror {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Mirror{
		client:   client,
		source:   source,
		ttl:      cfg.TTL,
		interval: cfg.Interval,
		logger:   logger,
	}
}

func (m *Mirror) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Push(ctx); err != nil && ctx.Err() == nil {
				m.logger.WithError(err).Warn("Snapshot mirror failed")
			}
		}
	}
}

// Push writes the current snapshot if it differs from the last one
// written, and reports whether it wrote.
func (m *Mirror) Push(ctx context.Context) (bool, error) {
	snap := m.source.Snapshot()
	if snap == nil {
		return false, nil
	}
	if snap.Epoch == m.lastEpoch && snap.UpdatedAt.Equal(m.lastUpdated) {
		return false, nil
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := m.client.Set(ctx, Key(snap.Symbol), data, m.ttl).Err(); err != nil {
		return false, err
	}

	m.lastEpoch, m.lastUpdated = snap.Epoch, snap.UpdatedAt
	return true, nil
}

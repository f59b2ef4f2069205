package webhook

import (
	"context"
	"time"

	"callintake_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "webhook:event:"

// Deduper suppresses redelivered provider events by claiming each event ID
// in Redis with SETNX. The provider delivers at least once; a claimed ID
// means the event was already processed.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
	log *logger.Logger
}

// NewDeduper creates a Redis-backed event deduper. A nil client disables
// dedupe entirely.
func NewDeduper(rdb *redis.Client, ttl time.Duration, log *logger.Logger) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{rdb: rdb, ttl: ttl, log: log}
}

// Seen claims the event ID and reports whether it was already claimed.
// Events without an ID cannot be deduplicated and always process. A Redis
// outage degrades to processing: an occasional duplicate beats dropping a
// live call event.
func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	if d.rdb == nil || eventID == "" {
		return false
	}

	claimed, err := d.rdb.SetNX(ctx, dedupeKeyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		d.log.Warn("event dedupe unavailable, processing optimistically", "error", err)
		return false
	}
	return !claimed
}

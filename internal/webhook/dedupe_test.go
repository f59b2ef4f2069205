package webhook

import (
	"context"
	"testing"
	"time"

	"callintake_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDedupeFixture(t *testing.T) (*Deduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewDeduper(rdb, time.Hour, logger.New("test")), mr
}

func TestDeduperSuppressesRedelivery(t *testing.T) {
	d, _ := newDedupeFixture(t)
	ctx := context.Background()

	if d.Seen(ctx, "evt-1") {
		t.Error("first delivery must not be seen")
	}
	if !d.Seen(ctx, "evt-1") {
		t.Error("redelivery must be seen")
	}
	if d.Seen(ctx, "evt-2") {
		t.Error("distinct event id must not be seen")
	}
}

func TestDeduperClaimExpires(t *testing.T) {
	d, mr := newDedupeFixture(t)
	ctx := context.Background()

	d.Seen(ctx, "evt-1")
	mr.FastForward(2 * time.Hour)

	if d.Seen(ctx, "evt-1") {
		t.Error("claim must expire with the TTL")
	}
}

func TestDeduperDegradesOpenOnOutage(t *testing.T) {
	d, mr := newDedupeFixture(t)
	ctx := context.Background()
	mr.Close()

	if d.Seen(ctx, "evt-1") {
		t.Error("redis outage must degrade to processing, not dropping")
	}
}

func TestDeduperDisabledWithoutClient(t *testing.T) {
	d := NewDeduper(nil, time.Hour, logger.New("test"))
	if d.Seen(context.Background(), "evt-1") || d.Seen(context.Background(), "evt-1") {
		t.Error("nil client disables dedupe entirely")
	}
}

func TestDeduperIgnoresEmptyEventID(t *testing.T) {
	d, _ := newDedupeFixture(t)
	ctx := context.Background()

	if d.Seen(ctx, "") || d.Seen(ctx, "") {
		t.Error("events without an id cannot be deduplicated")
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callintake_backend/internal/calls/repository"
	"callintake_backend/internal/calls/sse"
	"callintake_backend/internal/calls/transport"
	"callintake_backend/internal/events"
	"callintake_backend/internal/intent"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
)

// captureBus records published events for assertions.
type captureBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *captureBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *captureBus) Subscribe(string, events.Handler) {}

func (b *captureBus) byName(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Event
	for _, e := range b.published {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeRecordStore struct {
	mu      sync.Mutex
	records []repository.CallRecord
	saveErr error
}

func (f *fakeRecordStore) Save(_ context.Context, rec *repository.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRecordStore) ListRecent(_ context.Context, companyID uuid.UUID, limit int) ([]repository.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.CallRecord
	for _, rec := range f.records {
		if rec.CompanyID == companyID && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fixture struct {
	svc   *Service
	bus   *captureBus
	store *fakeRecordStore
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("test")
	f := &fixture{
		bus:   &captureBus{},
		store: &fakeRecordStore{},
		now:   time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	f.svc = New(NewRegistry(), intent.NewClassifier(intent.DefaultRuleset()), f.store, f.bus, sse.New(log), log)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestCallLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-1", companyID, "+15551230001", "+15559870002", f.now)

	session, ok := f.svc.registry.Get("call-1")
	if !ok {
		t.Fatal("session not registered")
	}
	if session.State != transport.StateRinging {
		t.Errorf("state = %s, want RINGING", session.State)
	}

	f.advance(2 * time.Second)
	f.svc.HandleCallAnswered(ctx, "call-1", companyID, f.now)
	if session.State != transport.StateAnswered {
		t.Errorf("state = %s, want ANSWERED", session.State)
	}

	f.advance(5 * time.Second)
	f.svc.HandleTranscript(ctx, "call-1", companyID, "caller", "my ac stopped working, need someone to take a look", f.now)
	if session.State != transport.StateInProgress {
		t.Errorf("state = %s, want IN_PROGRESS", session.State)
	}

	f.advance(53 * time.Second)
	if err := f.svc.HandleCallEnded(ctx, "call-1", "positive", f.now); err != nil {
		t.Fatalf("HandleCallEnded: %v", err)
	}

	if _, ok := f.svc.registry.Get("call-1"); ok {
		t.Error("session must be evicted after the terminal event")
	}
	if len(f.store.records) != 1 {
		t.Fatalf("got %d records, want 1", len(f.store.records))
	}
	rec := f.store.records[0]
	if rec.DurationSec != 60 {
		t.Errorf("duration = %ds, want 60 derived from start and end", rec.DurationSec)
	}
	if rec.Sentiment != "positive" {
		t.Errorf("sentiment = %q", rec.Sentiment)
	}
	if len(f.bus.byName(events.EventNameCallEnded)) != 1 {
		t.Error("expected exactly one call.ended event")
	}
}

func TestEmergencySideEffectFiresExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-2", companyID, "+15551230001", "", f.now)
	f.svc.HandleTranscript(ctx, "call-2", companyID, "caller", "there is a gas leak in my basement", f.now)
	f.svc.HandleTranscript(ctx, "call-2", companyID, "caller", "i repeat, a gas leak, please hurry", f.now)
	f.svc.HandleTranscript(ctx, "call-2", companyID, "caller", "it smells terrible", f.now)

	fired := f.bus.byName(events.EventNameEmergencyDetected)
	if len(fired) != 1 {
		t.Fatalf("emergency event fired %d times, want exactly 1", len(fired))
	}
	ev := fired[0].(events.EmergencyDetected)
	if ev.MatchedText != "gas leak" {
		t.Errorf("matched text = %q", ev.MatchedText)
	}

	session, _ := f.svc.registry.Get("call-2")
	if !session.IsEmergency {
		t.Error("emergency flag must stay set")
	}
}

func TestEmergencyFlagIsMonotone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-3", companyID, "+15551230001", "", f.now)
	f.svc.HandleTranscript(ctx, "call-3", companyID, "caller", "smoke coming from the furnace", f.now)
	f.svc.HandleTranscript(ctx, "call-3", companyID, "caller", "actually how much would a tune up cost", f.now)

	session, _ := f.svc.registry.Get("call-3")
	if !session.IsEmergency {
		t.Error("a benign later fragment must not clear the emergency flag")
	}
	if session.CallType != string(intent.CallTypeEmergency) {
		t.Errorf("call type = %s, want EMERGENCY to stick", session.CallType)
	}
}

func TestDuplicateTerminalDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-4", companyID, "+15551230001", "", f.now)
	if err := f.svc.HandleCallEnded(ctx, "call-4", "", f.now); err != nil {
		t.Fatalf("first terminal: %v", err)
	}
	if err := f.svc.HandleCallEnded(ctx, "call-4", "", f.now); err != nil {
		t.Fatalf("duplicate terminal must be acknowledged, got %v", err)
	}

	if len(f.store.records) != 1 {
		t.Errorf("got %d records, want 1; duplicates must not persist twice", len(f.store.records))
	}
}

func TestTranscriptBeforeLifecycleCreatesSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleTranscript(ctx, "call-5", companyID, "caller", "my heater is broken", f.now)

	session, ok := f.svc.registry.Get("call-5")
	if !ok {
		t.Fatal("out-of-order transcript must create the session")
	}
	if session.State != transport.StateInProgress {
		t.Errorf("state = %s, want IN_PROGRESS", session.State)
	}
}

func TestTerminalPersistFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-6", companyID, "+15551230001", "", f.now)

	f.store.saveErr = errors.New("connection refused")
	err := f.svc.HandleCallEnded(ctx, "call-6", "", f.now)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if _, ok := f.svc.registry.Get("call-6"); !ok {
		t.Fatal("session must survive a failed persistence write for the retry")
	}

	// Provider redelivery completes the call.
	f.store.saveErr = nil
	if err := f.svc.HandleCallEnded(ctx, "call-6", "", f.now); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := f.svc.registry.Get("call-6"); ok {
		t.Error("session must be evicted after the successful retry")
	}
}

func TestSnapshotScopedToCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyA := uuid.New()
	companyB := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-a1", companyA, "+15551110001", "", f.now)
	f.svc.HandleCallRinging(ctx, "call-a2", companyA, "+15551110002", "", f.now)
	f.svc.HandleTranscript(ctx, "call-a2", companyA, "caller", "burning smell from the vents", f.now)
	f.svc.HandleCallRinging(ctx, "call-b1", companyB, "+15552220001", "", f.now)

	snap := f.svc.Snapshot(companyA)
	if snap.Stats.ActiveCalls != 2 {
		t.Errorf("active calls = %d, want 2", snap.Stats.ActiveCalls)
	}
	if snap.Stats.EmergencyCalls != 1 {
		t.Errorf("emergency calls = %d, want 1", snap.Stats.EmergencyCalls)
	}
	for _, view := range snap.Sessions {
		if view.CompanyID != companyA {
			t.Errorf("snapshot leaked session %s of another company", view.CallID)
		}
	}
}

func TestServiceTypesReplaceFallbackOnRealMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-7", companyID, "+15551230001", "", f.now)
	f.svc.HandleTranscript(ctx, "call-7", companyID, "caller", "hi, can someone come by", f.now)

	session, _ := f.svc.registry.Get("call-7")
	if len(session.ServiceTypes) != 1 || session.ServiceTypes[0] != "general_hvac" {
		t.Fatalf("service types = %v, want the fallback", session.ServiceTypes)
	}

	f.svc.HandleTranscript(ctx, "call-7", companyID, "caller", "the furnace makes a rattling noise", f.now)
	session.Lock()
	types := append([]string(nil), session.ServiceTypes...)
	session.Unlock()

	for _, typ := range types {
		if typ == "general_hvac" {
			t.Errorf("fallback should drop once a real category matches, got %v", types)
		}
	}
	found := false
	for _, typ := range types {
		if typ == "heating" {
			found = true
		}
	}
	if !found {
		t.Errorf("service types = %v, want heating", types)
	}
}

func TestAgentTurnsAreNotClassified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	companyID := uuid.New()

	f.svc.HandleCallRinging(ctx, "call-8", companyID, "+15551230001", "", f.now)
	f.svc.HandleTranscript(ctx, "call-8", companyID, "assistant", "if this were a gas leak I would escalate", f.now)

	session, _ := f.svc.registry.Get("call-8")
	if session.IsEmergency {
		t.Error("assistant speech must never trip the emergency classifier")
	}
	if len(session.Transcript) != 1 {
		t.Errorf("transcript turns = %d, want 1; agent turns are still recorded", len(session.Transcript))
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"callintake_backend/internal/companies"
	"callintake_backend/internal/events"
	"callintake_backend/internal/hours"
	"callintake_backend/internal/intent"
	schedtransport "callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeTracker struct {
	from      string
	emergency bool
	live      bool
}

func (f *fakeTracker) SessionInfo(string) (string, bool, bool) {
	return f.from, f.emergency, f.live
}

type fakeBooker struct {
	slots    []time.Time
	alts     []time.Time
	bookResp *schedtransport.AppointmentResponse
	bookErr  error
	lastReq  schedtransport.BookAppointmentRequest
}

func (f *fakeBooker) Book(_ context.Context, _ uuid.UUID, req schedtransport.BookAppointmentRequest) (*schedtransport.AppointmentResponse, error) {
	f.lastReq = req
	return f.bookResp, f.bookErr
}

func (f *fakeBooker) AvailableSlots(context.Context, uuid.UUID, time.Time, int) ([]time.Time, error) {
	return f.slots, nil
}

func (f *fakeBooker) Alternatives(context.Context, uuid.UUID, time.Time, int) ([]time.Time, error) {
	return f.alts, nil
}

type fakeDirectory struct {
	schedule hours.WeekSchedule
	catalog  []companies.CatalogEntry
}

func (f *fakeDirectory) GetWeekSchedule(context.Context, uuid.UUID) (hours.WeekSchedule, error) {
	return f.schedule, nil
}

func (f *fakeDirectory) ListCatalog(context.Context, uuid.UUID) ([]companies.CatalogEntry, error) {
	return f.catalog, nil
}

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func openSchedule() hours.WeekSchedule {
	ws := hours.WeekSchedule{}
	for d := time.Monday; d <= time.Friday; d++ {
		ws[d] = hours.DaySchedule{Opens: "08:00", Closes: "17:00"}
	}
	return ws
}

func newDispatcherFixture(tracker *fakeTracker, booker *fakeBooker, dir *fakeDirectory, bus *recordingBus) *Dispatcher {
	d := NewDispatcher(tracker, booker, dir, intent.NewClassifier(intent.DefaultRuleset()), bus, logger.New("test"))
	d.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	return d
}

func call(name string, args any) FunctionCallPayload {
	raw, _ := json.Marshal(args)
	return FunctionCallPayload{Name: name, Arguments: raw}
}

func TestDispatchBookAppointmentSpeech(t *testing.T) {
	booker := &fakeBooker{bookResp: &schedtransport.AppointmentResponse{
		StartTime: time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC),
		Status:    schedtransport.StatusScheduled,
	}}
	d := newDispatcherFixture(&fakeTracker{from: "+15551234567", live: true}, booker, &fakeDirectory{}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("book_appointment", BookAppointmentArgs{CustomerName: "Pat Winters"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "Tuesday, June 3 at 8:00 AM") {
		t.Errorf("speech = %q, want spoken slot time", speech)
	}
	if booker.lastReq.CustomerPhone != "+15551234567" {
		t.Errorf("caller phone should default to the session's number, got %q", booker.lastReq.CustomerPhone)
	}
}

func TestDispatchBookAppointmentEmergencyPriority(t *testing.T) {
	booker := &fakeBooker{bookResp: &schedtransport.AppointmentResponse{
		StartTime: time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC),
	}}
	d := newDispatcherFixture(&fakeTracker{from: "+15551234567", emergency: true, live: true}, booker, &fakeDirectory{}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("book_appointment", BookAppointmentArgs{CustomerName: "Pat Winters"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if booker.lastReq.Priority != schedtransport.PriorityEmergency {
		t.Errorf("priority = %s, want EMERGENCY from the live session flag", booker.lastReq.Priority)
	}
	if !strings.Contains(speech, "Help is on the way") {
		t.Errorf("speech = %q", speech)
	}
}

func TestDispatchBookAppointmentFallbackSpeech(t *testing.T) {
	booker := &fakeBooker{bookResp: &schedtransport.AppointmentResponse{
		StartTime: time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC),
		Status:    schedtransport.StatusFallback,
		Fallback:  true,
	}}
	d := newDispatcherFixture(&fakeTracker{live: true}, booker, &fakeDirectory{}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("book_appointment", BookAppointmentArgs{CustomerName: "Pat Winters", CustomerPhone: "+15550001111"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "earliest I could reserve") {
		t.Errorf("fallback booking needs the degraded phrasing, got %q", speech)
	}
}

func TestDispatchBookAppointmentFullDayOffersAlternatives(t *testing.T) {
	booker := &fakeBooker{alts: []time.Time{
		time.Date(2025, 6, 4, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC),
	}}
	d := newDispatcherFixture(&fakeTracker{live: true}, booker, &fakeDirectory{}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("book_appointment", BookAppointmentArgs{CustomerName: "Pat Winters", CustomerPhone: "+15550001111", PreferredDate: "2025-06-03"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "fully booked") || !strings.Contains(speech, "Wednesday, June 4 at 8:00 AM") {
		t.Errorf("speech = %q, want alternatives offer", speech)
	}
	if booker.lastReq.CustomerName != "" {
		t.Error("a fully booked preferred day must not book anything")
	}
}

func TestDispatchGetPricingComposesSurcharges(t *testing.T) {
	dir := &fakeDirectory{
		schedule: openSchedule(),
		catalog: []companies.CatalogEntry{
			{Category: "heating", MinPriceCents: 15000, MaxPriceCents: 45000},
		},
	}
	d := newDispatcherFixture(&fakeTracker{emergency: true, live: true}, &fakeBooker{}, dir, &recordingBus{})
	// Monday 10:00 is inside business hours: emergency surcharge only.
	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("get_pricing", GetPricingArgs{Description: "the furnace is dead"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "between $225 and $675") {
		t.Errorf("speech = %q, want 1.5x emergency pricing", speech)
	}
	if !strings.Contains(speech, intent.DisclosureEmergency) {
		t.Errorf("speech = %q, want the emergency disclosure", speech)
	}
}

func TestDispatchGetPricingUnknownCategory(t *testing.T) {
	d := newDispatcherFixture(&fakeTracker{}, &fakeBooker{}, &fakeDirectory{schedule: openSchedule()}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("get_pricing", GetPricingArgs{ServiceType: "water_softener"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "follow up with a detailed quote") {
		t.Errorf("speech = %q, want the no-pricing fallback", speech)
	}
}

func TestDispatchCheckAvailability(t *testing.T) {
	booker := &fakeBooker{slots: []time.Time{
		time.Date(2025, 6, 3, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 3, 8, 30, 0, 0, time.UTC),
		time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 3, 9, 30, 0, 0, time.UTC),
	}}
	d := newDispatcherFixture(&fakeTracker{}, booker, &fakeDirectory{}, &recordingBus{})

	speech, err := d.Dispatch(context.Background(), uuid.New(), "c-1",
		call("check_availability", CheckAvailabilityArgs{Date: "2025-06-03"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "8:00 AM, 8:30 AM, 9:00 AM") {
		t.Errorf("speech = %q, want at most three spoken openings", speech)
	}
	if strings.Contains(speech, "9:30") {
		t.Errorf("speech = %q, the fourth slot must not be spoken", speech)
	}
}

func TestDispatchEscalatePublishesEvent(t *testing.T) {
	bus := &recordingBus{}
	d := newDispatcherFixture(&fakeTracker{from: "+15551234567", live: true}, &fakeBooker{}, &fakeDirectory{}, bus)

	companyID := uuid.New()
	speech, err := d.Dispatch(context.Background(), companyID, "c-1",
		call("escalate_to_human", EscalateArgs{Reason: "caller asked for a person"}))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(speech, "on-call technician") {
		t.Errorf("speech = %q", speech)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(bus.published))
	}
	ev, ok := bus.published[0].(events.EscalationRequested)
	if !ok {
		t.Fatalf("published %T, want EscalationRequested", bus.published[0])
	}
	if ev.Reason != "caller asked for a person" || ev.CompanyID != companyID {
		t.Errorf("event = %+v", ev)
	}
}

func TestDispatchUnknownFunction(t *testing.T) {
	d := newDispatcherFixture(&fakeTracker{}, &fakeBooker{}, &fakeDirectory{}, &recordingBus{})

	if _, err := d.Dispatch(context.Background(), uuid.New(), "c-1", call("order_pizza", nil)); err == nil {
		t.Error("unknown function must error")
	}
}

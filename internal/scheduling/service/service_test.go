package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callintake_backend/internal/events"
	"callintake_backend/internal/scheduling/repository"
	"callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeStore is an in-memory appointment store with the same overlap semantics
// as the SQL repository.
type fakeStore struct {
	mu        sync.Mutex
	appts     []repository.Appointment
	createErr error
}

func (f *fakeStore) Create(_ context.Context, appt *repository.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.appts = append(f.appts, *appt)
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, companyID, id uuid.UUID) (*repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appts {
		if f.appts[i].ID == id && f.appts[i].CompanyID == companyID {
			appt := f.appts[i]
			return &appt, nil
		}
	}
	return nil, apperr.NotFound("appointment not found")
}

func (f *fakeStore) ActiveInRange(_ context.Context, companyID uuid.UUID, from, to time.Time) ([]repository.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Appointment
	for _, appt := range f.appts {
		if appt.CompanyID != companyID {
			continue
		}
		if appt.Status == string(transport.StatusCancelled) || appt.Status == string(transport.StatusCompleted) {
			continue
		}
		if appt.StartTime.Before(to) && appt.EndTime().After(from) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, companyID, id uuid.UUID, status transport.AppointmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appts {
		if f.appts[i].ID == id && f.appts[i].CompanyID == companyID {
			f.appts[i].Status = string(status)
			return nil
		}
	}
	return apperr.NotFound("appointment not found")
}

func (f *fakeStore) ListUpcoming(_ context.Context, companyID uuid.UUID, from time.Time, limit int) ([]repository.Appointment, error) {
	return f.ActiveInRange(context.Background(), companyID, from, from.AddDate(1, 0, 0))
}

func newTestService(store *fakeStore, now time.Time) *Service {
	log := logger.New("test")
	svc := New(store, events.NewInMemoryBus(log), log)
	svc.now = func() time.Time { return now }
	return svc
}

func booked(companyID uuid.UUID, start time.Time, durationMin int) repository.Appointment {
	return repository.Appointment{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Status:      string(transport.StatusScheduled),
		StartTime:   start,
		DurationMin: durationMin,
	}
}

// day builds a time on a known calendar: 2025-06-02 is a Monday.
func day(d, hour, minute int) time.Time {
	return time.Date(2025, 6, d, hour, minute, 0, 0, time.UTC)
}

func TestAvailableSlotsEmptyDay(t *testing.T) {
	companyID := uuid.New()
	svc := newTestService(&fakeStore{}, day(2, 7, 0))

	slots, err := svc.AvailableSlots(context.Background(), companyID, day(2, 0, 0), 60)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	if len(slots) != 17 {
		t.Fatalf("got %d slots, want 17", len(slots))
	}
	if !slots[0].Equal(day(2, 8, 0)) {
		t.Errorf("first slot = %s, want 08:00", slots[0])
	}
	if !slots[len(slots)-1].Equal(day(2, 16, 0)) {
		t.Errorf("last slot = %s, want 16:00 so the hour fits before close", slots[len(slots)-1])
	}
}

func TestAvailableSlotsExcludesOverlaps(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{appts: []repository.Appointment{booked(companyID, day(2, 10, 0), 60)}}
	svc := newTestService(store, day(2, 7, 0))

	slots, err := svc.AvailableSlots(context.Background(), companyID, day(2, 0, 0), 60)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}

	blocked := map[string]bool{"09:30": true, "10:00": true, "10:30": true}
	for _, slot := range slots {
		if blocked[slot.Format("15:04")] {
			t.Errorf("slot %s overlaps the 10:00-11:00 appointment", slot.Format("15:04"))
		}
	}

	// Half-open windows: back-to-back slots at 09:00 and 11:00 stay open.
	var openTimes []string
	for _, slot := range slots {
		openTimes = append(openTimes, slot.Format("15:04"))
	}
	for _, want := range []string{"09:00", "11:00"} {
		found := false
		for _, got := range openTimes {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("slot %s should remain open, got %v", want, openTimes)
		}
	}
}

func TestAvailableSlotsIgnoresCancelled(t *testing.T) {
	companyID := uuid.New()
	cancelled := booked(companyID, day(2, 10, 0), 540)
	cancelled.Status = string(transport.StatusCancelled)
	store := &fakeStore{appts: []repository.Appointment{cancelled}}
	svc := newTestService(store, day(2, 7, 0))

	slots, err := svc.AvailableSlots(context.Background(), companyID, day(2, 0, 0), 60)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(slots) != 17 {
		t.Errorf("cancelled appointment should not block slots, got %d of 17", len(slots))
	}
}

func TestNextAvailableSkipsSunday(t *testing.T) {
	companyID := uuid.New()
	// Saturday evening: nothing left today, Sunday never offered.
	svc := newTestService(&fakeStore{}, day(7, 18, 0))

	decision, err := svc.NextAvailable(context.Background(), companyID, transport.PriorityMedium)
	if err != nil {
		t.Fatalf("NextAvailable: %v", err)
	}
	if decision.Fallback {
		t.Fatal("open horizon should not produce a fallback slot")
	}
	if !decision.Start.Equal(day(9, 8, 0)) {
		t.Errorf("start = %s, want Monday 08:00", decision.Start)
	}
}

func TestNextAvailableFallbackWhenHorizonFull(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{}
	// Fill every day of the horizon wall to wall.
	for offset := 0; offset < searchHorizonDays+1; offset++ {
		start := day(2, 0, 0).AddDate(0, 0, offset)
		store.appts = append(store.appts, booked(companyID, start, 24*60))
	}
	now := day(2, 7, 0)
	svc := newTestService(store, now)

	decision, err := svc.NextAvailable(context.Background(), companyID, transport.PriorityHigh)
	if err != nil {
		t.Fatalf("NextAvailable: %v", err)
	}
	if !decision.Fallback {
		t.Fatal("exhausted horizon must yield a fallback decision, not an error")
	}
	want := day(16, 9, 0)
	if !decision.Start.Equal(want) {
		t.Errorf("fallback start = %s, want %s", decision.Start, want)
	}
}

func TestNextAvailableEmergencyTakesEveningSlot(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{}
	// Business hours fully booked today and tomorrow morning open; an
	// emergency must still land tonight.
	store.appts = append(store.appts, booked(companyID, day(2, 8, 0), 9*60))
	svc := newTestService(store, day(2, 18, 25))

	decision, err := svc.NextAvailable(context.Background(), companyID, transport.PriorityEmergency)
	if err != nil {
		t.Fatalf("NextAvailable: %v", err)
	}
	if decision.Fallback {
		t.Fatal("unexpected fallback")
	}
	if !decision.Start.Equal(day(2, 19, 0)) {
		t.Errorf("start = %s, want tonight 19:00 (18:25 rounded up)", decision.Start)
	}
}

func TestNextAvailableEmergencyFallsThroughToTomorrow(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{appts: []repository.Appointment{booked(companyID, day(2, 19, 0), 5*60)}}
	svc := newTestService(store, day(2, 18, 25))

	decision, err := svc.NextAvailable(context.Background(), companyID, transport.PriorityEmergency)
	if err != nil {
		t.Fatalf("NextAvailable: %v", err)
	}
	if !decision.Start.Equal(day(3, 8, 0)) {
		t.Errorf("start = %s, want tomorrow 08:00 when tonight is blocked", decision.Start)
	}
}

func TestNextAvailableStandardNeverSameHourEvening(t *testing.T) {
	companyID := uuid.New()
	svc := newTestService(&fakeStore{}, day(2, 18, 25))

	decision, err := svc.NextAvailable(context.Background(), companyID, transport.PriorityMedium)
	if err != nil {
		t.Fatalf("NextAvailable: %v", err)
	}
	if !decision.Start.Equal(day(3, 8, 0)) {
		t.Errorf("standard priority after close should book tomorrow 08:00, got %s", decision.Start)
	}
}

func TestAlternativesEarliestSlotPerDay(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{appts: []repository.Appointment{
		booked(companyID, day(3, 8, 0), 60), // Tuesday 08:00 taken
	}}
	svc := newTestService(store, day(2, 7, 0))

	alts, err := svc.Alternatives(context.Background(), companyID, day(2, 0, 0), 3)
	if err != nil {
		t.Fatalf("Alternatives: %v", err)
	}
	want := []time.Time{day(3, 9, 0), day(4, 8, 0), day(5, 8, 0)}
	if len(alts) != len(want) {
		t.Fatalf("got %d alternatives, want %d", len(alts), len(want))
	}
	for i := range want {
		if !alts[i].Equal(want[i]) {
			t.Errorf("alternative %d = %s, want %s", i, alts[i], want[i])
		}
	}
}

func TestAlternativesSkipSunday(t *testing.T) {
	companyID := uuid.New()
	svc := newTestService(&fakeStore{}, day(6, 7, 0))

	// Preferred Friday: Saturday, then Monday; Sunday never appears.
	alts, err := svc.Alternatives(context.Background(), companyID, day(6, 0, 0), 2)
	if err != nil {
		t.Fatalf("Alternatives: %v", err)
	}
	if len(alts) != 2 {
		t.Fatalf("got %d alternatives, want 2", len(alts))
	}
	if alts[0].Weekday() == time.Sunday || alts[1].Weekday() == time.Sunday {
		t.Errorf("alternatives must skip Sunday, got %v", alts)
	}
}

func TestBookExplicitTimeConflict(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{appts: []repository.Appointment{booked(companyID, day(2, 10, 0), 60)}}
	svc := newTestService(store, day(2, 7, 0))

	start := day(2, 10, 30)
	_, err := svc.Book(context.Background(), companyID, transport.BookAppointmentRequest{
		CustomerName:  "Dana Frost",
		CustomerPhone: "+15553334444",
		StartTime:     &start,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestBookConcurrentOverlapExactlyOneWinner(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{}
	svc := newTestService(store, day(2, 7, 0))

	start := day(2, 10, 0)
	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(context.Background(), companyID, transport.BookAppointmentRequest{
				CustomerName:  "Race Caller",
				CustomerPhone: "+15550000000",
				StartTime:     &start,
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case apperr.Is(err, apperr.KindConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
	if len(store.appts) != 1 {
		t.Fatalf("store holds %d appointments, want 1", len(store.appts))
	}
}

func TestBookAutoSlotFallbackStatus(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{}
	for offset := 0; offset < searchHorizonDays+1; offset++ {
		start := day(2, 0, 0).AddDate(0, 0, offset)
		store.appts = append(store.appts, booked(companyID, start, 24*60))
	}
	svc := newTestService(store, day(2, 7, 0))

	resp, err := svc.Book(context.Background(), companyID, transport.BookAppointmentRequest{
		CustomerName:  "Overflow Caller",
		CustomerPhone: "+15551112222",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !resp.Fallback || resp.Status != transport.StatusFallback {
		t.Errorf("fallback booking must carry the fallback status, got %+v", resp)
	}
	if !resp.StartTime.Equal(day(16, 9, 0)) {
		t.Errorf("fallback start = %s, want 14 days out at 09:00", resp.StartTime)
	}
}

func TestBookStoreUnavailable(t *testing.T) {
	companyID := uuid.New()
	store := &fakeStore{createErr: errors.New("connection refused")}
	svc := newTestService(store, day(2, 7, 0))

	_, err := svc.Book(context.Background(), companyID, transport.BookAppointmentRequest{
		CustomerName:  "Unlucky Caller",
		CustomerPhone: "+15559998888",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}

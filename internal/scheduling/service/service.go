// Package service implements the appointment slot allocator: availability
// grids, priority-aware next-slot search, and race-safe booking.
package service

import (
	"context"
	"fmt"
	"time"

	"callintake_backend/internal/events"
	"callintake_backend/internal/scheduling/repository"
	"callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	businessOpenHour  = 8
	businessCloseHour = 17
	slotIntervalMin   = 30

	standardDurationMin  = 60
	emergencyDurationMin = 120

	searchHorizonDays  = 14
	alternativeDays    = 7
	fallbackOffsetDays = 14
	fallbackHour       = 9
)

// Store is the persistence surface the allocator needs.
type Store interface {
	Create(ctx context.Context, appt *repository.Appointment) error
	GetByID(ctx context.Context, companyID, id uuid.UUID) (*repository.Appointment, error)
	ActiveInRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]repository.Appointment, error)
	UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status transport.AppointmentStatus) error
	ListUpcoming(ctx context.Context, companyID uuid.UUID, from time.Time, limit int) ([]repository.Appointment, error)
}

// Service allocates appointment slots for companies. Bookings for the same
// company are serialized through a per-company mutex so the availability check
// and the insert act as one unit; reads stay lock-free.
type Service struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
	locks *companyLocks
	now   func() time.Time
}

// New creates the allocator service.
func New(store Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log,
		locks: newCompanyLocks(),
		now:   time.Now,
	}
}

// AvailableSlots returns every open start instant on the given date for an
// appointment of the given duration. Slots lie on a 30-minute grid inside the
// 08:00-17:00 booking window; a slot is open when its window [start,
// start+duration) intersects no active appointment.
func (s *Service) AvailableSlots(ctx context.Context, companyID uuid.UUID, date time.Time, durationMin int) ([]time.Time, error) {
	if durationMin <= 0 {
		durationMin = standardDurationMin
	}

	dayOpen := time.Date(date.Year(), date.Month(), date.Day(), businessOpenHour, 0, 0, 0, date.Location())
	dayClose := time.Date(date.Year(), date.Month(), date.Day(), businessCloseHour, 0, 0, 0, date.Location())

	active, err := s.store.ActiveInRange(ctx, companyID, dayOpen, dayClose)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments for availability: %w", err)
	}

	duration := time.Duration(durationMin) * time.Minute
	var slots []time.Time
	for cand := dayOpen; !cand.Add(duration).After(dayClose); cand = cand.Add(slotIntervalMin * time.Minute) {
		if !overlapsAny(active, cand, cand.Add(duration)) {
			slots = append(slots, cand)
		}
	}

	return slots, nil
}

// Conflicts returns the active appointments whose windows intersect
// [start, start+duration).
func (s *Service) Conflicts(ctx context.Context, companyID uuid.UUID, start time.Time, durationMin int) ([]repository.Appointment, error) {
	return s.store.ActiveInRange(ctx, companyID, start, start.Add(time.Duration(durationMin)*time.Minute))
}

// NextAvailable finds the earliest bookable slot for the given priority.
// EMERGENCY requests first sweep the remainder of today, hour by hour from
// now rounded up to the next full hour, ignoring the business window so an
// evening slot tonight beats a morning slot tomorrow. All priorities then
// fall through to the standard search: day by day up to 14 days out, Sundays
// skipped, first open grid slot wins. An exhausted horizon never fails; it
// yields the deterministic fallback slot 14 days out at 09:00, flagged so
// callers can surface the degraded answer.
func (s *Service) NextAvailable(ctx context.Context, companyID uuid.UUID, priority transport.Priority) (transport.SlotDecision, error) {
	now := s.now()

	if priority == transport.PriorityEmergency {
		slot, found, err := s.sameDayEmergencySlot(ctx, companyID, now)
		if err != nil {
			return transport.SlotDecision{}, err
		}
		if found {
			return transport.SlotDecision{Start: slot}, nil
		}
	}

	durationMin := standardDurationMin
	if priority == transport.PriorityEmergency {
		durationMin = emergencyDurationMin
	}

	for offset := 0; offset < searchHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		if day.Weekday() == time.Sunday {
			continue
		}

		slots, err := s.AvailableSlots(ctx, companyID, day, durationMin)
		if err != nil {
			return transport.SlotDecision{}, err
		}
		for _, slot := range slots {
			if slot.After(now) {
				return transport.SlotDecision{Start: slot}, nil
			}
		}
	}

	fb := now.AddDate(0, 0, fallbackOffsetDays)
	fallback := time.Date(fb.Year(), fb.Month(), fb.Day(), fallbackHour, 0, 0, 0, now.Location())
	return transport.SlotDecision{Start: fallback, Fallback: true}, nil
}

// sameDayEmergencySlot sweeps hourly start instants from now rounded up to the
// next full hour through the end of today, using the widened emergency
// duration. The business window does not apply here.
func (s *Service) sameDayEmergencySlot(ctx context.Context, companyID uuid.UUID, now time.Time) (time.Time, bool, error) {
	from := now.Truncate(time.Hour)
	if from.Before(now) {
		from = from.Add(time.Hour)
	}
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)

	active, err := s.store.ActiveInRange(ctx, companyID, from, dayEnd)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to load appointments for emergency search: %w", err)
	}

	duration := emergencyDurationMin * time.Minute
	for cand := from; !cand.Add(duration).After(dayEnd); cand = cand.Add(time.Hour) {
		if !overlapsAny(active, cand, cand.Add(duration)) {
			return cand, true, nil
		}
	}

	return time.Time{}, false, nil
}

// Alternatives collects up to count alternative start instants after the
// preferred date: the earliest open slot of each following day, at most seven
// days out, Sundays skipped.
func (s *Service) Alternatives(ctx context.Context, companyID uuid.UUID, preferred time.Time, count int) ([]time.Time, error) {
	if count <= 0 {
		count = 3
	}

	var alts []time.Time
	for offset := 1; offset <= alternativeDays && len(alts) < count; offset++ {
		day := preferred.AddDate(0, 0, offset)
		if day.Weekday() == time.Sunday {
			continue
		}

		slots, err := s.AvailableSlots(ctx, companyID, day, standardDurationMin)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			alts = append(alts, slots[0])
		}
	}

	return alts, nil
}

// Book allocates and persists an appointment. The company's lock is held
// across the availability check and the insert; the loser of a concurrent
// race for the same window observes a conflict error. When no explicit start
// time is given, the slot comes from NextAvailable and booking cannot fail
// for lack of capacity.
func (s *Service) Book(ctx context.Context, companyID uuid.UUID, req transport.BookAppointmentRequest) (*transport.AppointmentResponse, error) {
	priority := req.Priority
	if priority == "" {
		priority = transport.PriorityMedium
	}

	durationMin := req.DurationMin
	if durationMin <= 0 {
		durationMin = standardDurationMin
		if priority == transport.PriorityEmergency {
			durationMin = emergencyDurationMin
		}
	}

	unlock := s.locks.lock(companyID)
	defer unlock()

	var start time.Time
	fallback := false

	if req.StartTime != nil {
		conflicts, err := s.Conflicts(ctx, companyID, *req.StartTime, durationMin)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return nil, apperr.Conflict("requested time overlaps an existing appointment")
		}
		start = *req.StartTime
	} else {
		decision, err := s.NextAvailable(ctx, companyID, priority)
		if err != nil {
			return nil, err
		}
		start = decision.Start
		fallback = decision.Fallback
	}

	status := transport.StatusScheduled
	if fallback {
		status = transport.StatusFallback
	}

	now := s.now()
	appt := &repository.Appointment{
		ID:            uuid.New(),
		CompanyID:     companyID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		ServiceType:   req.ServiceType,
		Priority:      string(priority),
		Status:        string(status),
		StartTime:     start,
		DurationMin:   durationMin,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.CallID != "" {
		appt.CallID = &req.CallID
	}
	if req.Notes != "" {
		appt.Notes = &req.Notes
	}

	if err := s.store.Create(ctx, appt); err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, "appointment store unavailable", err)
	}

	s.bus.Publish(ctx, events.AppointmentBooked{
		BaseEvent:     events.NewBaseEvent(),
		AppointmentID: appt.ID,
		CompanyID:     companyID,
		CallID:        req.CallID,
		CustomerPhone: appt.CustomerPhone,
		StartTime:     appt.StartTime,
		DurationMin:   appt.DurationMin,
		Priority:      appt.Priority,
		Fallback:      fallback,
	})

	return toResponse(appt, fallback), nil
}

// Cancel marks an appointment cancelled, freeing its window.
func (s *Service) Cancel(ctx context.Context, companyID, id uuid.UUID) error {
	return s.store.UpdateStatus(ctx, companyID, id, transport.StatusCancelled)
}

// Get fetches one appointment.
func (s *Service) Get(ctx context.Context, companyID, id uuid.UUID) (*transport.AppointmentResponse, error) {
	appt, err := s.store.GetByID(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	return toResponse(appt, appt.Status == string(transport.StatusFallback)), nil
}

// Upcoming lists the company's next appointments.
func (s *Service) Upcoming(ctx context.Context, companyID uuid.UUID, limit int) ([]transport.AppointmentResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	appts, err := s.store.ListUpcoming(ctx, companyID, s.now(), limit)
	if err != nil {
		return nil, err
	}

	out := make([]transport.AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, *toResponse(&appts[i], appts[i].Status == string(transport.StatusFallback)))
	}
	return out, nil
}

// overlapsAny reports whether [start, end) intersects any active appointment.
// Windows are half-open, so back-to-back appointments do not collide.
func overlapsAny(active []repository.Appointment, start, end time.Time) bool {
	for _, appt := range active {
		if appt.StartTime.Before(end) && appt.EndTime().After(start) {
			return true
		}
	}
	return false
}

func toResponse(appt *repository.Appointment, fallback bool) *transport.AppointmentResponse {
	return &transport.AppointmentResponse{
		ID:            appt.ID,
		CompanyID:     appt.CompanyID,
		CustomerName:  appt.CustomerName,
		CustomerPhone: appt.CustomerPhone,
		ServiceType:   appt.ServiceType,
		Priority:      transport.Priority(appt.Priority),
		Status:        transport.AppointmentStatus(appt.Status),
		StartTime:     appt.StartTime,
		DurationMin:   appt.DurationMin,
		Fallback:      fallback,
	}
}

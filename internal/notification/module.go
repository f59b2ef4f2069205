// Package notification bridges domain events to the async notification queue.
// Subscribers run off the webhook hot path; a slow or failing queue is logged
// and never blocks call handling.
package notification

import (
	"context"
	"time"

	"callintake_backend/internal/events"
	"callintake_backend/internal/scheduler"
	"callintake_backend/platform/logger"
)

// Module owns the event subscriptions that feed the notification queue.
type Module struct {
	dispatcher scheduler.Dispatcher
	log        *logger.Logger
}

// NewModule wires the subscribers onto the bus. dispatcher may be a nil
// *scheduler.Client; enqueues then become no-ops.
func NewModule(dispatcher scheduler.Dispatcher, bus events.Bus, log *logger.Logger) *Module {
	m := &Module{dispatcher: dispatcher, log: log}

	bus.Subscribe(events.EventNameEmergencyDetected, events.HandlerFunc(m.onEmergencyDetected))
	bus.Subscribe(events.EventNameEscalationRequested, events.HandlerFunc(m.onEscalationRequested))
	bus.Subscribe(events.EventNameAppointmentBooked, events.HandlerFunc(m.onAppointmentBooked))

	return m
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "notification"
}

func (m *Module) onEmergencyDetected(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.EmergencyDetected)
	if !ok {
		return nil
	}

	err := m.dispatcher.EnqueueEmergencyAlert(ctx, scheduler.EmergencyAlertPayload{
		CallID:       ev.CallID,
		CompanyID:    ev.CompanyID.String(),
		CallerPhone:  ev.CallerPhone,
		MatchedText:  ev.MatchedText,
		ServiceTypes: ev.ServiceTypes,
	})
	if err != nil {
		m.log.NotifyFailure("queue", ev.CompanyID.String(), err)
	}
	return err
}

func (m *Module) onEscalationRequested(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.EscalationRequested)
	if !ok {
		return nil
	}

	err := m.dispatcher.EnqueueEmergencyAlert(ctx, scheduler.EmergencyAlertPayload{
		CallID:      ev.CallID,
		CompanyID:   ev.CompanyID.String(),
		CallerPhone: ev.CallerPhone,
		Reason:      ev.Reason,
	})
	if err != nil {
		m.log.NotifyFailure("queue", ev.CompanyID.String(), err)
	}
	return err
}

func (m *Module) onAppointmentBooked(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.AppointmentBooked)
	if !ok {
		return nil
	}

	err := m.dispatcher.EnqueueBookingConfirmation(ctx, scheduler.BookingConfirmationPayload{
		AppointmentID: ev.AppointmentID.String(),
		CompanyID:     ev.CompanyID.String(),
		CustomerPhone: ev.CustomerPhone,
		StartTime:     ev.StartTime.Format(time.RFC3339),
		DurationMin:   ev.DurationMin,
		Fallback:      ev.Fallback,
	})
	if err != nil {
		m.log.NotifyFailure("queue", ev.CompanyID.String(), err)
	}
	return err
}

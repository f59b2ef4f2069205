package events

import (
	"time"

	platformevents "callintake_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export base types so modules only import internal/events.
type (
	Event       = platformevents.Event
	BaseEvent   = platformevents.BaseEvent
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
)

// NewBaseEvent creates a new base event with the current timestamp.
func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

// Event name constants.
const (
	EventNameCallStarted         = "call.started"
	EventNameCallUpdated         = "call.updated"
	EventNameCallEnded           = "call.ended"
	EventNameEmergencyDetected   = "call.emergency_detected"
	EventNameAppointmentBooked   = "appointment.booked"
	EventNameEscalationRequested = "call.escalation_requested"
)

// CallStarted fires when the first lifecycle event for a call arrives.
type CallStarted struct {
	BaseEvent
	CallID    string
	CompanyID uuid.UUID
	From      string
}

// EventName identifies the event type.
func (CallStarted) EventName() string { return EventNameCallStarted }

// CallUpdated fires on every non-terminal session mutation.
type CallUpdated struct {
	BaseEvent
	CallID    string
	CompanyID uuid.UUID
}

// EventName identifies the event type.
func (CallUpdated) EventName() string { return EventNameCallUpdated }

// CallEnded fires after the final persistence write, before eviction.
type CallEnded struct {
	BaseEvent
	CallID      string
	CompanyID   uuid.UUID
	From        string
	IsEmergency bool
	Sentiment   string
	StartedAt   time.Time
	EndedAt     time.Time
	Transcript  []TranscriptTurn
}

// EventName identifies the event type.
func (CallEnded) EventName() string { return EventNameCallEnded }

// TranscriptTurn is one speaker turn of an accumulated call transcript.
type TranscriptTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// EmergencyDetected fires exactly once per session, on the false-to-true
// transition of the session's emergency flag.
type EmergencyDetected struct {
	BaseEvent
	CallID       string
	CompanyID    uuid.UUID
	CallerPhone  string
	MatchedText  string
	ServiceTypes []string
}

// EventName identifies the event type.
func (EmergencyDetected) EventName() string { return EventNameEmergencyDetected }

// AppointmentBooked fires when the slot allocator persists a new appointment.
type AppointmentBooked struct {
	BaseEvent
	AppointmentID uuid.UUID
	CompanyID     uuid.UUID
	CallID        string
	CustomerPhone string
	StartTime     time.Time
	DurationMin   int
	Priority      string
	Fallback      bool
}

// EventName identifies the event type.
func (AppointmentBooked) EventName() string { return EventNameAppointmentBooked }

// EscalationRequested fires when the voice assistant asks for a human.
type EscalationRequested struct {
	BaseEvent
	CallID      string
	CompanyID   uuid.UUID
	CallerPhone string
	Reason      string
}

// EventName identifies the event type.
func (EscalationRequested) EventName() string { return EventNameEscalationRequested }

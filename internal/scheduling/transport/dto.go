// Package transport defines the DTOs and enums shared between the scheduling
// service, its HTTP handler, and the webhook function-call dispatcher.
package transport

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority is the scheduling urgency tier. EMERGENCY is the only tier
// permitted to search same-day near-term slots ahead of normal availability.
type Priority string

const (
	PriorityLow       Priority = "LOW"
	PriorityMedium    Priority = "MEDIUM"
	PriorityHigh      Priority = "HIGH"
	PriorityEmergency Priority = "EMERGENCY"
)

// Rank orders priorities for comparison; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityEmergency:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// ParsePriority maps free-form input to a Priority, defaulting to MEDIUM.
func ParsePriority(raw string) Priority {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case string(PriorityLow):
		return PriorityLow
	case string(PriorityHigh):
		return PriorityHigh
	case string(PriorityEmergency):
		return PriorityEmergency
	default:
		return PriorityMedium
	}
}

// AppointmentStatus is the lifecycle status of a persisted appointment.
// StatusFallback marks bookings produced by the exhausted-horizon fallback
// so they are distinguishable from normally allocated slots.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusFallback  AppointmentStatus = "fallback"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// SlotDecision is the allocator's answer to a booking request.
type SlotDecision struct {
	Start    time.Time `json:"start"`
	Fallback bool      `json:"fallback"`
}

// BookAppointmentRequest asks the allocator for a concrete slot.
type BookAppointmentRequest struct {
	CustomerName  string     `json:"customerName" validate:"required"`
	CustomerPhone string     `json:"customerPhone" validate:"required"`
	ServiceType   string     `json:"serviceType"`
	Priority      Priority   `json:"priority"`
	DurationMin   int        `json:"durationMin" validate:"omitempty,min=30,max=480"`
	PreferredDate *time.Time `json:"preferredDate"`
	StartTime     *time.Time `json:"startTime"`
	CallID        string     `json:"callId"`
	Notes         string     `json:"notes"`
}

// AppointmentResponse is the booked appointment returned to callers.
type AppointmentResponse struct {
	ID            uuid.UUID         `json:"id"`
	CompanyID     uuid.UUID         `json:"companyId"`
	CustomerName  string            `json:"customerName"`
	CustomerPhone string            `json:"customerPhone"`
	ServiceType   string            `json:"serviceType"`
	Priority      Priority          `json:"priority"`
	Status        AppointmentStatus `json:"status"`
	StartTime     time.Time         `json:"startTime"`
	DurationMin   int               `json:"durationMin"`
	Fallback      bool              `json:"fallback"`
}

// AvailabilityResponse lists candidate start instants for one date.
type AvailabilityResponse struct {
	Date  string      `json:"date"`
	Slots []time.Time `json:"slots"`
}

// AlternativesResponse lists ranked alternative start instants.
type AlternativesResponse struct {
	Alternatives []time.Time `json:"alternatives"`
}

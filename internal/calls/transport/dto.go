// Package transport defines the call tracker's state machine enum and the
// DTOs served to the dashboard.
package transport

import (
	"time"

	"callintake_backend/internal/events"

	"github.com/google/uuid"
)

// CallState is the lifecycle state of an in-flight call session.
type CallState string

const (
	StateRinging    CallState = "RINGING"
	StateAnswered   CallState = "ANSWERED"
	StateInProgress CallState = "IN_PROGRESS"
	StateEnding     CallState = "ENDING"
)

// SessionView is the dashboard projection of one live call session.
// DurationSec is always derived from the start instant, never stored.
type SessionView struct {
	CallID       string                  `json:"callId"`
	CompanyID    uuid.UUID               `json:"companyId"`
	From         string                  `json:"from"`
	To           string                  `json:"to"`
	State        CallState               `json:"state"`
	IsEmergency  bool                    `json:"isEmergency"`
	CallType     string                  `json:"callType"`
	ServiceTypes []string                `json:"serviceTypes"`
	Sentiment    string                  `json:"sentiment,omitempty"`
	StartedAt    time.Time               `json:"startedAt"`
	DurationSec  int                     `json:"durationSec"`
	Transcript   []events.TranscriptTurn `json:"transcript,omitempty"`
}

// DashboardStats aggregates the live sessions of one company.
type DashboardStats struct {
	ActiveCalls    int `json:"activeCalls"`
	EmergencyCalls int `json:"emergencyCalls"`
}

// DashboardSnapshot is the initial payload sent to a dashboard subscriber
// before the incremental event stream begins.
type DashboardSnapshot struct {
	Sessions []SessionView  `json:"sessions"`
	Stats    DashboardStats `json:"stats"`
}

// CallRecordView is a persisted, completed call as served to the dashboard.
type CallRecordView struct {
	ID           uuid.UUID `json:"id"`
	CallID       string    `json:"callId"`
	CompanyID    uuid.UUID `json:"companyId"`
	From         string    `json:"from"`
	IsEmergency  bool      `json:"isEmergency"`
	CallType     string    `json:"callType"`
	ServiceTypes []string  `json:"serviceTypes"`
	Sentiment    string    `json:"sentiment,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	DurationSec  int       `json:"durationSec"`
}

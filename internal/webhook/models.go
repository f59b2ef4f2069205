// Package webhook provides the telephony provider boundary: inbound event
// decoding, API key authentication, event dedupe, and the function-call
// dispatch that answers the voice assistant.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType identifies the kind of provider event.
type EventType string

const (
	EventCallRinging  EventType = "call.ringing"
	EventCallAnswered EventType = "call.answered"
	EventCallEnded    EventType = "call.ended"
	EventTranscript   EventType = "call.transcript"
	EventFunctionCall EventType = "call.function"
)

// Envelope is the common frame around every provider event. The Data field
// stays raw until the type is known; each event type has its own payload
// struct rather than one untyped bag.
type Envelope struct {
	EventID   string          `json:"eventId"`
	Type      EventType       `json:"type"`
	CallID    string          `json:"callId"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// LifecyclePayload carries the fields of ringing/answered/ended events.
type LifecyclePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Sentiment string `json:"sentiment,omitempty"`
}

// TranscriptPayload is one incremental speech fragment.
type TranscriptPayload struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// FunctionCallPayload is an assistant tool invocation awaiting a spoken
// answer.
type FunctionCallPayload struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// BookAppointmentArgs are the arguments of the book_appointment function.
type BookAppointmentArgs struct {
	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`
	ServiceType   string `json:"serviceType"`
	PreferredDate string `json:"preferredDate"`
	Urgent        bool   `json:"urgent"`
	Notes         string `json:"notes"`
}

// GetPricingArgs are the arguments of the get_pricing function.
type GetPricingArgs struct {
	Description string `json:"description"`
	ServiceType string `json:"serviceType"`
}

// CheckAvailabilityArgs are the arguments of the check_availability function.
type CheckAvailabilityArgs struct {
	Date string `json:"date"`
}

// EscalateArgs are the arguments of the escalate_to_human function.
type EscalateArgs struct {
	Reason string `json:"reason"`
}

// ParseEnvelope decodes and validates the provider frame. A payload that
// fails here is malformed by contract: the caller logs and acknowledges it.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("undecodable event: %w", err)
	}

	if strings.TrimSpace(env.CallID) == "" {
		return Envelope{}, fmt.Errorf("event %q missing callId", env.Type)
	}

	switch env.Type {
	case EventCallRinging, EventCallAnswered, EventCallEnded, EventTranscript, EventFunctionCall:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// DecodePayload unmarshals the typed payload for the envelope.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("malformed %s payload: %w", env.Type, err)
	}
	return payload, nil
}

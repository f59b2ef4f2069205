// Package scheduler moves notification work off the call hot path: bus
// subscribers enqueue asynq tasks here and the worker binary delivers them.
package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskEmergencyAlert = "calls.emergency_alert"

const TaskBookingConfirmation = "appointments.confirmation"

// EmergencyAlertPayload carries everything the worker needs to alert the
// on-call technician. Reason is empty for classifier hits and set for
// explicit caller escalations.
type EmergencyAlertPayload struct {
	CallID       string   `json:"callId"`
	CompanyID    string   `json:"companyId"`
	CallerPhone  string   `json:"callerPhone"`
	MatchedText  string   `json:"matchedText,omitempty"`
	ServiceTypes []string `json:"serviceTypes,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// BookingConfirmationPayload carries the SMS confirmation for a new booking.
type BookingConfirmationPayload struct {
	AppointmentID string `json:"appointmentId"`
	CompanyID     string `json:"companyId"`
	CustomerPhone string `json:"customerPhone"`
	StartTime     string `json:"startTime"`
	DurationMin   int    `json:"durationMin"`
	Fallback      bool   `json:"fallback"`
}

func NewEmergencyAlertTask(payload EmergencyAlertPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmergencyAlert, data), nil
}

func ParseEmergencyAlertPayload(task *asynq.Task) (EmergencyAlertPayload, error) {
	var payload EmergencyAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EmergencyAlertPayload{}, err
	}
	return payload, nil
}

func NewBookingConfirmationTask(payload BookingConfirmationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBookingConfirmation, data), nil
}

func ParseBookingConfirmationPayload(task *asynq.Task) (BookingConfirmationPayload, error) {
	var payload BookingConfirmationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BookingConfirmationPayload{}, err
	}
	return payload, nil
}

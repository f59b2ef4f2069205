package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Appointment represents the appointment database model.
type Appointment struct {
	ID            uuid.UUID `db:"id"`
	CompanyID     uuid.UUID `db:"company_id"`
	CallID        *string   `db:"call_id"`
	CustomerName  string    `db:"customer_name"`
	CustomerPhone string    `db:"customer_phone"`
	ServiceType   string    `db:"service_type"`
	Priority      string    `db:"priority"`
	Status        string    `db:"status"`
	StartTime     time.Time `db:"start_time"`
	DurationMin   int       `db:"duration_min"`
	Notes         *string   `db:"notes"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// EndTime returns the exclusive end of the appointment window.
func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Repository provides database operations for appointments.
type Repository struct {
	pool *pgxpool.Pool
}

const appointmentNotFoundMsg = "appointment not found"

// New creates a new scheduling repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new appointment.
func (r *Repository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, company_id, call_id, customer_name, customer_phone, service_type,
			priority, status, start_time, duration_min, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)`

	_, err := r.pool.Exec(ctx, query,
		appt.ID, appt.CompanyID, appt.CallID, appt.CustomerName, appt.CustomerPhone,
		appt.ServiceType, appt.Priority, appt.Status, appt.StartTime, appt.DurationMin,
		appt.Notes, appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	return nil
}

// GetByID fetches a single appointment scoped to a company.
func (r *Repository) GetByID(ctx context.Context, companyID, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT id, company_id, call_id, customer_name, customer_phone, service_type,
		       priority, status, start_time, duration_min, notes, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND company_id = $2`

	var appt Appointment
	err := r.pool.QueryRow(ctx, query, id, companyID).Scan(
		&appt.ID, &appt.CompanyID, &appt.CallID, &appt.CustomerName, &appt.CustomerPhone,
		&appt.ServiceType, &appt.Priority, &appt.Status, &appt.StartTime, &appt.DurationMin,
		&appt.Notes, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound(appointmentNotFoundMsg)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}

	return &appt, nil
}

// ActiveInRange returns every active appointment for a company whose window
// intersects [from, to). Cancelled and completed appointments never block a
// slot; fallback bookings do.
func (r *Repository) ActiveInRange(ctx context.Context, companyID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT id, company_id, call_id, customer_name, customer_phone, service_type,
		       priority, status, start_time, duration_min, notes, created_at, updated_at
		FROM appointments
		WHERE company_id = $1
		  AND status NOT IN ($2, $3)
		  AND start_time < $5
		  AND start_time + make_interval(mins => duration_min) > $4
		ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, companyID,
		string(transport.StatusCancelled), string(transport.StatusCompleted), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments in range: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(
			&appt.ID, &appt.CompanyID, &appt.CallID, &appt.CustomerName, &appt.CustomerPhone,
			&appt.ServiceType, &appt.Priority, &appt.Status, &appt.StartTime, &appt.DurationMin,
			&appt.Notes, &appt.CreatedAt, &appt.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return appts, nil
}

// UpdateStatus transitions an appointment's lifecycle status.
func (r *Repository) UpdateStatus(ctx context.Context, companyID, id uuid.UUID, status transport.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND company_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, companyID, string(status), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}

	return nil
}

// ListUpcoming returns the next appointments for a company, soonest first.
func (r *Repository) ListUpcoming(ctx context.Context, companyID uuid.UUID, from time.Time, limit int) ([]Appointment, error) {
	query := `
		SELECT id, company_id, call_id, customer_name, customer_phone, service_type,
		       priority, status, start_time, duration_min, notes, created_at, updated_at
		FROM appointments
		WHERE company_id = $1
		  AND status NOT IN ($2, $3)
		  AND start_time >= $4
		ORDER BY start_time
		LIMIT $5`

	rows, err := r.pool.Query(ctx, query, companyID,
		string(transport.StatusCancelled), string(transport.StatusCompleted), from, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var appt Appointment
		if err := rows.Scan(
			&appt.ID, &appt.CompanyID, &appt.CallID, &appt.CustomerName, &appt.CustomerPhone,
			&appt.ServiceType, &appt.Priority, &appt.Status, &appt.StartTime, &appt.DurationMin,
			&appt.Notes, &appt.CreatedAt, &appt.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}

	return appts, nil
}

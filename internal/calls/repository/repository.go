package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callintake_backend/internal/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CallRecord is the persisted row for a completed call.
type CallRecord struct {
	ID           uuid.UUID `db:"id"`
	CallID       string    `db:"call_id"`
	CompanyID    uuid.UUID `db:"company_id"`
	FromPhone    string    `db:"from_phone"`
	ToPhone      string    `db:"to_phone"`
	IsEmergency  bool      `db:"is_emergency"`
	CallType     string    `db:"call_type"`
	ServiceTypes []string  `db:"service_types"`
	Sentiment    string    `db:"sentiment"`
	StartedAt    time.Time `db:"started_at"`
	EndedAt      time.Time `db:"ended_at"`
	DurationSec  int       `db:"duration_sec"`
	Transcript   []events.TranscriptTurn
	CreatedAt    time.Time `db:"created_at"`
}

// Repository provides database operations for call records.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new call record repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts the final record for a completed call. The transcript is
// stored as a JSONB document alongside the indexed columns.
func (r *Repository) Save(ctx context.Context, rec *CallRecord) error {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	query := `
		INSERT INTO call_records (
			id, call_id, company_id, from_phone, to_phone, is_emergency, call_type,
			service_types, sentiment, started_at, ended_at, duration_sec, transcript, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err = r.pool.Exec(ctx, query,
		rec.ID, rec.CallID, rec.CompanyID, rec.FromPhone, rec.ToPhone, rec.IsEmergency,
		rec.CallType, rec.ServiceTypes, rec.Sentiment, rec.StartedAt, rec.EndedAt,
		rec.DurationSec, transcript, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}

	return nil
}

// ListRecent returns the latest completed calls for a company.
func (r *Repository) ListRecent(ctx context.Context, companyID uuid.UUID, limit int) ([]CallRecord, error) {
	query := `
		SELECT id, call_id, company_id, from_phone, to_phone, is_emergency, call_type,
		       service_types, sentiment, started_at, ended_at, duration_sec, created_at
		FROM call_records
		WHERE company_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call records: %w", err)
	}
	defer rows.Close()

	var records []CallRecord
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(
			&rec.ID, &rec.CallID, &rec.CompanyID, &rec.FromPhone, &rec.ToPhone,
			&rec.IsEmergency, &rec.CallType, &rec.ServiceTypes, &rec.Sentiment,
			&rec.StartedAt, &rec.EndedAt, &rec.DurationSec, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call records: %w", err)
	}

	return records, nil
}

// EmergencyCountSince reports how many emergency calls completed after the
// given instant, for the dashboard stats strip.
func (r *Repository) EmergencyCountSince(ctx context.Context, companyID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM call_records WHERE company_id = $1 AND is_emergency AND ended_at >= $2`,
		companyID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count emergency calls: %w", err)
	}
	return count, nil
}

// Package companies provides read-only access to company records, their
// weekly business hours, and their service catalog. The intake core never
// mutates these; they are snapshots owned by the provisioning surface.
package companies

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callintake_backend/internal/hours"
	"callintake_backend/internal/intent"
	"callintake_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Company is the owning business for inbound calls.
type Company struct {
	ID          uuid.UUID
	Name        string
	Phone       string
	OnCallPhone string
	AlertEmail  string
	Timezone    string
	CreatedAt   time.Time
}

// CatalogEntry is one service category's base pricing, in cents.
type CatalogEntry struct {
	ID                  uuid.UUID
	CompanyID           uuid.UUID
	Category            string
	Name                string
	MinPriceCents       int64
	MaxPriceCents       int64
	EmergencyMultiplier float64
}

// Repository reads company data from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a companies repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns the company record.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	query := `SELECT id, name, phone, on_call_phone, alert_email, timezone, created_at
		FROM companies WHERE id = $1`

	var c Company
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Name,
		&c.Phone,
		&c.OnCallPhone,
		&c.AlertEmail,
		&c.Timezone,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("company not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}

	return &c, nil
}

// GetWeekSchedule loads the company's business hours as an immutable
// snapshot. Weekdays without a row count as closed.
func (r *Repository) GetWeekSchedule(ctx context.Context, companyID uuid.UUID) (hours.WeekSchedule, error) {
	query := `SELECT weekday, closed, opens, closes
		FROM business_hours WHERE company_id = $1 ORDER BY weekday`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list business hours: %w", err)
	}
	defer rows.Close()

	ws := hours.WeekSchedule{}
	for rows.Next() {
		var weekday int
		var day hours.DaySchedule
		if err := rows.Scan(&weekday, &day.Closed, &day.Opens, &day.Closes); err != nil {
			return nil, fmt.Errorf("failed to scan business hours: %w", err)
		}
		ws[time.Weekday(weekday)] = day
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate business hours: %w", err)
	}

	return ws, nil
}

// ListCatalog returns the company's service catalog entries.
func (r *Repository) ListCatalog(ctx context.Context, companyID uuid.UUID) ([]CatalogEntry, error) {
	query := `SELECT id, company_id, category, name, min_price_cents, max_price_cents, emergency_multiplier
		FROM service_catalog WHERE company_id = $1 ORDER BY category`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list service catalog: %w", err)
	}
	defer rows.Close()

	items := make([]CatalogEntry, 0)
	for rows.Next() {
		var item CatalogEntry
		if err := rows.Scan(
			&item.ID,
			&item.CompanyID,
			&item.Category,
			&item.Name,
			&item.MinPriceCents,
			&item.MaxPriceCents,
			&item.EmergencyMultiplier,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate service catalog: %w", err)
	}

	return items, nil
}

// PriceBases converts catalog entries to the pricing input the classifier
// package expects.
func PriceBases(entries []CatalogEntry) []intent.PriceBase {
	bases := make([]intent.PriceBase, 0, len(entries))
	for _, entry := range entries {
		bases = append(bases, intent.PriceBase{
			Category: entry.Category,
			MinCents: entry.MinPriceCents,
			MaxCents: entry.MaxPriceCents,
		})
	}
	return bases
}

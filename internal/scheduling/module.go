// Package scheduling provides the appointment slot allocation domain module.
package scheduling

import (
	"callintake_backend/internal/events"
	apphttp "callintake_backend/internal/http"
	"callintake_backend/internal/scheduling/handler"
	"callintake_backend/internal/scheduling/repository"
	"callintake_backend/internal/scheduling/service"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the scheduling domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new scheduling module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log)
	h := handler.New(svc, val, log)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "scheduling"
}

// RegisterRoutes registers the module's routes under /api/v1/appointments.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	appointments := ctx.Protected.Group("/appointments")
	m.handler.RegisterRoutes(appointments)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)

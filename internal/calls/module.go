// Package calls provides the live call tracking domain module.
package calls

import (
	"context"

	"callintake_backend/internal/calls/handler"
	"callintake_backend/internal/calls/repository"
	"callintake_backend/internal/calls/service"
	"callintake_backend/internal/calls/sse"
	"callintake_backend/internal/events"
	apphttp "callintake_backend/internal/http"
	"callintake_backend/internal/intent"
	"callintake_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module represents the calls domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
	SSE     *sse.Service
}

// NewModule creates a new calls module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, classifier *intent.Classifier, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	sseSvc := sse.New(log)
	svc := service.New(service.NewRegistry(), classifier, repo, bus, sseSvc, log)
	h := handler.New(svc, sseSvc, log)

	return &Module{
		handler: h,
		Service: svc,
		SSE:     sseSvc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "calls"
}

// Start launches the duration tick loop; it stops when ctx is cancelled.
func (m *Module) Start(ctx context.Context) {
	go m.Service.Run(ctx)
}

// Close shuts down the SSE fan-out.
func (m *Module) Close() {
	m.SSE.Close()
}

// RegisterRoutes registers the module's routes under /api/v1/calls.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	calls := ctx.Protected.Group("/calls")
	m.handler.RegisterRoutes(calls)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)

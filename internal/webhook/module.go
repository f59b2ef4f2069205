package webhook

import (
	"time"

	"callintake_backend/internal/events"
	apphttp "callintake_backend/internal/http"
	"callintake_backend/internal/intent"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the webhook module with all its
// dependencies. rdb may be nil, which disables event dedupe.
func NewModule(pool *pgxpool.Pool, rdb *redis.Client, tracker Tracker, booker Booker, dir CompanyDirectory, callReader CallTracker, classify *intent.Classifier, bus events.Bus, val *validator.Validator, log *logger.Logger, dedupeTTL time.Duration) *Module {
	repo := NewRepository(pool)
	deduper := NewDeduper(rdb, dedupeTTL, log)
	dispatcher := NewDispatcher(callReader, booker, dir, classify, bus, log)
	handler := NewHandler(tracker, dispatcher, deduper, repo, val, log)

	return &Module{
		handler: handler,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Provider events (API key auth, no JWT).
	telephony := ctx.Webhook.Group("/telephony")
	telephony.Use(APIKeyAuthMiddleware(m.repo))
	telephony.POST("/events", m.handler.HandleEvent)

	// API key management (JWT auth).
	keys := ctx.Protected.Group("/webhook/keys")
	keys.POST("", m.handler.HandleCreateAPIKey)
	keys.GET("", m.handler.HandleListAPIKeys)
	keys.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)
}

// Compile-time check that Module implements http.Module.
var _ apphttp.Module = (*Module)(nil)

// Package handler exposes the live call dashboard endpoints.
package handler

import (
	"strconv"

	"callintake_backend/internal/calls/service"
	"callintake_backend/internal/calls/sse"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/httpkit"
	"callintake_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the dashboard's call endpoints.
type Handler struct {
	svc *service.Service
	sse *sse.Service
	log *logger.Logger
}

// New creates the calls handler.
func New(svc *service.Service, sseSvc *sse.Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, sse: sseSvc, log: log}
}

// Active handles GET /calls/active: the current live-call snapshot.
func (h *Handler) Active(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	httpkit.OK(c, h.svc.Snapshot(companyID))
}

// History handles GET /calls/history: recently completed calls.
func (h *Handler) History(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpkit.HandleError(c, apperr.BadRequest("limit must be an integer"))
			return
		}
		limit = parsed
	}

	records, err := h.svc.RecentRecords(c.Request.Context(), companyID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, records)
}

// Stream handles GET /calls/stream: the SSE dashboard feed. The snapshot is
// delivered before any incremental event.
func (h *Handler) Stream() gin.HandlerFunc {
	return h.sse.Handler(
		httpkit.CompanyID,
		func(companyID uuid.UUID) interface{} { return h.svc.Snapshot(companyID) },
	)
}

// RegisterRoutes mounts the call routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/active", h.Active)
	rg.GET("/history", h.History)
	rg.GET("/stream", h.Stream())
}

// Package handler exposes the scheduling dashboard endpoints.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"callintake_backend/internal/scheduling/service"
	"callintake_backend/internal/scheduling/transport"
	"callintake_backend/platform/apperr"
	"callintake_backend/platform/httpkit"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves appointment HTTP endpoints for the dashboard.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	log *logger.Logger
}

// New creates the scheduling handler.
func New(svc *service.Service, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, val: val, log: log}
}

// Book handles POST /appointments.
func (h *Handler) Book(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	var req transport.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}

	resp, err := h.svc.Book(c.Request.Context(), companyID, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, resp)
}

// Availability handles GET /appointments/availability?date=2026-01-12&duration=60.
func (h *Handler) Availability(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("date must be YYYY-MM-DD"))
		return
	}

	durationMin := 0
	if raw := c.Query("duration"); raw != "" {
		if durationMin, err = strconv.Atoi(raw); err != nil {
			httpkit.HandleError(c, apperr.BadRequest("duration must be minutes"))
			return
		}
	}

	slots, err := h.svc.AvailableSlots(c.Request.Context(), companyID, date, durationMin)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AvailabilityResponse{Date: date.Format("2006-01-02"), Slots: slots})
}

// NextAvailable handles GET /appointments/next?priority=HIGH.
func (h *Handler) NextAvailable(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	decision, err := h.svc.NextAvailable(c.Request.Context(), companyID, transport.ParsePriority(c.Query("priority")))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, decision)
}

// Alternatives handles GET /appointments/alternatives?preferred=2026-01-12&count=3.
func (h *Handler) Alternatives(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	preferred, err := time.Parse("2006-01-02", c.Query("preferred"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("preferred must be YYYY-MM-DD"))
		return
	}

	count := 0
	if raw := c.Query("count"); raw != "" {
		if count, err = strconv.Atoi(raw); err != nil {
			httpkit.HandleError(c, apperr.BadRequest("count must be an integer"))
			return
		}
	}

	alts, err := h.svc.Alternatives(c.Request.Context(), companyID, preferred, count)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AlternativesResponse{Alternatives: alts})
}

// Upcoming handles GET /appointments.
func (h *Handler) Upcoming(c *gin.Context) {
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

	appts, err := h.svc.Upcoming(c.Request.Context(), companyID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, appts)
}

// Get handles GET /appointments/:id.
func (h *Handler) Get(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid appointment id"))
		return
	}

	resp, err := h.svc.Get(c.Request.Context(), companyID, id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

// Cancel handles DELETE /appointments/:id.
func (h *Handler) Cancel(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid appointment id"))
		return
	}

	if httpkit.HandleError(c, h.svc.Cancel(c.Request.Context(), companyID, id)) {
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes mounts the appointment routes on the given group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.Upcoming)
	rg.POST("", h.Book)
	rg.GET("/availability", h.Availability)
	rg.GET("/next", h.NextAvailable)
	rg.GET("/alternatives", h.Alternatives)
	rg.GET("/:id", h.Get)
	rg.DELETE("/:id", h.Cancel)
}

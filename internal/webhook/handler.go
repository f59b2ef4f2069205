package webhook

import (
	"context"
	"io"
	"net/http"
	"time"

	"callintake_backend/platform/apperr"
	"callintake_backend/platform/httpkit"
	"callintake_backend/platform/logger"
	"callintake_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxEventBody = 1 << 20 // 1 MiB

// Tracker is the slice of the call service the event route needs.
type Tracker interface {
	HandleCallRinging(ctx context.Context, callID string, companyID uuid.UUID, from, to string, ts time.Time)
	HandleCallAnswered(ctx context.Context, callID string, companyID uuid.UUID, ts time.Time)
	HandleTranscript(ctx context.Context, callID string, companyID uuid.UUID, role, text string, ts time.Time)
	HandleCallEnded(ctx context.Context, callID, sentiment string, ts time.Time) error
}

// Handler handles inbound provider events and API key management.
type Handler struct {
	tracker    Tracker
	dispatcher *Dispatcher
	deduper    *Deduper
	repo       *Repository
	val        *validator.Validator
	log        *logger.Logger
}

// NewHandler creates a new webhook handler.
func NewHandler(tracker Tracker, dispatcher *Dispatcher, deduper *Deduper, repo *Repository, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{
		tracker:    tracker,
		dispatcher: dispatcher,
		deduper:    deduper,
		repo:       repo,
		val:        val,
		log:        log,
	}
}

// HandleEvent processes one provider event.
// POST /api/v1/webhook/telephony/events
//
// Malformed or unroutable events are logged and acknowledged with 200 so the
// provider stops redelivering them; only a failed terminal persistence write
// returns a retryable status.
func (h *Handler) HandleEvent(c *gin.Context) {
	companyID, ok := companyFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing company context"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		h.log.WebhookEvent("unknown", "", false, "unreadable body")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		h.log.WebhookEvent("unknown", "", false, err.Error())
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if h.deduper.Seen(c.Request.Context(), env.EventID) {
		h.log.WebhookEvent(string(env.Type), env.CallID, false, "duplicate event id")
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	ctx := c.Request.Context()

	switch env.Type {
	case EventCallRinging:
		payload, err := DecodePayload[LifecyclePayload](env)
		if err != nil {
			h.ackMalformed(c, env, err)
			return
		}
		h.tracker.HandleCallRinging(ctx, env.CallID, companyID, payload.From, payload.To, env.Timestamp)

	case EventCallAnswered:
		h.tracker.HandleCallAnswered(ctx, env.CallID, companyID, env.Timestamp)

	case EventTranscript:
		payload, err := DecodePayload[TranscriptPayload](env)
		if err != nil {
			h.ackMalformed(c, env, err)
			return
		}
		h.tracker.HandleTranscript(ctx, env.CallID, companyID, payload.Role, payload.Text, env.Timestamp)

	case EventCallEnded:
		payload, err := DecodePayload[LifecyclePayload](env)
		if err != nil {
			h.ackMalformed(c, env, err)
			return
		}
		if err := h.tracker.HandleCallEnded(ctx, env.CallID, payload.Sentiment, env.Timestamp); err != nil {
			httpkit.HandleError(c, err)
			return
		}

	case EventFunctionCall:
		h.handleFunctionCall(c, companyID, env)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// handleFunctionCall answers an assistant tool invocation. The response body
// carries the exact sentence the assistant speaks.
func (h *Handler) handleFunctionCall(c *gin.Context, companyID uuid.UUID, env Envelope) {
	payload, err := DecodePayload[FunctionCallPayload](env)
	if err != nil {
		h.ackMalformed(c, env, err)
		return
	}

	speech, err := h.dispatcher.Dispatch(c.Request.Context(), companyID, env.CallID, payload)
	if err != nil {
		if apperr.Is(err, apperr.KindUnavailable) {
			httpkit.HandleError(c, err)
			return
		}
		h.log.WebhookEvent(string(env.Type), env.CallID, false, err.Error())
		c.JSON(http.StatusOK, gin.H{
			"result": "I'm sorry, I wasn't able to do that just now. Our office will follow up with you.",
		})
		return
	}

	h.log.WebhookEvent(string(env.Type), env.CallID, true, "")
	c.JSON(http.StatusOK, gin.H{"result": speech})
}

func (h *Handler) ackMalformed(c *gin.Context, env Envelope, err error) {
	h.log.WebhookEvent(string(env.Type), env.CallID, false, err.Error())
	c.JSON(http.StatusOK, gin.H{"status": "ignored"})
}

// ---- API Key Management (JWT authenticated) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	KeyPrefix string    `json:"keyPrefix"`
	IsActive  bool      `json:"isActive"`
	CreatedAt string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a provider integration key.
// POST /api/v1/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	var req CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid request body"))
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(err.Error()))
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "failed to generate key", err))
		return
	}

	key, err := h.repo.Create(c.Request.Context(), companyID, req.Name, hash, prefix)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "failed to store key", err))
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists the company's keys.
// GET /api/v1/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	keys, err := h.repo.ListByCompany(c.Request.Context(), companyID)
	if err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindInternal, "failed to list keys", err))
		return
	}

	out := make([]APIKeyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, toKeyResponse(key))
	}
	httpkit.OK(c, out)
}

// HandleRevokeAPIKey deactivates a key.
// DELETE /api/v1/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	companyID, ok := httpkit.CompanyID(c)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing company context"))
		return
	}

	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid key ID"))
		return
	}

	if err := h.repo.Revoke(c.Request.Context(), keyID, companyID); err != nil {
		httpkit.HandleError(c, apperr.NotFound("API key not found"))
		return
	}

	c.Status(http.StatusNoContent)
}

func toKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        key.ID,
		Name:      key.Name,
		KeyPrefix: key.KeyPrefix,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt.Format(time.RFC3339),
	}
}

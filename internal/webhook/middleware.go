package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ctxCompanyID = "webhookCompanyID"
	ctxKeyID     = "webhookKeyID"
)

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// resolved company on the gin context. The telephony provider authenticates
// with this key; JWT auth never applies on this path.
func APIKeyAuthMiddleware(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Webhook-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repo.GetByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ctxCompanyID, key.CompanyID)
		c.Set(ctxKeyID, key.ID)
		c.Next()
	}
}

// companyFromContext returns the company resolved by the API key middleware.
func companyFromContext(c *gin.Context) (uuid.UUID, bool) {
	raw, ok := c.Get(ctxCompanyID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}

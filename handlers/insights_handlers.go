// api/handlers/insights_handlers.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"beacon/api/insights"
	"beacon/api/models"
	"beacon/api/session"
	"beacon/api/tenant"
)

// InsightsService is the read API the handlers expose.
type InsightsService interface {
	Overview(ctx context.Context, apiKey string) (models.Overview, error)
	SessionsFor(ctx context.Context, apiKey, identifyID string) ([]session.Session, error)
	NewJoiners(ctx context.Context, apiKey string) (map[insights.Bucket][]models.ProfileSummary, error)
	DailyErrors(ctx context.Context, apiKey string) ([]insights.DailyErrors, error)
	ActiveNow(ctx context.Context, apiKey string) (uint64, error)
}

type InsightsHandlers struct {
	Service InsightsService
	log     *logrus.Logger
	timeout time.Duration
}

func NewInsightsHandlers(s InsightsService, log *logrus.Logger) *InsightsHandlers {
	return &InsightsHandlers{
		Service: s,
		log:     log,
		timeout: 15 * time.Second,
	}
}

// apiKey reads the tenant key from the X-API-KEY header, falling back to the
// apiKey query parameter.
func apiKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-KEY"); key != "" {
		return key
	}
	return c.Query("apiKey")
}

func (h *InsightsHandlers) GetOverview(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	overview, err := h.Service.Overview(ctx, apiKey(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *InsightsHandlers) GetSessions(c *gin.Context) {
	identifyID := c.Param("identifyId")
	if identifyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifyId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	sessions, err := h.Service.SessionsFor(ctx, apiKey(c), identifyID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"identifyId": identifyID,
		"sessions":   sessions,
	})
}

func (h *InsightsHandlers) GetNewJoiners(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	joiners, err := h.Service.NewJoiners(ctx, apiKey(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joiners)
}

func (h *InsightsHandlers) GetDailyErrors(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	days, err := h.Service.DailyErrors(ctx, apiKey(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, days)
}

func (h *InsightsHandlers) GetActiveNow(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	count, err := h.Service.ActiveNow(ctx, apiKey(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeNow": count})
}

// writeError maps service errors to responses. Aggregation failures are
// already logged with context by the service.
func (h *InsightsHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tenant.ErrInvalidAPIKey):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
	case errors.Is(err, insights.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No events found"})
	default:
		if !errors.Is(err, insights.ErrAggregationFailed) {
			h.log.WithError(err).WithField("path", c.FullPath()).Error("unexpected insights error")
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute insights"})
	}
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

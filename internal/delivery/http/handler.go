package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pricewatch/backend/internal/domain"
	"github.com/pricewatch/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store     domain.VerdictStore
	pacer     domain.Pacer
	validator *usecase.Validator
}

// NewHandler creates a new HTTP handler
func NewHandler(store domain.VerdictStore, pacer domain.Pacer, validator *usecase.Validator) *Handler {
	return &Handler{
		store:     store,
		pacer:     pacer,
		validator: validator,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "pricewatch-backend",
		"version": "1.0.0",
	})
}

// LimiterStats returns the pacer's current snapshot
func (h *Handler) LimiterStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.pacer.Stats())
}

// CacheStats summarizes one store's cache namespace
func (h *Handler) CacheStats(c *gin.Context) {
	storeID := c.Param("store")

	stats, err := h.store.Stats(storeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CachePurge removes expired entries across all store namespaces
func (h *Handler) CachePurge(c *gin.Context) {
	removed, err := h.store.PurgeExpired(time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// scoreRequest is the payload for the validation endpoint
type scoreRequest struct {
	RawReference string             `json:"rawReference" binding:"required"`
	Signals      domain.PageSignals `json:"signals"`
}

// ScoreMatch runs the validator against caller-supplied page signals.
// Useful for debugging why a page did or did not validate.
func (h *Handler) ScoreMatch(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rawReference is required"})
		return
	}

	ref := usecase.Normalize(req.RawReference)
	if ref.IsEmpty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": domain.ErrEmptyReference.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reference": ref,
		"verdict":   h.validator.Score(ref, req.Signals),
	})
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/firmledger/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// SystemHandler serves liveness and readiness checks
type SystemHandler struct {
	BaseHandler
	db        Pinger
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db Pinger) *SystemHandler {
	return &SystemHandler{db: db, startTime: time.Now()}
}

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// Health answers as long as the process serves requests
//
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{Status: "ok", Uptime: time.Since(h.startTime).Round(time.Second).String()})
}

// Ready answers 503 while the ledger store is unreachable
//
// GET /ready
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- h.db.Ping() }()
	select {
	case err := <-errCh:
		if err != nil {
			h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, "ledger store unavailable")
			return
		}
	case <-ctx.Done():
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeInternal, "ledger store unavailable")
		return
	}
	h.Success(c, HealthResponse{Status: "ready", Uptime: time.Since(h.startTime).Round(time.Second).String()})
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readyTimeout = 2 * time.Second

// Pinger checks a storage backend. *postgres.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	storage string
	db      Pinger // nil for the memory driver
	started time.Time
}

func NewHealthHandler(storage string, db Pinger) *HealthHandler {
	return &HealthHandler{storage: storage, db: db, started: time.Now()}
}

// Live answers as long as the process runs.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(h.started).Round(time.Second).String()})
}

// Ready fails while the database is unreachable.
func (h *HealthHandler) Ready(c *gin.Context) {
	state, code := "healthy", http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			state, code = "unhealthy: "+err.Error(), http.StatusServiceUnavailable
		}
	}
	status := "ok"
	if code != http.StatusOK {
		status = "error"
	}
	c.JSON(code, gin.H{"status": status, "checks": gin.H{h.storage: state}})
}

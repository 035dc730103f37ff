package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is a dependency the health check can ping. *pgxpool.Pool,
// caching.CacheService and storage.LogoStore all satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db      Pinger
	cache   Pinger
	storage Pinger
	version string
	started time.Time
	timeout time.Duration
}

// NewHealthHandlers takes the checked dependencies; nil ones are reported as
// disabled.
func NewHealthHandlers(db, cache, storage Pinger, version string) *HealthHandlers {
	return &HealthHandlers{
		db:      db,
		cache:   cache,
		storage: storage,
		version: version,
		started: time.Now(),
		timeout: 3 * time.Second,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Services   map[string]string `json:"services"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version"`
	Goroutines int               `json:"goroutines"`
}

const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
	statusDisabled  = "disabled"
)

// HealthCheck pings the database, redis and object storage.
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	health := &HealthStatus{
		Status:     statusHealthy,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Services:   make(map[string]string, 3),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}

	for name, p := range map[string]Pinger{"database": h.db, "redis": h.cache, "storage": h.storage} {
		state := pingState(ctx, p)
		health.Services[name] = state
		if state == statusUnhealthy {
			health.Status = statusDegraded
		}
	}

	statusCode := http.StatusOK
	if health.Services["database"] == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	} else if health.Status == statusDegraded {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, health)
}

func pingState(ctx context.Context, p Pinger) string {
	if p == nil {
		return statusDisabled
	}
	if err := p.Ping(ctx); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

// LivenessCheck determines if the application is running (basic liveness check)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type ConnectionStats struct {
	Total     int `json:"total"`
	Streaming int `json:"streaming"`
}

type WorkerStats struct {
	Size    int `json:"size"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

type RequestStats struct {
	TotalRequests  uint64 `json:"total_requests"`
	ActiveRequests int64  `json:"active_requests"`
}

type Stats struct {
	Connections ConnectionStats `json:"connections"`
	Workers     WorkerStats     `json:"workers"`
	Requests    RequestStats    `json:"requests"`
	Runtime     RuntimeStats    `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

// Handler serves liveness and readiness. Database and redis are optional; when nil
// they are left out of the readiness report.
type Handler struct {
	db       *gorm.DB
	redis    *redis.Client
	engines  *engine.Manager
	registry *registry.Registry
	pool     *streaming.Pool
	version  string
	start    time.Time

	totalRequests  uint64
	activeRequests int64
}

func NewHandler(
	db *gorm.DB,
	redis *redis.Client,
	engines *engine.Manager,
	reg *registry.Registry,
	pool *streaming.Pool,
	version string,
) *Handler {
	return &Handler{
		db:       db,
		redis:    redis,
		engines:  engines,
		registry: reg,
		pool:     pool,
		version:  version,
		start:    time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

// Middleware counts HTTP requests for the readiness report.
func (h *Handler) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		atomic.AddUint64(&h.totalRequests, 1)
		atomic.AddInt64(&h.activeRequests, 1)
		defer atomic.AddInt64(&h.activeRequests, -1)
		return next(c)
	}
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	type check struct {
		name string
		fn   func(context.Context) ComponentStatus
	}
	checks := []check{{"engine", h.checkEngine}}
	if h.db != nil {
		checks = append(checks, check{"database", h.checkDatabase})
	}
	if h.redis != nil {
		checks = append(checks, check{"redis", h.checkRedis})
	}

	components := make(map[string]ComponentStatus, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(len(checks))
	for _, ch := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(ch.name, ch.fn)
	}
	wg.Wait()

	overall := computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.start).Seconds()),
		Stats: Stats{
			Connections: h.connectionStats(),
			Workers: WorkerStats{
				Size:    h.pool.Size(),
				InUse:   h.pool.InUse(),
				Waiting: h.pool.Waiting(),
			},
			Requests: RequestStats{
				TotalRequests:  atomic.LoadUint64(&h.totalRequests),
				ActiveRequests: atomic.LoadInt64(&h.activeRequests),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

func (h *Handler) connectionStats() ConnectionStats {
	ids := h.registry.IDs()
	stats := ConnectionStats{Total: len(ids)}
	for _, id := range ids {
		if s, ok := h.registry.GetState(id); ok && s == registry.StateStreaming {
			stats.Streaming++
		}
	}
	return stats
}

func (h *Handler) checkEngine(_ context.Context) ComponentStatus {
	start := time.Now()
	st := h.engines.Status()

	switch st.State {
	case engine.StateReady:
		return ComponentStatus{Status: StatusHealthy, LatencyMs: time.Since(start).Milliseconds()}
	case engine.StateInitializing:
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     st.Progress,
		}
	default:
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     h.engines.Reason(),
		}
	}
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()

	sqlDB, err := h.db.DB()
	if err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "failed to get underlying db",
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    evaluateDBStats(sqlDB.Stats()),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func evaluateDBStats(stats sql.DBStats) Status {
	if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}
	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

// computeOverallStatus fails readiness only on the engine; a failing database or redis
// degrades it.
func computeOverallStatus(components map[string]ComponentStatus) Status {
	if status, ok := components["engine"]; ok && status.Status == StatusUnhealthy {
		return StatusUnhealthy
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

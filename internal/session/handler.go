package session

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/history"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/shared"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/eleven-am/tts-stream/internal/voice"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const maxBroadcastLength = 1000

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Features struct {
	IncrementalGeneration bool   `json:"incremental_generation"`
	KVCache               bool   `json:"kv_cache"`
	AlignmentMonitoring   bool   `json:"alignment_monitoring"`
	LowLatency            bool   `json:"low_latency"`
	RealTimeFactor        string `json:"real_time_factor"`
}

type WorkerStats struct {
	Size    int `json:"size"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

type StatusResponse struct {
	Available        bool         `json:"available"`
	Ready            bool         `json:"ready"`
	State            engine.State `json:"state"`
	SampleRate       int          `json:"sample_rate,omitempty"`
	SupportedFormats []string     `json:"supported_formats,omitempty"`
	Description      string       `json:"description,omitempty"`
	Features         *Features    `json:"features,omitempty"`
	Workers          *WorkerStats `json:"workers,omitempty"`
	Progress         string       `json:"progress,omitempty"`
	Error            string       `json:"error,omitempty"`
}

type ConnectionsResponse struct {
	TotalConnections int     `json:"total_connections"`
	Timestamp        float64 `json:"timestamp"`
}

type BroadcastRequest struct {
	Message string `json:"message"`
}

type BroadcastResponse struct {
	Status string `json:"status"`
}

type Options struct {
	Registry    *registry.Registry
	Engines     *engine.Manager
	Bridge      *streaming.Bridge
	Voices      voice.Resolver
	Recorder    *history.Recorder
	Broadcaster registry.Broadcaster
	Collector   *telemetry.Collector
	Config      Config
	AdminToken  string
	Logger      *slog.Logger
}

type Handler struct {
	registry    *registry.Registry
	engines     *engine.Manager
	bridge      *streaming.Bridge
	voices      voice.Resolver
	recorder    *history.Recorder
	broadcaster registry.Broadcaster
	collector   *telemetry.Collector
	cfg         Config
	adminToken  string
	logger      *slog.Logger
}

func NewHandler(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultConfig().MaxMessageSize
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = DefaultConfig().MessagesPerSecond
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = DefaultConfig().MessageBurst
	}
	broadcaster := opts.Broadcaster
	if broadcaster == nil {
		broadcaster = registry.NewLocalBroadcaster(opts.Registry, opts.Collector, logger)
	}
	return &Handler{
		registry:    opts.Registry,
		engines:     opts.Engines,
		bridge:      opts.Bridge,
		voices:      opts.Voices,
		recorder:    opts.Recorder,
		broadcaster: broadcaster,
		collector:   opts.Collector,
		cfg:         cfg,
		adminToken:  opts.AdminToken,
		logger:      logger.With("handler", "stream"),
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/audio", h.Stream)
	g.GET("/status", h.Status)
	g.GET("/connections", h.Connections)
	g.POST("/broadcast", h.Broadcast)
}

func (h *Handler) Stream(c echo.Context) error {
	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	id := h.registry.Register(ws)
	h.collector.ConnectionOpened()

	s := h.newSession(id, ws)
	s.send(ConnectedMessage{
		Type:         TypeConnected,
		ConnectionID: id,
		Message:      "Connected to TRUE streaming WebSocket",
	})

	s.Run(c.Request().Context())

	h.registry.Unregister(id)
	s.Close()
	h.collector.ConnectionClosed()
	s.logger.Info("connection closed")
	return nil
}

func (h *Handler) newSession(id string, conn reader) *Session {
	return &Session{
		id:        id,
		conn:      conn,
		registry:  h.registry,
		engines:   h.engines,
		bridge:    h.bridge,
		voices:    h.voices,
		recorder:  h.recorder,
		collector: h.collector,
		limiter:   rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst),
		cfg:       h.cfg,
		logger:    h.logger.With("connection_id", id),
	}
}

func (h *Handler) Status(c echo.Context) error {
	st := h.engines.Status()
	if !h.engines.Ready() {
		reason := h.engines.Reason()
		if reason == "Not initialized" {
			reason = "Streaming model not initialized"
		}
		return c.JSON(http.StatusServiceUnavailable, StatusResponse{
			Available: false,
			Ready:     false,
			State:     st.State,
			Progress:  st.Progress,
			Error:     reason,
		})
	}

	pool := h.bridge.Pool()
	return c.JSON(http.StatusOK, StatusResponse{
		Available:        true,
		Ready:            true,
		State:            st.State,
		SampleRate:       st.SampleRate,
		SupportedFormats: []string{"wav", "base64"},
		Description:      "Model-level incremental streaming over WebSocket",
		Features: &Features{
			IncrementalGeneration: true,
			KVCache:               true,
			AlignmentMonitoring:   true,
			LowLatency:            true,
			RealTimeFactor:        "< 1.0 (faster than real-time)",
		},
		Workers: &WorkerStats{
			Size:    pool.Size(),
			InUse:   pool.InUse(),
			Waiting: pool.Waiting(),
		},
	})
}

func (h *Handler) Connections(c echo.Context) error {
	now := time.Now()
	return c.JSON(http.StatusOK, ConnectionsResponse{
		TotalConnections: h.registry.Count(),
		Timestamp:        float64(now.UnixNano()) / float64(time.Second),
	})
}

func (h *Handler) Broadcast(c echo.Context) error {
	if h.adminToken != "" {
		token := c.Request().Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			return shared.Unauthorized("invalid_admin_token", "missing or invalid admin token")
		}
	}

	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "invalid request body")
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return shared.BadRequest("invalid_request", "message is required")
	}
	if len(req.Message) > maxBroadcastLength {
		return shared.BadRequest("invalid_request", "message too long")
	}

	msg := InfoMessage{Type: TypeInfo, Message: req.Message}
	if err := h.broadcaster.Broadcast(c.Request().Context(), msg); err != nil {
		h.logger.Error("broadcast failed", "error", err)
		return shared.InternalError("broadcast_failed", "failed to broadcast message")
	}
	return c.JSON(http.StatusAccepted, BroadcastResponse{Status: "accepted"})
}

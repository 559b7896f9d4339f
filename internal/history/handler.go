package history

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eleven-am/tts-stream/internal/shared"
	"github.com/labstack/echo/v4"
)

type ListResponse struct {
	Total       int           `json:"total"`
	Generations []*Generation `json:"generations"`
}

type Handler struct {
	store  *Store
	logger *slog.Logger
}

// NewHandler serves generation history. A nil store answers 503.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, logger: logger.With("handler", "history")}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/history", h.List)
	g.GET("/history/:id", h.Get)
}

func (h *Handler) List(c echo.Context) error {
	if h.store == nil {
		return unavailable()
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return shared.BadRequest("invalid_limit", "limit must be a positive integer")
		}
		limit = n
	}

	items, err := h.store.List(c.Request().Context(), c.QueryParam("connection_id"), limit)
	if err != nil {
		h.logger.Error("list generations", "error", err)
		return shared.InternalError("history_failed", "failed to list generations")
	}
	if items == nil {
		items = []*Generation{}
	}
	return c.JSON(http.StatusOK, ListResponse{Total: len(items), Generations: items})
}

func (h *Handler) Get(c echo.Context) error {
	if h.store == nil {
		return unavailable()
	}

	g, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("not_found", "generation not found")
	}
	if err != nil {
		h.logger.Error("get generation", "error", err)
		return shared.InternalError("history_failed", "failed to load generation")
	}
	return c.JSON(http.StatusOK, g)
}

func unavailable() *echo.HTTPError {
	return shared.NewAPIError("history_disabled", "generation history is not configured").ToHTTP(http.StatusServiceUnavailable)
}

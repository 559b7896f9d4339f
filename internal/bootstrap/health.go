package bootstrap

import (
	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/health"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	engines *engine.Manager,
	reg *registry.Registry,
	pool *streaming.Pool,
) *health.Handler {
	return health.NewHandler(db, redis, engines, reg, pool, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(h.Middleware)
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)

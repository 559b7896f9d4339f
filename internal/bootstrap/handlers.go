package bootstrap

import (
	"log/slog"
	"os"

	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/history"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/session"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/eleven-am/tts-stream/internal/voice"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	SessionHandler *session.Handler
	HistoryHandler *history.Handler
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	stream := e.Group("/ws/stream")
	params.SessionHandler.RegisterRoutes(stream)
	params.HistoryHandler.RegisterRoutes(stream)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)
	return logger
}

func ProvideRecorder(store *history.Store, logger *slog.Logger) *history.Recorder {
	return history.NewRecorder(store, logger)
}

type SessionParams struct {
	fx.In

	Config      *Config
	Registry    *registry.Registry
	Engines     *engine.Manager
	Bridge      *streaming.Bridge
	Voices      voice.Resolver
	Recorder    *history.Recorder
	Broadcaster registry.Broadcaster
	Collector   *telemetry.Collector
	Logger      *slog.Logger
}

func ProvideSessionHandler(p SessionParams) *session.Handler {
	return session.NewHandler(session.Options{
		Registry:    p.Registry,
		Engines:     p.Engines,
		Bridge:      p.Bridge,
		Voices:      p.Voices,
		Recorder:    p.Recorder,
		Broadcaster: p.Broadcaster,
		Collector:   p.Collector,
		Config: session.Config{
			MessagesPerSecond: p.Config.WSMessagesPerSecond,
			MessageBurst:      p.Config.WSMessageBurst,
			MaxMessageSize:    p.Config.WSMaxMessageSize,
		},
		AdminToken: p.Config.AdminToken,
		Logger:     p.Logger,
	})
}

func ProvideHistoryHandler(store *history.Store, logger *slog.Logger) *history.Handler {
	return history.NewHandler(store, logger)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideRecorder,
		ProvideSessionHandler,
		ProvideHistoryHandler,
	),
	fx.Invoke(RegisterRoutes),
)

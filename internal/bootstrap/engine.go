package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/eleven-am/tts-stream/internal/voice"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideEngineLoader(cfg *Config, logger *slog.Logger) (engine.Loader, error) {
	switch cfg.Engine {
	case "synthetic":
		return engine.SyntheticLoader(cfg.EngineSampleRate, cfg.EngineUnitDelay), nil
	case "exec":
		if cfg.EngineCommand == "" {
			return nil, errors.New("ENGINE_COMMAND is required for the exec engine")
		}
		return engine.ExecLoader(cfg.EngineCommand, cfg.EngineSampleRate, logger), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}

func ProvideEngineManager(loader engine.Loader, logger *slog.Logger) *engine.Manager {
	return engine.NewManager(loader, logger)
}

// WarmEngine loads the engine in the background so the server accepts connections while
// the model initializes. Status and readiness report progress until then.
func WarmEngine(lc fx.Lifecycle, mgr *engine.Manager) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				_ = mgr.Initialize(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func ProvideVoiceResolver(cfg *Config) (voice.Resolver, error) {
	if cfg.VoiceLibrary == "" {
		return voice.Builtin(), nil
	}
	lib, err := voice.LoadFile(cfg.VoiceLibrary, cfg.VoiceDir)
	if err != nil {
		return nil, fmt.Errorf("load voice library: %w", err)
	}
	return lib, nil
}

func ProvidePool(cfg *Config) *streaming.Pool {
	return streaming.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueTimeout)
}

func ProvideBridge(mgr *engine.Manager, pool *streaming.Pool, collector *telemetry.Collector, logger *slog.Logger) *streaming.Bridge {
	return streaming.NewBridge(mgr, pool, collector, logger)
}

func ProvideRegistry(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) *registry.Registry {
	reg := registry.New(cfg.WSIdleTimeout, logger)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go reg.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			reg.CloseAll()
			return nil
		},
	})
	return reg
}

// ProvideBroadcaster fans broadcasts out through redis when configured so every
// instance delivers them; otherwise only local connections receive them.
func ProvideBroadcaster(lc fx.Lifecycle, client *redis.Client, reg *registry.Registry, collector *telemetry.Collector, logger *slog.Logger) registry.Broadcaster {
	if client == nil {
		return registry.NewLocalBroadcaster(reg, collector, logger)
	}

	b := registry.NewRedisBroadcaster(client, reg, collector, logger)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go b.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return b
}

var StreamingModule = fx.Options(
	fx.Provide(
		ProvideEngineLoader,
		ProvideEngineManager,
		ProvideVoiceResolver,
		ProvidePool,
		ProvideBridge,
		ProvideRegistry,
		ProvideBroadcaster,
	),
	fx.Invoke(WarmEngine),
)

package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/redis/go-redis/v9"
)

const BroadcastChannel = "tts:broadcast"

// resubscribeBackoff is the pause after a failed receive. The pubsub reconnects and
// resubscribes on the next receive.
const resubscribeBackoff = 250 * time.Millisecond

// Broadcaster delivers a message to every connected client.
type Broadcaster interface {
	Broadcast(ctx context.Context, v any) error
}

// LocalBroadcaster writes to the connections held by this process only.
type LocalBroadcaster struct {
	registry  *Registry
	collector *telemetry.Collector
	log       *slog.Logger
}

func NewLocalBroadcaster(reg *Registry, collector *telemetry.Collector, log *slog.Logger) *LocalBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &LocalBroadcaster{registry: reg, collector: collector, log: log.With("component", "broadcaster")}
}

func (b *LocalBroadcaster) Broadcast(_ context.Context, v any) error {
	delivered := b.registry.BroadcastJSON(v)
	b.collector.Broadcast("local")
	b.log.Debug("broadcast delivered", "connections", delivered)
	return nil
}

// RedisBroadcaster publishes to a shared channel so every instance fans the message out
// to its own connections. Run must be started for this instance to receive.
type RedisBroadcaster struct {
	redis     *redis.Client
	registry  *Registry
	channel   string
	collector *telemetry.Collector
	log       *slog.Logger
}

func NewRedisBroadcaster(client *redis.Client, reg *Registry, collector *telemetry.Collector, log *slog.Logger) *RedisBroadcaster {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroadcaster{
		redis:     client,
		registry:  reg,
		channel:   BroadcastChannel,
		collector: collector,
		log:       log.With("component", "redis_broadcaster"),
	}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	if err := b.redis.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	b.log.Debug("published broadcast", "channel", b.channel)
	return nil
}

// Run relays published messages to local connections until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	b.log.Info("subscribed to broadcasts", "channel", b.channel)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.log.Error("receive broadcast", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(resubscribeBackoff):
				}
				continue
			}

			if !json.Valid([]byte(msg.Payload)) {
				b.log.Warn("dropping malformed broadcast payload")
				continue
			}

			delivered := b.registry.broadcastText([]byte(msg.Payload))
			b.collector.Broadcast("redis")
			b.log.Debug("broadcast delivered", "connections", delivered)
		}
	}
}

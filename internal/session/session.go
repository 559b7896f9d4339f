package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/eleven-am/tts-stream/internal/engine"
	"github.com/eleven-am/tts-stream/internal/history"
	"github.com/eleven-am/tts-stream/internal/registry"
	"github.com/eleven-am/tts-stream/internal/streaming"
	"github.com/eleven-am/tts-stream/internal/telemetry"
	"github.com/eleven-am/tts-stream/internal/voice"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Config struct {
	MessagesPerSecond float64
	MessageBurst      int
	MaxMessageSize    int64
}

func DefaultConfig() Config {
	return Config{
		MessagesPerSecond: 20,
		MessageBurst:      40,
		MaxMessageSize:    64 * 1024,
	}
}

// reader is the inbound side of a client connection. gorilla allows one reader, so the
// session keeps it; writes, pings and Close belong to the registry.
type reader interface {
	ReadMessage() (int, []byte, error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
}

var _ reader = (*websocket.Conn)(nil)

// Session drives one client connection: it reads messages sequentially and runs at most
// one generation at a time in its own goroutine.
type Session struct {
	id        string
	conn      reader
	registry  *registry.Registry
	engines   *engine.Manager
	bridge    *streaming.Bridge
	voices    voice.Resolver
	recorder  *history.Recorder
	collector *telemetry.Collector
	limiter   *rate.Limiter
	cfg       Config
	logger    *slog.Logger

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *Session) ID() string {
	return s.id
}

// Run serves the connection until the client leaves or ctx ends.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.registry.Touch(s.id)
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.keepalive(ctx)

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		s.registry.Touch(s.id)
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !s.limiter.Allow() {
			s.sendError(CodeRateLimited, "Rate limit exceeded: message dropped")
			continue
		}
		if msgType != websocket.TextMessage {
			s.sendError(CodeMalformedMessage, "Invalid message format: binary frames are not accepted")
			continue
		}

		s.handle(ctx, data)
	}
}

// Close cancels any running generation and waits for it to finish.
func (s *Session) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Session) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.registry.Ping(s.id); err != nil {
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			s.sendError(pe.Code, pe.Message)
		}
		return
	}
	s.collector.MessageReceived(msg.Type)

	switch msg.Type {
	case TypePing:
		s.send(PongMessage{Type: TypePong})
	case TypeCancel:
		s.cancelGeneration()
	case TypeStreamRequest:
		s.startGeneration(ctx, msg.Request)
	}
}

func (s *Session) cancelGeneration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		s.send(InfoMessage{Type: TypeInfo, Message: "No active generation to cancel"})
		return
	}
	s.cancel()
	s.send(InfoMessage{Type: TypeInfo, Message: "Cancellation requested"})
	s.logger.Info("generation cancel requested")
}

func (s *Session) startGeneration(ctx context.Context, req *streaming.Request) {
	if !s.engines.Ready() {
		s.sendError(CodeEngineNotReady, "Streaming model not ready: "+s.engines.Reason())
		return
	}
	if req == nil {
		s.sendError(CodeValidationError, "Missing 'data' field in stream_request message")
		return
	}

	s.mu.Lock()
	busy := s.active
	s.mu.Unlock()
	if busy {
		s.sendError(CodeGenerationInProgress, "A generation is already in progress")
		return
	}

	v, err := s.voices.Resolve(req.Voice)
	if err != nil {
		s.sendError(CodeVoiceResolution, "Invalid voice: "+err.Error())
		return
	}

	s.send(InfoMessage{
		Type:       TypeInfo,
		Message:    "Starting TRUE streaming generation...",
		TextLength: utf8.RuneCountInString(req.Input),
		Voice:      req.Voice,
		Parameters: parametersOf(*req),
	})

	genCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.active = true
	s.cancel = cancel
	s.registry.SetState(s.id, registry.StateStreaming)
	s.mu.Unlock()

	s.logger.Info("generation started", "voice", v.Name, "text_length", len(req.Input), "output_format", req.OutputFormat)

	s.wg.Add(1)
	go s.generate(genCtx, cancel, *req, v)
}

func (s *Session) generate(ctx context.Context, cancel context.CancelFunc, req streaming.Request, v voice.Info) {
	defer s.wg.Done()
	defer cancel()

	writeFailed := false
	for ev := range s.bridge.Stream(ctx, req, v) {
		if ev.Terminal() {
			s.finish(req, v, ev)
			continue
		}
		if writeFailed {
			continue
		}

		if err := s.relay(ev); err != nil {
			if !isTransportError(err) {
				s.logger.Warn("skipped unsendable frame", "chunk", ev.Index, "error", err)
				continue
			}
			writeFailed = true
			cancel()
			s.logger.Debug("stopped relaying after write failure", "error", err)
		}
	}
}

func (s *Session) relay(ev streaming.Event) error {
	if err := s.registry.SendBytes(s.id, ev.Data); err != nil {
		return err
	}
	if ev.Kind == streaming.EventChunk && ev.Metrics != nil {
		return s.registry.SendJSON(s.id, MetricsMessage{Type: TypeMetrics, Data: *ev.Metrics})
	}
	return nil
}

// isTransportError reports whether err means the connection is gone, as opposed to a
// frame that could not be encoded.
func isTransportError(err error) bool {
	return errors.Is(err, registry.ErrConnectionClosed) || errors.Is(err, registry.ErrConnectionNotFound)
}

// finish delivers the terminal message and returns the connection to idle. The session
// lock is held until the message is written so a following request cannot overtake it.
func (s *Session) finish(req streaming.Request, v voice.Info, ev streaming.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = false
	s.cancel = nil

	rec := &history.Generation{
		ConnectionID:       s.id,
		Voice:              v.Name,
		TextLength:         utf8.RuneCountInString(req.Input),
		OutputFormat:       string(req.OutputFormat),
		Chunks:             ev.Summary.TotalChunks,
		Bytes:              ev.Summary.TotalBytes,
		TimeToFirstChunkMs: ev.Summary.TimeToFirstChunk.Milliseconds(),
		DurationMs:         ev.Summary.Duration.Milliseconds(),
		AudioSeconds:       ev.Summary.AudioSeconds(),
		RTF:                ev.Summary.RTF(),
		Parameters: map[string]any{
			"chunk_size":     req.ChunkSize,
			"context_window": req.ContextWindow,
			"temperature":    req.Temperature,
			"cfg_weight":     req.CFGWeight,
			"exaggeration":   req.Exaggeration,
		},
	}

	switch ev.Kind {
	case streaming.EventDone:
		s.registry.SetState(s.id, registry.StateIdle)
		s.send(DoneMessage{Type: TypeDone, TotalChunks: ev.Summary.TotalChunks, Message: "Streaming complete"})
		rec.Status = history.StatusCompleted
		s.logger.Info("generation completed", "chunks", ev.Summary.TotalChunks, "duration", ev.Summary.Duration)

	case streaming.EventCancelled:
		s.registry.SetState(s.id, registry.StateIdle)
		s.send(DoneMessage{Type: TypeDone, TotalChunks: ev.Summary.TotalChunks, Message: "Streaming cancelled", Cancelled: true})
		rec.Status = history.StatusCancelled
		s.logger.Info("generation cancelled", "chunks", ev.Summary.TotalChunks)

	case streaming.EventFailed:
		s.registry.SetState(s.id, registry.StateError)
		s.sendError(failureCode(ev.Err), "Streaming failed: "+ev.Err.Error())
		s.registry.SetState(s.id, registry.StateIdle)
		rec.Status = history.StatusFailed
		rec.Error = ev.Err.Error()
		s.logger.Error("generation failed", "error", ev.Err, "chunks", ev.Summary.TotalChunks)
	}

	s.recorder.Record(rec)
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, streaming.ErrServerBusy):
		return CodeServerBusy
	case errors.Is(err, engine.ErrNotReady):
		return CodeEngineNotReady
	default:
		return CodeGenerationFailure
	}
}

func (s *Session) send(v any) {
	if err := s.registry.SendJSON(s.id, v); err != nil {
		s.logger.Debug("send failed", "error", err)
	}
}

func (s *Session) sendError(code, message string) {
	s.collector.ErrorSent(code)
	s.send(ErrorMessage{Type: TypeError, Error: message, Code: code})
}

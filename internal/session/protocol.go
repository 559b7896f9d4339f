package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eleven-am/tts-stream/internal/streaming"
)

const (
	TypeStreamRequest = "stream_request"
	TypeCancel        = "cancel"
	TypePing          = "ping"

	TypeConnected = "connected"
	TypeInfo      = "info"
	TypeError     = "error"
	TypeMetrics   = "metrics"
	TypeDone      = "done"
	TypePong      = "pong"
)

const (
	CodeMalformedMessage     = "malformed_message"
	CodeValidationError      = "validation_error"
	CodeEngineNotReady       = "engine_not_ready"
	CodeVoiceResolution      = "voice_resolution_error"
	CodeGenerationFailure    = "generation_failure"
	CodeGenerationInProgress = "generation_in_progress"
	CodeServerBusy           = "server_busy"
	CodeRateLimited          = "rate_limited"
)

var ErrMalformedMessage = errors.New("malformed message")

// ProtocolError is a rejected inbound message. Message is the text sent to the client.
type ProtocolError struct {
	Code    string
	Message string
	err     error
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func (e *ProtocolError) Unwrap() error {
	return e.err
}

func malformed(msg string) *ProtocolError {
	return &ProtocolError{Code: CodeMalformedMessage, Message: msg, err: ErrMalformedMessage}
}

// Inbound is a parsed client message. Request is nil when a stream_request carried no data.
type Inbound struct {
	Type    string
	Request *streaming.Request
}

type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseMessage decodes one text frame. Failures are *ProtocolError values wrapping
// ErrMalformedMessage or streaming.ErrValidation.
func ParseMessage(raw []byte) (Inbound, error) {
	if !json.Valid(raw) {
		return Inbound{}, malformed("Invalid JSON format")
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, malformed("Invalid message format: expected an object with a string type")
	}
	if env.Type == nil {
		return Inbound{}, malformed("Invalid message format: type: field required")
	}

	switch *env.Type {
	case TypePing, TypeCancel:
		return Inbound{Type: *env.Type}, nil
	case TypeStreamRequest:
	default:
		return Inbound{}, malformed("Invalid message format: type must be one of: stream_request, cancel, ping")
	}

	msg := Inbound{Type: TypeStreamRequest}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return msg, nil
	}

	req, err := streaming.DecodeRequest(env.Data)
	if err != nil {
		return Inbound{}, &ProtocolError{
			Code:    CodeValidationError,
			Message: fmt.Sprintf("Invalid message format: %s", err.Error()),
			err:     err,
		}
	}
	msg.Request = &req
	return msg, nil
}

type ConnectedMessage struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message"`
}

type Parameters struct {
	ChunkSize     int     `json:"chunk_size"`
	ContextWindow int     `json:"context_window"`
	Temperature   float64 `json:"temperature"`
	CFGWeight     float64 `json:"cfg_weight"`
	Exaggeration  float64 `json:"exaggeration"`
	OutputFormat  string  `json:"output_format"`
}

type InfoMessage struct {
	Type       string      `json:"type"`
	Message    string      `json:"message"`
	TextLength int         `json:"text_length,omitempty"`
	Voice      string      `json:"voice,omitempty"`
	Parameters *Parameters `json:"parameters,omitempty"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

type MetricsMessage struct {
	Type string            `json:"type"`
	Data streaming.Metrics `json:"data"`
}

type DoneMessage struct {
	Type        string `json:"type"`
	TotalChunks int    `json:"total_chunks"`
	Message     string `json:"message"`
	Cancelled   bool   `json:"cancelled,omitempty"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func parametersOf(r streaming.Request) *Parameters {
	return &Parameters{
		ChunkSize:     r.ChunkSize,
		ContextWindow: r.ContextWindow,
		Temperature:   r.Temperature,
		CFGWeight:     r.CFGWeight,
		Exaggeration:  r.Exaggeration,
		OutputFormat:  string(r.OutputFormat),
	}
}

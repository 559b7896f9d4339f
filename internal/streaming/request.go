package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eleven-am/tts-stream/internal/audio"
	"github.com/eleven-am/tts-stream/internal/engine"
)

const MaxInputLength = 3000

var ErrValidation = errors.New("validation error")

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Request is a validated stream_request payload with defaults applied.
type Request struct {
	Input          string
	Voice          string
	Exaggeration   float64
	CFGWeight      float64
	Temperature    float64
	ChunkSize      int
	ContextWindow  int
	EnableFadeIn   bool
	FadeInMs       int
	OutputFormat   audio.OutputFormat
	IncludeMetrics bool
	PrintMetrics   bool

	TopP                      float64
	MaxNewTokens              int
	MinNewTokens              int
	EnableAlignmentMonitoring bool
	AlignmentWindowSize       int
	AlignmentThreshold        float64
}

type requestPayload struct {
	Input          *string  `json:"input"`
	Voice          *string  `json:"voice"`
	Exaggeration   *float64 `json:"exaggeration"`
	CFGWeight      *float64 `json:"cfg_weight"`
	Temperature    *float64 `json:"temperature"`
	ChunkSize      *int     `json:"chunk_size"`
	ContextWindow  *int     `json:"context_window"`
	EnableFadeIn   *bool    `json:"enable_fade_in"`
	FadeInMs       *int     `json:"fade_in_duration_ms"`
	OutputFormat   *string  `json:"output_format"`
	IncludeMetrics *bool    `json:"include_metrics"`
	PrintMetrics   *bool    `json:"print_metrics"`

	TopP                      *float64 `json:"top_p"`
	MaxNewTokens              *int     `json:"max_new_tokens"`
	MinNewTokens              *int     `json:"min_new_tokens"`
	EnableAlignmentMonitoring *bool    `json:"enable_alignment_monitoring"`
	AlignmentWindowSize       *int     `json:"alignment_window_size"`
	AlignmentThreshold        *float64 `json:"alignment_threshold"`
}

func DefaultRequest() Request {
	return Request{
		Voice:          "alloy",
		Exaggeration:   0.5,
		CFGWeight:      0.5,
		Temperature:    0.8,
		ChunkSize:      25,
		ContextWindow:  50,
		EnableFadeIn:   true,
		FadeInMs:       20,
		OutputFormat:   audio.FormatWAV,
		IncludeMetrics: true,

		TopP:                      0.95,
		MaxNewTokens:              4096,
		EnableAlignmentMonitoring: true,
		AlignmentWindowSize:       50,
		AlignmentThreshold:        0.15,
	}
}

// DecodeRequest parses a stream_request data object. Returned errors wrap ErrValidation.
func DecodeRequest(raw json.RawMessage) (Request, error) {
	var p requestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Request{}, &ValidationError{Reason: "invalid payload: " + err.Error()}
	}

	r := DefaultRequest()

	if p.Input == nil {
		return Request{}, &ValidationError{Field: "input", Reason: "field required"}
	}
	r.Input = strings.TrimSpace(*p.Input)
	if r.Input == "" {
		return Request{}, &ValidationError{Field: "input", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(r.Input); n > MaxInputLength {
		return Request{}, &ValidationError{Field: "input", Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxInputLength, n)}
	}

	if p.Voice != nil {
		r.Voice = *p.Voice
	}

	checks := []error{
		floatField("exaggeration", p.Exaggeration, &r.Exaggeration, 0.25, 2.0),
		floatField("cfg_weight", p.CFGWeight, &r.CFGWeight, 0, 1),
		floatField("temperature", p.Temperature, &r.Temperature, 0.05, 5.0),
		intField("chunk_size", p.ChunkSize, &r.ChunkSize, 10, 100),
		intField("context_window", p.ContextWindow, &r.ContextWindow, 0, 200),
		intField("fade_in_duration_ms", p.FadeInMs, &r.FadeInMs, 0, 100),
		floatField("top_p", p.TopP, &r.TopP, 0, 1),
		intField("max_new_tokens", p.MaxNewTokens, &r.MaxNewTokens, 100, 10000),
		intField("min_new_tokens", p.MinNewTokens, &r.MinNewTokens, 0, 1000),
		intField("alignment_window_size", p.AlignmentWindowSize, &r.AlignmentWindowSize, 10, 200),
		floatField("alignment_threshold", p.AlignmentThreshold, &r.AlignmentThreshold, 0, 1),
	}
	for _, err := range checks {
		if err != nil {
			return Request{}, err
		}
	}

	if p.OutputFormat != nil {
		f := audio.OutputFormat(*p.OutputFormat)
		if !f.Valid() {
			return Request{}, &ValidationError{Field: "output_format", Reason: "must be one of: wav, base64"}
		}
		r.OutputFormat = f
	}

	boolField(p.EnableFadeIn, &r.EnableFadeIn)
	boolField(p.IncludeMetrics, &r.IncludeMetrics)
	boolField(p.PrintMetrics, &r.PrintMetrics)
	boolField(p.EnableAlignmentMonitoring, &r.EnableAlignmentMonitoring)

	return r, nil
}

func floatField(name string, v *float64, dst *float64, lo, hi float64) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return &ValidationError{Field: name, Reason: fmt.Sprintf("must be between %g and %g", lo, hi)}
	}
	*dst = *v
	return nil
}

func intField(name string, v *int, dst *int, lo, hi int) error {
	if v == nil {
		return nil
	}
	if *v < lo || *v > hi {
		return &ValidationError{Field: name, Reason: fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	*dst = *v
	return nil
}

func boolField(v *bool, dst *bool) {
	if v != nil {
		*dst = *v
	}
}

func (r Request) EncodeOptions(sampleRate int) audio.EncodeOptions {
	return audio.EncodeOptions{
		SampleRate:     sampleRate,
		FadeIn:         r.EnableFadeIn,
		FadeDurationMs: r.FadeInMs,
		Format:         r.OutputFormat,
	}
}

func (r Request) EngineParams(voicePath, language string) engine.Params {
	return engine.Params{
		Text:          r.Input,
		VoicePath:     voicePath,
		Language:      language,
		Exaggeration:  r.Exaggeration,
		CFGWeight:     r.CFGWeight,
		Temperature:   r.Temperature,
		ChunkSize:     r.ChunkSize,
		ContextWindow: r.ContextWindow,
		FadeDuration:  time.Duration(r.FadeInMs) * time.Millisecond,
		PrintMetrics:  r.PrintMetrics,
	}
}

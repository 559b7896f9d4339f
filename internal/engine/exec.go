package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/eleven-am/tts-stream/internal/audio"
	"github.com/mattn/go-shellwords"
)

const (
	maxExecLineSize  = 16 * 1024 * 1024
	maxStderrCapture = 4096
)

type execRequest struct {
	Text          string  `json:"text"`
	VoicePath     string  `json:"audio_prompt_path"`
	Language      string  `json:"language,omitempty"`
	Exaggeration  float64 `json:"exaggeration"`
	CFGWeight     float64 `json:"cfg_weight"`
	Temperature   float64 `json:"temperature"`
	ChunkSize     int     `json:"chunk_size"`
	ContextWindow int     `json:"context_window"`
	FadeDuration  float64 `json:"fade_duration"`
	PrintMetrics  bool    `json:"print_metrics"`
	SampleRate    int     `json:"sample_rate"`
}

type execResponse struct {
	Audio      string         `json:"audio"`
	Encoding   string         `json:"encoding"`
	SampleRate int            `json:"sample_rate"`
	Metrics    map[string]any `json:"metrics,omitempty"`
	Error      string         `json:"error,omitempty"`
	Done       bool           `json:"done,omitempty"`
}

// Exec runs an external generator process per request. The process reads one JSON request
// on stdin and writes newline-delimited JSON units on stdout.
type Exec struct {
	cmd        []string
	sampleRate int
	log        *slog.Logger
}

func NewExec(command string, sampleRate int, log *slog.Logger) (*Exec, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("engine command empty")
	}
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if log == nil {
		log = slog.Default()
	}
	return &Exec{cmd: args, sampleRate: sampleRate, log: log.With("component", "exec_engine")}, nil
}

func ExecLoader(command string, sampleRate int, log *slog.Logger) Loader {
	return func(ctx context.Context) (Engine, error) {
		e, err := NewExec(command, sampleRate, log)
		if err != nil {
			return nil, err
		}
		if _, err := exec.LookPath(e.cmd[0]); err != nil {
			return nil, fmt.Errorf("engine command not found: %w", err)
		}
		return e, nil
	}
}

func (e *Exec) SampleRate() int {
	return e.sampleRate
}

func (e *Exec) GenerateStream(ctx context.Context, p Params, yield func(Unit) error) error {
	payload, err := json.Marshal(execRequest{
		Text:          p.Text,
		VoicePath:     p.VoicePath,
		Language:      p.Language,
		Exaggeration:  p.Exaggeration,
		CFGWeight:     p.CFGWeight,
		Temperature:   p.Temperature,
		ChunkSize:     p.ChunkSize,
		ContextWindow: p.ContextWindow,
		FadeDuration:  p.FadeDuration.Seconds(),
		PrintMetrics:  p.PrintMetrics,
		SampleRate:    e.sampleRate,
	})
	if err != nil {
		return fmt.Errorf("marshal engine request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr := &limitedBuffer{limit: maxStderrCapture}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stdin.Close()
		if _, err := stdin.Write(payload); err != nil {
			e.log.Debug("write engine request", "error", err)
		}
	}()

	streamErr := e.readUnits(stdout, yield)
	if streamErr != nil {
		cancel()
	}
	// Output after the done line is discarded; Wait must not run with the pipe full.
	_, _ = io.Copy(io.Discard, stdout)
	wg.Wait()

	waitErr := cmd.Wait()
	switch {
	case streamErr != nil:
		return streamErr
	case ctx.Err() != nil:
		return ctx.Err()
	case waitErr != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("engine exited: %w: %s", waitErr, msg)
		}
		return fmt.Errorf("engine exited: %w", waitErr)
	}
	return nil
}

func (e *Exec) readUnits(r io.Reader, yield func(Unit) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxExecLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("decode engine output: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("engine error: %s", resp.Error)
		}
		if resp.Done {
			return nil
		}

		samples, err := e.decodeSamples(resp)
		if err != nil {
			return err
		}
		if err := yield(Unit{Samples: samples, Metrics: resp.Metrics}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (e *Exec) decodeSamples(resp execResponse) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(resp.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode engine audio: %w", err)
	}

	var samples []float32
	switch resp.Encoding {
	case "", "f32le":
		samples = audio.Float32LEBytesToFloat32(data)
	case "s16le":
		samples = audio.Int16ToFloat32(audio.PCMBytesToInt16(data))
	default:
		return nil, fmt.Errorf("unsupported engine audio encoding %q", resp.Encoding)
	}

	if resp.SampleRate > 0 && resp.SampleRate != e.sampleRate {
		samples = audio.Resample(samples, resp.SampleRate, e.sampleRate)
	}
	return samples, nil
}

type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

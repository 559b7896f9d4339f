package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type message struct {
	Type         string          `json:"type"`
	Message      string          `json:"message,omitempty"`
	Error        string          `json:"error,omitempty"`
	Code         string          `json:"code,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	TotalChunks  int             `json:"total_chunks,omitempty"`
	Cancelled    bool            `json:"cancelled,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

var (
	serverURL string
	text      string
	voiceName string
	format    string
	chunkSize int
	outPath   string
)

var rootCmd = &cobra.Command{
	Use:   "stream-client",
	Short: "Stream synthesized audio from a tts-stream server into a file",
	Args:  cobra.NoArgs,
	RunE:  runStream,
}

func init() {
	rootCmd.Flags().StringVar(&serverURL, "url", envOr("STREAM_URL", "ws://localhost:8080/ws/stream/audio"), "stream endpoint")
	rootCmd.Flags().StringVarP(&text, "text", "t", "Hello from the streaming synthesizer.", "text to synthesize")
	rootCmd.Flags().StringVar(&voiceName, "voice", "alloy", "voice name")
	rootCmd.Flags().StringVar(&format, "format", "wav", "output format: wav or base64")
	rootCmd.Flags().IntVar(&chunkSize, "chunk-size", 25, "tokens per chunk")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default out.wav, or out.pcm for base64)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStream(cmd *cobra.Command, args []string) error {
	conn, resp, err := websocket.DefaultDialer.Dial(serverURL, http.Header{})
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			fmt.Printf("[CLIENT] Dial failed: %v, status=%d, body=%s\n", err, resp.StatusCode, string(body))
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if outPath == "" {
		outPath = defaultOutput(format)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	request := map[string]any{
		"type": "stream_request",
		"data": map[string]any{
			"input":         text,
			"voice":         voiceName,
			"output_format": format,
			"chunk_size":    chunkSize,
		},
	}
	if err := conn.WriteJSON(request); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("[CLIENT] Cancelling...")
		_ = conn.WriteJSON(map[string]string{"type": "cancel"})
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		if kind == websocket.BinaryMessage {
			if format == "base64" {
				pcm, err := base64.StdEncoding.DecodeString(string(data))
				if err != nil {
					fmt.Printf("[CLIENT] Invalid base64 chunk: %v\n", err)
					continue
				}
				data = pcm
			}
			if _, err := f.Write(data); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			continue
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			fmt.Printf("[CLIENT] Unmarshal error: %v\n", err)
			continue
		}

		switch msg.Type {
		case "connected":
			fmt.Printf("[CLIENT] Connected as %s\n", msg.ConnectionID)
		case "info":
			fmt.Printf("[CLIENT] %s\n", msg.Message)
		case "metrics":
			fmt.Printf("[CLIENT] Metrics: %s\n", string(msg.Data))
		case "error":
			return fmt.Errorf("server error (%s): %s", msg.Code, msg.Error)
		case "done":
			fmt.Printf("[CLIENT] %s: %d chunks written to %s (cancelled=%v)\n", msg.Message, msg.TotalChunks, outPath, msg.Cancelled)
			return nil
		}
	}
}

// defaultOutput names the file by what lands in it. base64 chunks decode to raw
// 16-bit PCM with no header.
func defaultOutput(format string) string {
	if format == "base64" {
		return "out.pcm"
	}
	return "out.wav"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

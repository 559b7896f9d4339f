package history

import (
	"time"

	"github.com/eleven-am/tts-stream/internal/shared"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Generation is one finished stream_request.
type Generation struct {
	ID                 string         `gorm:"primaryKey" json:"id"`
	ConnectionID       string         `gorm:"not null;index" json:"connection_id"`
	Voice              string         `gorm:"not null" json:"voice"`
	TextLength         int            `json:"text_length"`
	OutputFormat       string         `json:"output_format"`
	Status             Status         `gorm:"not null;index" json:"status"`
	Chunks             int            `json:"chunks"`
	Bytes              int            `json:"bytes"`
	TimeToFirstChunkMs int64          `json:"time_to_first_chunk_ms"`
	DurationMs         int64          `json:"duration_ms"`
	AudioSeconds       float64        `json:"audio_seconds"`
	RTF                float64        `json:"rtf"`
	Parameters         shared.JSONMap `gorm:"type:text" json:"parameters,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`
}

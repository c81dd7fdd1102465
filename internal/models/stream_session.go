package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamSession is one live session feeding the detection pipeline. Each
// active session owns exactly one aggregator/detector pair.
type StreamSession struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	SourceURL     string     `json:"source_url"` // master video URL handed to the renderer
	IngestKeyHash string     `json:"-"`          // bcrypt hash of the signal push key
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	PeakViewers   int        `json:"peak_viewers"`
	MomentCount   int        `json:"moment_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Active reports whether the session is still live.
func (s *StreamSession) Active() bool {
	return s.EndedAt == nil
}

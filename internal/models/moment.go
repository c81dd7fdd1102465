package models

import (
	"time"

	"github.com/google/uuid"
)

// ClipWindow is the source time range to cut for a detected moment.
type ClipWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DetectedMoment is emitted by the moment detector on an idle -> cooling_down
// transition. Immutable; triggers exactly one clip job.
type DetectedMoment struct {
	ID         uuid.UUID  `json:"moment_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Timestamp  time.Time  `json:"timestamp"`
	Triggers   Triggers   `json:"triggers"`
	Intensity  float64    `json:"intensity"`  // [0,100]
	Confidence float64    `json:"confidence"` // [0,1]
	ClipWindow ClipWindow `json:"clip_window"`
	Keywords   []string   `json:"keywords,omitempty"` // chat keywords at detection time
}

// SuggestedClip is the content suggestion attached to a hype_moment_detected
// event so dashboards can one-click the clip request.
type SuggestedClip struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Hashtags    []string  `json:"hashtags"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatSignal carries chat activity metrics for one tick.
type ChatSignal struct {
	MessagesPerSecond float64  `json:"messages_per_second"`
	Sentiment         float64  `json:"sentiment"` // normalized [0,1]
	Keywords          []string `json:"keywords,omitempty"`
}

// AudioSignal carries audio excitement metrics for one tick.
type AudioSignal struct {
	Excitement  float64 `json:"excitement"` // normalized [0,1]
	VoiceActive bool    `json:"voice_active"`
}

// VisualSignal carries visual motion metrics for one tick.
type VisualSignal struct {
	MotionIntensity float64 `json:"motion_intensity"`
	SceneChanges    int     `json:"scene_changes"`
}

// ViewerSignal carries audience metrics for one tick.
type ViewerSignal struct {
	Current       int     `json:"current"`
	GrowthPct     float64 `json:"growth_pct"`
	EngagementPct float64 `json:"engagement_pct"`
}

// SignalSample is one snapshot of live-session signals, pushed by the signal
// source every tick. Immutable once created; retained only inside the
// aggregator's sliding window.
type SignalSample struct {
	SessionID uuid.UUID    `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Chat      ChatSignal   `json:"chat"`
	Audio     AudioSignal  `json:"audio"`
	Visual    VisualSignal `json:"visual"`
	Viewer    ViewerSignal `json:"viewer"`
}

// Triggers records which disjunctive trigger conditions held for a tick.
type Triggers struct {
	Chat   bool `json:"chat"`
	Audio  bool `json:"audio"`
	Viewer bool `json:"viewer"`
}

// Any reports whether at least one trigger fired.
func (t Triggers) Any() bool {
	return t.Chat || t.Audio || t.Viewer
}

// Count returns the number of simultaneous triggers.
func (t Triggers) Count() int {
	n := 0
	if t.Chat {
		n++
	}
	if t.Audio {
		n++
	}
	if t.Viewer {
		n++
	}
	return n
}

// CompositeScore is the weighted hype score recomputed each tick from the
// current window. Derived and non-persistent.
type CompositeScore struct {
	SessionID   uuid.UUID `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"` // [0,100]
	ChatScore   float64   `json:"chat_score"`
	AudioScore  float64   `json:"audio_score"`
	ViewerScore float64   `json:"viewer_score"`
	Triggers    Triggers  `json:"triggers"`
}

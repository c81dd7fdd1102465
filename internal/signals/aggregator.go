// Package signals converts a per-session stream of signal samples into a
// composite hype score using a fixed-duration sliding window.
package signals

import (
	"errors"
	"fmt"
	"time"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/models"
)

var (
	// ErrStaleSample is returned when a sample's timestamp does not advance
	// past the previous one for the session.
	ErrStaleSample = errors.New("sample timestamp not after previous sample")
)

// ValidationError describes a malformed sample. Malformed samples are rejected
// locally and never advance window or detector state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sample: %s %s", e.Field, e.Reason)
}

// Aggregator maintains the sliding window for one session. One instance per
// active session; not safe for concurrent use (the owning pipeline serializes
// ingestion).
type Aggregator struct {
	cfg    config.DetectionConfig
	window []models.SignalSample
	last   time.Time
}

// NewAggregator creates an aggregator with the given detection tunables.
func NewAggregator(cfg config.DetectionConfig) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Add validates the sample, slides the window and recomputes the composite
// score for this tick. On validation failure the window is unchanged.
func (a *Aggregator) Add(sample models.SignalSample) (models.CompositeScore, error) {
	if err := Validate(sample); err != nil {
		return models.CompositeScore{}, err
	}
	if !a.last.IsZero() && !sample.Timestamp.After(a.last) {
		return models.CompositeScore{}, ErrStaleSample
	}
	a.last = sample.Timestamp

	a.window = append(a.window, sample)
	a.evict(sample.Timestamp)

	return a.score(sample), nil
}

// WindowSize returns the number of samples currently retained.
func (a *Aggregator) WindowSize() int {
	return len(a.window)
}

// WindowKeywords returns the distinct chat keywords seen across the current
// window, newest first, for suggested clip content.
func (a *Aggregator) WindowKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for i := len(a.window) - 1; i >= 0; i-- {
		for _, kw := range a.window[i].Chat.Keywords {
			if kw != "" && !seen[kw] {
				seen[kw] = true
				out = append(out, kw)
			}
		}
	}
	return out
}

func (a *Aggregator) evict(now time.Time) {
	cutoff := now.Add(-time.Duration(a.cfg.WindowSeconds) * time.Second)
	i := 0
	for i < len(a.window) && !a.window[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		a.window = append(a.window[:0], a.window[i:]...)
	}
}

// score computes sub-scores over the current window and the trigger booleans
// from the newest sample.
func (a *Aggregator) score(latest models.SignalSample) models.CompositeScore {
	var chat, audio, viewer float64
	for _, s := range a.window {
		chat += clamp(s.Chat.MessagesPerSecond/a.cfg.ChatSaturation, 0, 1) * s.Chat.Sentiment
		audio += s.Audio.Excitement
		viewer += clamp(s.Viewer.GrowthPct/a.cfg.ViewerSaturation, 0, 1)
	}
	n := float64(len(a.window))
	chat /= n
	audio /= n
	viewer /= n

	w := a.cfg.Weights
	composite := (w.Chat*chat + w.Audio*audio + w.Viewer*viewer) * 100

	return models.CompositeScore{
		SessionID:   latest.SessionID,
		Timestamp:   latest.Timestamp,
		Value:       clamp(composite, 0, 100),
		ChatScore:   chat,
		AudioScore:  audio,
		ViewerScore: viewer,
		Triggers: models.Triggers{
			Chat:   latest.Chat.MessagesPerSecond > a.cfg.ChatThreshold,
			Audio:  latest.Audio.Excitement > a.cfg.AudioThreshold,
			Viewer: latest.Viewer.GrowthPct > a.cfg.ViewerGrowthThreshold,
		},
	}
}

// Validate checks a sample for required sub-metrics and normalized ranges.
func Validate(s models.SignalSample) error {
	if s.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "required"}
	}
	if s.Chat.MessagesPerSecond < 0 {
		return &ValidationError{Field: "chat.messages_per_second", Reason: "must be non-negative"}
	}
	if s.Chat.Sentiment < 0 || s.Chat.Sentiment > 1 {
		return &ValidationError{Field: "chat.sentiment", Reason: "must be in [0,1]"}
	}
	if s.Audio.Excitement < 0 || s.Audio.Excitement > 1 {
		return &ValidationError{Field: "audio.excitement", Reason: "must be in [0,1]"}
	}
	if s.Visual.MotionIntensity < 0 {
		return &ValidationError{Field: "visual.motion_intensity", Reason: "must be non-negative"}
	}
	if s.Viewer.Current < 0 {
		return &ValidationError{Field: "viewer.current", Reason: "must be non-negative"}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

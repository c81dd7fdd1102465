// Package detector implements the cooldown-gated hype moment state machine.
package detector

import (
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/models"
)

// State of the detector. Cooldown is time-based, not condition-based, so the
// moment emission rate has a hard upper bound.
type State string

const (
	StateIdle        State = "idle"
	StateCoolingDown State = "cooling_down"
)

// Detector consumes composite scores for one session and emits at most one
// DetectedMoment per cooldown window. One instance per session; the owning
// pipeline serializes calls.
type Detector struct {
	cfg           config.DetectionConfig
	state         State
	cooldownUntil time.Time
}

// New creates a detector in the idle state.
func New(cfg config.DetectionConfig) *Detector {
	return &Detector{cfg: cfg, state: StateIdle}
}

// State returns the current state, re-evaluated against now.
func (d *Detector) State(now time.Time) State {
	if d.state == StateCoolingDown && !now.Before(d.cooldownUntil) {
		d.state = StateIdle
	}
	return d.state
}

// Observe consumes one scored tick. It returns a DetectedMoment only on the
// idle -> cooling_down transition; while cooling down input is scored but
// never emits, which is the deduplication guarantee.
func (d *Detector) Observe(sample models.SignalSample, score models.CompositeScore) *models.DetectedMoment {
	if d.State(sample.Timestamp) != StateIdle {
		return nil
	}
	if !score.Triggers.Any() {
		return nil
	}

	d.state = StateCoolingDown
	d.cooldownUntil = sample.Timestamp.Add(time.Duration(d.cfg.CooldownSeconds) * time.Second)

	return &models.DetectedMoment{
		ID:         uuid.New(),
		SessionID:  sample.SessionID,
		Timestamp:  sample.Timestamp,
		Triggers:   score.Triggers,
		Intensity:  d.intensity(sample),
		Confidence: d.confidence(sample, score),
		ClipWindow: models.ClipWindow{
			Start: sample.Timestamp.Add(-time.Duration(d.cfg.PreRollSeconds) * time.Second),
			End:   sample.Timestamp.Add(time.Duration(d.cfg.PostRollSeconds) * time.Second),
		},
		Keywords: sample.Chat.Keywords,
	}
}

// intensity measures how far the firing triggers exceed their thresholds,
// bounded to [0,100]. Exceedance is measured relative to the threshold so the
// three signals are comparable.
func (d *Detector) intensity(s models.SignalSample) float64 {
	var sum, n float64
	if d.cfg.ChatThreshold > 0 && s.Chat.MessagesPerSecond > d.cfg.ChatThreshold {
		sum += (s.Chat.MessagesPerSecond - d.cfg.ChatThreshold) / d.cfg.ChatThreshold
		n++
	}
	if d.cfg.AudioThreshold > 0 && s.Audio.Excitement > d.cfg.AudioThreshold {
		sum += (s.Audio.Excitement - d.cfg.AudioThreshold) / d.cfg.AudioThreshold
		n++
	}
	if d.cfg.ViewerGrowthThreshold > 0 && s.Viewer.GrowthPct > d.cfg.ViewerGrowthThreshold {
		sum += (s.Viewer.GrowthPct - d.cfg.ViewerGrowthThreshold) / d.cfg.ViewerGrowthThreshold
		n++
	}
	if n == 0 {
		return 0
	}
	v := (sum / n) * 100
	if v > 100 {
		v = 100
	}
	return v
}

// confidence combines the number of simultaneous triggers with overall signal
// strength. Three triggers with a strong composite approaches 1.
func (d *Detector) confidence(s models.SignalSample, score models.CompositeScore) float64 {
	base := float64(score.Triggers.Count()) / 3
	strength := score.Value / 100
	c := 0.6*base + 0.4*strength
	if c > 1 {
		c = 1
	}
	return c
}

package detector_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/detector"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/signals"
)

func testDetectionConfig() config.DetectionConfig {
	return config.DetectionConfig{
		WindowSeconds:         60,
		ChatSaturation:        20,
		ViewerSaturation:      30,
		Weights:               config.ScoreWeights{Chat: 0.4, Audio: 0.3, Viewer: 0.3},
		ChatThreshold:         15,
		AudioThreshold:        0.85,
		ViewerGrowthThreshold: 15,
		PreRollSeconds:        30,
		PostRollSeconds:       30,
		CooldownSeconds:       60,
	}
}

func quietSample(sessionID uuid.UUID, t time.Time) models.SignalSample {
	return models.SignalSample{
		SessionID: sessionID,
		Timestamp: t,
		Chat:      models.ChatSignal{MessagesPerSecond: 5, Sentiment: 0.5},
		Audio:     models.AudioSignal{Excitement: 0.3},
		Viewer:    models.ViewerSignal{Current: 100, GrowthPct: 2},
	}
}

// observe runs a sample through a fresh-window aggregator + the detector.
func observe(t *testing.T, agg *signals.Aggregator, det *detector.Detector, s models.SignalSample) *models.DetectedMoment {
	t.Helper()
	score, err := agg.Add(s)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return det.Observe(s, score)
}

func TestChatTriggerEmitsMoment(t *testing.T) {
	cfg := testDetectionConfig()
	agg := signals.NewAggregator(cfg)
	det := detector.New(cfg)
	sessionID := uuid.New()
	now := time.Now()

	s := quietSample(sessionID, now)
	s.Chat = models.ChatSignal{MessagesPerSecond: 20, Sentiment: 0.9, Keywords: []string{"clutch"}}

	m := observe(t, agg, det, s)
	if m == nil {
		t.Fatal("expected a moment at 20 msg/s")
	}
	if !m.Triggers.Chat || m.Triggers.Audio || m.Triggers.Viewer {
		t.Fatalf("triggers = %+v, want chat only", m.Triggers)
	}
	if m.SessionID != sessionID {
		t.Fatalf("session = %s, want %s", m.SessionID, sessionID)
	}
	wantStart := now.Add(-30 * time.Second)
	wantEnd := now.Add(30 * time.Second)
	if !m.ClipWindow.Start.Equal(wantStart) || !m.ClipWindow.End.Equal(wantEnd) {
		t.Fatalf("clip window = [%v, %v], want [%v, %v]", m.ClipWindow.Start, m.ClipWindow.End, wantStart, wantEnd)
	}
	if m.Intensity < 0 || m.Intensity > 100 {
		t.Fatalf("intensity out of bounds: %.2f", m.Intensity)
	}
	if m.Confidence <= 0 || m.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %.2f", m.Confidence)
	}
}

func TestBelowThresholdsNoMoment(t *testing.T) {
	cfg := testDetectionConfig()
	agg := signals.NewAggregator(cfg)
	det := detector.New(cfg)
	sessionID := uuid.New()

	s := quietSample(sessionID, time.Now())
	s.Chat = models.ChatSignal{MessagesPerSecond: 10, Sentiment: 0.9}

	if m := observe(t, agg, det, s); m != nil {
		t.Fatalf("unexpected moment below thresholds: %+v", m)
	}
	if got := det.State(time.Now()); got != detector.StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

func TestAtMostOneMomentPerCooldown(t *testing.T) {
	cfg := testDetectionConfig()
	agg := signals.NewAggregator(cfg)
	det := detector.New(cfg)
	sessionID := uuid.New()
	base := time.Now()

	var emitted int
	for i := 0; i < 30; i++ {
		s := quietSample(sessionID, base.Add(time.Duration(i)*time.Second))
		s.Chat = models.ChatSignal{MessagesPerSecond: 40, Sentiment: 1}
		s.Audio = models.AudioSignal{Excitement: 0.95}
		if m := observe(t, agg, det, s); m != nil {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("emitted %d moments within one cooldown window, want 1", emitted)
	}
	if got := det.State(base.Add(30 * time.Second)); got != detector.StateCoolingDown {
		t.Fatalf("state = %s, want cooling_down", got)
	}
}

func TestCooldownExpiryRearms(t *testing.T) {
	cfg := testDetectionConfig()
	agg := signals.NewAggregator(cfg)
	det := detector.New(cfg)
	sessionID := uuid.New()
	base := time.Now()

	hot := quietSample(sessionID, base)
	hot.Audio = models.AudioSignal{Excitement: 0.95}
	if m := observe(t, agg, det, hot); m == nil {
		t.Fatal("expected first moment")
	}

	// Cooldown is time-based: triggers persisting at +30s emit nothing.
	during := quietSample(sessionID, base.Add(30*time.Second))
	during.Audio = models.AudioSignal{Excitement: 0.95}
	if m := observe(t, agg, det, during); m != nil {
		t.Fatal("moment emitted during cooldown")
	}

	// After the 60s cooldown elapses, the detector re-arms.
	after := quietSample(sessionID, base.Add(61*time.Second))
	after.Audio = models.AudioSignal{Excitement: 0.95}
	if m := observe(t, agg, det, after); m == nil {
		t.Fatal("expected new moment after cooldown expiry")
	}
}

func TestMoreSimultaneousTriggersRaiseConfidence(t *testing.T) {
	cfg := testDetectionConfig()
	sessionID := uuid.New()
	now := time.Now()

	single := quietSample(sessionID, now)
	single.Chat = models.ChatSignal{MessagesPerSecond: 16, Sentiment: 0.5}

	triple := quietSample(sessionID, now)
	triple.Chat = models.ChatSignal{MessagesPerSecond: 40, Sentiment: 1}
	triple.Audio = models.AudioSignal{Excitement: 0.95}
	triple.Viewer = models.ViewerSignal{Current: 500, GrowthPct: 40}

	aggA := signals.NewAggregator(cfg)
	mA := observe(t, aggA, detector.New(cfg), single)
	aggB := signals.NewAggregator(cfg)
	mB := observe(t, aggB, detector.New(cfg), triple)

	if mA == nil || mB == nil {
		t.Fatal("expected both moments")
	}
	if mB.Confidence <= mA.Confidence {
		t.Fatalf("triple-trigger confidence %.2f not above single-trigger %.2f", mB.Confidence, mA.Confidence)
	}
}

package signals_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/backend/config"
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

func sampleAt(t time.Time) models.SignalSample {
	return models.SignalSample{
		SessionID: uuid.New(),
		Timestamp: t,
		Chat:      models.ChatSignal{MessagesPerSecond: 10, Sentiment: 0.5},
		Audio:     models.AudioSignal{Excitement: 0.5, VoiceActive: true},
		Visual:    models.VisualSignal{MotionIntensity: 1, SceneChanges: 1},
		Viewer:    models.ViewerSignal{Current: 100, GrowthPct: 0},
	}
}

func TestAddComputesWeightedComposite(t *testing.T) {
	agg := signals.NewAggregator(testDetectionConfig())
	now := time.Now()

	s := sampleAt(now)
	s.Chat = models.ChatSignal{MessagesPerSecond: 20, Sentiment: 0.9}
	s.Audio = models.AudioSignal{Excitement: 0.6}
	s.Viewer = models.ViewerSignal{Current: 100, GrowthPct: 15}

	score, err := agg.Add(s)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	// chat = min(1, 20/20)*0.9 = 0.9; audio = 0.6; viewer = 15/30 = 0.5
	want := (0.4*0.9 + 0.3*0.6 + 0.3*0.5) * 100
	if math.Abs(score.Value-want) > 1e-9 {
		t.Fatalf("composite = %.4f, want %.4f", score.Value, want)
	}
	if !score.Triggers.Chat {
		t.Fatal("expected chat trigger at 20 msg/s")
	}
	if score.Triggers.Audio || score.Triggers.Viewer {
		t.Fatalf("unexpected triggers: %+v", score.Triggers)
	}
}

func TestChatSubScoreSaturates(t *testing.T) {
	agg := signals.NewAggregator(testDetectionConfig())
	s := sampleAt(time.Now())
	s.Chat = models.ChatSignal{MessagesPerSecond: 500, Sentiment: 1}

	score, err := agg.Add(s)
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if score.ChatScore > 1 {
		t.Fatalf("chat sub-score must saturate at 1, got %.4f", score.ChatScore)
	}
}

func TestWindowEvictsOldSamples(t *testing.T) {
	agg := signals.NewAggregator(testDetectionConfig())
	base := time.Now()

	// Spike at t=0.
	spike := sampleAt(base)
	spike.Chat = models.ChatSignal{MessagesPerSecond: 20, Sentiment: 1}
	if _, err := agg.Add(spike); err != nil {
		t.Fatalf("Add spike: %v", err)
	}

	// Quiet sample 90s later: the spike is outside the 60s window and must
	// not contribute to the score.
	quiet := sampleAt(base.Add(90 * time.Second))
	quiet.Chat = models.ChatSignal{MessagesPerSecond: 0, Sentiment: 0}
	quiet.Audio = models.AudioSignal{Excitement: 0}
	score, err := agg.Add(quiet)
	if err != nil {
		t.Fatalf("Add quiet: %v", err)
	}
	if agg.WindowSize() != 1 {
		t.Fatalf("window size = %d, want 1", agg.WindowSize())
	}
	if score.ChatScore != 0 {
		t.Fatalf("evicted spike still contributes: chat sub-score %.4f", score.ChatScore)
	}
}

func TestAddRejectsNonMonotonicTimestamp(t *testing.T) {
	agg := signals.NewAggregator(testDetectionConfig())
	now := time.Now()
	if _, err := agg.Add(sampleAt(now)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := agg.Add(sampleAt(now.Add(-time.Second)))
	if !errors.Is(err, signals.ErrStaleSample) {
		t.Fatalf("expected ErrStaleSample, got %v", err)
	}
	if agg.WindowSize() != 1 {
		t.Fatalf("rejected sample changed window: size %d", agg.WindowSize())
	}
}

func TestValidateRejectsOutOfRangeMetrics(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.SignalSample)
	}{
		{"negative mps", func(s *models.SignalSample) { s.Chat.MessagesPerSecond = -1 }},
		{"sentiment above 1", func(s *models.SignalSample) { s.Chat.Sentiment = 1.5 }},
		{"excitement below 0", func(s *models.SignalSample) { s.Audio.Excitement = -0.1 }},
		{"zero timestamp", func(s *models.SignalSample) { s.Timestamp = time.Time{} }},
		{"negative viewers", func(s *models.SignalSample) { s.Viewer.Current = -5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := sampleAt(time.Now())
			tc.mutate(&s)
			err := signals.Validate(s)
			var verr *signals.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestWindowKeywordsNewestFirstDistinct(t *testing.T) {
	agg := signals.NewAggregator(testDetectionConfig())
	base := time.Now()

	first := sampleAt(base)
	first.Chat.Keywords = []string{"clutch", "gg"}
	second := sampleAt(base.Add(time.Second))
	second.Chat.Keywords = []string{"insane", "clutch"}

	if _, err := agg.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := agg.Add(second); err != nil {
		t.Fatalf("Add: %v", err)
	}

	kws := agg.WindowKeywords()
	if len(kws) != 3 {
		t.Fatalf("keywords = %v, want 3 distinct", kws)
	}
	if kws[0] != "insane" || kws[1] != "clutch" {
		t.Fatalf("keywords not newest first: %v", kws)
	}
}

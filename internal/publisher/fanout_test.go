package publisher_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/backend/config"
	"github.com/hypecast/backend/internal/models"
	"github.com/hypecast/backend/internal/publisher"
)

func testPublishConfig() config.PublishConfig {
	return config.PublishConfig{
		MaxAttempts:           3,
		BackoffBaseMS:         1,
		BackoffFactor:         2,
		BackoffCapMS:          10,
		WorkerLimit:           4,
		AttemptTimeoutSeconds: 5,
		ClipDeadlineSeconds:   30,
		SchedulerPollSeconds:  1,
	}
}

// memStore is an in-memory TaskStore keyed by (clipID, platform).
type memStore struct {
	mu    sync.Mutex
	tasks map[string]*models.PublishTask
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*models.PublishTask)}
}

func (s *memStore) key(clipID uuid.UUID, platform string) string {
	return clipID.String() + ":" + platform
}

func (s *memStore) CreateOrGet(_ context.Context, task *models.PublishTask) (*models.PublishTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(task.ClipID, task.Platform)
	if existing, ok := s.tasks[k]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *task
	s.tasks[k] = &cp
	out := cp
	return &out, nil
}

func (s *memStore) byID(id uuid.UUID) *models.PublishTask {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *memStore) MarkProcessing(_ context.Context, id uuid.UUID, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.byID(id); t != nil && !t.Terminal() {
		t.Status = models.PublishStatusProcessing
		t.Attempt = attempt
	}
	return nil
}

func (s *memStore) MarkSuccess(_ context.Context, id uuid.UUID, attempt int, postID, postURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.byID(id); t != nil && t.Status != models.PublishStatusFailed {
		t.Status = models.PublishStatusSuccess
		t.Attempt = attempt
		t.PostID = postID
		t.PostURL = postURL
	}
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, id uuid.UUID, attempt int, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.byID(id); t != nil && t.Status != models.PublishStatusSuccess {
		t.Status = models.PublishStatusFailed
		t.Attempt = attempt
		t.ErrorCode = code
	}
	return nil
}

func (s *memStore) MarkScheduled(_ context.Context, id uuid.UUID, due time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.byID(id); t != nil && !t.Terminal() {
		t.Status = models.PublishStatusScheduled
		t.ScheduledFor = &due
	}
	return nil
}

func (s *memStore) get(clipID uuid.UUID, platform string) *models.PublishTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[s.key(clipID, platform)]
}

// publisherFunc adapts a function to PlatformPublisher.
type publisherFunc func(ctx context.Context, req publisher.PostRequest) (*publisher.PostResult, error)

func (f publisherFunc) Publish(ctx context.Context, req publisher.PostRequest) (*publisher.PostResult, error) {
	return f(ctx, req)
}

// memScheduler records Schedule handoffs.
type memScheduler struct {
	mu      sync.Mutex
	entries []publisher.PostRequest
}

func (s *memScheduler) Schedule(_ context.Context, _ time.Time, req publisher.PostRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, req)
	return nil
}

func okPublisher(postID string) publisher.PlatformPublisher {
	return publisherFunc(func(context.Context, publisher.PostRequest) (*publisher.PostResult, error) {
		return &publisher.PostResult{PostID: postID, PostURL: "https://example.com/" + postID}, nil
	})
}

func testClip() *models.ClipJob {
	return &models.ClipJob{
		ID:        uuid.New(),
		MomentID:  uuid.New(),
		SessionID: uuid.New(),
		SourceRef: "https://cdn.example.com/session.mp4",
		Status:    models.ClipStatusRendered,
	}
}

func resultFor(t *testing.T, report *models.PublishReport, platform string) models.PlatformResult {
	t.Helper()
	for _, r := range report.Results {
		if r.Platform == platform {
			return r
		}
	}
	t.Fatalf("no result for platform %s in %+v", platform, report.Results)
	return models.PlatformResult{}
}

func TestPublishIsolatesTerminalFailure(t *testing.T) {
	reg := publisher.NewRegistry()
	reg.Register("youtube", okPublisher("yt-1"))
	reg.Register("tiktok", okPublisher("tt-1"))
	reg.Register("twitter", publisherFunc(func(context.Context, publisher.PostRequest) (*publisher.PostResult, error) {
		return nil, &publisher.Error{Code: publisher.CodeRejected, Permanent: true}
	}))
	store := newMemStore()
	d := publisher.NewDispatcher(reg, store, &memScheduler{}, testPublishConfig(), nil, nil)

	report := d.Publish(context.Background(), testClip(), []publisher.Target{
		{Platform: "youtube"}, {Platform: "tiktok"}, {Platform: "twitter"},
	})

	if len(report.Results) != 3 {
		t.Fatalf("report has %d results, want 3", len(report.Results))
	}
	if r := resultFor(t, report, "youtube"); r.Status != models.PublishStatusSuccess || r.PostID != "yt-1" {
		t.Fatalf("youtube result: %+v", r)
	}
	if r := resultFor(t, report, "tiktok"); r.Status != models.PublishStatusSuccess {
		t.Fatalf("tiktok result: %+v", r)
	}
	r := resultFor(t, report, "twitter")
	if r.Status != models.PublishStatusFailed || r.Error != publisher.CodeRejected {
		t.Fatalf("twitter result: %+v", r)
	}
	if r.Attempts != 1 {
		t.Fatalf("terminal failure retried: %d attempts", r.Attempts)
	}
}

func TestTransientFailuresRespectMaxAttempts(t *testing.T) {
	var calls int
	var mu sync.Mutex
	reg := publisher.NewRegistry()
	reg.Register("youtube", publisherFunc(func(context.Context, publisher.PostRequest) (*publisher.PostResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, &publisher.Error{Code: publisher.CodeRateLimited, Permanent: false}
	}))
	store := newMemStore()
	d := publisher.NewDispatcher(reg, store, nil, testPublishConfig(), nil, nil)
	clip := testClip()

	report := d.Publish(context.Background(), clip, []publisher.Target{{Platform: "youtube"}})

	r := resultFor(t, report, "youtube")
	if r.Status != models.PublishStatusFailed {
		t.Fatalf("status = %s, want failed", r.Status)
	}
	if calls != 3 {
		t.Fatalf("publisher called %d times, want exactly maxAttempts (3)", calls)
	}
	task := store.get(clip.ID, "youtube")
	if task == nil || task.Status != models.PublishStatusFailed || task.Attempt != 3 {
		t.Fatalf("stored task: %+v", task)
	}
}

func TestPriorSuccessIsNeverRepublished(t *testing.T) {
	clip := testClip()
	store := newMemStore()
	prior := &models.PublishTask{
		ID:       uuid.New(),
		ClipID:   clip.ID,
		Platform: "youtube",
		Status:   models.PublishStatusSuccess,
		Attempt:  1,
		PostID:   "yt-original",
		PostURL:  "https://example.com/yt-original",
	}
	if _, err := store.CreateOrGet(context.Background(), prior); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	var calls int
	reg := publisher.NewRegistry()
	reg.Register("youtube", publisherFunc(func(context.Context, publisher.PostRequest) (*publisher.PostResult, error) {
		calls++
		return &publisher.PostResult{PostID: "yt-duplicate"}, nil
	}))
	d := publisher.NewDispatcher(reg, store, nil, testPublishConfig(), nil, nil)

	report := d.Publish(context.Background(), clip, []publisher.Target{{Platform: "youtube"}})

	r := resultFor(t, report, "youtube")
	if r.Status != models.PublishStatusSuccess || r.PostID != "yt-original" {
		t.Fatalf("result = %+v, want prior post", r)
	}
	if calls != 0 {
		t.Fatalf("publisher called %d times for an already-successful task", calls)
	}
}

func TestFutureScheduledTargetIsDeferred(t *testing.T) {
	clip := testClip()
	store := newMemStore()
	sched := &memScheduler{}
	var calls int
	reg := publisher.NewRegistry()
	reg.Register("youtube", publisherFunc(func(context.Context, publisher.PostRequest) (*publisher.PostResult, error) {
		calls++
		return &publisher.PostResult{PostID: "yt-1"}, nil
	}))
	d := publisher.NewDispatcher(reg, store, sched, testPublishConfig(), nil, nil)

	due := time.Now().Add(time.Hour)
	report := d.Publish(context.Background(), clip, []publisher.Target{
		{Platform: "youtube", ScheduledFor: &due},
	})

	r := resultFor(t, report, "youtube")
	if r.Status != models.PublishStatusScheduled {
		t.Fatalf("status = %s, want scheduled", r.Status)
	}
	if r.ScheduledFor == nil || !r.ScheduledFor.Equal(due) {
		t.Fatalf("scheduledFor = %v, want %v", r.ScheduledFor, due)
	}
	if calls != 0 {
		t.Fatal("scheduled target was dispatched immediately")
	}
	if len(sched.entries) != 1 || sched.entries[0].Platform != "youtube" {
		t.Fatalf("scheduler handoff entries: %+v", sched.entries)
	}
	task := store.get(clip.ID, "youtube")
	if task == nil || task.Status != models.PublishStatusScheduled {
		t.Fatalf("stored task: %+v", task)
	}
}

func TestUnsupportedPlatformFailsWithoutRetry(t *testing.T) {
	store := newMemStore()
	d := publisher.NewDispatcher(publisher.NewRegistry(), store, nil, testPublishConfig(), nil, nil)

	report := d.Publish(context.Background(), testClip(), []publisher.Target{{Platform: "myspace"}})

	r := resultFor(t, report, "myspace")
	if r.Status != models.PublishStatusFailed || r.Error != publisher.CodeUnsupportedPlatform {
		t.Fatalf("result = %+v", r)
	}
}

func TestSlowPlatformDoesNotBlockOthers(t *testing.T) {
	cfg := testPublishConfig()
	cfg.ClipDeadlineSeconds = 1
	cfg.AttemptTimeoutSeconds = 1

	reg := publisher.NewRegistry()
	reg.Register("youtube", okPublisher("yt-1"))
	reg.Register("tiktok", publisherFunc(func(ctx context.Context, _ publisher.PostRequest) (*publisher.PostResult, error) {
		<-ctx.Done() // never answers within the attempt timeout
		return nil, ctx.Err()
	}))
	store := newMemStore()
	d := publisher.NewDispatcher(reg, store, nil, cfg, nil, nil)

	start := time.Now()
	report := d.Publish(context.Background(), testClip(), []publisher.Target{
		{Platform: "youtube"}, {Platform: "tiktok"},
	})
	elapsed := time.Since(start)

	if r := resultFor(t, report, "youtube"); r.Status != models.PublishStatusSuccess {
		t.Fatalf("youtube result: %+v", r)
	}
	if r := resultFor(t, report, "tiktok"); r.Status != models.PublishStatusFailed {
		t.Fatalf("tiktok result: %+v", r)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("fan-out took %v; deadline not enforced", elapsed)
	}
}

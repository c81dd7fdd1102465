package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hypecast/backend/internal/publisher"
	"github.com/hypecast/backend/internal/scheduler"
)

// memSchedStore is an in-memory Store with atomic claim semantics.
type memSchedStore struct {
	mu      sync.Mutex
	entries []scheduler.Entry
}

func (s *memSchedStore) Add(_ context.Context, e scheduler.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memSchedStore) Claim(_ context.Context, now time.Time, limit int) ([]scheduler.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due, rest []scheduler.Entry
	for _, e := range s.entries {
		if len(due) < limit && !e.Due.After(now) {
			due = append(due, e)
		} else {
			rest = append(rest, e)
		}
	}
	s.entries = rest
	return due, nil
}

func (s *memSchedStore) CancelClip(_ context.Context, clipID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rest []scheduler.Entry
	cancelled := 0
	for _, e := range s.entries {
		if e.ClipID == clipID {
			cancelled++
			continue
		}
		rest = append(rest, e)
	}
	s.entries = rest
	return cancelled, nil
}

func (s *memSchedStore) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type dispatchRecorder struct {
	mu   sync.Mutex
	reqs []publisher.PostRequest
}

func (r *dispatchRecorder) dispatch(_ context.Context, req publisher.PostRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
}

func (r *dispatchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDueEntryDispatchedExactlyOnce(t *testing.T) {
	store := &memSchedStore{}
	rec := &dispatchRecorder{}
	s := scheduler.New(store, rec.dispatch, 10*time.Millisecond, nil, nil)

	clipID := uuid.New()
	req := publisher.PostRequest{ClipID: clipID, Platform: "youtube"}
	if err := s.Schedule(context.Background(), time.Now().Add(-time.Second), req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Start()
	defer s.Stop()

	if !waitFor(t, 2*time.Second, func() bool { return rec.count() == 1 }) {
		t.Fatalf("dispatched %d times, want 1", rec.count())
	}
	// More polls must not re-dispatch a claimed entry.
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("entry re-dispatched: %d", rec.count())
	}
}

func TestFutureEntryNotDispatchedBeforeDue(t *testing.T) {
	store := &memSchedStore{}
	rec := &dispatchRecorder{}
	s := scheduler.New(store, rec.dispatch, 10*time.Millisecond, nil, nil)

	req := publisher.PostRequest{ClipID: uuid.New(), Platform: "tiktok"}
	if err := s.Schedule(context.Background(), time.Now().Add(time.Hour), req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	s.Start()
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatalf("future entry dispatched %d times", rec.count())
	}
	if store.pending() != 1 {
		t.Fatalf("pending = %d, want 1", store.pending())
	}
}

func TestCancelClipRemovesPendingEntries(t *testing.T) {
	store := &memSchedStore{}
	rec := &dispatchRecorder{}
	s := scheduler.New(store, rec.dispatch, 10*time.Millisecond, nil, nil)

	clipID := uuid.New()
	other := uuid.New()
	due := time.Now().Add(time.Hour)
	for _, req := range []publisher.PostRequest{
		{ClipID: clipID, Platform: "youtube"},
		{ClipID: clipID, Platform: "tiktok"},
		{ClipID: other, Platform: "youtube"},
	} {
		if err := s.Schedule(context.Background(), due, req); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
	}

	n, err := s.CancelClip(context.Background(), clipID)
	if err != nil {
		t.Fatalf("CancelClip: %v", err)
	}
	if n != 2 {
		t.Fatalf("cancelled %d entries, want 2", n)
	}
	if store.pending() != 1 {
		t.Fatalf("pending = %d, want 1 (other clip untouched)", store.pending())
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := scheduler.New(&memSchedStore{}, (&dispatchRecorder{}).dispatch, 10*time.Millisecond, nil, nil)
	s.Start()
	s.Start() // second start is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op
}

func TestRestartAfterStopStillDispatches(t *testing.T) {
	store := &memSchedStore{}
	rec := &dispatchRecorder{}
	s := scheduler.New(store, rec.dispatch, 10*time.Millisecond, nil, nil)

	s.Start()
	s.Stop()

	// A fresh cycle after Stop must poll and dispatch normally.
	s.Start()
	req := publisher.PostRequest{ClipID: uuid.New(), Platform: "instagram"}
	if err := s.Schedule(context.Background(), time.Now().Add(-time.Second), req); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return rec.count() == 1 }) {
		t.Fatalf("dispatched %d times after restart, want 1", rec.count())
	}
	s.Stop()
}

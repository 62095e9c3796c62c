package presence

import (
	"context"
	"testing"
	"time"

	"attendance-worker-go/internal/models"
)

func TestSweepFinalizesStaleSession(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	tr := NewTracker(presenceConfig(), st, pub)
	rp := NewReaper(presenceConfig(), st, pub, tr)

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	now := t0.Add(4 * time.Minute) // past the 3 minute timeout
	if got := rp.Sweep(ctx, now); got != 1 {
		t.Fatalf("expected 1 exit, got %d", got)
	}

	rec, ok := st.record(7, t0)
	if !ok {
		t.Fatal("attendance record vanished")
	}
	if rec.Present {
		t.Error("record still marked present after exit")
	}
	if !rec.ExitTime.Equal(now) {
		t.Errorf("exit time = %v, want %v", rec.ExitTime, now)
	}
	if rec.ExitTime.Before(rec.EntryTime) {
		t.Error("exit time precedes entry time")
	}
	if rec.DurationMinutes != 4 {
		t.Errorf("duration = %d minutes, want 4", rec.DurationMinutes)
	}

	if exited := pub.byType(models.PresenceExited); len(exited) != 1 {
		t.Errorf("expected 1 exited event, got %d", len(exited))
	}
	if got := tr.SessionCount(); got != 0 {
		t.Errorf("session survived the sweep: %d", got)
	}
}

func TestSweepKeepsFreshSession(t *testing.T) {
	st := newFakeStore()
	tr := NewTracker(presenceConfig(), st, &fakePublisher{})
	rp := NewReaper(presenceConfig(), st, &fakePublisher{}, tr)

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	if got := rp.Sweep(ctx, t0.Add(time.Minute)); got != 0 {
		t.Errorf("fresh session reaped: %d exits", got)
	}
	if got := tr.SessionCount(); got != 1 {
		t.Errorf("expected session kept, got %d", got)
	}
}

func TestSecondSweepIsNoop(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	tr := NewTracker(presenceConfig(), st, pub)
	rp := NewReaper(presenceConfig(), st, pub, tr)

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	now := t0.Add(4 * time.Minute)
	rp.Sweep(ctx, now)
	if got := rp.Sweep(ctx, now.Add(time.Minute)); got != 0 {
		t.Errorf("second sweep recorded %d exits", got)
	}
	if exited := pub.byType(models.PresenceExited); len(exited) != 1 {
		t.Errorf("expected exactly 1 exited event, got %d", len(exited))
	}
}

func TestSweepDurationFloor(t *testing.T) {
	cfg := presenceConfig()
	cfg.ExitTimeout = 10 * time.Second

	st := newFakeStore()
	tr := NewTracker(cfg, st, &fakePublisher{})
	rp := NewReaper(cfg, st, &fakePublisher{}, tr)

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	// Exit 30 seconds after entry still counts as one minute.
	rp.Sweep(ctx, t0.Add(30*time.Second))

	rec, _ := st.record(7, t0)
	if rec.DurationMinutes != 1 {
		t.Errorf("duration = %d minutes, want the 1 minute floor", rec.DurationMinutes)
	}
}

func TestSweepToleratesClosedRecord(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	tr := NewTracker(presenceConfig(), st, pub)
	rp := NewReaper(presenceConfig(), st, pub, tr)

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	// Record closed out-of-band (another worker, manual correction).
	rec, _ := st.record(7, t0)
	rec.Present = false
	st.mu.Lock()
	st.records[attendanceKey{personID: 7, day: dayKey(t0)}] = rec
	st.mu.Unlock()

	rp.Sweep(ctx, t0.Add(4*time.Minute))

	if got := tr.SessionCount(); got != 0 {
		t.Errorf("session survived sweep of closed record: %d", got)
	}
	if exited := pub.byType(models.PresenceExited); len(exited) != 0 {
		t.Errorf("exited event published for already-closed record: %d", len(exited))
	}
}

func TestSweepConcurrentSightingWins(t *testing.T) {
	st := newFakeStore()
	tr := NewTracker(presenceConfig(), st, &fakePublisher{})

	t0 := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	tr.RecordSighting(ctx, sightingAt(7, t0))

	// Candidate collected as stale, then a sighting arrives before removal.
	now := t0.Add(4 * time.Minute)
	candidates := tr.expiredCandidates(now, presenceConfig().ExitTimeout)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 stale candidate, got %d", len(candidates))
	}

	tr.RecordSighting(ctx, sightingAt(7, now))

	if tr.removeIfStale(7, now, presenceConfig().ExitTimeout) {
		t.Error("removeIfStale removed a session refreshed after candidate collection")
	}
	if got := tr.SessionCount(); got != 1 {
		t.Errorf("refreshed session lost: %d", got)
	}
}

// Package presence keeps the in-memory "who is in the building right now"
// state: one session per matched person, the durable attendance row behind
// it, throttled snapshot persistence, and the auto-exit sweep.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
	"attendance-worker-go/internal/store"
)

// Sighting is one accepted match handed off by the matcher.
type Sighting struct {
	PersonID int64
	FaceCrop []byte // JPEG
	At       time.Time
}

type session struct {
	entryTime    time.Time
	lastSeen     time.Time
	lastSnapshot time.Time // throttle clock, independent of lastSeen
}

// Tracker owns the presence-session map. Sightings arrive through a bounded
// queue and are applied by a single worker goroutine, so the detection loop
// never blocks on store writes.
type Tracker struct {
	cfg       *config.Config
	store     store.Store
	publisher models.MessagePublisher

	queue chan Sighting

	mu       sync.Mutex
	sessions map[int64]*session
}

// NewTracker creates a tracker; call Run to start draining the queue.
func NewTracker(cfg *config.Config, st store.Store, publisher models.MessagePublisher) *Tracker {
	return &Tracker{
		cfg:       cfg,
		store:     st,
		publisher: publisher,
		queue:     make(chan Sighting, cfg.SightingQueueSize),
		sessions:  make(map[int64]*session),
	}
}

// Offer enqueues a sighting without blocking. Returns false when the queue
// is full and the sighting was dropped.
func (t *Tracker) Offer(personID int64, faceCrop []byte, at time.Time) bool {
	select {
	case t.queue <- Sighting{PersonID: personID, FaceCrop: faceCrop, At: at}:
		return true
	default:
		return false
	}
}

// Run drains the sighting queue until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Presence tracker panic recovered")
		}
	}()

	log.Info().Int("queue_size", cap(t.queue)).Msg("Presence tracker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Presence tracker stopped")
			return
		case s := <-t.queue:
			t.RecordSighting(ctx, s)
		}
	}
}

// RecordSighting applies one sighting: opens or refreshes the day's
// attendance record, keeps the in-memory session current, and persists a
// snapshot at most once per throttle interval. Store failures are logged
// and skipped; presence state continues from last-known-good data.
func (t *Tracker) RecordSighting(ctx context.Context, s Sighting) {
	rec, created, err := t.store.GetOrOpenAttendance(ctx, s.PersonID, s.At, s.At)
	if err != nil {
		log.Warn().Err(err).Int64("person_id", s.PersonID).Msg("Attendance open failed, sighting deferred")
		return
	}

	if !created {
		rec.LastSeen = s.At
		rec.Present = true
		if err := t.store.UpdateAttendance(ctx, rec); err != nil {
			log.Warn().Err(err).Int64("person_id", s.PersonID).Msg("Attendance refresh failed")
		}
	}

	entered, takeSnapshot := t.touchSession(s, rec.EntryTime)

	if entered {
		log.Info().Int64("person_id", s.PersonID).Time("at", s.At).Msg("Person entered")
		t.publishEvent(models.PresenceEntered, s.PersonID, s.At)
	}

	if takeSnapshot && len(s.FaceCrop) > 0 {
		if uri, err := t.store.SaveSnapshot(ctx, rec.ID, s.PersonID, s.FaceCrop); err != nil {
			log.Warn().Err(err).Int64("person_id", s.PersonID).Msg("Snapshot save failed")
		} else {
			log.Debug().Int64("person_id", s.PersonID).Str("uri", uri).Msg("Snapshot saved")
		}
	}
}

// touchSession updates the in-memory session under the lock and decides,
// atomically with the update, whether this sighting opens a session and
// whether it claims the snapshot window. No I/O happens under the lock.
func (t *Tracker) touchSession(s Sighting, entryTime time.Time) (entered, takeSnapshot bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[s.PersonID]
	if !ok {
		sess = &session{entryTime: entryTime}
		t.sessions[s.PersonID] = sess
		entered = true
	}
	if s.At.After(sess.lastSeen) {
		sess.lastSeen = s.At
	}

	if sess.lastSnapshot.IsZero() || s.At.Sub(sess.lastSnapshot) > t.cfg.SnapshotInterval {
		sess.lastSnapshot = s.At
		takeSnapshot = true
	}
	return entered, takeSnapshot
}

// SessionCount reports the number of open presence sessions.
func (t *Tracker) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// expiredCandidates returns the ids of sessions whose last-seen age exceeds
// the timeout, without removing them.
func (t *Tracker) expiredCandidates(now time.Time, timeout time.Duration) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []int64
	for id, sess := range t.sessions {
		if now.Sub(sess.lastSeen) > timeout {
			expired = append(expired, id)
		}
	}
	return expired
}

// removeIfStale removes the person's session when it is still stale at
// removal time. Returns false when a concurrent sighting refreshed it —
// the deterministic resolution of the reaper/sighting race.
func (t *Tracker) removeIfStale(personID int64, now time.Time, timeout time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess, ok := t.sessions[personID]
	if !ok {
		return false
	}
	if now.Sub(sess.lastSeen) <= timeout {
		return false
	}
	delete(t.sessions, personID)
	return true
}

func (t *Tracker) publishEvent(event models.PresenceEventType, personID int64, at time.Time) {
	if t.publisher == nil {
		return
	}
	payload := models.PresenceEvent{Event: event, PersonID: personID, Timestamp: at}
	if err := t.publisher.Publish(t.cfg.PresenceSubject, payload); err != nil {
		log.Warn().Err(err).Str("event", string(event)).Int64("person_id", personID).
			Msg("Presence event publish failed")
	}
}

package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"attendance-worker-go/internal/config"
	"attendance-worker-go/internal/models"
	"attendance-worker-go/internal/store"
)

// Reaper sweeps the tracker on an interval and finalizes sessions whose
// last sighting is older than the exit timeout.
type Reaper struct {
	cfg       *config.Config
	store     store.Store
	publisher models.MessagePublisher
	tracker   *Tracker
}

func NewReaper(cfg *config.Config, st store.Store, publisher models.MessagePublisher, tracker *Tracker) *Reaper {
	return &Reaper{cfg: cfg, store: st, publisher: publisher, tracker: tracker}
}

// Run sweeps until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Exit reaper panic recovered")
		}
	}()

	log.Info().
		Dur("timeout", r.cfg.ExitTimeout).
		Dur("sweep_interval", r.cfg.ExitSweepInterval).
		Msg("Exit reaper started")

	ticker := time.NewTicker(r.cfg.ExitSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Exit reaper stopped")
			return
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

// Sweep finalizes every session stale at now and returns how many exits it
// recorded. Candidates are collected under the lock, re-checked at removal
// time, and the durable write happens outside the lock so a slow store
// never stalls sighting processing.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) int {
	candidates := r.tracker.expiredCandidates(now, r.cfg.ExitTimeout)

	exited := 0
	for _, personID := range candidates {
		if !r.tracker.removeIfStale(personID, now, r.cfg.ExitTimeout) {
			continue
		}
		if err := r.finalize(ctx, personID, now); err != nil {
			log.Warn().Err(err).Int64("person_id", personID).Msg("Exit finalize failed")
			continue
		}
		exited++
	}

	if exited > 0 {
		log.Info().Int("exited", exited).Msg("Sweep recorded exits")
	}
	return exited
}

// finalize closes the person's open attendance record for the day of their
// last activity: exit time and present flag are written in one update, and
// the duration gets a one-minute floor so brief visits never round to zero.
func (r *Reaper) finalize(ctx context.Context, personID int64, now time.Time) error {
	rec, err := r.store.GetOpenAttendance(ctx, personID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Already closed elsewhere; nothing to do.
			return nil
		}
		return err
	}

	rec.ExitTime = now
	rec.Present = false
	minutes := int(now.Sub(rec.EntryTime).Minutes())
	if minutes < 1 {
		minutes = 1
	}
	rec.DurationMinutes = minutes

	if err := r.store.UpdateAttendance(ctx, rec); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	log.Info().
		Int64("person_id", personID).
		Time("exit_time", now).
		Int("duration_minutes", minutes).
		Msg("Person exited")

	if r.publisher != nil {
		payload := models.PresenceEvent{Event: models.PresenceExited, PersonID: personID, Timestamp: now}
		if err := r.publisher.Publish(r.cfg.PresenceSubject, payload); err != nil {
			log.Warn().Err(err).Int64("person_id", personID).Msg("Presence event publish failed")
		}
	}
	return nil
}

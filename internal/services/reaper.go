package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/repo"
)

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Sessions    int64
	Idempotency int64
	Searches    int64
	Profiles    int64
}

// Reaper deletes expired rows. Lookups already ignore expired sessions and
// searches; the sweep only bounds storage.
type Reaper struct {
	DB *gorm.DB
	// ProfileRetention, when positive, also drops profiles not refreshed
	// for that long.
	ProfileRetention time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// Sweep runs one pass over every table. It stops at the first error.
func (r *Reaper) Sweep(ctx context.Context) (SweepResult, error) {
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now().UTC()
	}
	var res SweepResult
	var err error

	if res.Sessions, err = repo.DeleteExpiredSessions(ctx, r.DB, now); err != nil {
		return res, err
	}
	if res.Idempotency, err = repo.DeleteExpiredIdempotency(ctx, r.DB, now); err != nil {
		return res, err
	}
	if res.Searches, err = repo.DeleteExpiredLocationSearches(ctx, r.DB, now); err != nil {
		return res, err
	}
	if r.ProfileRetention > 0 {
		if res.Profiles, err = repo.DeleteProfilesBefore(ctx, r.DB, now.Add(-r.ProfileRetention)); err != nil {
			return res, err
		}
	}

	sweptRows.WithLabelValues("chat_sessions").Add(float64(res.Sessions))
	sweptRows.WithLabelValues("idempotency").Add(float64(res.Idempotency))
	sweptRows.WithLabelValues("location_searches").Add(float64(res.Searches))
	sweptRows.WithLabelValues("profiles").Add(float64(res.Profiles))
	return res, nil
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	log := zerolog.Ctx(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
				continue
			}
			if res != (SweepResult{}) {
				log.Info().
					Int64("sessions", res.Sessions).
					Int64("idempotency", res.Idempotency).
					Int64("searches", res.Searches).
					Int64("profiles", res.Profiles).
					Msg("sweep done")
			}
		}
	}
}

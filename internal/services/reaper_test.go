package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

func TestReaper_SweepsExpiredRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One live and one expired session, each with turns.
	old := NewToken()
	if _, err := f.sessions.Create(ctx, old, "pk", nil, seedTurns()); err != nil {
		t.Fatalf("create old: %v", err)
	}
	f.clock.Advance(20 * time.Hour)
	live := NewToken()
	if _, err := f.sessions.Create(ctx, live, "pk", nil, seedTurns()); err != nil {
		t.Fatalf("create live: %v", err)
	}
	if _, err := repo.CreateLocationSearch(ctx, f.db, "Pune", json.RawMessage(`[]`), time.Hour, f.clock.Now()); err != nil {
		t.Fatalf("location: %v", err)
	}
	if _, err := f.profiles.Resolve(ctx, sampleBirth()); err != nil {
		t.Fatalf("profile: %v", err)
	}

	f.clock.Advance(5 * time.Hour)
	r := &Reaper{DB: f.db, Now: f.clock.Now}
	res, err := r.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Sessions != 1 || res.Searches != 1 || res.Profiles != 0 {
		t.Fatalf("unexpected sweep result: %+v", res)
	}

	if turns, _ := repo.ListTurns(ctx, f.db, old); len(turns) != 0 {
		t.Fatalf("turns of the expired session should be gone")
	}
	if _, _, err := f.sessions.Get(ctx, live); err != nil {
		t.Fatalf("live session must survive: %v", err)
	}
	if _, err := repo.GetProfile(ctx, f.db, ProfileKey(sampleBirth())); err != nil {
		t.Fatalf("profiles are kept without a retention: %v", err)
	}

	again, err := r.Sweep(ctx)
	if err != nil || again != (SweepResult{}) {
		t.Fatalf("second sweep should be a no-op: %+v err=%v", again, err)
	}
}

func TestReaper_ProfileRetention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.profiles.Resolve(ctx, sampleBirth()); err != nil {
		t.Fatalf("profile: %v", err)
	}
	f.clock.Advance(31 * 24 * time.Hour)

	r := &Reaper{DB: f.db, ProfileRetention: 30 * 24 * time.Hour, Now: f.clock.Now}
	res, err := r.Sweep(ctx)
	if err != nil || res.Profiles != 1 {
		t.Fatalf("expected one profile removed: %+v err=%v", res, err)
	}
	if _, err := repo.GetProfile(ctx, f.db, ProfileKey(sampleBirth())); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("profile should be removed: %v", err)
	}
	var facts int64
	f.db.Model(&domain.ProfileFact{}).Count(&facts)
	if facts != 0 {
		t.Fatalf("facts should be removed with the profile, %d left", facts)
	}
}

func TestReaper_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	r := &Reaper{DB: f.db}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	// Non-positive interval returns immediately.
	r.Run(context.Background(), 0)
}

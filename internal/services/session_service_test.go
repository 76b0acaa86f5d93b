package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

func seedTurns() []domain.Turn {
	return []domain.Turn{
		{Role: domain.RoleSystem, Content: "persona"},
		{Role: domain.RoleUser, Content: "seed"},
	}
}

func TestResolveOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, in := range []string{"", "not-a-uuid", uuid.NewString()} {
		tok, isNew, err := f.sessions.ResolveOrCreate(ctx, in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !isNew || tok == "" || tok == in {
			t.Fatalf("%q: expected a freshly minted token, got %q new=%v", in, tok, isNew)
		}
		if _, err := uuid.Parse(tok); err != nil {
			t.Fatalf("minted token is not a uuid: %q", tok)
		}
	}

	tok := NewToken()
	if _, err := f.sessions.Create(ctx, tok, "pk", domain.Bundle{}, seedTurns()); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, isNew, err := f.sessions.ResolveOrCreate(ctx, tok)
	if err != nil || isNew || got != tok {
		t.Fatalf("existing token: got %q new=%v err=%v", got, isNew, err)
	}

	f.clock.Advance(DefaultSessionTTL)
	got, isNew, err = f.sessions.ResolveOrCreate(ctx, tok)
	if err != nil || !isNew || got == tok {
		t.Fatalf("expired token must be replaced: got %q new=%v err=%v", got, isNew, err)
	}
}

func TestNewToken_Unique(t *testing.T) {
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		tok := NewToken()
		if seen[tok] {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = true
	}
}

func TestSessionCreateGetAppend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := NewToken()
	snap := domain.Bundle{"planet_details": []byte(`{"a":1}`)}

	sess, err := f.sessions.Create(ctx, tok, "pk", snap, seedTurns())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !sess.ExpiresAt.Equal(f.clock.Now().Add(24 * time.Hour)) {
		t.Fatalf("expires_at = %v", sess.ExpiresAt)
	}

	f.clock.Advance(time.Minute)
	turn, err := f.sessions.AppendAndPersist(ctx, tok, domain.RoleUser, "next")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if turn.Seq != 3 {
		t.Fatalf("seq = %d, want 3", turn.Seq)
	}

	got, turns, err := f.sessions.Get(ctx, tok)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(turns) != 3 || turns[0].Role != domain.RoleSystem || turns[2].Content != "next" {
		t.Fatalf("unexpected transcript: %+v", turns)
	}
	if !got.LastUpdated.Equal(f.clock.Now()) {
		t.Fatalf("last_updated not bumped: %v", got.LastUpdated)
	}
	b, err := f.sessions.Snapshot(got)
	if err != nil || string(b["planet_details"]) != `{"a":1}` {
		t.Fatalf("snapshot = %v err=%v", b, err)
	}
}

func TestSessionGet_NotFoundAndExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, _, err := f.sessions.Get(ctx, NewToken()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	tok := NewToken()
	if _, err := f.sessions.Create(ctx, tok, "pk", nil, seedTurns()); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.clock.Advance(25 * time.Hour)
	if _, _, err := f.sessions.Get(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired session must be not found, got %v", err)
	}
}

func TestAppendAndPersist_UnknownSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.sessions.AppendAndPersist(context.Background(), NewToken(), domain.RoleUser, "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestTurnsPageInfoDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := NewToken()
	if _, err := f.sessions.Create(ctx, tok, "pk", nil, seedTurns()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.sessions.AppendAndPersist(ctx, tok, domain.RoleUser, "q"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	items, total, err := f.sessions.TurnsPage(ctx, tok, 2, 2)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if total != 5 || len(items) != 2 || items[0].Seq != 3 {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}
	items, _, _ = f.sessions.TurnsPage(ctx, tok, 0, 0)
	if len(items) != 5 {
		t.Fatalf("defaults should give page 1 of 20, got %d", len(items))
	}

	info, err := f.sessions.Info(ctx, tok)
	if err != nil || info.TurnCount != 5 || info.LatestTurn == nil {
		t.Fatalf("info = %+v err=%v", info, err)
	}

	if err := f.sessions.Delete(ctx, tok); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.sessions.Delete(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if _, _, err := f.sessions.TurnsPage(ctx, tok, 1, 10); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("page after delete: %v", err)
	}
	if _, err := f.sessions.Info(ctx, tok); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("info after delete: %v", err)
	}
}

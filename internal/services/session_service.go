// Package services – SessionService
//
// This file implements the conversation session store. A session is an
// opaque token (random UUIDv4) bound to the profile it was seeded from, a
// snapshot of that profile's facts and an append-only transcript of turns.
// Sessions expire TTL after creation; expired sessions are treated exactly
// like unknown ones and are removed by the Reaper.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/repo"
	"github.com/tbourn/astro-chat-relay/internal/utils"
)

// DefaultSessionTTL is the lifetime of a chat session.
const DefaultSessionTTL = 24 * time.Hour

// SessionService persists chat sessions and their transcripts.
type SessionService struct {
	DB  *gorm.DB
	TTL time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SessionService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultSessionTTL
}

// ResolveOrCreate returns token unchanged if it names a live session.
// Otherwise (empty, malformed, unknown or expired) it mints a new token and
// reports isNew. The new session is not stored until Create.
func (s *SessionService) ResolveOrCreate(ctx context.Context, token string) (string, bool, error) {
	if _, perr := uuid.Parse(token); perr == nil {
		_, err := repo.GetSession(ctx, s.DB, token, s.now())
		switch {
		case err == nil:
			return token, false, nil
		case !errors.Is(err, repo.ErrNotFound):
			return "", false, err
		}
	}
	return NewToken(), true, nil
}

// NewToken returns a fresh session token with 122 random bits.
func NewToken() string { return uuid.NewString() }

// Get loads a live session and its transcript (in order).
func (s *SessionService) Get(ctx context.Context, token string) (*domain.ChatSession, []domain.Turn, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("session.id", token)),
	)
	defer span.End()

	sess, err := repo.GetSession(ctx, s.DB, token, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}
	turns, err := repo.ListTurns(ctx, s.DB, token)
	if err != nil {
		return nil, nil, err
	}
	return sess, turns, nil
}

// Create stores a new session with its seed turns in one transaction. The
// turns are numbered in the order given and updated in place.
func (s *SessionService) Create(ctx context.Context, token, profileKey string, snapshot domain.Bundle, turns []domain.Turn) (*domain.ChatSession, error) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &domain.ChatSession{
		ID:          token,
		ProfileKey:  profileKey,
		Snapshot:    datatypes.JSON(raw),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl()),
		LastUpdated: now,
	}
	if err := repo.CreateSession(ctx, s.DB, sess, turns); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendAndPersist appends one turn and bumps the session's last_updated,
// atomically.
func (s *SessionService) AppendAndPersist(ctx context.Context, token, role, content string) (*domain.Turn, error) {
	t, err := repo.AppendTurn(ctx, s.DB, token, role, content, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return t, err
}

// Snapshot decodes the fact bundle a session was seeded with.
func (s *SessionService) Snapshot(sess *domain.ChatSession) (domain.Bundle, error) {
	var b domain.Bundle
	if len(sess.Snapshot) == 0 {
		return domain.Bundle{}, nil
	}
	if err := json.Unmarshal(sess.Snapshot, &b); err != nil {
		return nil, err
	}
	return b, nil
}

// SessionInfo summarizes a session for the session endpoint.
type SessionInfo struct {
	Session    *domain.ChatSession
	TurnCount  int64
	LatestTurn *time.Time
}

// Info returns session metadata and transcript stats.
func (s *SessionService) Info(ctx context.Context, token string) (*SessionInfo, error) {
	sess, err := repo.GetSession(ctx, s.DB, token, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	count, latest, err := repo.TurnsStats(ctx, s.DB, token)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{Session: sess, TurnCount: count, LatestTurn: latest}, nil
}

// TurnsPage returns one page of a live session's transcript plus the total
// number of turns. It applies defaults for invalid page/pageSize.
func (s *SessionService) TurnsPage(ctx context.Context, token string, page, pageSize int) ([]domain.Turn, int64, error) {
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	win := utils.NewPage(page, pageSize)
	if _, err := repo.GetSession(ctx, s.DB, token, s.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrSessionNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountTurns(ctx, s.DB, token)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Turn{}, 0, nil
	}
	items, err := repo.ListTurnsPage(ctx, s.DB, token, win.Offset(), win.Size)
	return items, total, err
}

// Delete ends a session, removing its transcript and feedback.
func (s *SessionService) Delete(ctx context.Context, token string) error {
	if err := repo.DeleteSession(ctx, s.DB, token); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

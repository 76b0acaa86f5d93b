// Package services – ChatService
//
// This file implements the chat orchestrator behind POST /chat/prediction.
// One call handles one conversational turn:
//
//  1. Resolve the session token; unknown or expired tokens start a new session.
//  2. For a new session, resolve the birth profile (tiered cache) and seed the
//     transcript with the persona turn and a user turn carrying the facts,
//     the birth data and the query.
//  3. For an existing session, append only the query as a user turn.
//  4. Send the whole transcript to the oracle and append its reply.
//
// The turn runs under a per-session lock, so appends for one session follow
// request arrival order. An oracle failure keeps the user turn already
// persisted and is reported as ErrOracleFailed.
//
// Service-level errors are returned for predictable cases so handlers can
// map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/lock"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

// DefaultIdempotencyTTL bounds how long a replayable chat turn is kept.
const DefaultIdempotencyTTL = 24 * time.Hour

// PredictInput is one inbound chat request.
type PredictInput struct {
	Birth BirthData
	Query string
	// IdempotencyKey, when set on a follow-up, lets a retried request
	// replay the recorded reply instead of asking the oracle again.
	IdempotencyKey string
}

// Prediction is the result of a chat turn.
type Prediction struct {
	SessionID string
	IsNew     bool
	Text      string
	TurnID    string
	Tier      Tier
	Fallback  bool
	Replayed  bool
}

// ChatService ties sessions, profiles and the oracle together.
type ChatService struct {
	DB       *gorm.DB
	Sessions *SessionService
	Profiles *ProfileService
	Oracle   oracle.Completer
	Locker   lock.Locker

	// MaxQueryRunes caps the query length; zero disables the check.
	MaxQueryRunes  int
	IdempotencyTTL time.Duration
}

// Predict runs one turn for token (possibly empty). Whenever a session
// exists at return, the result carries its token, including on an oracle
// failure, so the caller can still hand it back to the client.
func (s *ChatService) Predict(ctx context.Context, token string, in PredictInput) (*Prediction, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "Predict")
	defer span.End()

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if s.MaxQueryRunes > 0 && utf8.RuneCountInString(query) > s.MaxQueryRunes {
		return nil, ErrQueryTooLong
	}
	birth := in.Birth
	if err := birth.Normalize(); err != nil {
		return nil, err
	}

	token, isNew, err := s.Sessions.ResolveOrCreate(ctx, token)
	if err != nil {
		return nil, err
	}
	unlock, err := s.Locker.Lock(ctx, token)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var history []domain.Turn
	if !isNew {
		// Re-read under the lock; the session may have expired or been
		// deleted while we waited.
		_, turns, err := s.Sessions.Get(ctx, token)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			token, isNew = NewToken(), true
		case err != nil:
			return nil, err
		default:
			history = turns
		}
	}
	span.SetAttributes(attribute.String("session.id", token), attribute.Bool("session.new", isNew))
	log := zerolog.Ctx(ctx).With().Str("session_id", token).Logger()

	if !isNew && in.IdempotencyKey != "" {
		if res, ok := s.replay(ctx, token, in.IdempotencyKey); ok {
			return res, nil
		}
	}

	res := &Prediction{SessionID: token, IsNew: isNew}
	if isNew {
		prof, err := s.Profiles.Resolve(ctx, birth)
		if err != nil {
			return nil, err
		}
		res.Tier, res.Fallback = prof.Tier, prof.Fallback

		seed := []domain.Turn{
			{Role: domain.RoleSystem, Content: SystemPrompt},
			{Role: domain.RoleUser, Content: SeedPrompt(s.Profiles.Catalog, birth, prof.Bundle, query)},
		}
		if _, err := s.Sessions.Create(ctx, token, prof.Key, prof.Bundle.Clone(), seed); err != nil {
			return nil, err
		}
		history = seed
		log.Info().Str("profile_key", prof.Key).Str("tier", string(prof.Tier)).Msg("chat session created")
	} else {
		t, err := s.Sessions.AppendAndPersist(ctx, token, domain.RoleUser, query)
		if err != nil {
			return nil, err
		}
		history = append(history, *t)
	}

	msgs := make([]oracle.Message, len(history))
	for i, t := range history {
		msgs[i] = oracle.Message{Role: t.Role, Content: t.Content}
	}
	reply, err := s.Oracle.Complete(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		return res, fmt.Errorf("%w: %w", ErrOracleFailed, err)
	}

	at, err := s.Sessions.AppendAndPersist(ctx, token, domain.RoleAssistant, reply)
	if err != nil {
		return res, err
	}
	res.Text, res.TurnID = reply, at.ID

	if in.IdempotencyKey != "" {
		ttl := s.IdempotencyTTL
		if ttl <= 0 {
			ttl = DefaultIdempotencyTTL
		}
		if _, err := repo.CreateIdempotency(ctx, s.DB, token, in.IdempotencyKey, at.ID, 200, ttl); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			log.Warn().Err(err).Msg("idempotency record not stored")
		}
	}
	return res, nil
}

// replay returns the reply recorded for (token, key), if any. A failed
// lookup is logged and the request runs as a fresh turn.
func (s *ChatService) replay(ctx context.Context, token, key string) (*Prediction, bool) {
	log := zerolog.Ctx(ctx).With().Str("session_id", token).Logger()
	rec, err := repo.GetIdempotency(ctx, s.DB, token, key, time.Now().UTC())
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Msg("idempotency lookup failed")
		}
		return nil, false
	}
	t, err := repo.GetTurn(ctx, s.DB, rec.TurnID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("turn_id", rec.TurnID).Msg("recorded reply unreadable")
		}
		return nil, false
	}
	return &Prediction{SessionID: token, Text: t.Content, TurnID: t.ID, Replayed: true}, true
}

// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how clients rate
// (-1 or +1) the predictions of their own chat session. It enforces business
// rules (turn existence, session ownership, assistant-only restriction,
// uniqueness) and persists feedback atomically in the database.
// Service-level errors (e.g. ErrInvalidFeedback, ErrTurnNotFound,
// ErrForbiddenFeedback, ErrDuplicateFeedback) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

// maxFeedbackComment mirrors the column width.
const maxFeedbackComment = 1000

// FeedbackService implements the use-cases around prediction feedback.
// It validates the operation (ownership, turn role, uniqueness) and persists
// the feedback using the provided GORM handle.
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *FeedbackService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Leave records a feedback value for turnID on behalf of sessionID.
//
// Semantics and validation:
//   - value must be exactly -1 (negative) or 1 (positive); otherwise ErrInvalidFeedback.
//   - turnID must exist; otherwise ErrTurnNotFound.
//   - The turn must belong to the caller's live session and be an
//     assistant turn; otherwise ErrForbiddenFeedback.
//   - A turn may be rated at most once; a second attempt yields
//     ErrDuplicateFeedback.
//
// The checks and the insert run inside one transaction.
func (s *FeedbackService) Leave(ctx context.Context, sessionID, turnID string, value int, comment string) (*domain.Feedback, error) {
	if value != -1 && value != 1 {
		return nil, ErrInvalidFeedback
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxFeedbackComment {
		comment = string([]rune(comment)[:maxFeedbackComment])
	}

	var out *domain.Feedback
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1) Load the turn and verify it exists.
		turn, err := repo.GetTurn(ctx, tx, turnID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrTurnNotFound
			}
			return err
		}

		// 2) The turn must belong to the caller's live session.
		if turn.SessionID != sessionID {
			return ErrForbiddenFeedback
		}
		if _, err := repo.GetSession(ctx, tx, sessionID, s.now()); err != nil {
			return ErrForbiddenFeedback
		}

		// 3) Only predictions can be rated.
		if turn.Role != domain.RoleAssistant {
			return ErrForbiddenFeedback
		}

		fb, err := repo.CreateFeedback(ctx, tx, turnID, sessionID, value, comment)
		if err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateFeedback
			}
			return err
		}
		out = fb
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

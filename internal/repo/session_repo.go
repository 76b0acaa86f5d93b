// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for chat sessions
// and their ordered turns.
//
// Turns are append-only. AppendTurn serializes writers on the session row
// (an UPDATE that takes the row lock) before it reads the current maximum
// sequence number, and the unique (session_id, seq) index rejects anything
// that slips through.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

// CreateSession inserts the session and its seed turns in one transaction.
// Turns are numbered 1..n in the given order; their IDs and SessionID are
// filled in. A session with the same ID yields ErrDuplicate.
func CreateSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession, turns []domain.Turn) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		if len(turns) == 0 {
			return nil
		}
		for i := range turns {
			turns[i].ID = uuid.NewString()
			turns[i].SessionID = s.ID
			turns[i].Seq = i + 1
			if turns[i].CreatedAt.IsZero() {
				turns[i].CreatedAt = s.CreatedAt
			}
		}
		return tx.Omit(clause.Associations).Create(&turns).Error
	})
}

// GetSession fetches a session that has not expired at now. Missing and
// expired sessions both yield ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", id, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession removes a session with its turns, feedback and idempotency
// records. It returns ErrNotFound when no session had that ID.
func DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := []string{id}
		if err := deleteSessionChildren(tx, ids); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteExpiredSessions removes every session whose ExpiresAt is at or before
// now, with all dependent rows. It returns the number of sessions removed.
func DeleteExpiredSessions(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&domain.ChatSession{}).Where("expires_at <= ?", now).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := deleteSessionChildren(tx, ids); err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&domain.ChatSession{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// Children are removed explicitly; SQLite only cascades on connections
// where foreign_keys is on.
func deleteSessionChildren(tx *gorm.DB, ids []string) error {
	if err := tx.Where("session_id IN ?", ids).Delete(&domain.Feedback{}).Error; err != nil {
		return err
	}
	if err := tx.Where("session_id IN ?", ids).Delete(&domain.Turn{}).Error; err != nil {
		return err
	}
	return tx.Where("session_id IN ?", ids).Delete(&domain.Idempotency{}).Error
}

// AppendTurn appends one turn to the session and bumps LastUpdated, all in
// one transaction. It returns ErrNotFound if the session does not exist and
// ErrDuplicate if a concurrent writer took the same sequence number.
func AppendTurn(ctx context.Context, db *gorm.DB, sessionID, role, content string, now time.Time) (*domain.Turn, error) {
	var out *domain.Turn
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.ChatSession{}).
			Where("id = ?", sessionID).
			Update("last_updated", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var maxSeq int
		if err := tx.Model(&domain.Turn{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}

		t := &domain.Turn{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Seq:       maxSeq + 1,
			Role:      role,
			Content:   content,
			CreatedAt: now,
		}
		if err := tx.Omit(clause.Associations).Create(t).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// ListTurns returns the full transcript of a session in sequence order.
func ListTurns(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Turn, error) {
	var out []domain.Turn
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// CountTurns returns the number of turns stored for a session.
func CountTurns(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Turn{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}

// ListTurnsPage returns a page of the transcript in sequence order.
// The caller computes offset and limit (e.g., (page-1)*pageSize).
func ListTurnsPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Turn, error) {
	var out []domain.Turn
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetTurn fetches a turn by ID. ErrNotFound if missing.
func GetTurn(ctx context.Context, db *gorm.DB, id string) (*domain.Turn, error) {
	var t domain.Turn
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

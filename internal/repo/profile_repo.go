// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for cached birth
// profiles and their per-category facts.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - A missing profile is reported as ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

// GetProfile fetches a profile row by key. Facts are not loaded.
func GetProfile(ctx context.Context, db *gorm.DB, key string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("key = ?", key).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListFacts returns every stored fact for a profile, ordered by category.
func ListFacts(ctx context.Context, db *gorm.DB, key string) ([]domain.ProfileFact, error) {
	var out []domain.ProfileFact
	err := db.WithContext(ctx).
		Where("profile_key = ?", key).
		Order("category ASC").
		Find(&out).Error
	return out, err
}

// SaveProfile upserts the profile row and the given facts in one
// transaction. Facts not listed are left untouched, so a partial refresh
// passes only the refreshed categories. The profile's LastUpdated is
// written as given.
func SaveProfile(ctx context.Context, db *gorm.DB, p *domain.Profile, facts []domain.ProfileFact) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "dob", "tob", "lat", "lon", "last_updated", "updated_at"}),
			}).
			Create(p).Error
		if err != nil {
			return err
		}
		if len(facts) == 0 {
			return nil
		}
		for i := range facts {
			facts[i].ProfileKey = p.Key
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "profile_key"}, {Name: "category"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "fetched_at"}),
		}).Create(&facts).Error
	})
}

// DeleteProfilesBefore removes profiles whose LastUpdated is older than
// cutoff, together with their facts. It returns the number of profiles
// removed.
func DeleteProfilesBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&domain.Profile{}).Select("key").Where("last_updated < ?", cutoff)
		if err := tx.Where("profile_key IN (?)", stale).Delete(&domain.ProfileFact{}).Error; err != nil {
			return err
		}
		res := tx.Where("last_updated < ?", cutoff).Delete(&domain.Profile{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file stores geo-search result lists under a token so
// the follow-up selection can be resolved without shared process state.
package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/domain"
)

// CreateLocationSearch persists results for city and returns the record,
// whose ID is the search token handed to the client.
func CreateLocationSearch(ctx context.Context, db *gorm.DB, city string, results json.RawMessage, ttl time.Duration, now time.Time) (*domain.LocationSearch, error) {
	rec := &domain.LocationSearch{
		ID:        uuid.NewString(),
		City:      city,
		Results:   datatypes.JSON(results),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// GetLocationSearch returns an unexpired search by token or ErrNotFound.
func GetLocationSearch(ctx context.Context, db *gorm.DB, token string, now time.Time) (*domain.LocationSearch, error) {
	var rec domain.LocationSearch
	err := db.WithContext(ctx).
		Where("id = ? AND expires_at > ?", token, now).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteExpiredLocationSearches removes searches whose ExpiresAt is at or before now.
func DeleteExpiredLocationSearches(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.LocationSearch{})
	return res.RowsAffected, res.Error
}

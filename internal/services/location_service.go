// Package services – LocationService
//
// This file implements the two-step place lookup used by clients to fill
// in birth coordinates. Search stores the upstream result list under a
// fresh token; Select resolves a chosen name against that list only, so
// concurrent clients never see each other's results.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/repo"
	"github.com/tbourn/astro-chat-relay/internal/search"
)

// Location lookup defaults.
const (
	DefaultGeoSearchTTL  = time.Hour
	DefaultLocationScore = 0.5
)

// GeoSearcher looks up places by city name.
type GeoSearcher interface {
	GeoSearch(ctx context.Context, city string) ([]astro.Location, error)
}

// placeIndexOptions tune fuzzy matching for place names: "São Paulo"
// matches "Sao Paulo", and administrative filler words carry no weight.
var placeIndexOptions = []search.Option{
	search.WithAccentFolding(true),
	search.WithStopwords([]string{"city", "district", "division", "municipality", "the", "of"}),
	search.WithMaxDocs(100),
}

// LocationResults is a stored search.
type LocationResults struct {
	Token     string
	Locations []astro.Location
}

// LocationService implements search-then-select over stored results.
type LocationService struct {
	DB  *gorm.DB
	Geo GeoSearcher

	TTL      time.Duration
	MinScore float64

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *LocationService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Search queries the upstream and stores the results under a new token.
func (s *LocationService) Search(ctx context.Context, city string) (*LocationResults, error) {
	city = strings.Join(strings.Fields(city), " ")
	if city == "" {
		return nil, ErrEmptyCity
	}
	locs, err := s.Geo.GeoSearch(ctx, city)
	if err != nil {
		return nil, err
	}
	if locs == nil {
		locs = []astro.Location{}
	}
	raw, err := json.Marshal(locs)
	if err != nil {
		return nil, err
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultGeoSearchTTL
	}
	rec, err := repo.CreateLocationSearch(ctx, s.DB, city, raw, ttl, s.now())
	if err != nil {
		return nil, err
	}
	return &LocationResults{Token: rec.ID, Locations: locs}, nil
}

// Select returns the stored location whose full name matches fullName:
// exactly, then case-insensitively, then by best token overlap above
// MinScore.
func (s *LocationService) Select(ctx context.Context, token, fullName string) (*astro.Location, error) {
	rec, err := repo.GetLocationSearch(ctx, s.DB, strings.TrimSpace(token), s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSearchNotFound
		}
		return nil, err
	}
	var locs []astro.Location
	if err := json.Unmarshal(rec.Results, &locs); err != nil {
		return nil, err
	}

	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrLocationNotFound
	}
	for i := range locs {
		if locs[i].FullName == fullName {
			return &locs[i], nil
		}
	}
	for i := range locs {
		if strings.EqualFold(locs[i].FullName, fullName) {
			return &locs[i], nil
		}
	}

	names := make([]string, len(locs))
	for i, l := range locs {
		names[i] = l.FullName
	}
	minScore := s.MinScore
	if minScore <= 0 {
		minScore = DefaultLocationScore
	}
	if hit, ok := search.Best(search.NewIndexFromStrings(names, placeIndexOptions...), fullName, minScore); ok {
		return &locs[hit.Pos], nil
	}
	return nil, ErrLocationNotFound
}

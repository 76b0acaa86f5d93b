// Package services – ProfileService
//
// This file implements the birth-profile cache and its tiered refresh
// policy. A profile is identified by a fingerprint of the natal data and
// holds one raw upstream payload per fact category. On every resolve the age
// of the profile selects a tier:
//
//   - no entry:          fetch every category; failure is fatal
//   - age < FreshFor:    serve as stored, no upstream calls
//   - age < MajorAfter:  stale-minor, refresh the catalog's minor list
//   - otherwise:         stale-major, refresh the catalog's major list
//
// A refresh is all-or-nothing: the fetched payloads and the new
// last_updated are written in one transaction only if every call
// succeeded. On any failure the stored bundle is served unchanged.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/rs/zerolog"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

// Tier is the staleness classification of a cached profile.
type Tier string

const (
	TierFresh      Tier = "fresh"
	TierStaleMinor Tier = "stale-minor"
	TierStaleMajor Tier = "stale-major"
)

// Default refresh thresholds.
const (
	DefaultFreshFor   = 24 * time.Hour
	DefaultMajorAfter = 7 * 24 * time.Hour
)

// BirthData is the natal input of a prediction request.
type BirthData struct {
	Name string
	DOB  string // DD/MM/YYYY
	TOB  string // HH:MM
	Lat  float64
	Lon  float64
	TZ   float64
	Lang string
}

// Normalize trims the text fields, defaults Lang to "en" and validates
// everything. Errors wrap ErrInvalidBirthData.
func (b *BirthData) Normalize() error {
	b.Name = strings.Join(strings.Fields(b.Name), " ")
	b.DOB = strings.TrimSpace(b.DOB)
	b.TOB = strings.TrimSpace(b.TOB)
	b.Lang = strings.ToLower(strings.TrimSpace(b.Lang))
	if b.Lang == "" {
		b.Lang = "en"
	}

	switch {
	case b.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidBirthData)
	case !validLayout(astro.DateLayout, b.DOB):
		return fmt.Errorf("%w: dob must be DD/MM/YYYY", ErrInvalidBirthData)
	case !validLayout(astro.TimeLayout, b.TOB):
		return fmt.Errorf("%w: tob must be HH:MM", ErrInvalidBirthData)
	case b.Lat < -90 || b.Lat > 90:
		return fmt.Errorf("%w: lat out of range", ErrInvalidBirthData)
	case b.Lon < -180 || b.Lon > 180:
		return fmt.Errorf("%w: lon out of range", ErrInvalidBirthData)
	case b.TZ < -12 || b.TZ > 14:
		return fmt.Errorf("%w: tz out of range", ErrInvalidBirthData)
	}
	if _, err := language.Parse(b.Lang); err != nil {
		return fmt.Errorf("%w: lang %q is not a language tag", ErrInvalidBirthData, b.Lang)
	}
	return nil
}

// Params converts the natal data to upstream query parameters.
func (b BirthData) Params() astro.BirthParams {
	return astro.BirthParams{DOB: b.DOB, TOB: b.TOB, Lat: b.Lat, Lon: b.Lon, TZ: b.TZ, Lang: b.Lang}
}

func validLayout(layout, v string) bool {
	_, err := time.Parse(layout, v)
	return err == nil
}

// ProfileKey fingerprints the birth data. Fields are taken in the fixed
// order name, dob, tob, lat, lon, each length-prefixed so no two distinct
// inputs share an encoding, and the result is hashed to a fixed width.
func ProfileKey(b BirthData) string {
	var sb strings.Builder
	sb.WriteString("v1|")
	for _, f := range []string{b.Name, b.DOB, b.TOB, astro.FormatCoord(b.Lat), astro.FormatCoord(b.Lon)} {
		sb.WriteString(strconv.Itoa(len(f)))
		sb.WriteByte(':')
		sb.WriteString(f)
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Gateway fetches one fact category from the upstream API.
type Gateway interface {
	Fetch(ctx context.Context, category string, p astro.BirthParams) (json.RawMessage, error)
}

// ResolvedProfile is the outcome of ProfileService.Resolve.
type ResolvedProfile struct {
	Key         string
	Bundle      domain.Bundle
	Tier        Tier
	LastUpdated time.Time
	// Fallback is set when a stale refresh failed and the stored bundle is
	// served as it was.
	Fallback bool
}

// ProfileService resolves birth profiles against the cache and the upstream.
type ProfileService struct {
	DB      *gorm.DB
	Gateway Gateway
	Catalog *astro.Catalog

	// FreshFor and MajorAfter bound the tiers; zero means the default.
	FreshFor   time.Duration
	MajorAfter time.Duration
	// Concurrency caps parallel category fetches within one resolve.
	Concurrency int

	// Now is overridable in tests.
	Now func() time.Time
}

func (s *ProfileService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Classify returns the tier for a profile last refreshed at lastUpdated.
func (s *ProfileService) Classify(lastUpdated, now time.Time) Tier {
	fresh, major := s.FreshFor, s.MajorAfter
	if fresh <= 0 {
		fresh = DefaultFreshFor
	}
	if major <= 0 {
		major = DefaultMajorAfter
	}
	age := now.Sub(lastUpdated)
	switch {
	case age < fresh:
		return TierFresh
	case age < major:
		return TierStaleMinor
	default:
		return TierStaleMajor
	}
}

// Resolve returns the fact bundle for b, creating or refreshing the cache
// entry as the tier policy dictates. b must already be normalized.
func (s *ProfileService) Resolve(ctx context.Context, b BirthData) (*ResolvedProfile, error) {
	key := ProfileKey(b)
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("profile.key", key)),
	)
	defer span.End()

	now := s.now()
	existing, err := repo.GetProfile(ctx, s.DB, key)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.create(ctx, key, b, now)
	case err != nil:
		return nil, err
	}

	facts, err := repo.ListFacts(ctx, s.DB, key)
	if err != nil {
		return nil, err
	}
	bundle := domain.BundleFromFacts(facts)
	tier := s.Classify(existing.LastUpdated, now)
	span.SetAttributes(attribute.String("profile.tier", string(tier)))

	out := &ResolvedProfile{Key: key, Bundle: bundle, Tier: tier, LastUpdated: existing.LastUpdated}
	if tier == TierFresh {
		profileResolves.WithLabelValues(string(tier), "ok").Inc()
		return out, nil
	}

	cats := s.Catalog.Refresh.Minor
	if tier == TierStaleMajor {
		cats = s.Catalog.Refresh.Major
	}
	fetched, err := s.fetch(ctx, cats, b.Params())
	if err == nil {
		err = s.save(ctx, key, b, now, fetched)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("profile_key", key).
			Str("tier", string(tier)).
			Msg("profile refresh failed; serving stored facts")
		profileResolves.WithLabelValues(string(tier), "fallback").Inc()
		out.Fallback = true
		return out, nil
	}

	for cat, payload := range fetched {
		bundle[cat] = payload
	}
	out.LastUpdated = now
	profileResolves.WithLabelValues(string(tier), "ok").Inc()
	return out, nil
}

func (s *ProfileService) create(ctx context.Context, key string, b BirthData, now time.Time) (*ResolvedProfile, error) {
	fetched, err := s.fetch(ctx, s.Catalog.CategoryNames(), b.Params())
	if err != nil {
		profileResolves.WithLabelValues(string(TierFresh), "error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
	}
	if err := s.save(ctx, key, b, now, fetched); err != nil {
		profileResolves.WithLabelValues(string(TierFresh), "error").Inc()
		return nil, err
	}
	profileResolves.WithLabelValues(string(TierFresh), "ok").Inc()
	return &ResolvedProfile{Key: key, Bundle: fetched, Tier: TierFresh, LastUpdated: now}, nil
}

// fetch calls the gateway once per category, concurrently. It returns
// either every payload or the first error.
func (s *ProfileService) fetch(ctx context.Context, cats []string, p astro.BirthParams) (domain.Bundle, error) {
	results := make([]json.RawMessage, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}
	for i, cat := range cats {
		g.Go(func() error {
			raw, err := s.Gateway.Fetch(gctx, cat, p)
			if err != nil {
				return fmt.Errorf("%s: %w", cat, err)
			}
			results[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(domain.Bundle, len(cats))
	for i, cat := range cats {
		out[cat] = results[i]
	}
	return out, nil
}

func (s *ProfileService) save(ctx context.Context, key string, b BirthData, now time.Time, fetched domain.Bundle) error {
	p := &domain.Profile{
		Key:         key,
		Name:        b.Name,
		DOB:         b.DOB,
		TOB:         b.TOB,
		Lat:         b.Lat,
		Lon:         b.Lon,
		LastUpdated: now,
	}
	facts := make([]domain.ProfileFact, 0, len(fetched))
	for _, cat := range fetched.Categories() {
		facts = append(facts, domain.ProfileFact{
			Category:  cat,
			Payload:   datatypes.JSON(fetched[cat]),
			FetchedAt: now,
		})
	}
	return repo.SaveProfile(ctx, s.DB, p, facts)
}

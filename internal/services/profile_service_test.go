package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

func TestProfileKey_Deterministic(t *testing.T) {
	b := sampleBirth()
	k1, k2 := ProfileKey(b), ProfileKey(b)
	if k1 != k2 {
		t.Fatalf("same input gave different keys: %s vs %s", k1, k2)
	}
	if len(k1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(k1))
	}

	// TZ and Lang are not part of the fingerprint.
	c := b
	c.TZ, c.Lang = 0, "hi"
	if ProfileKey(c) != k1 {
		t.Fatalf("tz/lang must not change the key")
	}
}

func TestProfileKey_DiffersPerField(t *testing.T) {
	base := sampleBirth()
	seen := map[string]string{ProfileKey(base): "base"}
	variants := map[string]func(*BirthData){
		"name": func(b *BirthData) { b.Name = "asha rai" },
		"dob":  func(b *BirthData) { b.DOB = "16/08/1990" },
		"tob":  func(b *BirthData) { b.TOB = "06:46" },
		"lat":  func(b *BirthData) { b.Lat = 19.0761 },
		"lon":  func(b *BirthData) { b.Lon = -72.8777 },
	}
	for field, mut := range variants {
		b := base
		mut(&b)
		k := ProfileKey(b)
		if prev, dup := seen[k]; dup {
			t.Fatalf("%s collides with %s", field, prev)
		}
		seen[k] = field
	}
}

func TestProfileKey_NoFieldBoundaryAmbiguity(t *testing.T) {
	a := BirthData{Name: "ab", DOB: "c"}
	b := BirthData{Name: "a", DOB: "bc"}
	if ProfileKey(a) == ProfileKey(b) {
		t.Fatalf("shifted field boundary must produce a different key")
	}
	c := BirthData{Name: "x_1/1", DOB: "1"}
	d := BirthData{Name: "x", DOB: "1/1_1"}
	if ProfileKey(c) == ProfileKey(d) {
		t.Fatalf("separator characters inside values must not collide")
	}
}

func TestBirthData_Normalize(t *testing.T) {
	b := BirthData{Name: "  Asha   Rao ", DOB: " 15/08/1990", TOB: "06:45 ", Lat: 1, Lon: 2, TZ: 5.5, Lang: " HI "}
	if err := b.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Name != "Asha Rao" || b.DOB != "15/08/1990" || b.TOB != "06:45" || b.Lang != "hi" {
		t.Fatalf("not normalized: %#v", b)
	}

	empty := sampleBirth()
	empty.Lang = ""
	if err := empty.Normalize(); err != nil || empty.Lang != "en" {
		t.Fatalf("lang should default to en, got %q err=%v", empty.Lang, err)
	}

	bad := map[string]func(*BirthData){
		"name": func(b *BirthData) { b.Name = "  " },
		"dob":  func(b *BirthData) { b.DOB = "1990-08-15" },
		"tob":  func(b *BirthData) { b.TOB = "25:00" },
		"lat":  func(b *BirthData) { b.Lat = 91 },
		"lon":  func(b *BirthData) { b.Lon = -181 },
		"tz":   func(b *BirthData) { b.TZ = 15 },
		"lang": func(b *BirthData) { b.Lang = "not a tag!" },
	}
	for name, mut := range bad {
		b := sampleBirth()
		mut(&b)
		if err := b.Normalize(); !errors.Is(err, ErrInvalidBirthData) {
			t.Fatalf("%s: expected ErrInvalidBirthData, got %v", name, err)
		}
	}
}

func TestClassify_Boundaries(t *testing.T) {
	s := &ProfileService{}
	now := time.Now()
	cases := []struct {
		age  time.Duration
		want Tier
	}{
		{0, TierFresh},
		{24*time.Hour - time.Second, TierFresh},
		{24 * time.Hour, TierStaleMinor},
		{7*24*time.Hour - time.Second, TierStaleMinor},
		{7 * 24 * time.Hour, TierStaleMajor},
		{30 * 24 * time.Hour, TierStaleMajor},
	}
	for _, c := range cases {
		if got := s.Classify(now.Add(-c.age), now); got != c.want {
			t.Fatalf("age %v: got %s want %s", c.age, got, c.want)
		}
	}

	custom := &ProfileService{FreshFor: time.Hour, MajorAfter: 2 * time.Hour}
	if got := custom.Classify(now.Add(-90*time.Minute), now); got != TierStaleMinor {
		t.Fatalf("custom thresholds ignored: %s", got)
	}
}

func TestResolve_FirstFetchStoresAllCategories(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()

	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierFresh || res.Fallback {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.gateway.Calls()) != 13 || len(res.Bundle) != 13 {
		t.Fatalf("expected 13 calls and categories, got %d/%d", len(f.gateway.Calls()), len(res.Bundle))
	}

	facts, err := repo.ListFacts(context.Background(), f.db, res.Key)
	if err != nil || len(facts) != 13 {
		t.Fatalf("stored facts: %d err=%v", len(facts), err)
	}
	p, err := repo.GetProfile(context.Background(), f.db, res.Key)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !p.LastUpdated.Equal(f.clock.Now()) {
		t.Fatalf("last_updated = %v, want %v", p.LastUpdated, f.clock.Now())
	}
}

func TestResolve_FreshIssuesNoCalls(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()
	if _, err := f.profiles.Resolve(context.Background(), b); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.gateway.Reset(2)

	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierFresh {
		t.Fatalf("tier = %s", res.Tier)
	}
	if n := len(f.gateway.Calls()); n != 0 {
		t.Fatalf("fresh profile must not call upstream, got %d calls", n)
	}
}

func factsByCategory(t *testing.T, f *fixture, key string) map[string][]byte {
	t.Helper()
	facts, err := repo.ListFacts(context.Background(), f.db, key)
	if err != nil {
		t.Fatalf("list facts: %v", err)
	}
	out := make(map[string][]byte, len(facts))
	for _, fc := range facts {
		out[fc.Category] = append([]byte(nil), fc.Payload...)
	}
	return out
}

func TestResolve_StaleMinorRefreshesTwo(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()
	first, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := factsByCategory(t, f, first.Key)

	f.clock.Advance(25 * time.Hour)
	f.gateway.Reset(2)
	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierStaleMinor || res.Fallback {
		t.Fatalf("unexpected result: %+v", res)
	}

	calls := f.gateway.Calls()
	sort.Strings(calls)
	if len(calls) != 2 || calls[0] != "personal_chars" || calls[1] != "planet_details" {
		t.Fatalf("expected planet_details+personal_chars, got %v", calls)
	}

	after := factsByCategory(t, f, first.Key)
	for cat, payload := range before {
		refreshed := cat == "planet_details" || cat == "personal_chars"
		same := bytes.Equal(payload, after[cat])
		if refreshed && same {
			t.Fatalf("%s should have been refreshed", cat)
		}
		if !refreshed && !same {
			t.Fatalf("%s changed: %s -> %s", cat, payload, after[cat])
		}
	}

	p, _ := repo.GetProfile(context.Background(), f.db, first.Key)
	if !p.LastUpdated.Equal(f.clock.Now()) {
		t.Fatalf("last_updated not bumped: %v", p.LastUpdated)
	}
	if string(res.Bundle["planet_details"]) != string(after["planet_details"]) {
		t.Fatalf("returned bundle does not include the refreshed payload")
	}
}

func TestResolve_StaleMajorRefreshesFour(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()
	first, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	f.clock.Advance(8 * 24 * time.Hour)
	f.gateway.Reset(3)
	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Tier != TierStaleMajor {
		t.Fatalf("tier = %s", res.Tier)
	}
	calls := f.gateway.Calls()
	sort.Strings(calls)
	want := []string{"current_mahadasha_full", "current_sade_sati", "personal_chars", "planet_details"}
	if len(calls) != len(want) {
		t.Fatalf("expected 4 calls, got %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	p, _ := repo.GetProfile(context.Background(), f.db, first.Key)
	if !p.LastUpdated.Equal(f.clock.Now()) {
		t.Fatalf("last_updated not bumped")
	}
}

func TestResolve_StaleRefreshFailureServesStored(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()
	first, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	seededAt := f.clock.Now()
	before := factsByCategory(t, f, first.Key)

	f.clock.Advance(25 * time.Hour)
	f.gateway.Reset(2)
	f.gateway.failAll = true

	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil {
		t.Fatalf("stale failure must not be fatal: %v", err)
	}
	if !res.Fallback || res.Tier != TierStaleMinor {
		t.Fatalf("expected fallback on stale-minor, got %+v", res)
	}
	if len(res.Bundle) != len(before) {
		t.Fatalf("bundle size changed: %d vs %d", len(res.Bundle), len(before))
	}
	for cat, payload := range before {
		if !bytes.Equal(payload, res.Bundle[cat]) {
			t.Fatalf("%s differs from pre-refresh payload", cat)
		}
	}
	p, _ := repo.GetProfile(context.Background(), f.db, first.Key)
	if !p.LastUpdated.Equal(seededAt) || !res.LastUpdated.Equal(seededAt) {
		t.Fatalf("last_updated must stay %v, got %v", seededAt, p.LastUpdated)
	}
}

func TestResolve_PartialRefreshFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	b := sampleBirth()
	first, _ := f.profiles.Resolve(context.Background(), b)
	before := factsByCategory(t, f, first.Key)

	f.clock.Advance(8 * 24 * time.Hour)
	f.gateway.Reset(2)
	f.gateway.fail = map[string]bool{"current_sade_sati": true}

	res, err := f.profiles.Resolve(context.Background(), b)
	if err != nil || !res.Fallback {
		t.Fatalf("expected fallback, got %+v err=%v", res, err)
	}
	after := factsByCategory(t, f, first.Key)
	for cat := range before {
		if !bytes.Equal(before[cat], after[cat]) {
			t.Fatalf("%s was written despite a failed sibling fetch", cat)
		}
	}
}

func TestResolve_FirstFetchFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.gateway.fail = map[string]bool{"shad_bala": true}
	b := sampleBirth()

	_, err := f.profiles.Resolve(context.Background(), b)
	if !errors.Is(err, ErrProfileUnavailable) {
		t.Fatalf("expected ErrProfileUnavailable, got %v", err)
	}
	var ue *astro.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("upstream cause should be preserved: %v", err)
	}
	if _, err := repo.GetProfile(context.Background(), f.db, ProfileKey(b)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("nothing must be stored, got %v", err)
	}
}

func TestBundleFromFacts_RoundTrip(t *testing.T) {
	f := newFixture(t)
	res, err := f.profiles.Resolve(context.Background(), sampleBirth())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	facts, _ := repo.ListFacts(context.Background(), f.db, res.Key)
	got := domain.BundleFromFacts(facts)
	for cat, payload := range res.Bundle {
		if string(got[cat]) != string(payload) {
			t.Fatalf("%s: stored %s, returned %s", cat, got[cat], payload)
		}
	}
}

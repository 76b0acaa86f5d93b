package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/astro-chat-relay/internal/astro"
)

type fakeGeo struct {
	locs  []astro.Location
	err   error
	calls int
}

func (g *fakeGeo) GeoSearch(_ context.Context, _ string) ([]astro.Location, error) {
	g.calls++
	return g.locs, g.err
}

func newLocationService(t *testing.T, geo *fakeGeo) (*LocationService, *clock) {
	t.Helper()
	f := newFixture(t)
	return &LocationService{DB: f.db, Geo: geo, TTL: time.Hour, Now: f.clock.Now}, f.clock
}

var puneResults = []astro.Location{
	{FullName: "Pune, Maharashtra, IN", Coordinates: json.RawMessage(`["18.52","73.85"]`)},
	{FullName: "Pune, Uttar Pradesh, IN", Coordinates: json.RawMessage(`["26.69","83.33"]`)},
}

func TestLocationSearchAndSelect(t *testing.T) {
	geo := &fakeGeo{locs: puneResults}
	svc, _ := newLocationService(t, geo)
	ctx := context.Background()

	res, err := svc.Search(ctx, "  Pune ")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Token == "" || len(res.Locations) != 2 {
		t.Fatalf("unexpected search result: %+v", res)
	}

	loc, err := svc.Select(ctx, res.Token, "Pune, Uttar Pradesh, IN")
	if err != nil {
		t.Fatalf("exact select: %v", err)
	}
	if string(loc.Coordinates) != `["26.69","83.33"]` {
		t.Fatalf("wrong location: %+v", loc)
	}

	loc, err = svc.Select(ctx, res.Token, "pune, maharashtra, in")
	if err != nil || loc.FullName != "Pune, Maharashtra, IN" {
		t.Fatalf("case-insensitive select: %+v err=%v", loc, err)
	}

	loc, err = svc.Select(ctx, res.Token, "Pune Maharashtra")
	if err != nil || loc.FullName != "Pune, Maharashtra, IN" {
		t.Fatalf("fuzzy select: %+v err=%v", loc, err)
	}

	if _, err := svc.Select(ctx, res.Token, "Chennai, Tamil Nadu, IN"); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("expected ErrLocationNotFound, got %v", err)
	}
	if _, err := svc.Select(ctx, res.Token, " "); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("blank name: %v", err)
	}
}

func TestLocationSelect_TokensAreIsolated(t *testing.T) {
	geo := &fakeGeo{locs: puneResults}
	svc, _ := newLocationService(t, geo)
	ctx := context.Background()

	a, _ := svc.Search(ctx, "Pune")
	geo.locs = []astro.Location{{FullName: "Paris, Ile-de-France, FR", Coordinates: json.RawMessage(`["48.85","2.35"]`)}}
	b, _ := svc.Search(ctx, "Paris")

	if _, err := svc.Select(ctx, a.Token, "Paris, Ile-de-France, FR"); !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("search A must not see B's results: %v", err)
	}
	if _, err := svc.Select(ctx, b.Token, "Paris, Ile-de-France, FR"); err != nil {
		t.Fatalf("search B: %v", err)
	}
}

func TestLocationSelect_UnknownAndExpiredToken(t *testing.T) {
	geo := &fakeGeo{locs: puneResults}
	svc, clk := newLocationService(t, geo)
	ctx := context.Background()

	if _, err := svc.Select(ctx, NewToken(), "Pune, Maharashtra, IN"); !errors.Is(err, ErrSearchNotFound) {
		t.Fatalf("expected ErrSearchNotFound, got %v", err)
	}
	res, _ := svc.Search(ctx, "Pune")
	clk.Advance(2 * time.Hour)
	if _, err := svc.Select(ctx, res.Token, "Pune, Maharashtra, IN"); !errors.Is(err, ErrSearchNotFound) {
		t.Fatalf("expired search: %v", err)
	}
}

func TestLocationSearch_Errors(t *testing.T) {
	geo := &fakeGeo{err: &astro.UpstreamError{Status: 500, Message: "down"}}
	svc, _ := newLocationService(t, geo)
	ctx := context.Background()

	if _, err := svc.Search(ctx, "  "); !errors.Is(err, ErrEmptyCity) {
		t.Fatalf("expected ErrEmptyCity, got %v", err)
	}
	if geo.calls != 0 {
		t.Fatalf("blank city must not call upstream")
	}
	var ue *astro.UpstreamError
	if _, err := svc.Search(ctx, "Pune"); !errors.As(err, &ue) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	geo.err, geo.locs = nil, nil
	res, err := svc.Search(ctx, "Atlantis")
	if err != nil || len(res.Locations) != 0 || res.Token == "" {
		t.Fatalf("empty result should still be stored: %+v err=%v", res, err)
	}
}

func TestLocationSelect_FoldsAccentsAndFillerWords(t *testing.T) {
	geo := &fakeGeo{locs: []astro.Location{
		{FullName: "São Paulo, São Paulo, BR", Coordinates: json.RawMessage(`["-23.55","-46.63"]`)},
		{FullName: "Paulo Afonso, Bahia, BR", Coordinates: json.RawMessage(`["-9.40","-38.21"]`)},
	}}
	svc, _ := newLocationService(t, geo)
	ctx := context.Background()

	res, err := svc.Search(ctx, "Sao Paulo")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	loc, err := svc.Select(ctx, res.Token, "Sao Paulo City")
	if err != nil || loc.FullName != "São Paulo, São Paulo, BR" {
		t.Fatalf("folded select: %+v err=%v", loc, err)
	}
}

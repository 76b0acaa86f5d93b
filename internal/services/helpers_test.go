package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/lock"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// One connection keeps the shared in-memory database free of
	// table-lock errors under concurrent tests.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testCatalog(t *testing.T) *astro.Catalog {
	t.Helper()
	c, err := astro.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeGateway returns a payload tagged with the category and a version
// number, and records every call.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []string
	version int
	failAll bool
	fail    map[string]bool
}

func (g *fakeGateway) Fetch(_ context.Context, category string, _ astro.BirthParams) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, category)
	if g.failAll || g.fail[category] {
		return nil, &astro.UpstreamError{Path: category, Status: 500, Message: "upstream down"}
	}
	return json.RawMessage(fmt.Sprintf(`{"category":%q,"version":%d}`, category, g.version)), nil
}

func (g *fakeGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) Reset(version int) {
	g.mu.Lock()
	g.calls = nil
	g.version = version
	g.mu.Unlock()
}

// fakeOracle answers "reply N" and keeps every transcript it was sent.
type fakeOracle struct {
	mu      sync.Mutex
	seen    [][]oracle.Message
	err     error
	onCall  func(msgs []oracle.Message)
	counter int
}

func (o *fakeOracle) Complete(_ context.Context, msgs []oracle.Message) (string, error) {
	if o.onCall != nil {
		o.onCall(msgs)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, append([]oracle.Message(nil), msgs...))
	if o.err != nil {
		return "", o.err
	}
	o.counter++
	return fmt.Sprintf("reply %d", o.counter), nil
}

func (o *fakeOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen)
}

type fixture struct {
	db       *gorm.DB
	clock    *clock
	gateway  *fakeGateway
	oracle   *fakeOracle
	profiles *ProfileService
	sessions *SessionService
	chat     *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	clk := newClock()
	gw := &fakeGateway{version: 1}
	or := &fakeOracle{}
	profiles := &ProfileService{DB: db, Gateway: gw, Catalog: testCatalog(t), Concurrency: 4, Now: clk.Now}
	sessions := &SessionService{DB: db, TTL: DefaultSessionTTL, Now: clk.Now}
	chat := &ChatService{
		DB:            db,
		Sessions:      sessions,
		Profiles:      profiles,
		Oracle:        or,
		Locker:        lock.NewKeyedMutex(),
		MaxQueryRunes: 2000,
	}
	return &fixture{db: db, clock: clk, gateway: gw, oracle: or, profiles: profiles, sessions: sessions, chat: chat}
}

func sampleBirth() BirthData {
	return BirthData{Name: "asha rao", DOB: "15/08/1990", TOB: "06:45", Lat: 19.076, Lon: 72.8777, TZ: 5.5, Lang: "en"}
}

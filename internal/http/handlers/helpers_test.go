package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
	"github.com/tbourn/astro-chat-relay/internal/lock"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/repo"
	"github.com/tbourn/astro-chat-relay/internal/services"
)

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

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
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
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

// ---------- stubs ----------

type stubChat struct {
	fn func(ctx context.Context, token string, in services.PredictInput) (*services.Prediction, error)
}

func (s stubChat) Predict(ctx context.Context, token string, in services.PredictInput) (*services.Prediction, error) {
	return s.fn(ctx, token, in)
}

type stubSessions struct {
	info      func(ctx context.Context, token string) (*services.SessionInfo, error)
	turnsPage func(ctx context.Context, token string, page, pageSize int) ([]domain.Turn, int64, error)
	del       func(ctx context.Context, token string) error
}

func (s stubSessions) Info(ctx context.Context, token string) (*services.SessionInfo, error) {
	return s.info(ctx, token)
}

func (s stubSessions) TurnsPage(ctx context.Context, token string, page, pageSize int) ([]domain.Turn, int64, error) {
	return s.turnsPage(ctx, token, page, pageSize)
}

func (s stubSessions) Delete(ctx context.Context, token string) error { return s.del(ctx, token) }

type stubFeedback struct {
	fn func(ctx context.Context, sessionID, turnID string, value int, comment string) (*domain.Feedback, error)
}

func (s stubFeedback) Leave(ctx context.Context, sessionID, turnID string, value int, comment string) (*domain.Feedback, error) {
	return s.fn(ctx, sessionID, turnID, value, comment)
}

type stubLocations struct {
	search func(ctx context.Context, city string) (*services.LocationResults, error)
	sel    func(ctx context.Context, token, fullName string) (*astro.Location, error)
}

func (s stubLocations) Search(ctx context.Context, city string) (*services.LocationResults, error) {
	return s.search(ctx, city)
}

func (s stubLocations) Select(ctx context.Context, token, fullName string) (*astro.Location, error) {
	return s.sel(ctx, token, fullName)
}

// stubUpstream records the last call and answers with canned values.
type stubUpstream struct {
	mu       sync.Mutex
	calls    int
	lastPath string
	lastQ    url.Values
	payload  json.RawMessage
	text     string
	err      error
}

func (u *stubUpstream) record(path string, q url.Values) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.lastPath, u.lastQ = path, q
}

func (u *stubUpstream) Get(_ context.Context, path string, q url.Values) (json.RawMessage, error) {
	u.record(path, q)
	return u.payload, u.err
}

func (u *stubUpstream) GetRaw(_ context.Context, path string, q url.Values) (string, error) {
	u.record(path, q)
	return u.text, u.err
}

// fakeGateway answers every category with a small tagged payload.
type fakeGateway struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *fakeGateway) Fetch(_ context.Context, category string, _ astro.BirthParams) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(fmt.Sprintf(`{"category":%q}`, category)), nil
}

// fakeOracle answers "reply N" and keeps the transcripts it was sent.
type fakeOracle struct {
	mu   sync.Mutex
	seen [][]oracle.Message
	err  error
}

func (o *fakeOracle) Complete(_ context.Context, msgs []oracle.Message) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, append([]oracle.Message(nil), msgs...))
	if o.err != nil {
		return "", o.err
	}
	return fmt.Sprintf("reply %d", len(o.seen)), nil
}

func (o *fakeOracle) Transcripts() [][]oracle.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([][]oracle.Message(nil), o.seen...)
}

// ---------- stacks ----------

// stack is the real service graph over an in-memory database.
type stack struct {
	db       *gorm.DB
	gateway  *fakeGateway
	oracle   *fakeOracle
	sessions *services.SessionService
	r        *gin.Engine
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	gw := &fakeGateway{}
	or := &fakeOracle{}
	cat := testCatalog(t)
	sessions := &services.SessionService{DB: db}
	profiles := &services.ProfileService{DB: db, Gateway: gw, Catalog: cat, Concurrency: 4}
	chat := &services.ChatService{
		DB:            db,
		Sessions:      sessions,
		Profiles:      profiles,
		Oracle:        or,
		Locker:        lock.NewKeyedMutex(),
		MaxQueryRunes: 2000,
	}
	h := New(Deps{
		Chat:     chat,
		Sessions: sessions,
		Feedback: &services.FeedbackService{DB: db},
		Catalog:  cat,
	}, CookieOptions{Name: "chat_session_id"})

	r := gin.New()
	r.Use(middleware.Session("chat_session_id"))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/chat/prediction", h.Predict)
	r.GET("/chat/session", h.GetSession)
	r.GET("/chat/session/turns", h.ListTurns)
	r.DELETE("/chat/session", h.DeleteSession)
	r.POST("/chat/turns/:id/feedback", h.LeaveFeedback)

	return &stack{db: db, gateway: gw, oracle: or, sessions: sessions, r: r}
}

// stubRouter mounts the handlers over stubbed services.
func stubRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(d, CookieOptions{Name: "chat_session_id", Secure: true})
	r := gin.New()
	r.Use(middleware.Session("chat_session_id"))
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/chat/prediction", h.Predict)
	r.GET("/chat/session", h.GetSession)
	r.GET("/chat/session/turns", h.ListTurns)
	r.DELETE("/chat/session", h.DeleteSession)
	r.POST("/chat/turns/:id/feedback", h.LeaveFeedback)
	r.GET("/geo-search", h.GeoSearch)
	r.GET("/select-location", h.SelectLocation)
	r.GET("/endpoints", h.ListEndpoints)
	if d.Catalog != nil {
		for i := range d.Catalog.Endpoints {
			ep := &d.Catalog.Endpoints[i]
			r.GET("/"+ep.Path, h.Proxy(ep))
		}
	}
	return r
}

// ---------- request helpers ----------

type call struct {
	method  string
	path    string
	body    string
	session string
	headers map[string]string
}

func do(r http.Handler, c call) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if c.body != "" {
		body = bytes.NewBufferString(c.body)
	} else {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session != "" {
		req.AddCookie(&http.Cookie{Name: "chat_session_id", Value: c.session})
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return e
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "chat_session_id" {
			return c
		}
	}
	return nil
}

const predictionBody = `{"name":"Asha Rao","dob":"15/08/1990","tob":"06:45","lat":"19.0760","lon":72.8777,"tz":5.5,"lang":"en","query":"%s"}`

func predictionJSON(query string) string { return fmt.Sprintf(predictionBody, query) }

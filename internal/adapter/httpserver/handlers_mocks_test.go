package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streamcave/overlay-api/internal/adapter/memory"
	"github.com/streamcave/overlay-api/internal/app"
	"github.com/streamcave/overlay-api/internal/domain"
	"github.com/streamcave/overlay-api/internal/platform/config"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockSessionService struct {
	revokeFn func(ctx context.Context, token string) (app.RevokeResult, error)
	signInFn func(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, string, error)
	rotateFn func(ctx context.Context, token string) (app.RotateResult, error)
	holderFn func(ctx context.Context, id uuid.UUID) (*domain.Holder, error)

	revokeCalls int
}

func (m *mockSessionService) Revoke(ctx context.Context, token string) (app.RevokeResult, error) {
	m.revokeCalls++
	if m.revokeFn != nil {
		return m.revokeFn(ctx, token)
	}
	return app.RevokeResult{Outcome: app.RevokeUnauthenticated}, nil
}

func (m *mockSessionService) SignIn(ctx context.Context, profile domain.DiscordProfile) (*domain.Holder, string, error) {
	if m.signInFn != nil {
		return m.signInFn(ctx, profile)
	}
	return nil, "", errors.New("not implemented")
}

func (m *mockSessionService) Rotate(ctx context.Context, token string) (app.RotateResult, error) {
	if m.rotateFn != nil {
		return m.rotateFn(ctx, token)
	}
	return app.RotateResult{Outcome: app.RotateUnauthenticated}, nil
}

func (m *mockSessionService) Holder(ctx context.Context, id uuid.UUID) (*domain.Holder, error) {
	if m.holderFn != nil {
		return m.holderFn(ctx, id)
	}
	return nil, domain.ErrHolderNotFound
}

type mockIdentityProvider struct {
	exchangeFn func(ctx context.Context, code string) (domain.DiscordProfile, error)
	revoked    []string
}

func (m *mockIdentityProvider) AuthorizeURL(state string) string {
	return "https://discord.test/oauth2/authorize?state=" + state
}

func (m *mockIdentityProvider) Exchange(ctx context.Context, code string) (domain.DiscordProfile, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, code)
	}
	return domain.DiscordProfile{}, errors.New("not implemented")
}

func (m *mockIdentityProvider) Revoke(_ context.Context, token string) error {
	m.revoked = append(m.revoked, token)
	return nil
}

type mockModelCatalog struct {
	listFn func(ctx context.Context) ([]domain.Model, error)
	getFn  func(ctx context.Context, uuid string) (*domain.Model, error)
}

func (m *mockModelCatalog) ListModels(ctx context.Context) ([]domain.Model, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockModelCatalog) GetModel(ctx context.Context, uuid string) (*domain.Model, error) {
	if m.getFn != nil {
		return m.getFn(ctx, uuid)
	}
	return nil, domain.ErrModelNotFound
}

type mockOverlayCatalog struct {
	forFn func(ctx context.Context, memberID string) ([]domain.Overlay, error)
	getFn func(ctx context.Context, uuid string) (*domain.Overlay, error)
}

func (m *mockOverlayCatalog) OverlaysFor(ctx context.Context, memberID string) ([]domain.Overlay, error) {
	if m.forFn != nil {
		return m.forFn(ctx, memberID)
	}
	return []domain.Overlay{}, nil
}

func (m *mockOverlayCatalog) GetOverlay(ctx context.Context, uuid string) (*domain.Overlay, error) {
	if m.getFn != nil {
		return m.getFn(ctx, uuid)
	}
	return nil, domain.ErrOverlayNotFound
}

// --- Test helpers ---

const (
	testCookieDomain    = ".streamcave.tv"
	testSSOCookieDomain = ".sso-partner.tv"
	testFrontendURL     = "http://localhost:3000"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type testServerOptions struct {
	sessions     sessionService
	identity     domain.IdentityProvider
	models       domain.ModelCatalog
	overlays     domain.OverlayCatalog
	healthChecks []HealthCheck
	clock        *clockwork.FakeClock
}

type testServerOption func(*testServerOptions)

func withSessions(s sessionService) testServerOption {
	return func(o *testServerOptions) { o.sessions = s }
}

func withIdentity(p domain.IdentityProvider) testServerOption {
	return func(o *testServerOptions) { o.identity = p }
}

func withModels(m domain.ModelCatalog) testServerOption {
	return func(o *testServerOptions) { o.models = m }
}

func withOverlays(o domain.OverlayCatalog) testServerOption {
	return func(opts *testServerOptions) { opts.overlays = o }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func withClock(c *clockwork.FakeClock) testServerOption {
	return func(o *testServerOptions) { o.clock = c }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "development",
		Port:            "0",
		FrontendURL:     testFrontendURL,
		SessionSecret:   "test-secret-key-32-bytes-long!!!",
		JWTSecret:       "test-jwt-secret-that-is-long-enough-123",
		CookieDomain:    testCookieDomain,
		SSOCookieDomain: testSSOCookieDomain,
		SessionMaxAge:   30 * 24 * time.Hour,
		AccessTokenTTL:  15 * time.Minute,
	}
}

func newTestServer(t *testing.T, opts ...testServerOption) *Server {
	t.Helper()

	o := &testServerOptions{
		sessions: &mockSessionService{},
		identity: &mockIdentityProvider{},
		models:   &mockModelCatalog{},
		overlays: &mockOverlayCatalog{},
		clock:    clockwork.NewFakeClockAt(testNow),
	}
	for _, opt := range opts {
		opt(o)
	}

	return NewServer(testConfig(), o.sessions, o.identity, o.models, o.overlays, o.clock, prometheus.NewRegistry(), o.healthChecks)
}

// newMemorySessions backs a real SessionManager with the in-memory store.
func newMemorySessions(t *testing.T) (*app.SessionManager, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore(clockwork.NewFakeClockAt(testNow))
	return app.NewSessionManager(store, nil), store
}

func saveHolder(t *testing.T, store domain.SessionStore, pseudo string, tokens ...string) *domain.Holder {
	t.Helper()
	h := &domain.Holder{
		ID:     uuid.New(),
		Pseudo: pseudo,
		Roles:  []string{domain.RoleUser},
		Tokens: domain.NewTokenSet(tokens...),
	}
	require.NoError(t, store.Save(context.Background(), h))
	return h
}

// serve runs req through the full middleware stack.
func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func requestWithRefreshCookie(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: token})
	return req
}

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

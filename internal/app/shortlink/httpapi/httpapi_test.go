package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipr.local/internal/app/shortlink"
	"snipr.local/internal/app/shortlink/httpapi"
	"snipr.local/internal/app/shortlink/store/memory"
	"snipr.local/internal/platform/auth"
	"snipr.local/internal/platform/httpmiddleware"
	"snipr.local/internal/platform/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// syncSink 直接写库，测试里不需要异步统计。
type syncSink struct{ store shortlink.Store }

func (s syncSink) Collect(c shortlink.Click) {
	_ = s.store.RecordClicks(context.Background(), []shortlink.Click{c})
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string, shortlink.Visit) (shortlink.Resolution, error) {
	return shortlink.Resolution{}, &shortlink.DependencyError{Op: "find", Err: errors.New("db down")}
}

type denyAll struct{}

func (denyAll) Allow(_ context.Context, rule ratelimit.Rule, _ string) (ratelimit.Decision, error) {
	return ratelimit.Decision{Limit: rule.Limit, RetryAfter: 1500 * time.Millisecond}, nil
}

type testServer struct {
	engine *gin.Engine
	store  *memory.Store
	tokens auth.TokenService
}

func newServer(t *testing.T, mutate ...func(*httpapi.Deps)) *testServer {
	t.Helper()
	store := memory.New()
	ts, err := auth.NewHS256Service("test-secret", "snipr-test", time.Hour)
	require.NoError(t, err)
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	d := httpapi.Deps{
		Resolver:  shortlink.NewResolver(store, shortlink.WithClickSink(syncSink{store: store})),
		Creator:   shortlink.NewCreator(store, "http://sho.rt/"),
		Inspector: shortlink.NewInspector(store),
		Tokens:    ts,
		Admin:     auth.NewAdminAuthenticator("admin", hash),
	}
	for _, m := range mutate {
		m(&d)
	}

	r := gin.New()
	require.NoError(t, httpmiddleware.ConfigureClientIP(r, nil))
	r.Use(httpmiddleware.ReqID())
	httpapi.RegisterAPIRoutes(r.Group("/api"), d)
	httpapi.RegisterPublicRoutes(r, d)
	return &testServer{engine: r, store: store, tokens: ts}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/url", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestCreateThenResolve(t *testing.T) {
	s := newServer(t)

	created := s.create(t, `{"longUrl":"https://example.com/page"}`)
	assert.Equal(t, true, created["success"])
	assert.Equal(t, "https://example.com/page", created["longUrl"])
	shortID, _ := created["shortId"].(string)
	require.Len(t, shortID, shortlink.ShortIDLength)
	assert.Equal(t, "http://sho.rt/"+shortID, created["shortUrl"])
	assert.NotEmpty(t, created["id"])

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/url/"+shortID, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "https://example.com/page", body["longUrl"])
	assert.Equal(t, false, body["cached"])
}

func TestCreateWithAliasAndForm(t *testing.T) {
	s := newServer(t)

	form := url.Values{"longUrl": {"example.org/docs"}, "customAlias": {"docs"}}
	req := httptest.NewRequest(http.MethodPost, "/api/url", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := s.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "docs", body["shortId"])
	assert.Equal(t, "https://example.org/docs", body["longUrl"], "missing scheme gets https://")

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/url/docs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateErrors(t *testing.T) {
	s := newServer(t)
	s.create(t, `{"longUrl":"https://a.example","customAlias":"taken"}`)

	cases := []struct {
		name string
		body string
		want int
		code string
	}{
		{"malformed json", `{"longUrl":`, http.StatusBadRequest, httpmiddleware.CodeBadRequest},
		{"missing url", `{}`, http.StatusBadRequest, httpmiddleware.CodeValidation},
		{"bad alias", `{"longUrl":"https://b.example","customAlias":"no spaces"}`, http.StatusBadRequest, httpmiddleware.CodeValidation},
		{"reserved alias", `{"longUrl":"https://b.example","customAlias":"api"}`, http.StatusBadRequest, httpmiddleware.CodeValidation},
		{"alias taken", `{"longUrl":"https://b.example","customAlias":"taken"}`, http.StatusConflict, httpmiddleware.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/url", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := s.do(req)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tc.code, body["code"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestResolveErrors(t *testing.T) {
	s := newServer(t)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/url/doesnotexist", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httpmiddleware.CodeNotFound, decode(t, rec)["code"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/url/"+strings.Repeat("a", 33), nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	down := newServer(t, func(d *httpapi.Deps) { d.Resolver = failingResolver{} })
	rec = down.do(httptest.NewRequest(http.MethodGet, "/api/url/abc", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, httpmiddleware.CodeInternal, body["code"])
	assert.NotContains(t, body["error"], "db down")
}

func TestRedirectCountsClicks(t *testing.T) {
	s := newServer(t)
	created := s.create(t, `{"longUrl":"https://example.com/x","customAlias":"go-x"}`)

	req := httptest.NewRequest(http.MethodGet, "/go-x", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "198.51.100.4")
	rec := s.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/x", rec.Header().Get("Location"))

	owner, err := s.store.FindByAlias(context.Background(), "go-x")
	require.NoError(t, err)
	clicks, err := s.store.ListClicks(context.Background(), owner.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, "198.51.100.4", clicks[0].IP, "client IP comes from the trusted proxy header")
	assert.Equal(t, "test-agent", clicks[0].UserAgent)

	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/url/go-x/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)
	assert.EqualValues(t, 1, stats["clickCount"])
	assert.Equal(t, "go-x", stats["customAlias"])
	assert.Equal(t, created["id"], stats["id"])

	// stats 本身不计点击
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/url/go-x/stats", nil))
	assert.EqualValues(t, 1, decode(t, rec)["clickCount"])

	rec = s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminLoginAndClicks(t *testing.T) {
	s := newServer(t)
	s.create(t, `{"longUrl":"https://example.com/y","customAlias":"why"}`)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusFound, s.do(httptest.NewRequest(http.MethodGet, "/why", nil)).Code)
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/admin/url/why/clicks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/admin/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	}
	assert.Equal(t, http.StatusUnauthorized, login(`{"username":"admin","password":"wrong"}`).Code)
	rec = login(`{"username":"admin","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	get := func(path, bearer string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+bearer)
		return s.do(req)
	}

	rec = get("/api/admin/url/why/clicks?limit=2", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode(t, rec)
	assert.Len(t, page["clicks"], 2)
	next, _ := page["nextCursor"].(string)
	require.NotEmpty(t, next)

	rec = get("/api/admin/url/why/clicks?limit=2&cursor="+next, token)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode(t, rec)
	assert.Len(t, page["clicks"], 1)
	assert.Nil(t, page["nextCursor"])

	assert.Equal(t, http.StatusBadRequest, get("/api/admin/url/why/clicks?limit=x", token).Code)
	assert.Equal(t, http.StatusNotFound, get("/api/admin/url/none/clicks", token).Code)

	userToken, err := s.tokens.Sign(auth.Identity{Subject: "bob", Role: "user"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get("/api/admin/url/why/clicks", userToken).Code)
}

func TestRateLimitedRoutes(t *testing.T) {
	s := newServer(t, func(d *httpapi.Deps) { d.Limiter = denyAll{} })

	rec := s.do(httptest.NewRequest(http.MethodGet, "/anything", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, httpmiddleware.CodeRateLimited, decode(t, rec)["code"])

	// stats 不限流
	rec = s.do(httptest.NewRequest(http.MethodGet, "/api/url/anything/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/config"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/model"
)

var (
	secret = []byte("gateway-secret")
	now    = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock  = auth.WithClock(func() time.Time { return now })
)

type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     string
}

type stubBackend struct {
	srv    *httptest.Server
	calls  atomic.Int32
	reqs   chan recordedRequest
	status int
	body   string
}

func newStubBackend(t *testing.T) *stubBackend {
	t.Helper()
	b := &stubBackend{reqs: make(chan recordedRequest, 10), status: http.StatusOK, body: `{"ok":true}`}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		b.reqs <- recordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
			Body:     string(body),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Backend", "stub")
		w.WriteHeader(b.status)
		_, _ = w.Write([]byte(b.body))
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *stubBackend) last(t *testing.T) recordedRequest {
	t.Helper()
	select {
	case r := <-b.reqs:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("backend was not called")
		return recordedRequest{}
	}
}

type env struct {
	router                http.Handler
	users, catalog, sales *stubBackend
	metrics               *metrics.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		users:   newStubBackend(t),
		catalog: newStubBackend(t),
		sales:   newStubBackend(t),
		metrics: metrics.New("test"),
	}
	e.router = newRouter(e.metrics, e.users.srv.URL, e.catalog.srv.URL, e.sales.srv.URL)
	return e
}

func newRouter(m *metrics.Metrics, usersURL, catalogURL, salesURL string) http.Handler {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	newClient := func(name, baseURL string) *clients.Client {
		c := clients.NewClient(name, baseURL, httpClient)
		c.Metrics = m
		return c
	}
	return NewRouter(Deps{
		Cfg: config.Gateway{
			APIPrefix:        "/api",
			UpstreamTimeout:  2 * time.Second,
			CORSAllowOrigins: []string{"*"},
		},
		Verifier: auth.NewVerifier(secret, clock),
		Metrics:  m,
		Users:    newClient("users", usersURL),
		Catalog:  newClient("catalog", catalogURL),
		Sales:    newClient("sales", salesURL),
	})
}

func (e *env) totalCalls() int32 {
	return e.users.calls.Load() + e.catalog.calls.Load() + e.sales.calls.Load()
}

func issue(t *testing.T, subject int64) string {
	t.Helper()
	tok, err := auth.NewIssuer(secret, 30*time.Minute, clock).Issue(subject)
	require.NoError(t, err)
	return tok.AccessToken
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var er model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	return er.Detail
}

func TestHealthRoute(t *testing.T) {
	e := newEnv(t)
	rec := serve(e.router, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"api-gateway"}`, rec.Body.String())
	assert.Zero(t, e.totalCalls())
}

func TestProtectedRoutesFailClosed(t *testing.T) {
	expired, err := auth.NewIssuer(secret, time.Minute, auth.WithClock(func() time.Time { return now.Add(-time.Hour) })).Issue(7)
	require.NoError(t, err)
	forged, err := auth.NewIssuer([]byte("other-secret"), time.Hour, clock).Issue(7)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		reason string
	}{
		{"missing", "", "missing"},
		{"not bearer", "Basic dXNlcjpwYXNz", "missing"},
		{"garbage", "Bearer not-a-jwt", "malformed"},
		{"expired", "Bearer " + expired.AccessToken, "expired"},
		{"wrong key", "Bearer " + forged.AccessToken, "signature_invalid"},
	}

	routes := []struct{ method, path, body string }{
		{http.MethodGet, "/api/users/me", ""},
		{http.MethodGet, "/api/products/", ""},
		{http.MethodPost, "/api/products/", `{"name":"x"}`},
		{http.MethodPut, "/api/products/1", `{"quantity":1}`},
		{http.MethodDelete, "/api/products/1", ""},
		{http.MethodPost, "/api/sales/", `{"items":[]}`},
		{http.MethodGet, "/api/sales/3", ""},
		{http.MethodGet, "/api/sales/reports/daily", ""},
		{http.MethodPost, "/auth/refresh_token", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			for _, rt := range routes {
				req := httptest.NewRequest(rt.method, rt.path, strings.NewReader(rt.body))
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				req.Header.Set("X-User-Id", "1")

				rec := serve(e.router, req)
				assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", rt.method, rt.path)
				assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			}
			assert.Zero(t, e.totalCalls())
			assert.Equal(t, float64(len(routes)), testutil.ToFloat64(e.metrics.AuthRejections.WithLabelValues(tc.reason)))
		})
	}
}

func TestGetForwardsQueryAndIdentity(t *testing.T) {
	e := newEnv(t)
	tok := issue(t, 42)

	req := httptest.NewRequest(http.MethodGet, "/api/products/?name=chair&skip=0&limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-User-Id", "1")
	rec := serve(e.router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := e.catalog.last(t)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/products/", got.Path)
	assert.Equal(t, "name=chair&skip=0&limit=5", got.RawQuery)
	assert.Equal(t, "42", got.Header.Get("X-User-Id"))
	assert.Equal(t, "Bearer "+tok, got.Header.Get("Authorization"))
	assert.NotEmpty(t, got.Header.Get("X-Correlation-Id"))
	assert.Equal(t, int32(1), e.catalog.calls.Load())
	assert.Zero(t, e.users.calls.Load()+e.sales.calls.Load())
}

func TestPostForwardsCompactBody(t *testing.T) {
	e := newEnv(t)
	e.sales.status = http.StatusCreated
	e.sales.body = `{"id":1,"total_price":20}`

	req := httptest.NewRequest(http.MethodPost, "/api/sales/?ignored=1", strings.NewReader("{\n  \"items\": [ {\"product_id\": 1, \"quantity\": 2} ]\n}"))
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(e.router, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":1,"total_price":20}`, rec.Body.String())
	assert.Equal(t, "stub", rec.Header().Get("X-Backend"))

	got := e.sales.last(t)
	assert.Equal(t, "/sales/", got.Path)
	assert.Empty(t, got.RawQuery)
	assert.Equal(t, `{"items":[{"product_id":1,"quantity":2}]}`, got.Body)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "7", got.Header.Get("X-User-Id"))
}

func TestPostRejectsInvalidJSON(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/products/", strings.NewReader(`{"name":`))
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(e.router, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, e.totalCalls())
}

func TestDeleteSendsNoBody(t *testing.T) {
	e := newEnv(t)
	e.catalog.status = http.StatusNoContent
	e.catalog.body = ""

	req := httptest.NewRequest(http.MethodDelete, "/api/products/9?x=1", strings.NewReader(`{"a":1}`))
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(e.router, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	got := e.catalog.last(t)
	assert.Equal(t, http.MethodDelete, got.Method)
	assert.Equal(t, "/products/9", got.Path)
	assert.Empty(t, got.Body)
	assert.Empty(t, got.RawQuery)
}

func TestRemoteErrorsPropagateVerbatim(t *testing.T) {
	e := newEnv(t)
	e.catalog.status = http.StatusNotFound
	e.catalog.body = `{"detail":"Product not found"}`

	req := httptest.NewRequest(http.MethodGet, "/api/products/123", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(e.router, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"detail":"Product not found"}`, rec.Body.String())
}

func TestUnavailableBackendIs503(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	e := newEnv(t)
	router := newRouter(e.metrics, e.users.srv.URL, deadURL, e.sales.srv.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(router, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service unavailable: "+deadURL, detailOf(t, rec))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Upstream.WithLabelValues("catalog", "unavailable")))
}

func TestTokenRouteIsExemptAndPassesForm(t *testing.T) {
	e := newEnv(t)
	e.users.body = `{"access_token":"abc","token_type":"bearer"}`

	form := url.Values{"username": {"alice"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(e.router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, e.users.body, rec.Body.String())

	got := e.users.last(t)
	assert.Equal(t, "/auth/token", got.Path)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	parsed, err := url.ParseQuery(got.Body)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Get("username"))
	assert.Equal(t, "secret", parsed.Get("password"))
	assert.Empty(t, got.Header.Get("X-User-Id"))
}

func TestTokenRoutePropagatesRejection(t *testing.T) {
	e := newEnv(t)
	e.users.status = http.StatusUnauthorized
	e.users.body = `{"detail":"Incorrect username or password"}`

	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader("username=a&password=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(e.router, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Incorrect username or password", detailOf(t, rec))
}

func TestRefreshTokenForwardedWithoutPrefixChange(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh_token", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, 5))
	rec := serve(e.router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	got := e.users.last(t)
	assert.Equal(t, "/auth/refresh_token", got.Path)
	assert.Equal(t, "5", got.Header.Get("X-User-Id"))
	assert.Empty(t, got.Body)
}

func TestCORSPreflightSkipsAuth(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/products/", nil)
	req.Header.Set("Origin", "http://shop.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(e.router, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://shop.local", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Accept, Content-Type, Authorization, X-Correlation-Id, Traceparent, Tracestate",
		rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Zero(t, e.totalCalls())
}

func TestCorrelationIDEchoAndGeneration(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	req.Header.Set("X-Correlation-Id", "abc")
	req.Header.Set("Authorization", "Bearer "+issue(t, 7))
	rec := serve(e.router, req)
	assert.Equal(t, []string{"abc"}, rec.Header().Values("X-Correlation-Id"))
	assert.Equal(t, "abc", e.catalog.last(t).Header.Get("X-Correlation-Id"))

	rec = serve(e.router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-Id"))
}

func TestUpstreamHealth(t *testing.T) {
	e := newEnv(t)
	httpClient := &http.Client{Timeout: time.Second}
	router := NewRouter(Deps{
		Cfg:      config.Gateway{APIPrefix: "/api", UpstreamTimeout: time.Second},
		Verifier: auth.NewVerifier(secret, clock),
		Users:    clients.NewClient("users", e.users.srv.URL, httpClient),
		Catalog:  clients.NewClient("catalog", e.catalog.srv.URL, httpClient),
		Sales:    clients.NewClient("sales", e.sales.srv.URL, httpClient),
		HealthProbes: []clients.HealthProbe{
			{Name: "users", Client: clients.NewClient("users", e.users.srv.URL, httpClient), Path: "/health"},
			{Name: "catalog", Client: clients.NewClient("catalog", e.catalog.srv.URL, httpClient), Path: "/health"},
		},
	})

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/health/upstreams", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string                 `json:"status"`
		Upstream []clients.HealthResult `json:"upstream"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Upstream, 2)
	assert.Equal(t, "users", body.Upstream[0].Name)

	e.catalog.status = http.StatusInternalServerError
	rec = serve(router, httptest.NewRequest(http.MethodGet, "/health/upstreams", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

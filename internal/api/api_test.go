package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lablog-console/config"
	"lablog-console/internal/admin"
	"lablog-console/internal/collection"
	"lablog-console/internal/dashboard"
	"lablog-console/internal/db"
	"lablog-console/internal/fixture"
	"lablog-console/internal/inventory"
	"lablog-console/internal/mw"
	"lablog-console/internal/session"
	"lablog-console/internal/store"
	"lablog-console/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server     *httptest.Server
	handler    *Handler
	store      store.Store
	dashboards *dashboard.Registry
}

// newTestEnv serves the full router over the demo data set with an
// in-memory sqlite store.
func newTestEnv(t *testing.T, backend upstream.Backend) *testEnv {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	st := store.NewGormStore(gdb)

	cfg := config.Default()
	cfg.Session.Secret = "test-secret"
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Dashboard.PollInterval = time.Hour

	if backend == nil {
		backend = fixture.NewSource(7)
	}
	sessions := session.NewStore(
		session.NewDurableBackend(st, 24*time.Hour),
		session.NewMemoryBackend(cache.New(time.Hour, time.Hour), time.Hour),
		cache.New(time.Hour, time.Hour),
		time.Hour,
	)
	registry := dashboard.NewRegistry(backend, cfg.Dashboard, nil)
	h := NewHandler(Deps{
		Backend:    backend,
		Sessions:   sessions,
		Store:      st,
		Inventory:  inventory.NewService(backend, cfg.Server.CacheTTL),
		Collection: collection.NewService(backend),
		Dashboards: registry,
		Admin:      admin.NewService(backend, "test-reset"),
		DemoMode:   true,
	})
	srv := httptest.NewServer(NewRouter(h, cfg, mw.NewCookieStore(cfg.Session)))
	t.Cleanup(func() {
		srv.Close()
		registry.Close()
		sqlDB.Close()
	})
	return &testEnv{server: srv, handler: h, store: st, dashboards: registry}
}

// browser keeps cookies between requests and never follows redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (e *testEnv) browser(t *testing.T) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: e.server.URL,
		client: &http.Client{
			Jar:           jar,
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

type response struct {
	Code     int
	Location string
	Body     string
}

func (b *browser) do(method, path, contentType string, body io.Reader) response {
	b.t.Helper()
	req, err := http.NewRequest(method, b.base+path, body)
	require.NoError(b.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	res, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(b.t, err)
	return response{Code: res.StatusCode, Location: res.Header.Get("Location"), Body: string(data)}
}

func (b *browser) get(path string) response {
	return b.do(http.MethodGet, path, "", nil)
}

func (b *browser) postForm(path string, form url.Values) response {
	return b.do(http.MethodPost, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (b *browser) sendJSON(method, path string, v any) response {
	var body io.Reader
	if v != nil {
		data, err := json.Marshal(v)
		require.NoError(b.t, err)
		body = bytes.NewReader(data)
	}
	return b.do(method, path, "application/json", body)
}

func (b *browser) login(email string) {
	b.t.Helper()
	res := b.postForm("/login", url.Values{"user_id": {email}, "password": {fixture.DemoPassword}})
	require.Equal(b.t, http.StatusSeeOther, res.Code, res.Body)
	require.Equal(b.t, "/dashboard", res.Location)
}

func (b *browser) snapshot() dashboard.Snapshot {
	b.t.Helper()
	res := b.get("/api/dashboard")
	require.Equal(b.t, http.StatusOK, res.Code, res.Body)
	var s dashboard.Snapshot
	require.NoError(b.t, json.Unmarshal([]byte(res.Body), &s))
	return s
}

func TestSignedOutRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)

	res := b.get("/")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Location)

	res = b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Location)

	res = b.get("/api/dashboard")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.JSONEq(t, `{"error":"Please sign in."}`, res.Body)

	res = b.get("/login")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, `name="user_id"`)
	assert.Contains(t, res.Body, "Demo mode")
}

func TestLogin_WrongPasswordKeepsForm(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)

	res := b.postForm("/login", url.Values{"user_id": {"admin@lab.local"}, "password": {"nope"}, "remember": {"true"}})
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	assert.Contains(t, res.Body, "Invalid user id or password.")
	assert.Contains(t, res.Body, `value="admin@lab.local"`)
	assert.Contains(t, res.Body, "checked")

	res = b.get("/dashboard")
	assert.Equal(t, http.StatusSeeOther, res.Code)

	// The failed attempt can be retried from the same browser session.
	b.login("admin@lab.local")
}

func TestLogin_DashboardPaginationAndLogout(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)
	b.login("admin@lab.local")

	res := b.get("/login")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/dashboard", res.Location)

	res = b.get("/dashboard")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "Welcome, admin.")
	assert.Contains(t, res.Body, "Log collections")
	assert.Contains(t, res.Body, `href="/admin"`)

	require.Eventually(t, func() bool {
		s := b.snapshot()
		return !s.Loading && len(s.Rows) == 10
	}, 2*time.Second, 10*time.Millisecond)
	s := b.snapshot()
	assert.Equal(t, 1, s.Page)
	assert.True(t, s.HasNext)
	assert.False(t, s.HasPrevious)

	res = b.sendJSON(http.MethodPost, "/api/dashboard/previous", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Contains(t, res.Body, dashboard.ErrFirstPage.Error())

	res = b.sendJSON(http.MethodPost, "/api/dashboard/next", nil)
	assert.Equal(t, http.StatusAccepted, res.Code)
	require.Eventually(t, func() bool {
		s := b.snapshot()
		return !s.Loading && s.Page == 2 && len(s.History) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s = b.snapshot()
	assert.True(t, s.HasPrevious)
	assert.Equal(t, "10", s.History[0].ID)

	res = b.sendJSON(http.MethodPost, "/api/dashboard/previous", nil)
	assert.Equal(t, http.StatusAccepted, res.Code)
	require.Eventually(t, func() bool {
		s := b.snapshot()
		return !s.Loading && s.Page == 1 && len(s.Rows) == 10
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, b.snapshot().History)

	res = b.sendJSON(http.MethodPost, "/api/dashboard/query", map[string]any{"filters": map[string]any{"status_code": 108}})
	assert.Equal(t, http.StatusAccepted, res.Code)

	assert.Equal(t, 1, env.dashboards.Len())
	res = b.postForm("/logout", nil)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/login", res.Location)
	assert.Equal(t, 0, env.dashboards.Len())

	res = b.get("/api/dashboard")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = b.get("/login")
	assert.Contains(t, res.Body, "You have been signed out.")
}

func TestLogin_RememberSurvivesInDurableStore(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)
	res := b.postForm("/login", url.Values{"user_id": {"operator@lab.local"}, "password": {fixture.DemoPassword}, "remember": {"true"}})
	require.Equal(t, http.StatusSeeOther, res.Code)

	var count int64
	require.NoError(t, env.store.DB().Table("session_records").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	res = b.get("/dashboard")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.NotContains(t, res.Body, `href="/admin"`)
}

func TestLabs_BrowseOpenAndCollect(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)
	b.login("operator@lab.local")

	require.Equal(t, http.StatusOK, b.get("/dashboard").Code)
	require.Eventually(t, func() bool {
		s := b.snapshot()
		return !s.Loading && len(s.Rows) == 10
	}, 2*time.Second, 10*time.Millisecond)

	res := b.get("/set")
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/labs", res.Location)

	res = b.get("/labs")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "Austin Lab")
	assert.Contains(t, res.Body, "Eindhoven Lab")

	res = b.get("/labs/1?variant=Gen5")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "CAB-102")
	assert.NotContains(t, res.Body, "CAB-101")

	res = b.get("/labs/9")
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = b.get("/api/labs/1/facets")
	require.Equal(t, http.StatusOK, res.Code)
	var catalog inventory.Catalog
	require.NoError(t, json.Unmarshal([]byte(res.Body), &catalog))
	assert.Equal(t, []string{"Gen4", "Gen5"}, catalog.Variants)
	assert.Len(t, catalog.Sets, 6)

	res = b.postForm("/labs/1/open", url.Values{"cabinet_id": {"CAB-999"}})
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/labs/1", res.Location)

	res = b.postForm("/labs/1/open", url.Values{"cabinet_id": {"CAB-101"}})
	require.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/set", res.Location)

	res = b.get("/set")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "Cabinet CAB-101")
	assert.Contains(t, res.Body, "lab1-cab1-host1")

	res = b.get("/")
	assert.Equal(t, "/set", res.Location)

	now := time.Now().UTC()
	start, end := now.Add(-3*time.Hour), now.Add(-2*time.Hour)
	form := url.Values{
		"task_description": {"ab"},
		"start_date":       {start.Format("2006-01-02")},
		"start_time":       {start.Format("15:04")},
		"end_date":         {end.Format("2006-01-02")},
		"end_time":         {end.Format("15:04")},
		"log_types":        {collection.LogTypeMeter, collection.LogTypeHAN},
		"log_format":       {".pcap"},
	}
	res = b.postForm("/set/collect", form)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body, "Task description must be at least 5 characters.")
	assert.Contains(t, res.Body, `value="ab"`)

	form.Set("task_description", "Capture meter logs")
	res = b.postForm("/set/collect", form)
	require.Equal(t, http.StatusOK, res.Code, res.Body)
	assert.Contains(t, res.Body, "was submitted")
	assert.Contains(t, res.Body, `url=/dashboard`)

	// Opening the dashboard reloads the list; the poll timer never fires here.
	require.Equal(t, http.StatusOK, b.get("/dashboard").Code)
	require.Eventually(t, func() bool {
		s := b.snapshot()
		return !s.Loading && len(s.Rows) > 0 && s.Rows[0].TaskDescription == "Capture meter logs"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "In Progress", b.snapshot().Rows[0].DisplayStatus)
}

func TestAdmin_InviteDeleteAndGuards(t *testing.T) {
	env := newTestEnv(t, nil)
	a := env.browser(t)
	a.login("admin@lab.local")

	res := a.postForm("/admin/invite", url.Values{
		"email": {"new@lab.local"}, "first_name": {"New"}, "last_name": {"Member"}, "role": {"User"},
	})
	require.Equal(t, http.StatusSeeOther, res.Code)
	res = a.get("/admin")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "Invitation sent to new@lab.local")
	assert.Contains(t, res.Body, "new@lab.local")

	a.postForm("/admin/delete", url.Values{"user_id": {"new@lab.local"}})
	res = a.get("/admin")
	assert.Contains(t, res.Body, admin.ErrNotConfirmed.Error())
	assert.Contains(t, res.Body, "New Member")

	a.postForm("/admin/delete", url.Values{"user_id": {"new@lab.local"}, "confirm": {"true"}})
	res = a.get("/admin")
	assert.Contains(t, res.Body, "User new@lab.local was deleted.")
	assert.NotContains(t, res.Body, "New Member")

	o := env.browser(t)
	o.login("operator@lab.local")
	o.postForm("/admin/invite", url.Values{
		"email": {"x@lab.local"}, "first_name": {"X"}, "last_name": {"Y"}, "role": {"user"},
	})
	res = o.get("/admin")
	assert.Contains(t, res.Body, admin.ErrNotAdmin.Error())
	assert.NotContains(t, res.Body, "x@lab.local")

	o.postForm("/admin/reset", url.Values{"new_password": {"a"}, "confirm_password": {"b"}})
	res = o.get("/admin")
	assert.Contains(t, res.Body, "The passwords do not match.")
}

func TestSubscriptions_AreOwnedByTheOperator(t *testing.T) {
	env := newTestEnv(t, nil)
	anon := env.browser(t)
	res := anon.sendJSON(http.MethodPut, "/api/subscriptions", map[string]string{"endpoint": "x"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	a := env.browser(t)
	a.login("admin@lab.local")
	o := env.browser(t)
	o.login("operator@lab.local")

	res = a.sendJSON(http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, res.Body)

	endpoint := "https://push.example/send/abc"
	res = a.sendJSON(http.MethodPut, "/api/subscriptions", map[string]string{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	assert.Equal(t, http.StatusCreated, res.Code)

	res = a.get("/api/subscriptions?endpoint=" + endpoint)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"endpoint":"`+endpoint+`","user_email":"admin@lab.local"}`, res.Body)

	res = o.get("/api/subscriptions?endpoint=" + endpoint)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = o.sendJSON(http.MethodDelete, "/api/subscriptions", map[string]string{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = a.get("/api/subscriptions?endpoint=" + endpoint)
	assert.Equal(t, http.StatusOK, res.Code)

	res = a.sendJSON(http.MethodDelete, "/api/subscriptions", map[string]string{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, res.Code)
	res = a.get("/api/subscriptions?endpoint=" + endpoint)
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = a.get("/api/subscriptions")
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestPushKeyHealthAndServiceWorker(t *testing.T) {
	env := newTestEnv(t, nil)
	b := env.browser(t)

	res := b.get("/healthz")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"status":"ok","demo":true}`, res.Body)

	res = b.get("/sw.js")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body, "showNotification")

	b.login("operator@lab.local")
	res = b.get("/api/vapid_public_key")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestRawQueryParam(t *testing.T) {
	v, ok := rawQueryParam("a=1&endpoint=https://x/y?z", "endpoint")
	assert.True(t, ok)
	assert.Equal(t, "https://x/y?z", v)

	_, ok = rawQueryParam("a=1", "endpoint")
	assert.False(t, ok)
}

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lablog-console/config"
	"lablog-console/internal/model"
	"lablog-console/internal/session"
	"lablog-console/internal/upstream"
)

type testEnv struct {
	flow     *Flow
	sessions *session.Store
	durable  session.Backend
	requests *int32
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	var count int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := upstream.NewClient(config.UpstreamConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Paths:   config.DefaultPaths(),
	})
	scratch := cache.New(time.Hour, time.Hour)
	durable := session.NewMemoryBackend(cache.New(time.Hour, time.Hour), time.Hour)
	sessions := session.NewStore(durable, session.NewMemoryBackend(scratch, time.Hour), scratch, time.Hour)

	return &testEnv{
		flow:     NewFlow(client, sessions),
		sessions: sessions,
		durable:  durable,
		requests: &count,
	}
}

func jsonResponse(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func TestFlow_SuccessPopulatesSession(t *testing.T) {
	env := newTestEnv(t, jsonResponse(http.StatusOK, `{"token":"t1"}`))
	ctx := context.Background()

	assert.Equal(t, Idle, env.flow.State())
	sess, err := env.flow.Submit(ctx, "sid", Credentials{UserID: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, Success, env.flow.State())
	assert.Equal(t, "a", sess.UserName)
	assert.Equal(t, "a@b.com", sess.UserEmail)
	assert.Equal(t, "dashboard", sess.LastPage)

	stored, ok, err := env.sessions.Read(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t1", stored.Token)
	assert.Equal(t, "a", stored.UserName)
	assert.Equal(t, "a@b.com", stored.UserEmail)

	_, inDurable, err := env.durable.Get(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, inDurable, "a session not remembered must stay ephemeral")
}

func TestFlow_RememberWritesDurable(t *testing.T) {
	env := newTestEnv(t, jsonResponse(http.StatusOK, `{"token":"t1","role":"admin"}`))
	ctx := context.Background()

	_, err := env.flow.Submit(ctx, "sid", Credentials{UserID: "a@b.com", Password: "pw", Remember: true})
	require.NoError(t, err)

	stored, ok, err := env.durable.Get(ctx, "sid")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "admin", stored.UserRole)
}

func TestFlow_HTMLNotFoundIsConfigError(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html><body>Not Found</body></html>"))
	})
	ctx := context.Background()

	_, err := env.flow.Submit(ctx, "sid", Credentials{UserID: "a@b.com", Password: "pw"})
	require.Error(t, err)
	assert.Equal(t, upstream.KindConfig, upstream.KindOf(err))
	assert.Equal(t, Failure, env.flow.State())

	_, ok, err := env.sessions.Read(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFlow_FailuresSurfaceMessage(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		kind    upstream.Kind
		message string
	}{
		{"unauthorized", 401, `{"message":"Invalid credentials"}`, upstream.KindAuth, "Invalid credentials"},
		{"validation", 422, `{"detail":"user_id must be an email"}`, upstream.KindValidation, "user_id must be an email"},
		{"server", 500, `{"message":"database down"}`, upstream.KindServer, "database down"},
		{"missing token", 200, `{"role":"user"}`, upstream.KindServer, "The login response did not include a token."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, jsonResponse(tc.status, tc.body))
			_, err := env.flow.Submit(context.Background(), "sid", Credentials{UserID: "a@b.com", Password: "pw"})
			require.Error(t, err)
			assert.Equal(t, tc.kind, upstream.KindOf(err))
			assert.Equal(t, tc.message, err.Error())

			// A failed attempt can be retried.
			_, err = env.flow.Submit(context.Background(), "sid", Credentials{UserID: "a@b.com", Password: "pw"})
			assert.Error(t, err)
			assert.Equal(t, int32(2), atomic.LoadInt32(env.requests))
		})
	}
}

func TestFlow_EmptyCredentialsMakeNoRequest(t *testing.T) {
	env := newTestEnv(t, jsonResponse(http.StatusOK, `{"token":"t1"}`))

	_, err := env.flow.Submit(context.Background(), "sid", Credentials{UserID: " ", Password: ""})
	require.Error(t, err)
	assert.Equal(t, upstream.KindValidation, upstream.KindOf(err))
	assert.Equal(t, int32(0), atomic.LoadInt32(env.requests))
}

func TestLogout_ClearsSessionEvenWhenUpstreamFails(t *testing.T) {
	env := newTestEnv(t, jsonResponse(http.StatusInternalServerError, `{}`))
	ctx := context.Background()
	require.NoError(t, env.sessions.Write(ctx, "sid", model.Session{Token: "t1", UserEmail: "a@b.com"}))

	require.NoError(t, Logout(ctx, env.flow.backend, env.sessions, "sid"))
	_, ok, err := env.sessions.Read(ctx, "sid")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(env.requests))
}

func TestUserNameFromEmail(t *testing.T) {
	assert.Equal(t, "a", UserNameFromEmail("a@b.com"))
	assert.Equal(t, "operator", UserNameFromEmail("operator"))
	assert.Equal(t, "@b.com", UserNameFromEmail("@b.com"))
}

package server_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingeweb/contactws/internal/auth"
	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/handler"
	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/server"
	"github.com/ingeweb/contactws/internal/service"
	"github.com/ingeweb/contactws/internal/task"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

type stubAuthenticator struct{}

func (stubAuthenticator) Verify(ctx context.Context, username, password string) (*service.Verification, error) {
	return nil, nil
}

func (stubAuthenticator) Complete(ctx context.Context, username, password string, v *service.Verification) (*service.LoginResult, error) {
	return nil, nil
}

func (stubAuthenticator) Account(ctx context.Context, id int64) (*model.Account, error) {
	return &model.Account{ID: id, Username: "jdoe"}, nil
}

func (stubAuthenticator) LinkedLogins(ctx context.Context, id int64) ([]model.LinkedLogin, error) {
	return nil, nil
}

func (stubAuthenticator) Capabilities() service.Capabilities {
	return service.Capabilities{PreventLocalPasswords: true}
}

type stubStats struct{}

func (stubStats) LoadStats(ctx context.Context) (*model.SyncStats, error) {
	return &model.SyncStats{}, nil
}

type stubTrigger struct{}

func (stubTrigger) Trigger(ctx context.Context, name string) error { return nil }
func (stubTrigger) Statuses() []task.Status                        { return nil }

const testSecret = "a-test-secret-of-reasonable-length"

func newTestServer(t *testing.T) (*server.Server, *auth.TokenService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	policy := config.DefaultPolicy()
	policy.SiteAdmins = []int64{1}

	srv := server.New(server.Config{Port: 0, ShutdownTimeout: time.Second}, server.Deps{
		Auth:   handler.NewAuthHandler(stubAuthenticator{}, time.Hour, false, logger),
		Admin:  handler.NewAdminHandler(stubStats{}, stubTrigger{}, logger),
		Tokens: tokens,
		Policy: policy,
	}, logger)
	return srv, tokens
}

func request(t *testing.T, srv *server.Server, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

// ===== ROUTING TESTS =====

func TestRoutes_Access(t *testing.T) {
	srv, tokens := newTestServer(t)

	admin, err := tokens.Generate("1")
	require.NoError(t, err)
	learner, err := tokens.Generate("2")
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"capabilities are public", http.MethodGet, "/auth/capabilities", "", http.StatusOK},
		{"health check", http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"me requires a session", http.MethodGet, "/api/me", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/me", "not-a-jwt", http.StatusUnauthorized},
		{"me with a session", http.MethodGet, "/api/me", learner, http.StatusOK},
		{"linked logins with a session", http.MethodGet, "/api/me/linked-logins", learner, http.StatusOK},
		{"stats need a site admin", http.MethodGet, "/api/sync/stats", learner, http.StatusForbidden},
		{"stats for a site admin", http.MethodGet, "/api/sync/stats", admin, http.StatusOK},
		{"run sync", http.MethodPost, "/api/sync/run", admin, http.StatusAccepted},
		{"run notify", http.MethodPost, "/api/notify/run", admin, http.StatusAccepted},
		{"task list", http.MethodGet, "/api/tasks", admin, http.StatusOK},
		{"run sync is POST only", http.MethodGet, "/api/sync/run", admin, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := request(t, srv, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRoutes_CapabilitiesBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rr := request(t, srv, http.MethodGet, "/auth/capabilities", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"preventLocalPasswords":true`)
}

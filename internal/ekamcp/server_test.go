package ekamcp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, users []User) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.AccessToken = "host-managed-token"
	cfg.Users = users

	srv, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func TestAuthenticatorLookup(t *testing.T) {
	a := NewAuthenticator([]User{{Name: "alice", Token: "0123456789abcdef"}})

	name, ok := a.Authenticate("0123456789abcdef")
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	_, ok = a.Authenticate("wrong-token")
	assert.False(t, ok)
	assert.True(t, a.HasUsers())
}

func TestWithAuthRejectsUnknownToken(t *testing.T) {
	srv := newTestServer(t, []User{{Name: "alice", Token: "0123456789abcdef"}})

	var reached bool
	handler := srv.withAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, reached)
}

func TestWithAuthAcceptsKnownToken(t *testing.T) {
	srv := newTestServer(t, []User{{Name: "alice", Token: "0123456789abcdef"}})

	var reached bool
	handler := srv.withAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer 0123456789abcdef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, reached)
}

func TestWithAuthPassesThroughWithoutUsers(t *testing.T) {
	srv := newTestServer(t, nil)

	var reached bool
	handler := srv.withAuth(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		reached = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.True(t, reached)
}

func TestNewServerRequiresCredentialSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	// No access token and no client credentials.

	_, err := NewServer(cfg, zap.NewNop())
	require.Error(t, err)
}

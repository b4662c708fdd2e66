package ekamcp

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newHTTPTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen test server: %v", err)
	}

	server := httptest.NewUnstartedServer(handler)
	server.Listener = l
	server.Start()
	return server
}

// issuerServer is a fake credential-grant endpoint that counts grants and
// serves configurable tokens.
type issuerServer struct {
	*httptest.Server
	logins    atomic.Int64
	refreshes atomic.Int64

	accessToken   string
	refreshToken  string
	expiresIn     int64
	status        int           // non-zero forces this status on every grant
	refreshStatus int           // non-zero forces this status on refresh grants only
	delay         time.Duration // artificial latency per grant
}

func newIssuerServer(t *testing.T, accessToken string, expiresIn int64) *issuerServer {
	t.Helper()
	s := &issuerServer{
		accessToken: accessToken,
		expiresIn:   expiresIn,
	}
	s.Server = newHTTPTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.delay > 0 {
			time.Sleep(s.delay)
		}

		switch r.URL.Path {
		case loginEndpoint:
			s.logins.Add(1)
		case refreshEndpoint:
			s.refreshes.Add(1)
			if s.refreshStatus != 0 {
				w.WriteHeader(s.refreshStatus)
				_, _ = w.Write([]byte(`{"message":"refresh token expired","error":"invalid_grant"}`))
				return
			}
		default:
			http.NotFound(w, r)
			return
		}

		if s.status != 0 {
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(`{"message":"invalid client credentials","error":"invalid_client"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  s.accessToken,
			"refresh_token": s.refreshToken,
			"token_type":    "Bearer",
			"expires_in":    s.expiresIn,
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *issuerServer) grants() int64 {
	return s.logins.Load() + s.refreshes.Load()
}

func newTestAuthManager(t *testing.T, issuer *issuerServer, store TokenStore) *AuthManager {
	t.Helper()
	if store == nil {
		store = NewFileTokenStore(t.TempDir() + "/tokens.json")
	}
	m, err := NewAuthManager(AuthManagerOptions{
		AuthBaseURL:  issuer.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Store:        store,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	return m
}

// recordingCredentialSource is a CredentialSource fake that counts
// invalidations, for dispatcher tests.
type recordingCredentialSource struct {
	token       string
	invalidated atomic.Int64
}

func (r *recordingCredentialSource) AuthContext(_ context.Context) (AuthContext, error) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+r.token)
	return AuthContext{Headers: h}, nil
}

func (r *recordingCredentialSource) Invalidate() {
	r.invalidated.Add(1)
}

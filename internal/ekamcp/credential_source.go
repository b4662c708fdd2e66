package ekamcp

import (
	"context"
	"net/http"
)

// CredentialSource is the narrow interface the dispatcher consumes: give me a
// valid credential, and let me tell you when the upstream disagreed with it.
type CredentialSource interface {
	// AuthContext returns headers for the current valid credential, acquiring
	// or refreshing one if needed. Safe for concurrent use.
	AuthContext(ctx context.Context) (AuthContext, error)

	// Invalidate forces the next AuthContext call to re-acquire, regardless
	// of the current record's local validity.
	Invalidate()
}

// StaticTokenSource serves a host-managed external token. It never calls the
// issuer, never refreshes, and does not track expiry locally; Invalidate is
// a no-op.
type StaticTokenSource struct {
	accessToken string
	apiKey      string
}

func NewStaticTokenSource(accessToken, apiKey string) *StaticTokenSource {
	return &StaticTokenSource{accessToken: accessToken, apiKey: apiKey}
}

func (s *StaticTokenSource) AuthContext(_ context.Context) (AuthContext, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+s.accessToken)
	if s.apiKey != "" {
		headers.Set("X-API-Key", s.apiKey)
	}
	return AuthContext{Headers: headers}, nil
}

func (*StaticTokenSource) Invalidate() {}

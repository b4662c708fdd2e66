package ekamcp

import (
	"net/http"
	"os"
	"time"
)

const (
	defaultRefreshSkew             = 60 * time.Second
	defaultFilePerm    os.FileMode = 0o600
	maxResponseSize                = 8 << 20 // limit for API response bodies
)

// TokenRecord is an immutable snapshot of one issued credential. A refresh
// replaces the whole record; fields are never mutated in place.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// usable reports whether the record can still be served without racing the
// upstream expiry clock.
func (r *TokenRecord) usable(now time.Time, skew time.Duration) bool {
	if r == nil || r.AccessToken == "" {
		return false
	}
	return now.Before(r.ExpiresAt.Add(-skew))
}

// expired reports whether the record is past its actual expiry, ignoring skew.
func (r *TokenRecord) expired(now time.Time) bool {
	if r == nil || r.AccessToken == "" {
		return true
	}
	return !now.Before(r.ExpiresAt)
}

func (r *TokenRecord) authContext(apiKey string) AuthContext {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	headers := http.Header{}
	headers.Set("Authorization", tokenType+" "+r.AccessToken)
	if apiKey != "" {
		headers.Set("X-API-Key", apiKey)
	}
	return AuthContext{Headers: headers, ExpiresAt: r.ExpiresAt}
}

// AuthContext is a read-only projection of the current TokenRecord at the
// moment of issuance. Callers must not cache it beyond a single request.
type AuthContext struct {
	Headers   http.Header
	ExpiresAt time.Time
}

// maskToken masks a token for safe logging, showing only a short prefix.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

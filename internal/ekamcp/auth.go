package ekamcp

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AuthManagerOptions configures the client-credentials auth manager.
type AuthManagerOptions struct {
	AuthBaseURL  string
	ClientID     string
	ClientSecret string
	APIKey       string
	Store        TokenStore
	HTTPClient   *http.Client
	Logger       *zap.Logger
	RefreshSkew  time.Duration // how long before expiry a record stops being served
}

// AuthManager owns the token lifecycle. It guarantees that every caller
// observes a non-expired credential while performing at most one issuer
// round-trip per expiry event: concurrent callers landing in the same
// refresh window share a single in-flight grant via singleflight.
type AuthManager struct {
	issuer *issuerClient
	store  TokenStore
	logger *zap.Logger
	skew   time.Duration
	apiKey string

	group singleflight.Group

	mu     sync.RWMutex
	record *TokenRecord
	gen    uint64 // bumped on every install and invalidation
}

func NewAuthManager(opts AuthManagerOptions) (*AuthManager, error) {
	if opts.AuthBaseURL == "" {
		return nil, errors.New("auth base URL is required")
	}
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, errors.New("client id and client secret are required")
	}
	if opts.Store == nil {
		return nil, errors.New("token store is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.RefreshSkew <= 0 {
		opts.RefreshSkew = defaultRefreshSkew
	}

	m := &AuthManager{
		issuer: &issuerClient{
			baseURL:      opts.AuthBaseURL,
			clientID:     opts.ClientID,
			clientSecret: opts.ClientSecret,
			apiKey:       opts.APIKey,
			httpClient:   opts.HTTPClient,
		},
		store:  opts.Store,
		logger: opts.Logger,
		skew:   opts.RefreshSkew,
		apiKey: opts.APIKey,
	}

	m.loadPersisted()
	return m, nil
}

// loadPersisted installs a previously persisted record. A missing or corrupt
// file only forces a fresh acquisition on the first call; it never fails
// construction. An installed record past the skew window is never served
// directly, but its refresh token still feeds the refresh grant.
func (m *AuthManager) loadPersisted() {
	record, err := m.store.Load(context.Background())
	if err != nil {
		m.logger.Warn("failed to load persisted token, starting empty", zap.Error(err))
		return
	}
	if record == nil {
		return
	}
	m.record = record
	if record.usable(time.Now(), m.skew) {
		m.logger.Debug("persisted token loaded",
			zap.String("access_token", maskToken(record.AccessToken)),
			zap.Time("expires_at", record.ExpiresAt))
	} else {
		m.logger.Debug("persisted token past skew window, refresh required",
			zap.Time("expires_at", record.ExpiresAt))
	}
}

// AuthContext returns a context for the current valid record, triggering an
// acquisition when none exists or the current one is inside the skew window.
func (m *AuthManager) AuthContext(ctx context.Context) (AuthContext, error) {
	m.mu.RLock()
	record := m.record
	m.mu.RUnlock()

	if record.usable(time.Now(), m.skew) {
		return record.authContext(m.apiKey), nil
	}

	// The shared grant runs on a detached context: one waiter's cancellation
	// must not abort the refresh for everyone else.
	refreshCtx := context.WithoutCancel(ctx)
	result, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(refreshCtx)
	})
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok {
			return AuthContext{}, apiErr
		}
		return AuthContext{}, newAuthError(err.Error(), err)
	}
	return result.(*TokenRecord).authContext(m.apiKey), nil
}

// Invalidate drops the current record so the next AuthContext call performs
// a fresh acquisition. Used when the upstream API rejects a locally valid
// token (clock skew, out-of-band revocation).
func (m *AuthManager) Invalidate() {
	m.mu.Lock()
	m.record = nil
	m.gen++
	m.mu.Unlock()
	m.logger.Debug("cached token invalidated")
}

// refresh is the single-flight body: exactly one of these runs per refresh
// cycle, and every blocked caller observes its outcome.
func (m *AuthManager) refresh(ctx context.Context) (*TokenRecord, error) {
	m.mu.RLock()
	previous := m.record
	startGen := m.gen
	m.mu.RUnlock()

	now := time.Now()
	if previous.usable(now, m.skew) {
		// Another cycle completed while this caller was queued.
		return previous, nil
	}

	record, err := m.acquire(ctx, previous)
	if err != nil {
		// Availability over freshness: a failed refresh still serves the
		// previous record while it is strictly unexpired.
		if previous != nil && !previous.expired(time.Now()) {
			m.logger.Warn("token refresh failed, serving previous unexpired token",
				zap.Time("expires_at", previous.ExpiresAt),
				zap.Error(err))
			return previous, nil
		}
		if terminalAuthFailure(err) {
			m.discard()
		}
		m.logger.Error("token acquisition failed", zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	if m.gen != startGen {
		// An Invalidate or a newer install raced this flight. The acquired
		// token predates that event, so it must not enter the cache; the next
		// caller re-acquires. Waiters on this flight still get the newer of
		// the two records.
		current := m.record
		m.mu.Unlock()
		if current != nil && current.ExpiresAt.After(record.ExpiresAt) {
			return current, nil
		}
		return record, nil
	}
	m.record = record
	m.gen++
	m.mu.Unlock()

	if err := m.store.Save(ctx, record); err != nil {
		m.logger.Warn("failed to persist token", zap.Error(err))
	}

	m.logger.Info("token acquired",
		zap.String("access_token", maskToken(record.AccessToken)),
		zap.Time("expires_at", record.ExpiresAt))
	return record, nil
}

// acquire tries the refresh grant when a refresh token is on hand, falling
// back to a full client-credentials login when the refresh is rejected.
func (m *AuthManager) acquire(ctx context.Context, previous *TokenRecord) (*TokenRecord, error) {
	if previous != nil && previous.RefreshToken != "" {
		record, err := m.issuer.Refresh(ctx, previous.RefreshToken)
		if err == nil {
			return record, nil
		}
		m.logger.Warn("token refresh rejected, falling back to login", zap.Error(err))
	}
	return m.issuer.Login(ctx)
}

// discard drops the current record and clears persistence after a terminal
// auth failure, so a restart does not retry credentials the issuer already
// declared invalid.
func (m *AuthManager) discard() {
	m.mu.Lock()
	m.record = nil
	m.gen++
	m.mu.Unlock()
	if err := m.store.Clear(context.Background()); err != nil {
		m.logger.Warn("failed to clear persisted token", zap.Error(err))
	}
}

package ekamcp

import (
	"net/http"

	"go.uber.org/zap"
)

// NewCredentialSource assembles the credential source described by cfg: a
// pass-through static source when the host supplies a token, otherwise the
// client-credentials auth manager backed by a file token store.
func NewCredentialSource(cfg Config, httpClient *http.Client, logger *zap.Logger) (CredentialSource, error) {
	if cfg.AccessToken != "" {
		logger.Info("using host-managed external token",
			zap.String("access_token", maskToken(cfg.AccessToken)))
		return NewStaticTokenSource(cfg.AccessToken, cfg.APIKey), nil
	}

	store := NewFileTokenStore(cfg.TokenPath())

	return NewAuthManager(AuthManagerOptions{
		AuthBaseURL:  cfg.AuthBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		APIKey:       cfg.APIKey,
		Store:        store,
		HTTPClient:   httpClient,
		Logger:       logger,
		RefreshSkew:  cfg.RefreshSkew.Duration,
	})
}

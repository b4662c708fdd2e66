package ekamcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	loginEndpoint   = "/connect-auth/v1/account/login"
	refreshEndpoint = "/connect-auth/v1/account/refresh"
)

// issuerClient talks to the credential-grant endpoints. The AuthManager is
// its sole caller.
type issuerClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	apiKey       string
	httpClient   *http.Client
}

type issuerResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login performs the client-credentials grant.
func (c *issuerClient) Login(ctx context.Context) (*TokenRecord, error) {
	payload := map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
	}
	if c.apiKey != "" {
		payload["api_key"] = c.apiKey
	}
	return c.grant(ctx, loginEndpoint, payload)
}

// Refresh exchanges a refresh token for a new record.
func (c *issuerClient) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	if refreshToken == "" {
		return nil, newAuthError("refresh token is empty", nil)
	}
	return c.grant(ctx, refreshEndpoint, map[string]string{
		"refresh_token": refreshToken,
	})
}

func (c *issuerClient) grant(ctx context.Context, endpoint string, payload map[string]string) (*TokenRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newAuthError(fmt.Sprintf("marshal grant body: %v", err), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, newAuthError(fmt.Sprintf("build grant request: %v", err), err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newAuthError(fmt.Sprintf("issuer unreachable: %v", err), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := gjson.GetBytes(respBody, "message").String()
		if message == "" {
			message = fmt.Sprintf("credential grant failed: %s", strings.TrimSpace(resp.Status))
		}
		errorCode := gjson.GetBytes(respBody, "error").String()
		if errorCode == "" {
			errorCode = gjson.GetBytes(respBody, "code").String()
		}
		return nil, &APIError{
			Kind:       ErrAuth,
			Message:    message,
			StatusCode: resp.StatusCode,
			ErrorCode:  errorCode,
			RawBody:    string(respBody),
		}
	}

	var grant issuerResponse
	if err := json.Unmarshal(respBody, &grant); err != nil {
		return nil, &APIError{
			Kind:    ErrAuth,
			Message: fmt.Sprintf("decode grant response: %v", err),
			RawBody: string(respBody),
			Cause:   err,
		}
	}
	if grant.AccessToken == "" {
		return nil, &APIError{Kind: ErrAuth, Message: "grant response missing access_token", RawBody: string(respBody)}
	}
	if grant.ExpiresIn <= 0 {
		return nil, &APIError{Kind: ErrAuth, Message: "grant response has non-positive expires_in", RawBody: string(respBody)}
	}

	now := time.Now()
	return &TokenRecord{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		TokenType:    grant.TokenType,
		ExpiresAt:    now.Add(time.Duration(grant.ExpiresIn) * time.Second),
		ObtainedAt:   now,
	}, nil
}

// terminalAuthFailure reports whether the issuer said the credentials
// themselves are invalid, as opposed to merely expired or unreachable.
func terminalAuthFailure(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

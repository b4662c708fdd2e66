package ekamcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries   = 2
	defaultRetryBackoff = 200 * time.Millisecond
)

// ClientOptions configures the request dispatcher.
type ClientOptions struct {
	BaseURL       string
	ClientID      string // sent as the client-id header on every call
	Credentials   CredentialSource
	HTTPClient    *http.Client
	Logger        *zap.Logger
	CustomHeaders map[string]string
	MaxRetries    int           // retries after the first attempt; 0 uses the default, -1 disables retries
	RetryBackoff  time.Duration // initial backoff interval; 0 uses the default
}

// Client executes authenticated HTTP operations against the target API and
// maps every outcome into either a decoded payload or an *APIError.
type Client struct {
	baseURL      string
	clientID     string
	creds        CredentialSource
	httpClient   *http.Client
	logger       *zap.Logger
	custom       map[string]string
	maxRetries   int
	retryBackoff time.Duration

	mu       sync.Mutex
	lastCurl string
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if opts.Credentials == nil {
		return nil, fmt.Errorf("credential source is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	} else if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}

	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		creds:        opts.Credentials,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		custom:       opts.CustomHeaders,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
	}, nil
}

// LastCurl returns the curl reproduction of the most recent dispatch, with
// the credential redacted. Purely a debugging aid.
func (c *Client) LastCurl() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCurl
}

// Dispatch performs one authenticated call. Transient network failures and
// 5xx responses are retried up to MaxRetries times with exponential backoff
// (defaults: 2 retries at roughly 200ms then 600ms); other non-2xx responses
// are never retried. A 401 or 403 invalidates the cached credential before the
// error surfaces, so the next call re-acquires.
func (c *Client) Dispatch(ctx context.Context, method, endpoint string, params url.Values, body any) (any, error) {
	authCtx, err := c.creds.AuthContext(ctx)
	if err != nil {
		// Auth errors propagate unchanged; the dispatcher only promises not
		// to swallow them.
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, newValidationError(fmt.Sprintf("encode request body: %v", err), "", err)
		}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	headers := http.Header{}
	for k, values := range authCtx.Headers {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	headers.Set("Content-Type", "application/json")
	if c.clientID != "" {
		headers.Set("client-id", c.clientID)
	}
	for k, v := range c.custom {
		headers.Set(k, v)
	}

	curl := buildCurlCommand(method, reqURL, headers, payload)
	c.mu.Lock()
	c.lastCurl = curl
	c.mu.Unlock()

	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.String("curl", curl),
	)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.retryBackoff
	expBackoff.Multiplier = 3
	expBackoff.RandomizationFactor = 0

	result, err := backoff.Retry(ctx, func() (any, error) {
		out, err := c.roundTrip(ctx, method, reqURL, headers, payload)
		if err != nil {
			if retryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return out, nil
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.Debug("retrying request",
				zap.String("method", method),
				zap.String("endpoint", endpoint),
				zap.Duration("after", delay),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		c.logger.Error("api request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return nil, err
	}
	return result, nil
}

func (c *Client) roundTrip(ctx context.Context, method, reqURL string, headers http.Header, payload []byte) (any, error) {
	var bodyReader io.Reader
	if len(payload) > 0 {
		bodyReader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, newValidationError(fmt.Sprintf("build request: %v", err), "", err)
	}
	req.Header = headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newNetworkError(fmt.Sprintf("request failed: %v", err), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newNetworkError(fmt.Sprintf("read response: %v", err), err)
	}

	c.logger.Debug("api response",
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
	)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// The upstream disagreed with a locally valid token; drop it so the
		// next call self-heals.
		c.creds.Invalidate()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp.StatusCode, respBody)
	}

	if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return map[string]any{"success": true, "status_code": resp.StatusCode}, nil
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, newValidationError(
			fmt.Sprintf("decode response body: %v", err),
			string(respBody),
			err,
		)
	}
	return decoded, nil
}

// upstreamError maps any non-2xx response to an *APIError, extracting the
// structured message and code when the body carries them.
func upstreamError(status int, body []byte) *APIError {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = fmt.Sprintf("HTTP %d", status)
	}
	errorCode := gjson.GetBytes(body, "error").String()
	if errorCode == "" {
		errorCode = gjson.GetBytes(body, "code").String()
	}
	return &APIError{
		Kind:       ErrUpstream,
		Message:    message,
		StatusCode: status,
		ErrorCode:  errorCode,
		RawBody:    string(body),
	}
}

// retryable reports whether the dispatcher may retry: transport failures and
// 5xx responses only.
func retryable(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	if apiErr.Kind == ErrNetwork {
		return true
	}
	return apiErr.Kind == ErrUpstream && apiErr.StatusCode >= 500
}

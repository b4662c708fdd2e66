package ekamcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Version is reported to MCP clients during initialization.
const Version = "0.4.0"

// Server hosts the MCP tool surface over stdio or streamable HTTP.
type Server struct {
	cfg    Config
	logger *zap.Logger
	mcp    *server.MCPServer
	auth   *Authenticator
	creds  CredentialSource
	api    *Client
	emr    *EMRClient
}

func NewServer(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		var err error
		logger, err = newZapLogger(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			ForceAttemptHTTP2:     true,
			ResponseHeaderTimeout: cfg.RequestTimeout.Duration,
		},
	}

	creds, err := NewCredentialSource(cfg, httpClient, logger.Named("auth"))
	if err != nil {
		return nil, fmt.Errorf("init credential source: %w", err)
	}

	api, err := NewClient(ClientOptions{
		BaseURL:      cfg.APIBaseURL,
		ClientID:     cfg.ClientID,
		Credentials:  creds,
		HTTPClient:   httpClient,
		Logger:       logger.Named("dispatch"),
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("init api client: %w", err)
	}

	emr := NewEMRClient(api)

	mcpServer := server.NewMCPServer(
		"eka-mcp",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	registerTools(mcpServer, emr)

	return &Server{
		cfg:    cfg,
		logger: logger,
		mcp:    mcpServer,
		auth:   NewAuthenticator(cfg.Users),
		creds:  creds,
		api:    api,
		emr:    emr,
	}, nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving mcp over stdio")
	return server.ServeStdio(s.mcp)
}

// Handler returns the streamable HTTP handler wrapped with request logging
// and, when users are configured, inbound bearer authentication.
func (s *Server) Handler() http.Handler {
	streamable := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath("/mcp"),
	)
	return s.withLogging(s.withAuth(streamable))
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (lrw *loggingResponseWriter) WriteHeader(status int) {
	lrw.status = status
	lrw.ResponseWriter.WriteHeader(status)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytes += int64(n)
	return n, err
}

func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w}

		next.ServeHTTP(lrw, r)

		status := lrw.status
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Info("request",
			zap.String("remote", r.RemoteAddr),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int64("bytes", lrw.bytes),
			zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
		)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.HasUsers() {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		user, ok := s.auth.Authenticate(token)
		if !ok {
			s.logger.Warn("unauthenticated request",
				zap.String("remote", r.RemoteAddr),
				zap.String("path", r.URL.Path))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s.logger.Debug("request authenticated", zap.String("user", user))
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP runs the streamable HTTP transport until ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("serving mcp over http",
			zap.String("listen", s.cfg.Listen),
			zap.String("endpoint", "/mcp"))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown error", zap.Error(err))
	}
	return nil
}

// Package callback serves the OAuth2 redirect URI locally so the CLI can
// capture the authorization code LINE Notify sends back after consent.
package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/temirov/linenotify/pkg/oauthstate"
)

const defaultTimeout = 5 * time.Second

var ginModeOnce sync.Once

var (
	// ErrAuthorizationDenied is delivered when a redirect with the issued state carries an error parameter.
	ErrAuthorizationDenied = errors.New("callback: authorization denied")
	// ErrMissingCode is delivered when a redirect with the issued state has neither code nor error.
	ErrMissingCode = errors.New("callback: missing code")
)

// Config captures the inputs of the callback server.
type Config struct {
	RedirectURI          string
	ExpectedState        string
	Logger               *slog.Logger
	ReadHeaderTimeout    time.Duration
	ShutdownGraceTimeout time.Duration
}

type outcome struct {
	code string
	err  error
}

// Server receives exactly one redirect and hands its outcome to Wait.
type Server struct {
	config       Config
	httpServer   *http.Server
	logger       *slog.Logger
	callbackPath string

	outcomes    chan outcome
	deliverOnce sync.Once
}

// NewServer listens on the host and port of cfg.RedirectURI and routes its
// path for both query (GET) and form_post (POST) responses.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		return nil, errors.New("callback: logger is required")
	}
	if strings.TrimSpace(cfg.ExpectedState) == "" {
		return nil, errors.New("callback: expected state is required")
	}
	redirectURL, err := url.Parse(strings.TrimSpace(cfg.RedirectURI))
	if err != nil {
		return nil, fmt.Errorf("callback: invalid redirect uri: %w", err)
	}
	if redirectURL.Host == "" || redirectURL.Port() == "" {
		return nil, fmt.Errorf("callback: redirect uri %q must include host and port", cfg.RedirectURI)
	}
	callbackPath := redirectURL.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	server := &Server{
		config:       cfg,
		logger:       cfg.Logger,
		callbackPath: callbackPath,
		outcomes:     make(chan outcome, 1),
	}

	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(cfg.Logger))
	engine.GET(callbackPath, server.handleRedirect)
	engine.POST(callbackPath, server.handleRedirect)

	server.httpServer = &http.Server{
		Addr:              redirectURL.Host,
		Handler:           engine,
		ReadHeaderTimeout: pickDuration(cfg.ReadHeaderTimeout, defaultTimeout),
	}
	return server, nil
}

// Addr is the address the server listens on.
func (server *Server) Addr() string {
	return server.httpServer.Addr
}

// Start serves until Shutdown is called.
func (server *Server) Start() error {
	err := server.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Wait blocks until a redirect arrives or ctx ends.
func (server *Server) Wait(ctx context.Context) (string, error) {
	select {
	case received := <-server.outcomes:
		return received.code, received.err
	case <-ctx.Done():
		return "", fmt.Errorf("callback: waiting for redirect: %w", ctx.Err())
	}
}

// Shutdown gracefully terminates the HTTP server.
func (server *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pickDuration(server.config.ShutdownGraceTimeout, defaultTimeout))
	defer cancel()
	return server.httpServer.Shutdown(ctx)
}

// handleRedirect answers requests without the issued state with 400 and keeps
// waiting; only a redirect carrying that state settles Wait.
func (server *Server) handleRedirect(contextGin *gin.Context) {
	if !oauthstate.Verify(server.config.ExpectedState, formOrQuery(contextGin, "state")) {
		server.logger.Warn("callback_state_mismatch", "remote", contextGin.ClientIP())
		contextGin.String(http.StatusBadRequest, "State mismatch.\n")
		return
	}
	if errorCode := formOrQuery(contextGin, "error"); errorCode != "" {
		description := formOrQuery(contextGin, "error_description")
		server.deliver(outcome{err: fmt.Errorf("%w: %s %s", ErrAuthorizationDenied, errorCode, description)})
		contextGin.String(http.StatusBadRequest, "Authorization was denied: %s\n", errorCode)
		return
	}
	code := formOrQuery(contextGin, "code")
	if code == "" {
		server.deliver(outcome{err: ErrMissingCode})
		contextGin.String(http.StatusBadRequest, "Missing authorization code.\n")
		return
	}
	server.deliver(outcome{code: code})
	contextGin.String(http.StatusOK, "Authorization complete. You may close this window.\n")
}

// deliver keeps the first outcome; later redirects are answered but ignored.
func (server *Server) deliver(received outcome) {
	server.deliverOnce.Do(func() {
		server.outcomes <- received
	})
}

func formOrQuery(contextGin *gin.Context, key string) string {
	if value, found := contextGin.GetPostForm(key); found {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(contextGin.Query(key))
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		started := time.Now()
		contextGin.Next()
		logger.Debug(
			"http_request_completed",
			"method", contextGin.Request.Method,
			"path", contextGin.Request.URL.Path,
			"status", contextGin.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

func pickDuration(candidate time.Duration, fallback time.Duration) time.Duration {
	if candidate <= 0 {
		return fallback
	}
	return candidate
}

package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/temirov/linenotify/pkg/logging"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(Config{
		RedirectURI:   "http://127.0.0.1:18080/callback",
		ExpectedState: "expected-state",
		Logger:        logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	return server
}

func waitShort(t *testing.T, server *Server) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.Wait(ctx)
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()
	logger := logging.Discard()

	testCases := []struct {
		name   string
		config Config
	}{
		{name: "missing logger", config: Config{RedirectURI: "http://127.0.0.1:1/cb", ExpectedState: "s"}},
		{name: "missing state", config: Config{RedirectURI: "http://127.0.0.1:1/cb", Logger: logger}},
		{name: "missing port", config: Config{RedirectURI: "http://localhost/cb", ExpectedState: "s", Logger: logger}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewServer(testCase.config); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRedirectQueryDeliversCode(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)
	if server.Addr() != "127.0.0.1:18080" {
		t.Fatalf("unexpected addr %s", server.Addr())
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/callback?code=auth-code&state=expected-state", nil)
	server.httpServer.Handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	code, err := waitShort(t, server)
	if err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if code != "auth-code" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestRedirectFormPostDeliversCode(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	form := url.Values{"code": {"posted-code"}, "state": {"expected-state"}}
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader(form.Encode()))
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	server.httpServer.Handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	code, err := waitShort(t, server)
	if err != nil || code != "posted-code" {
		t.Fatalf("unexpected outcome %q %v", code, err)
	}
}

func TestRedirectFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		target      string
		expectedErr error
	}{
		{name: "denied", target: "/callback?error=access_denied&error_description=user+cancel&state=expected-state", expectedErr: ErrAuthorizationDenied},
		{name: "missing code", target: "/callback?state=expected-state", expectedErr: ErrMissingCode},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t)
			recorder := httptest.NewRecorder()
			server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, testCase.target, nil))
			if recorder.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", recorder.Code)
			}
			_, err := waitShort(t, server)
			if !errors.Is(err, testCase.expectedErr) {
				t.Fatalf("expected %v, got %v", testCase.expectedErr, err)
			}
		})
	}
}

func TestRedirectWithoutIssuedStateKeepsWaiting(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	for _, target := range []string{
		"/callback?error=access_denied&state=forged",
		"/callback?error=access_denied",
		"/callback?code=stolen&state=forged",
		"/callback",
	} {
		recorder := httptest.NewRecorder()
		server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, recorder.Code)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := server.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no outcome yet, got %v", err)
	}

	recorder := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/callback?code=good&state=expected-state", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	code, err := waitShort(t, server)
	if err != nil || code != "good" {
		t.Fatalf("unexpected outcome %q %v", code, err)
	}
}

func TestOnlyFirstRedirectCounts(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)

	for _, target := range []string{
		"/callback?code=first&state=expected-state",
		"/callback?code=second&state=expected-state",
	} {
		recorder := httptest.NewRecorder()
		server.httpServer.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, target, nil))
	}
	code, err := waitShort(t, server)
	if err != nil || code != "first" {
		t.Fatalf("unexpected outcome %q %v", code, err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	t.Parallel()
	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := server.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

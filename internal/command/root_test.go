package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/temirov/linenotify/internal/journal"
	"github.com/temirov/linenotify/pkg/linenotify"
	"github.com/temirov/linenotify/pkg/oauthstate"
)

type notifyCall struct {
	token     string
	message   string
	options   *linenotify.NotifyOptions
	imageData string
}

type stubNotifier struct {
	notifyCalls   []notifyCall
	statusTokens  []string
	revokeTokens  []string
	exchangeCodes []string
	result        linenotify.NotifyResult
	statusResult  linenotify.StatusResult
	tokenResult   linenotify.TokenResult
	err           error
}

func (notifier *stubNotifier) ExchangeToken(_ context.Context, code string, _ string) (linenotify.TokenResult, error) {
	notifier.exchangeCodes = append(notifier.exchangeCodes, code)
	if notifier.err != nil {
		return linenotify.TokenResult{}, notifier.err
	}
	return notifier.tokenResult, nil
}

func (notifier *stubNotifier) SendNotification(_ context.Context, token string, message string, options *linenotify.NotifyOptions) (linenotify.NotifyResult, error) {
	call := notifyCall{token: token, message: message, options: options}
	if options != nil && options.ImageFile != nil {
		data, _ := io.ReadAll(options.ImageFile.Content)
		call.imageData = string(data)
	}
	notifier.notifyCalls = append(notifier.notifyCalls, call)
	if notifier.err != nil {
		return linenotify.NotifyResult{}, notifier.err
	}
	return notifier.result, nil
}

func (notifier *stubNotifier) GetStatus(_ context.Context, token string) (linenotify.StatusResult, error) {
	notifier.statusTokens = append(notifier.statusTokens, token)
	if notifier.err != nil {
		return linenotify.StatusResult{}, notifier.err
	}
	return notifier.statusResult, nil
}

func (notifier *stubNotifier) Revoke(_ context.Context, token string) (linenotify.NotifyResult, error) {
	notifier.revokeTokens = append(notifier.revokeTokens, token)
	if notifier.err != nil {
		return linenotify.NotifyResult{}, notifier.err
	}
	return notifier.result, nil
}

type stubJournal struct {
	deliveries []journal.Delivery
	recentErr  error
}

func (journalStub *stubJournal) Record(_ context.Context, delivery journal.Delivery) (journal.Delivery, error) {
	journalStub.deliveries = append(journalStub.deliveries, delivery)
	return delivery, nil
}

func (journalStub *stubJournal) Recent(_ context.Context, limit int) ([]journal.Delivery, error) {
	if journalStub.recentErr != nil {
		return nil, journalStub.recentErr
	}
	if limit < len(journalStub.deliveries) {
		return journalStub.deliveries[:limit], nil
	}
	return journalStub.deliveries, nil
}

type stubStateGenerator struct {
	value string
}

func (generator stubStateGenerator) Generate(context.Context, oauthstate.ByteLength) (string, error) {
	return generator.value, nil
}

type stubAuthorizer struct {
	redirectURI string
}

func (authorizer stubAuthorizer) RedirectURI() string {
	return authorizer.redirectURI
}

func (stubAuthorizer) AuthorizationURL(state string, formPost bool) string {
	if formPost {
		return "https://auth.example/authorize?state=" + state + "&response_mode=form_post"
	}
	return "https://auth.example/authorize?state=" + state
}

type stubReceiver struct {
	code      string
	err       error
	stopped   chan struct{}
	closeOnce sync.Once
}

func (receiver *stubReceiver) Start() error {
	<-receiver.stopped
	return nil
}

func (receiver *stubReceiver) Wait(context.Context) (string, error) {
	return receiver.code, receiver.err
}

func (receiver *stubReceiver) Shutdown(context.Context) error {
	receiver.closeOnce.Do(func() { close(receiver.stopped) })
	return nil
}

func newTestDependencies(notifier *stubNotifier, journalStub *stubJournal, output *bytes.Buffer) Dependencies {
	return Dependencies{
		Notifier:         notifier,
		Authorizer:       stubAuthorizer{redirectURI: "http://127.0.0.1:18080/callback"},
		StateGenerator:   stubStateGenerator{value: "generated-state"},
		Journal:          journalStub,
		OperationTimeout: 2 * time.Second,
		Output:           output,
	}
}

func TestSendCommandBuildsOptions(t *testing.T) {
	t.Parallel()

	imagePath := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(imagePath, []byte("PNGDATA"), 0o600); err != nil {
		t.Fatalf("write image: %v", err)
	}

	testCases := []struct {
		name          string
		args          []string
		expectedToken string
		expectedOpts  linenotify.NotifyOptions
		expectedImage string
		expectedErr   string
	}{
		{
			name: "message with cached token",
			args: []string{"send", "--message", "hello"},
		},
		{
			name:          "stickers and explicit token",
			args:          []string{"send", "--message", "hello", "--token", "tok", "--sticker-package-id", "1", "--sticker-id", "2", "--silent"},
			expectedToken: "tok",
			expectedOpts:  linenotify.NotifyOptions{StickerPackageID: 1, StickerID: 2, NotificationDisabled: true},
		},
		{
			name:          "image urls and file",
			args:          []string{"send", "--message", "hello", "--image-thumbnail", "https://i/t.jpg", "--image-fullsize", "https://i/f.jpg", "--image-file", imagePath},
			expectedOpts:  linenotify.NotifyOptions{ImageThumbnail: "https://i/t.jpg", ImageFullsize: "https://i/f.jpg"},
			expectedImage: "PNGDATA",
		},
		{
			name:        "missing message fails",
			args:        []string{"send"},
			expectedErr: "required flag(s) \"message\" not set",
		},
		{
			name:        "missing image file fails",
			args:        []string{"send", "--message", "hello", "--image-file", filepath.Join(t.TempDir(), "absent.png")},
			expectedErr: "open image file",
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			notifier := &stubNotifier{result: linenotify.NotifyResult{Status: 200, Message: "ok"}}
			journalStub := &stubJournal{}
			cmd := NewRootCommand(newTestDependencies(notifier, journalStub, &bytes.Buffer{}))
			cmd.SetArgs(testCase.args)

			err := cmd.Execute()
			if testCase.expectedErr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.expectedErr) {
					t.Fatalf("expected error %q, got %v", testCase.expectedErr, err)
				}
				if len(notifier.notifyCalls) != 0 {
					t.Fatalf("expected no request")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if len(notifier.notifyCalls) != 1 {
				t.Fatalf("expected 1 request, got %d", len(notifier.notifyCalls))
			}
			call := notifier.notifyCalls[0]
			if call.token != testCase.expectedToken || call.message != "hello" {
				t.Fatalf("unexpected call %+v", call)
			}
			options := *call.options
			options.ImageFile = nil
			if options != testCase.expectedOpts {
				t.Fatalf("unexpected options %+v", options)
			}
			if call.imageData != testCase.expectedImage {
				t.Fatalf("unexpected image data %q", call.imageData)
			}
			if len(journalStub.deliveries) != 1 || journalStub.deliveries[0].Operation != journal.OperationNotify {
				t.Fatalf("expected journal entry, got %+v", journalStub.deliveries)
			}
		})
	}
}

func TestSendCommandInBandRejection(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{result: linenotify.NotifyResult{Status: 401, Message: "Invalid access token"}}
	journalStub := &stubJournal{}
	output := &bytes.Buffer{}
	cmd := NewRootCommand(newTestDependencies(notifier, journalStub, output))
	cmd.SetArgs([]string{"send", "--message", "hello"})

	err := cmd.Execute()
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(output.String(), "notify: status 401: Invalid access token") {
		t.Fatalf("unexpected output %q", output.String())
	}
	if journalStub.deliveries[0].Status != 401 {
		t.Fatalf("unexpected journal entry %+v", journalStub.deliveries[0])
	}
}

func TestTransportErrorIsJournaled(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{err: linenotify.ErrTransport}
	journalStub := &stubJournal{}
	cmd := NewRootCommand(newTestDependencies(notifier, journalStub, &bytes.Buffer{}))
	cmd.SetArgs([]string{"revoke", "--token", "tok"})

	err := cmd.Execute()
	if !errors.Is(err, linenotify.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if len(journalStub.deliveries) != 1 || journalStub.deliveries[0].TransportError == "" {
		t.Fatalf("expected transport error in journal, got %+v", journalStub.deliveries)
	}
	if notifier.revokeTokens[0] != "tok" {
		t.Fatalf("unexpected token %q", notifier.revokeTokens[0])
	}
}

func TestStatusCommandOutput(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{statusResult: linenotify.StatusResult{
		NotifyResult: linenotify.NotifyResult{
			Status:    200,
			Message:   "ok",
			RateLimit: linenotify.RateLimit{Limit: 1000, Remaining: 999, ImageLimit: 50, ImageRemaining: 50, Reset: time.Unix(0, 0).UTC()},
		},
		TargetType: linenotify.TargetGroup,
		Target:     "Team",
	}}
	output := &bytes.Buffer{}
	cmd := NewRootCommand(newTestDependencies(notifier, &stubJournal{}, output))
	cmd.SetArgs([]string{"status"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, expected := range []string{"status: status 200: ok", "rate limit: 999/1000 remaining", "target: GROUP Team"} {
		if !strings.Contains(output.String(), expected) {
			t.Fatalf("expected %q in output %q", expected, output.String())
		}
	}
	if notifier.statusTokens[0] != "" {
		t.Fatalf("expected empty explicit token, got %q", notifier.statusTokens[0])
	}
}

func TestRootAcceptsConfigFlag(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{statusResult: linenotify.StatusResult{NotifyResult: linenotify.NotifyResult{Status: 200, Message: "ok"}}}
	output := &bytes.Buffer{}
	cmd := NewRootCommand(newTestDependencies(notifier, &stubJournal{}, output))
	cmd.SetArgs([]string{"--config", "/etc/linenotify.yaml", "status"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(notifier.statusTokens) != 1 {
		t.Fatalf("expected status call, got %d", len(notifier.statusTokens))
	}
}

func TestTokenCommand(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		tokenResult linenotify.TokenResult
		expectedErr error
		expectedOut string
	}{
		{name: "issued", tokenResult: linenotify.TokenResult{AccessToken: "abc123"}, expectedOut: "access token: abc123"},
		{name: "rejected", tokenResult: linenotify.TokenResult{Status: 400, Message: "invalid code"}, expectedErr: ErrRejected},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			notifier := &stubNotifier{tokenResult: testCase.tokenResult}
			journalStub := &stubJournal{}
			output := &bytes.Buffer{}
			cmd := NewRootCommand(newTestDependencies(notifier, journalStub, output))
			cmd.SetArgs([]string{"token", "--code", "the-code"})

			err := cmd.Execute()
			if testCase.expectedErr != nil {
				if !errors.Is(err, testCase.expectedErr) {
					t.Fatalf("expected %v, got %v", testCase.expectedErr, err)
				}
			} else if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if notifier.exchangeCodes[0] != "the-code" {
				t.Fatalf("unexpected code %q", notifier.exchangeCodes[0])
			}
			if !strings.Contains(output.String(), testCase.expectedOut) {
				t.Fatalf("unexpected output %q", output.String())
			}
			if strings.Contains(journalStub.deliveries[0].ResponseMessage, "abc123") {
				t.Fatalf("token leaked into journal")
			}
		})
	}
}

func TestAuthorizeURLCommand(t *testing.T) {
	t.Parallel()
	output := &bytes.Buffer{}
	cmd := NewRootCommand(newTestDependencies(&stubNotifier{}, &stubJournal{}, output))
	cmd.SetArgs([]string{"authorize-url", "--form-post"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !strings.Contains(output.String(), "state=generated-state&response_mode=form_post") {
		t.Fatalf("unexpected output %q", output.String())
	}
	if !strings.Contains(output.String(), "state: generated-state") {
		t.Fatalf("expected state line in %q", output.String())
	}
}

func TestAuthorizeCommandExchangesReceivedCode(t *testing.T) {
	t.Parallel()
	notifier := &stubNotifier{tokenResult: linenotify.TokenResult{AccessToken: "fresh"}}
	output := &bytes.Buffer{}
	dependencies := newTestDependencies(notifier, &stubJournal{}, output)

	var receivedState, receivedRedirectURI string
	receiver := &stubReceiver{code: "redirect-code", stopped: make(chan struct{})}
	dependencies.Callbacks = func(redirectURI string, expectedState string) (CallbackReceiver, error) {
		receivedState = expectedState
		receivedRedirectURI = redirectURI
		return receiver, nil
	}
	cmd := NewRootCommand(dependencies)
	cmd.SetArgs([]string{"authorize", "--wait", "2s"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if receivedState != "generated-state" {
		t.Fatalf("unexpected state %q", receivedState)
	}
	if receivedRedirectURI != "http://127.0.0.1:18080/callback" {
		t.Fatalf("unexpected redirect uri %q", receivedRedirectURI)
	}
	if len(notifier.exchangeCodes) != 1 || notifier.exchangeCodes[0] != "redirect-code" {
		t.Fatalf("unexpected exchanges %v", notifier.exchangeCodes)
	}
	if !strings.Contains(output.String(), "access token: fresh") {
		t.Fatalf("unexpected output %q", output.String())
	}
	select {
	case <-receiver.stopped:
	default:
		t.Fatalf("expected callback server to be shut down")
	}
}

func TestAuthorizeCommandRequiresRedirectURI(t *testing.T) {
	t.Parallel()
	dependencies := newTestDependencies(&stubNotifier{}, &stubJournal{}, &bytes.Buffer{})
	dependencies.Authorizer = stubAuthorizer{}
	dependencies.Callbacks = func(string, string) (CallbackReceiver, error) {
		t.Fatalf("callback server must not start without a redirect uri")
		return nil, nil
	}
	cmd := NewRootCommand(dependencies)
	cmd.SetArgs([]string{"authorize"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "redirect URI is required") {
		t.Fatalf("expected redirect uri error, got %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()

	journalStub := &stubJournal{deliveries: []journal.Delivery{
		{Operation: journal.OperationNotify, Status: 200, ResponseMessage: "ok", Message: "hello", CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{Operation: journal.OperationRevoke, TransportError: "connection refused", CreatedAt: time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC)},
	}}
	output := &bytes.Buffer{}
	cmd := NewRootCommand(newTestDependencies(&stubNotifier{}, journalStub, output))
	cmd.SetArgs([]string{"history", "--limit", "5"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	expected := "2026-01-02T03:04:05Z\tnotify\t200 ok\thello\n2026-01-02T03:05:05Z\trevoke\terror connection refused\t\n"
	if output.String() != expected {
		t.Fatalf("unexpected output %q", output.String())
	}

	disabled := NewRootCommand(newTestDependencies(&stubNotifier{}, &stubJournal{recentErr: journal.ErrDisabled}, &bytes.Buffer{}))
	disabled.SetArgs([]string{"history"})
	if err := disabled.Execute(); !errors.Is(err, journal.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestGenerateStateCommand(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		args        []string
		expectedErr string
	}{
		{name: "default length", args: []string{"generate-state"}},
		{name: "custom length", args: []string{"generate-state", "--bytes", "24"}},
		{name: "too short", args: []string{"generate-state", "--bytes", "4"}, expectedErr: "invalid state length"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			output := &bytes.Buffer{}
			cmd := NewRootCommand(newTestDependencies(&stubNotifier{}, &stubJournal{}, output))
			cmd.SetArgs(testCase.args)
			err := cmd.Execute()
			if testCase.expectedErr != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.expectedErr) {
					t.Fatalf("expected error %q, got %v", testCase.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected nil error, got %v", err)
			}
			if strings.TrimSpace(output.String()) != "generated-state" {
				t.Fatalf("unexpected output %q", output.String())
			}
		})
	}
}

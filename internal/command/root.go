package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/temirov/linenotify/internal/journal"
	"github.com/temirov/linenotify/pkg/linenotify"
	"github.com/temirov/linenotify/pkg/logging"
	"github.com/temirov/linenotify/pkg/oauthstate"
)

// ErrRejected is returned when the service answers with a non-200 in-band status.
var ErrRejected = errors.New("request rejected by LINE Notify")

const (
	defaultOperationTimeout = 30 * time.Second
	flagConfig              = "config"
)

// Notifier is the subset of linenotify.Session the commands drive. An empty
// token argument selects the session's cached token.
type Notifier interface {
	ExchangeToken(ctx context.Context, code string, redirectURIOverride string) (linenotify.TokenResult, error)
	SendNotification(ctx context.Context, accessToken string, message string, options *linenotify.NotifyOptions) (linenotify.NotifyResult, error)
	GetStatus(ctx context.Context, accessToken string) (linenotify.StatusResult, error)
	Revoke(ctx context.Context, accessToken string) (linenotify.NotifyResult, error)
}

// AuthorizationURLBuilder renders the consent page URL.
type AuthorizationURLBuilder interface {
	AuthorizationURL(state string, formPost bool) string
	RedirectURI() string
}

type StateGenerator interface {
	Generate(ctx context.Context, length oauthstate.ByteLength) (string, error)
}

// Journal records calls and lists past ones.
type Journal interface {
	Record(ctx context.Context, delivery journal.Delivery) (journal.Delivery, error)
	Recent(ctx context.Context, limit int) ([]journal.Delivery, error)
}

// CallbackReceiver captures the authorization code from the OAuth2 redirect.
type CallbackReceiver interface {
	Start() error
	Wait(ctx context.Context) (string, error)
	Shutdown(ctx context.Context) error
}

// CallbackFactory builds a receiver for the redirect URI and expected state.
type CallbackFactory func(redirectURI string, expectedState string) (CallbackReceiver, error)

type Dependencies struct {
	Notifier         Notifier
	Authorizer       AuthorizationURLBuilder
	StateGenerator   StateGenerator
	Journal          Journal
	Callbacks        CallbackFactory
	OperationTimeout time.Duration
	Output           io.Writer
	Logger           *slog.Logger

	// RequireCredentials, when set, gates the commands that need the client id and secret.
	RequireCredentials func() error
}

func NewRootCommand(dependencies Dependencies) *cobra.Command {
	root := &cobra.Command{
		Use:           "linenotify",
		Short:         "Send LINE Notify messages and manage access tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Resolved by the caller before the tree is built; declared so cobra accepts it.
	root.PersistentFlags().String(flagConfig, "", "path to a YAML, JSON or TOML config file (env LINE_NOTIFY_CONFIG)")
	root.AddCommand(buildAuthorizeURLCommand(dependencies))
	root.AddCommand(buildAuthorizeCommand(dependencies))
	root.AddCommand(buildTokenCommand(dependencies))
	root.AddCommand(buildSendCommand(dependencies))
	root.AddCommand(buildStatusCommand(dependencies))
	root.AddCommand(buildRevokeCommand(dependencies))
	root.AddCommand(buildHistoryCommand(dependencies))
	root.AddCommand(buildGenerateStateCommand(dependencies))
	return root
}

func (dependencies Dependencies) output() io.Writer {
	if dependencies.Output == nil {
		return io.Discard
	}
	return dependencies.Output
}

func (dependencies Dependencies) logger() *slog.Logger {
	if dependencies.Logger == nil {
		return logging.Discard()
	}
	return dependencies.Logger
}

func (dependencies Dependencies) operationContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := dependencies.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// record writes the outcome of a call to the journal. Journal failures are
// logged and never fail the command.
func (dependencies Dependencies) record(ctx context.Context, delivery journal.Delivery, callErr error) {
	if dependencies.Journal == nil {
		return
	}
	if callErr != nil {
		delivery.TransportError = callErr.Error()
	}
	if _, err := dependencies.Journal.Record(context.WithoutCancel(ctx), delivery); err != nil {
		dependencies.logger().Warn("Journal write failed", "operation", delivery.Operation, "error", err)
	}
}

func (dependencies Dependencies) requireCredentials() error {
	if dependencies.RequireCredentials == nil {
		return nil
	}
	return dependencies.RequireCredentials()
}

func checkResult(operation string, result linenotify.NotifyResult) error {
	if result.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s: status %d: %s", ErrRejected, operation, result.Status, result.Message)
}

func generateState(ctx context.Context, generator StateGenerator) (string, error) {
	if generator == nil {
		return "", errors.New("state generator is not configured")
	}
	return generator.Generate(ctx, oauthstate.DefaultByteLength())
}

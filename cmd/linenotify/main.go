package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/temirov/linenotify/internal/callback"
	"github.com/temirov/linenotify/internal/command"
	"github.com/temirov/linenotify/internal/config"
	"github.com/temirov/linenotify/internal/journal"
	"github.com/temirov/linenotify/pkg/linenotify"
	"github.com/temirov/linenotify/pkg/logging"
	"github.com/temirov/linenotify/pkg/oauthstate"
)

func main() {
	v := viper.New()
	if err := bindConfigFlag(v, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel(),
		Format: cfg.LogFormat(),
		Output: os.Stderr,
	})

	deliveryJournal, err := journal.Open(cfg.JournalPath(), logger)
	if err != nil {
		logger.Error("Failed to open delivery journal", "error", err)
		os.Exit(1)
	}
	defer deliveryJournal.Close()

	client := linenotify.NewClient(logger, linenotify.Settings{
		ClientID:     cfg.ClientID(),
		ClientSecret: cfg.ClientSecret(),
		RedirectURI:  cfg.RedirectURI(),
		OAuthBaseURL: cfg.OAuthBaseURL(),
		APIBaseURL:   cfg.APIBaseURL(),
		HTTPClient:   newHTTPClient(cfg),
	})
	session := linenotify.NewSession(client, cfg.AccessToken())

	stateGenerator, err := oauthstate.NewCryptoGenerator()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := command.NewRootCommand(command.Dependencies{
		Notifier:           session,
		Authorizer:         client,
		StateGenerator:     stateGenerator,
		Journal:            deliveryJournal,
		Callbacks:          callbackFactory(logger),
		RequireCredentials: cfg.RequireCredentials,
		OperationTimeout:   cfg.OperationTimeout(),
		Output:             os.Stdout,
		Logger:             logger,
	})
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if execErr := root.ExecuteContext(ctx); execErr != nil {
		fmt.Fprintln(os.Stderr, execErr)
		stop()
		deliveryJournal.Close()
		os.Exit(1)
	}
}

// bindConfigFlag reads --config ahead of cobra, since configuration has to be
// resolved before the command tree is built. Every other argument is left for
// cobra to parse.
func bindConfigFlag(v *viper.Viper, arguments []string) error {
	flags := pflag.NewFlagSet("linenotify", pflag.ContinueOnError)
	flags.ParseErrorsAllowlist.UnknownFlags = true
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)
	if err := config.BindFlags(v, flags); err != nil {
		return err
	}
	if err := flags.Parse(arguments); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return nil
}

// newHTTPClient bounds dialing by the connection timeout and each whole
// request by the operation timeout.
func newHTTPClient(cfg config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectionTimeout()}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectionTimeout()
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.OperationTimeout(),
	}
}

func callbackFactory(logger *slog.Logger) command.CallbackFactory {
	return func(redirectURI string, expectedState string) (command.CallbackReceiver, error) {
		server, err := callback.NewServer(callback.Config{
			RedirectURI:   redirectURI,
			ExpectedState: expectedState,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return server, nil
	}
}

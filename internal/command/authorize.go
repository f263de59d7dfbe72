package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/temirov/linenotify/internal/journal"
)

const defaultAuthorizeWait = 5 * time.Minute

func buildAuthorizeURLCommand(dependencies Dependencies) *cobra.Command {
	var (
		stateInput string
		formPost   bool
	)

	command := &cobra.Command{
		Use:   "authorize-url",
		Short: "Print the consent page URL for connecting a LINE Notify target",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Authorizer == nil {
				return errors.New("authorizer is not configured")
			}
			if err := dependencies.requireCredentials(); err != nil {
				return err
			}
			state := strings.TrimSpace(stateInput)
			if state == "" {
				generated, err := generateState(cmd.Context(), dependencies.StateGenerator)
				if err != nil {
					return err
				}
				state = generated
			}
			output := dependencies.output()
			if _, err := fmt.Fprintln(output, dependencies.Authorizer.AuthorizationURL(state, formPost)); err != nil {
				return err
			}
			_, err := fmt.Fprintf(output, "state: %s\n", state)
			return err
		},
	}

	command.Flags().StringVar(&stateInput, "state", "", "State value to embed (generated when empty)")
	command.Flags().BoolVar(&formPost, "form-post", false, "Ask LINE to POST the code to the redirect URI")

	return command
}

func buildAuthorizeCommand(dependencies Dependencies) *cobra.Command {
	var (
		formPost     bool
		waitDuration time.Duration
	)

	command := &cobra.Command{
		Use:   "authorize",
		Short: "Run the consent flow locally and exchange the returned code for a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Authorizer == nil || dependencies.Callbacks == nil {
				return errors.New("authorize flow is not configured")
			}
			redirectURI := strings.TrimSpace(dependencies.Authorizer.RedirectURI())
			if redirectURI == "" {
				return errors.New("a redirect URI is required for authorize")
			}
			if err := dependencies.requireCredentials(); err != nil {
				return err
			}

			state, err := generateState(cmd.Context(), dependencies.StateGenerator)
			if err != nil {
				return err
			}
			receiver, err := dependencies.Callbacks(redirectURI, state)
			if err != nil {
				return err
			}

			startErrors := make(chan error, 1)
			go func() {
				startErrors <- receiver.Start()
			}()
			defer func() {
				if shutdownErr := receiver.Shutdown(context.WithoutCancel(cmd.Context())); shutdownErr != nil {
					dependencies.logger().Warn("Callback server shutdown failed", "error", shutdownErr)
				}
			}()

			output := dependencies.output()
			if _, err := fmt.Fprintf(output, "Open this URL to authorize:\n%s\n", dependencies.Authorizer.AuthorizationURL(state, formPost)); err != nil {
				return err
			}

			if waitDuration <= 0 {
				waitDuration = defaultAuthorizeWait
			}
			waitCtx, cancelWait := context.WithTimeout(cmd.Context(), waitDuration)
			defer cancelWait()

			code, err := waitForCode(waitCtx, receiver, startErrors)
			if err != nil {
				return err
			}

			ctx, cancel := dependencies.operationContext(cmd.Context())
			defer cancel()
			return exchangeAndPrint(ctx, dependencies, code, "")
		},
	}

	command.Flags().BoolVar(&formPost, "form-post", false, "Ask LINE to POST the code to the redirect URI")
	command.Flags().DurationVar(&waitDuration, "wait", defaultAuthorizeWait, "How long to wait for the redirect")

	return command
}

type redirectOutcome struct {
	code string
	err  error
}

func waitForCode(ctx context.Context, receiver CallbackReceiver, startErrors <-chan error) (string, error) {
	outcomes := make(chan redirectOutcome, 1)
	go func() {
		code, err := receiver.Wait(ctx)
		outcomes <- redirectOutcome{code: code, err: err}
	}()
	select {
	case startErr := <-startErrors:
		if startErr != nil {
			return "", fmt.Errorf("callback server: %w", startErr)
		}
		received := <-outcomes
		return received.code, received.err
	case received := <-outcomes:
		return received.code, received.err
	}
}

func buildTokenCommand(dependencies Dependencies) *cobra.Command {
	var (
		codeInput        string
		redirectOverride string
	)

	command := &cobra.Command{
		Use:   "token",
		Short: "Exchange an authorization code for an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := dependencies.requireCredentials(); err != nil {
				return err
			}
			ctx, cancel := dependencies.operationContext(cmd.Context())
			defer cancel()
			return exchangeAndPrint(ctx, dependencies, strings.TrimSpace(codeInput), strings.TrimSpace(redirectOverride))
		},
	}

	command.Flags().StringVar(&codeInput, "code", "", "Authorization code from the redirect")
	command.Flags().StringVar(&redirectOverride, "redirect-uri", "", "Redirect URI used for this code (defaults to configuration)")
	markRequired(command, "code")

	return command
}

func exchangeAndPrint(ctx context.Context, dependencies Dependencies, code string, redirectOverride string) error {
	if dependencies.Notifier == nil {
		return errors.New("notifier is not configured")
	}
	tokenResult, err := dependencies.Notifier.ExchangeToken(ctx, code, redirectOverride)
	dependencies.record(ctx, journal.Delivery{
		Operation:       journal.OperationExchangeToken,
		Status:          tokenResult.EffectiveStatus(),
		ResponseMessage: tokenResult.Message,
	}, err)
	if err != nil {
		return err
	}
	if tokenResult.AccessToken == "" {
		return fmt.Errorf("%w: exchange token: status %d: %s", ErrRejected, tokenResult.EffectiveStatus(), tokenResult.Message)
	}
	_, writeErr := fmt.Fprintf(dependencies.output(), "access token: %s\n", tokenResult.AccessToken)
	return writeErr
}

func markRequired(cmd *cobra.Command, name string) {
	_ = cmd.MarkFlagRequired(name)
}

package command

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/temirov/linenotify/pkg/oauthstate"
)

func buildGenerateStateCommand(dependencies Dependencies) *cobra.Command {
	var bytesLength int

	command := &cobra.Command{
		Use:   "generate-state",
		Short: "Generate a random OAuth2 state value",
		RunE: func(cmd *cobra.Command, args []string) error {
			generator := dependencies.StateGenerator
			if generator == nil {
				return errors.New("state generator is not configured")
			}

			length := oauthstate.DefaultByteLength()
			if bytesLength > 0 {
				parsedLength, err := oauthstate.NewByteLength(bytesLength)
				if err != nil {
					return fmt.Errorf("invalid state length: %w", err)
				}
				length = parsedLength
			}

			stateValue, err := generator.Generate(cmd.Context(), length)
			if err != nil {
				return err
			}
			_, writeErr := fmt.Fprintln(dependencies.output(), stateValue)
			return writeErr
		},
	}

	command.Flags().IntVar(&bytesLength, "bytes", 0, "Number of random bytes (minimum 16)")

	return command
}

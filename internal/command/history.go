package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/temirov/linenotify/internal/journal"
)

func buildHistoryCommand(dependencies Dependencies) *cobra.Command {
	var limit int

	command := &cobra.Command{
		Use:   "history",
		Short: "List recent calls recorded in the delivery journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Journal == nil {
				return journal.ErrDisabled
			}
			deliveries, err := dependencies.Journal.Recent(cmd.Context(), limit)
			if err != nil {
				if errors.Is(err, journal.ErrDisabled) {
					return fmt.Errorf("%w: set LINE_NOTIFY_JOURNAL_PATH to enable it", err)
				}
				return err
			}
			output := dependencies.output()
			for _, delivery := range deliveries {
				outcome := fmt.Sprintf("%d %s", delivery.Status, delivery.ResponseMessage)
				if delivery.TransportError != "" {
					outcome = "error " + delivery.TransportError
				}
				if _, err := fmt.Fprintf(output, "%s\t%s\t%s\t%s\n",
					delivery.CreatedAt.UTC().Format(time.RFC3339),
					delivery.Operation,
					outcome,
					delivery.Message,
				); err != nil {
					return err
				}
			}
			return nil
		},
	}

	command.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries")

	return command
}

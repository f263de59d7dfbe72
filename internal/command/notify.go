package command

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/temirov/linenotify/internal/journal"
	"github.com/temirov/linenotify/pkg/linenotify"
)

func buildSendCommand(dependencies Dependencies) *cobra.Command {
	var (
		tokenInput       string
		messageInput     string
		thumbnailInput   string
		fullsizeInput    string
		imageFilePath    string
		stickerPackageID int
		stickerID        int
		silent           bool
	)

	command := &cobra.Command{
		Use:   "send",
		Short: "Send a notification to the target bound to the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Notifier == nil {
				return errors.New("notifier is not configured")
			}
			options := &linenotify.NotifyOptions{
				ImageThumbnail:       strings.TrimSpace(thumbnailInput),
				ImageFullsize:        strings.TrimSpace(fullsizeInput),
				StickerPackageID:     stickerPackageID,
				StickerID:            stickerID,
				NotificationDisabled: silent,
			}
			if trimmedPath := strings.TrimSpace(imageFilePath); trimmedPath != "" {
				imageFile, err := os.Open(trimmedPath)
				if err != nil {
					return fmt.Errorf("open image file: %w", err)
				}
				defer imageFile.Close()
				options.ImageFile = &linenotify.ImageFile{Name: filepath.Base(trimmedPath), Content: imageFile}
			}

			ctx, cancel := dependencies.operationContext(cmd.Context())
			defer cancel()

			result, err := dependencies.Notifier.SendNotification(ctx, strings.TrimSpace(tokenInput), messageInput, options)
			dependencies.record(ctx, journal.Delivery{
				Operation:       journal.OperationNotify,
				Message:         messageInput,
				Status:          result.Status,
				ResponseMessage: result.Message,
			}, err)
			if err != nil {
				return err
			}
			if err := printResult(dependencies, "notify", result); err != nil {
				return err
			}
			return checkResult("notify", result)
		},
	}

	command.Flags().StringVar(&tokenInput, "token", "", "Access token (defaults to the configured token)")
	command.Flags().StringVar(&messageInput, "message", "", "Notification message")
	command.Flags().StringVar(&thumbnailInput, "image-thumbnail", "", "Thumbnail image URL")
	command.Flags().StringVar(&fullsizeInput, "image-fullsize", "", "Full size image URL")
	command.Flags().StringVar(&imageFilePath, "image-file", "", "Path of an image to upload")
	command.Flags().IntVar(&stickerPackageID, "sticker-package-id", 0, "Sticker package id")
	command.Flags().IntVar(&stickerID, "sticker-id", 0, "Sticker id")
	command.Flags().BoolVar(&silent, "silent", false, "Deliver without a push notification")
	markRequired(command, "message")

	return command
}

func buildStatusCommand(dependencies Dependencies) *cobra.Command {
	var tokenInput string

	command := &cobra.Command{
		Use:   "status",
		Short: "Show whether the access token is valid and what it delivers to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Notifier == nil {
				return errors.New("notifier is not configured")
			}
			ctx, cancel := dependencies.operationContext(cmd.Context())
			defer cancel()

			result, err := dependencies.Notifier.GetStatus(ctx, strings.TrimSpace(tokenInput))
			dependencies.record(ctx, journal.Delivery{
				Operation:       journal.OperationStatus,
				Status:          result.Status,
				ResponseMessage: result.Message,
			}, err)
			if err != nil {
				return err
			}
			if err := printResult(dependencies, "status", result.NotifyResult); err != nil {
				return err
			}
			if result.OK() {
				target := result.Target
				if !result.HasTarget() {
					target = "(none)"
				}
				if _, err := fmt.Fprintf(dependencies.output(), "target: %s %s\n", result.TargetType, target); err != nil {
					return err
				}
			}
			return checkResult("status", result.NotifyResult)
		},
	}

	command.Flags().StringVar(&tokenInput, "token", "", "Access token (defaults to the configured token)")

	return command
}

func buildRevokeCommand(dependencies Dependencies) *cobra.Command {
	var tokenInput string

	command := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dependencies.Notifier == nil {
				return errors.New("notifier is not configured")
			}
			ctx, cancel := dependencies.operationContext(cmd.Context())
			defer cancel()

			result, err := dependencies.Notifier.Revoke(ctx, strings.TrimSpace(tokenInput))
			dependencies.record(ctx, journal.Delivery{
				Operation:       journal.OperationRevoke,
				Status:          result.Status,
				ResponseMessage: result.Message,
			}, err)
			if err != nil {
				return err
			}
			if err := printResult(dependencies, "revoke", result); err != nil {
				return err
			}
			return checkResult("revoke", result)
		},
	}

	command.Flags().StringVar(&tokenInput, "token", "", "Access token (defaults to the configured token)")

	return command
}

func printResult(dependencies Dependencies, operation string, result linenotify.NotifyResult) error {
	output := dependencies.output()
	if _, err := fmt.Fprintf(output, "%s: status %d: %s\n", operation, result.Status, result.Message); err != nil {
		return err
	}
	if result.RateLimit.Limit > 0 {
		_, err := fmt.Fprintf(output, "rate limit: %d/%d remaining, images %d/%d, reset %s\n",
			result.RateLimit.Remaining, result.RateLimit.Limit,
			result.RateLimit.ImageRemaining, result.RateLimit.ImageLimit,
			result.RateLimit.Reset.Format(time.RFC3339))
		return err
	}
	return nil
}

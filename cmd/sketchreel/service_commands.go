package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sketchreel/internal/logging"
	"sketchreel/internal/notifications"
	"sketchreel/internal/services/gdrive"
	"sketchreel/internal/services/torchserve"
)

func newModelServerCommand(ctx *commandContext) *cobra.Command {
	var stop bool

	cmd := &cobra.Command{
		Use:   "model-server",
		Short: "Download the detector if needed and start TorchServe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger("")
			if err != nil {
				return err
			}
			server := torchserve.FromConfig(cfg, logger)
			out := cmd.OutOrStdout()
			if stop {
				if err := server.Stop(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "TorchServe stopped")
				return nil
			}

			if err := server.Up(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "TorchServe ready at %s\n", server.PingURL)
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventModelServerUp,
				notifications.Payload{"url": server.PingURL}); err != nil {
				logging.WarnWithContext(logger, "model server notification failed", "notification_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "no push for model server start"),
				)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop a running TorchServe instead")
	return cmd
}

func newGDriveCommand(ctx *commandContext) *cobra.Command {
	gdriveCmd := &cobra.Command{
		Use:   "gdrive",
		Short: "Google Drive backend utilities",
	}

	var timeout time.Duration
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorise Drive access and print a refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			flow := gdrive.AuthFlow{
				ClientID:     cfg.GDrive.ClientID,
				ClientSecret: cfg.GDrive.ClientSecret,
				Timeout:      timeout,
				Announce: func(authURL string) {
					fmt.Fprintln(out, "Open this URL in a browser and grant access:")
					fmt.Fprintln(out, authURL)
				},
			}
			token, err := flow.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Add this to the [gdrive] section (or export GDRIVE_REFRESH_TOKEN):")
			fmt.Fprintf(out, "refresh_token = %q\n", token.RefreshToken)
			return nil
		},
	}
	auth.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "How long to wait for the browser redirect")

	gdriveCmd.AddCommand(auth)
	return gdriveCmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, "Notifications disabled (no ntfy_topic configured)")
				return nil
			}
			if err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}

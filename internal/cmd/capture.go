package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"deskmemo/internal/capture"
	"deskmemo/internal/config"
	"deskmemo/internal/logger"
)

func NewCaptureCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the screen periodically and upload to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Capture a single screenshot and exit")
	return cmd
}

func runCapture(once bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	defer logger.Close()

	interval, err := cfg.Capture.GetIntervalDuration()
	if err != nil {
		return fmt.Errorf("failed to parse capture interval: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := capture.NewClient(cfg.Capture.ServerURL, cfg.Capture.Password, nil)
	agent := capture.NewAgent(capture.ScreenGrabber{}, client, cfg.Capture.Display)

	if once {
		if err := client.Login(ctx); err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}
		return agent.CaptureOnce(ctx)
	}

	logger.GetLogger().Infof("Uploading to %s. Press Ctrl+C to stop.", cfg.Capture.ServerURL)
	return agent.Run(ctx, interval)
}

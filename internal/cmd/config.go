package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deskmemo/internal/config"
)

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE:  runConfig,
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Configuration\n")
	fmt.Fprintf(os.Stdout, "=============\n\n")
	fmt.Fprintf(os.Stdout, "Server:\n")
	fmt.Fprintf(os.Stdout, "  Address: %s\n", cfg.Server.Addr())
	fmt.Fprintf(os.Stdout, "  Password: %s\n", maskAPIKey(cfg.Server.Password))
	fmt.Fprintf(os.Stdout, "  Token TTL: %s\n", cfg.Server.TokenTTL)
	fmt.Fprintf(os.Stdout, "\nStorage:\n")
	fmt.Fprintf(os.Stdout, "  DB Path: %s\n", cfg.Storage.DBPath)
	fmt.Fprintf(os.Stdout, "  Image Path: %s\n", cfg.Storage.ImagePath)
	fmt.Fprintf(os.Stdout, "  Inbox Path: %s\n", orNotSet(cfg.Storage.InboxPath))
	fmt.Fprintf(os.Stdout, "  Log Path: %s\n", orNotSet(cfg.Storage.LogPath))
	fmt.Fprintf(os.Stdout, "  Log Level: %s\n", cfg.Storage.Log.Level)
	fmt.Fprintf(os.Stdout, "\nAnalyzer:\n")
	fmt.Fprintf(os.Stdout, "  Base URL: %s\n", cfg.Analyzer.BaseURL)
	fmt.Fprintf(os.Stdout, "  Model: %s\n", cfg.Analyzer.Model)
	fmt.Fprintf(os.Stdout, "  Summary Model: %s\n", cfg.Analyzer.SummaryModel)
	fmt.Fprintf(os.Stdout, "  API Key: %s\n", maskAPIKey(cfg.Analyzer.APIKey))
	fmt.Fprintf(os.Stdout, "  Timeout: %s\n", cfg.Analyzer.Timeout)
	fmt.Fprintf(os.Stdout, "  Image Base URL: %s\n", orNotSet(cfg.Analyzer.ImageBaseURL))
	fmt.Fprintf(os.Stdout, "\nSemantic Search:\n")
	fmt.Fprintf(os.Stdout, "  Qdrant URL: %s\n", orNotSet(cfg.Qdrant.URL))
	fmt.Fprintf(os.Stdout, "  Collection: %s\n", cfg.Qdrant.Collection)
	fmt.Fprintf(os.Stdout, "  Embedding Model: %s (%d dims)\n", cfg.Embedding.Model, cfg.Embedding.VectorSize)
	fmt.Fprintf(os.Stdout, "\nPipeline:\n")
	fmt.Fprintf(os.Stdout, "  Similarity Threshold: %d\n", cfg.Pipeline.SimilarityThreshold)
	fmt.Fprintf(os.Stdout, "  Max Attempts: %d\n", cfg.Pipeline.MaxAttempts)
	fmt.Fprintf(os.Stdout, "  Reconcile Interval: %s\n", cfg.Pipeline.ReconcileInterval)
	fmt.Fprintf(os.Stdout, "\nReports:\n")
	fmt.Fprintf(os.Stdout, "  Timezone: %s\n", cfg.Report.Timezone)
	fmt.Fprintf(os.Stdout, "  Hourly Cron: %s\n", cfg.Report.HourlyCron)
	fmt.Fprintf(os.Stdout, "  Daily Cron: %s\n", cfg.Report.DailyCron)
	fmt.Fprintf(os.Stdout, "  Minutes Per Item: %d\n", cfg.Report.MinutesPerItem)
	fmt.Fprintf(os.Stdout, "\nCapture:\n")
	fmt.Fprintf(os.Stdout, "  Server URL: %s\n", cfg.Capture.ServerURL)
	fmt.Fprintf(os.Stdout, "  Interval: %s\n", cfg.Capture.Interval)
	fmt.Fprintf(os.Stdout, "  Display: %d\n", cfg.Capture.Display)

	return nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func maskAPIKey(key string) string {
	if len(key) == 0 {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

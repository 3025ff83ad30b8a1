package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "deskmemo",
		Short:         "Deskmemo - screenshot activity journal",
		Long:          "Collects desktop screenshots, analyzes them with a vision model and builds searchable activity reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewCaptureCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewFailedCmd())
	rootCmd.AddCommand(NewRetryFailedCmd())
	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewReportCmd())
	rootCmd.AddCommand(NewConfigCmd())

	return rootCmd
}

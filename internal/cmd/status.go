package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"deskmemo/internal/report"
	"deskmemo/internal/storage"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current status and statistics",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	loc, err := cfg.Report.Location()
	if err != nil {
		return err
	}
	ctx := context.Background()
	today, tomorrow := report.Window(storage.PeriodDaily, time.Now(), loc)

	stats, err := st.DayStats(ctx, today, tomorrow)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	hourly, err := st.ListReports(ctx, storage.PeriodHourly, today, tomorrow)
	if err != nil {
		return fmt.Errorf("failed to query reports: %w", err)
	}

	fmt.Fprintf(os.Stdout, "Deskmemo Status (%s)\n", today.Format("2006-01-02"))
	fmt.Fprintf(os.Stdout, "==========================\n\n")
	fmt.Fprintf(os.Stdout, "Screenshots: %d (duplicates: %d)\n", stats.Screenshots, stats.Duplicates)
	fmt.Fprintf(os.Stdout, "Analyzed:    %d\n", stats.Analyzed)
	fmt.Fprintf(os.Stdout, "Pending:     %d\n", stats.Pending)
	fmt.Fprintf(os.Stdout, "Abandoned:   %d\n", stats.Abandoned)
	fmt.Fprintf(os.Stdout, "Activities:  %d\n", stats.Activities)
	for _, c := range storage.Categories {
		fmt.Fprintf(os.Stdout, "  %-8s %d\n", c, stats.ByCategory[c])
	}

	if len(hourly) > 0 {
		fmt.Fprintf(os.Stdout, "\nRecent Hourly Reports:\n")
		for i := len(hourly) - 1; i >= 0 && i >= len(hourly)-5; i-- {
			r := hourly[i]
			fmt.Fprintf(os.Stdout, "  %s: %s\n", r.StartTime.In(loc).Format("15:04"), truncate(r.Summary, 60))
		}
	}

	return nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

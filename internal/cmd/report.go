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

func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate or show activity reports",
	}
	cmd.AddCommand(newReportGenerateCmd())
	cmd.AddCommand(newReportShowCmd())
	return cmd
}

type reportFlags struct {
	period string
	date   string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.period, "period", "p", "daily", "Report period: hourly or daily")
	cmd.Flags().StringVarP(&f.date, "date", "d", "", "Window to report on: 2006-01-02 or 2006-01-02T15 (default: last completed window)")
}

// resolve returns the period and a time inside the requested window.
func (f *reportFlags) resolve(loc *time.Location) (storage.PeriodType, time.Time, error) {
	period, ok := storage.ParsePeriodType(f.period)
	if !ok {
		return "", time.Time{}, fmt.Errorf("invalid period %q: must be hourly or daily", f.period)
	}
	if f.date == "" {
		start, _ := report.Window(period, time.Now(), loc)
		if period == storage.PeriodDaily {
			return period, start.AddDate(0, 0, -1), nil
		}
		return period, start.Add(-time.Hour), nil
	}
	layout := "2006-01-02"
	if period == storage.PeriodHourly {
		layout = "2006-01-02T15"
	}
	t, err := time.ParseInLocation(layout, f.date, loc)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid date %q: expected %s", f.date, layout)
	}
	return period, t, nil
}

func newReportGenerateCmd() *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the report for a window (no-op if it already exists)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			loc, err := cfg.Report.Location()
			if err != nil {
				return err
			}
			period, t, err := flags.resolve(loc)
			if err != nil {
				return err
			}
			ai, err := newAnalyzer(cfg)
			if err != nil {
				return err
			}

			agg := report.NewAggregator(st, ai, report.Options{
				Location:       loc,
				MinutesPerItem: cfg.Report.MinutesPerItem,
				SampleSize:     cfg.Report.SampleSize,
			})
			r, err := agg.Generate(context.Background(), period, t)
			if err != nil {
				return fmt.Errorf("failed to generate report: %w", err)
			}
			if r == nil {
				fmt.Fprintln(os.Stdout, "No activities in this window, nothing generated.")
				return nil
			}
			printReport(r, loc)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newReportShowCmd() *cobra.Command {
	var (
		flags  reportFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a stored report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			loc, err := cfg.Report.Location()
			if err != nil {
				return err
			}
			period, t, err := flags.resolve(loc)
			if err != nil {
				return err
			}
			start, _ := report.Window(period, t, loc)
			r, err := st.GetReport(context.Background(), period, start)
			if err != nil {
				return err
			}
			if r == nil {
				return fmt.Errorf("no %s report for %s", period, start.Format(time.RFC3339))
			}

			if output != "" {
				page, err := report.RenderHTML(r, loc)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, page, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				fmt.Fprintf(os.Stdout, "Wrote %s\n", output)
				return nil
			}
			printReport(r, loc)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "html", "o", "", "Write the report as an HTML page to this file")
	return cmd
}

func printReport(r *storage.Report, loc *time.Location) {
	fmt.Fprintf(os.Stdout, "%s report %s - %s\n", r.PeriodType,
		r.StartTime.In(loc).Format("2006-01-02 15:04"), r.EndTime.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(os.Stdout, "Items: %d\n", r.ItemCount)
	for _, c := range storage.Categories {
		fmt.Fprintf(os.Stdout, "  %-8s ~%d min\n", c, r.Minutes(c))
	}
	fmt.Fprintf(os.Stdout, "\n%s\n", r.Summary)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"deskmemo/internal/pipeline"
)

func NewFailedCmd() *cobra.Command {
	var (
		limit         int
		abandonedOnly bool
	)
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List screenshots whose analysis failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			items, err := listFailed(context.Background(), pipeline.NewManual(st, nil), limit, abandonedOnly)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(os.Stdout, "No failed screenshots.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCAPTURED\tFAILURES\tSTATUS\tLAST ERROR")
			for _, it := range items {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", it.Image.ID, it.Image.Timestamp.Local().Format(time.DateTime),
					it.Image.FailureCount, it.Status, truncate(it.Image.LastError, 60))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum number of rows")
	cmd.Flags().BoolVarP(&abandonedOnly, "abandoned", "a", false, "Only list screenshots that ran out of attempts")
	return cmd
}

func listFailed(ctx context.Context, m *pipeline.Manual, limit int, abandonedOnly bool) ([]pipeline.FailedItem, error) {
	if !abandonedOnly {
		return m.ListFailed(ctx, limit)
	}
	imgs, err := m.ListAbandoned(ctx)
	if err != nil {
		return nil, err
	}
	if len(imgs) > limit {
		imgs = imgs[:limit]
	}
	items := make([]pipeline.FailedItem, 0, len(imgs))
	for _, img := range imgs {
		items = append(items, pipeline.FailedItem{Image: img, Status: pipeline.FailedStatusAbandoned})
	}
	return items, nil
}

func NewRetryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Reset abandoned screenshots so they are analyzed again",
		Long:  "Reset abandoned screenshots to pending. A running server picks them up on its next reconcile pass.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := pipeline.NewManual(st, nil).RetryAbandoned(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Reset %d abandoned screenshots.\n", n)
			return nil
		},
	}
}

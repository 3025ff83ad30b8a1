package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"deskmemo/internal/search"
)

func NewSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search recorded activities",
		Args:  cobra.MinimumNArgs(1),
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
			ctx := context.Background()
			index, closer := openIndex(ctx, cfg)
			if closer != nil {
				defer closer.Close()
			}

			hits, err := search.NewRanker(st, index).Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(os.Stdout, "No matches.")
				return nil
			}
			for _, h := range hits {
				a := h.Activity
				fmt.Fprintf(os.Stdout, "[%.3f %-8s] %s  %-7s %s: %s\n", h.Score, h.Relevance,
					a.Timestamp.In(loc).Format("2006-01-02 15:04"), a.Category, a.Application, truncate(a.Description, 80))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	return cmd
}

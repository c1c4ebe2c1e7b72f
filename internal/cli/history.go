package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/di"
	"github.com/spf13/cobra"
)

// historyRecord is the structured form of a history entry
type historyRecord struct {
	core.Verdict `yaml:",inline"`
	AnalyzedAt   time.Time `json:"analyzedAt" yaml:"analyzedAt"`
}

func newHistoryCmd(flags *di.CLIFlags) *cobra.Command {
	var query core.HistoryQuery

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously analyzed messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags, false, func(cfg *config.Config, service *core.TrustService) error {
				entries, err := service.History(context.Background(), query)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				format := cfg.GetString("cli.output")
				if format != "text" {
					records := make([]historyRecord, 0, len(entries))
					for _, e := range entries {
						records = append(records, historyRecord{Verdict: e.Verdict, AnalyzedAt: e.AnalyzedAt.UTC()})
					}
					return writeOutput(out, format, records)
				}

				if len(entries) == 0 {
					fmt.Fprintln(out, "No analyzed messages match.")
					return nil
				}
				verdicts := make([]core.Verdict, 0, len(entries))
				for _, e := range entries {
					verdicts = append(verdicts, e.Verdict)
				}
				printStats(out, core.Summarize(verdicts))
				fmt.Fprintln(out)
				printVerdicts(out, verdicts)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&query.Search, "search", "", "Only show messages whose subject or sender contains this text")
	cmd.Flags().StringVar(&query.Category, "category", core.FilterAll, "Category filter (all, threats, or a category name)")
	cmd.Flags().StringVar(&query.SortBy, "sort", "", "Sort by date, trust or threat (default: most recently analyzed)")
	cmd.Flags().IntVar(&query.Limit, "limit", 50, "Maximum number of entries")

	return cmd
}

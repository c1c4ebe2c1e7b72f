package cli

import (
	"context"
	"fmt"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/di"
	"github.com/spf13/cobra"
)

// scanReport is the structured form of a scan
type scanReport struct {
	Emails       []core.Verdict `json:"emails" yaml:"emails"`
	TotalFetched int            `json:"totalFetched" yaml:"totalFetched"`
	Stats        core.Stats     `json:"stats" yaml:"stats"`
	Timestamp    string         `json:"timestamp" yaml:"timestamp"`
}

func newScanCmd(flags *di.CLIFlags) *cobra.Command {
	var max int
	var category, trust, search, sortBy string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Fetch recent messages from the configured mailbox and score them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(flags, true, func(cfg *config.Config, service *core.TrustService) error {
				result, err := service.ScanInbox(context.Background(), max)
				if err != nil {
					return err
				}

				verdicts := core.FilterByCategory(result.Verdicts, category)
				verdicts = core.FilterByTrust(verdicts, trust)
				verdicts = core.Search(verdicts, search)
				verdicts = core.Sort(verdicts, sortBy)

				out := cmd.OutOrStdout()
				format := cfg.GetString("cli.output")
				if format != "text" {
					return writeOutput(out, format, scanReport{
						Emails:       verdicts,
						TotalFetched: result.TotalFetched,
						Stats:        result.Stats,
						Timestamp:    result.ScannedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
					})
				}

				if result.TotalFetched == 0 {
					fmt.Fprintln(out, "No emails found in your inbox.")
					return nil
				}
				printStats(out, result.Stats)
				fmt.Fprintln(out)
				printVerdicts(out, verdicts)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&max, "max", 0, "Number of messages to scan (default from source.max_results, capped by source.max_results_cap)")
	cmd.Flags().StringVar(&category, "category", core.FilterAll, "Category filter (all, threats, or a category name)")
	cmd.Flags().StringVar(&trust, "trust", core.BandAll, "Trust band (all, low-trust, mild-threat, threat)")
	cmd.Flags().StringVar(&search, "search", "", "Only show messages whose subject or sender contains this text")
	cmd.Flags().StringVar(&sortBy, "sort", "", "Sort by date, trust or threat")

	return cmd
}

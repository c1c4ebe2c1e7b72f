package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/mail-trust-filter/internal/adapters/filter"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAnalyzeCmd(flags *di.CLIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Score a single RFC 822 message read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			id := "stdin"
			receivedAt := time.Now()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input file: %w", err)
				}
				defer f.Close()
				in = f
				id = filepath.Base(args[0])
				if info, err := f.Stat(); err == nil {
					receivedAt = info.ModTime()
				}
			}

			return run(flags, false, func(
				cfg *config.Config,
				logger *zap.Logger,
				service *core.TrustService,
				parser *rfc822.Parser,
			) error {
				msg, err := parser.Parse(in, id, receivedAt)
				if err != nil {
					return err
				}

				cliFilter, err := filter.NewCliFilter(service, logger, cmd.OutOrStdout(),
					cfg.GetString("cli.output"), cfg.GetBool("cli.verbose"))
				if err != nil {
					return err
				}
				_, err = cliFilter.ProcessMessage(context.Background(), msg)
				return err
			})
		},
	}
	return cmd
}

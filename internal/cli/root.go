package cli

import (
	"fmt"
	"os"

	"github.com/mikey/mail-trust-filter/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
)

// NewRootCmd builds the trust-check command tree
func NewRootCmd() *cobra.Command {
	flags := &di.CLIFlags{}

	cmd := &cobra.Command{
		Use:          "trust-check",
		Short:        "trust-check scores email messages for trust and threat level",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVarP(&flags.Output, "output", "o", "text", "Output format (text, json, yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging and explanations")
	cmd.PersistentFlags().BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newScanCmd(flags))
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newConfigCmd(flags))

	cmd.SetErr(os.Stderr)
	cmd.SetOut(os.Stdout)

	return cmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run builds a container for one command, invokes fn and releases the adapters
func run(flags *di.CLIFlags, needSource bool, fn interface{}) error {
	switch flags.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format: %s", flags.Output)
	}

	flags.NeedSource = needSource
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}

	runErr := container.Invoke(fn)
	if err := di.Close(container); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return dig.RootCause(runErr)
	}
	return nil
}

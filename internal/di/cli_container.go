package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/logging"
)

// CLIFlags contains the global flags of the command line tool
type CLIFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
	JSONLog    bool

	// NeedSource is set by commands that read a mailbox
	NeedSource bool
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		return LoadCLIConfig(flags, logger)
	}); err != nil {
		return nil, err
	}

	if err := provideCore(container, func(*config.Config) bool { return flags.NeedSource }); err != nil {
		return nil, err
	}

	return container, nil
}

// LoadCLIConfig reads the file named by --config, else the standard search paths
func LoadCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if flags.ConfigFile != "" {
		cfg, err = config.NewFromFile(flags.ConfigFile)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, err
	}
	if used := cfg.GetViper().ConfigFileUsed(); used != "" {
		logger.Info("Loaded configuration from file", zap.String("file", used))
	}

	// Command line settings
	cfg.Set("cli.verbose", flags.Verbose)
	if flags.Output != "" {
		cfg.Set("cli.output", flags.Output)
	}
	return cfg, nil
}

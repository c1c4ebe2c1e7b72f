package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/factory"
	"github.com/mikey/mail-trust-filter/internal/logging"
	"github.com/mikey/mail-trust-filter/internal/ports"
	"github.com/mikey/mail-trust-filter/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Only the HTTP front end scans a mailbox
	needSource := func(cfg *config.Config) bool {
		return cfg.GetString("server.filter_type") == "http"
	}
	if err := provideCore(container, needSource); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCore registers the factories, adapters and the trust service
func provideCore(container *dig.Container, needSource func(*config.Config) bool) error {
	// Register factories
	for _, ctor := range []interface{}{
		factory.NewTextProcessorFactory,
		factory.NewServiceFactory,
		factory.NewCacheFactory,
		factory.NewHistoryFactory,
		factory.NewSourceFactory,
		factory.NewExplainerFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register text processor and parser
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.TextProcessorFactory, tp *utils.TextProcessor) *rfc822.Parser {
		return f.CreateParser(tp)
	}); err != nil {
		return err
	}

	// Register analyzer and service options
	if err := container.Provide(func(f *factory.ServiceFactory) (*core.Analyzer, error) {
		return f.CreateAnalyzer()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ServiceFactory) (core.ServiceOptions, error) {
		return f.CreateServiceOptions()
	}); err != nil {
		return err
	}

	// Register adapters
	if err := container.Provide(func(f *factory.CacheFactory) (core.VerdictCache, error) {
		return f.CreateVerdictCache()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.HistoryFactory) (core.HistoryRepository, error) {
		return f.CreateHistory()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.ExplainerFactory) (core.Explainer, error) {
		return f.CreateExplainer(context.Background())
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.SourceFactory, cfg *config.Config, logger *zap.Logger) (core.MessageSource, error) {
		if !needSource(cfg) {
			logger.Debug("Message source not needed, skipping")
			return nil, nil
		}
		return f.CreateMessageSource(context.Background())
	}); err != nil {
		return err
	}

	// Register trust service
	return container.Provide(core.NewTrustService)
}

// Close releases the adapters held by the container
func Close(container *dig.Container) error {
	return container.Invoke(func(
		logger *zap.Logger,
		cache core.VerdictCache,
		history core.HistoryRepository,
		explainer core.Explainer,
		source core.MessageSource,
	) {
		if stopper, ok := cache.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		if history != nil {
			if err := history.Close(); err != nil {
				logger.Error("Failed to close history", zap.Error(err))
			}
		}
		if closer, ok := explainer.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close explainer", zap.Error(err))
			}
		}
		if closer, ok := source.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close message source", zap.Error(err))
			}
		}
	})
}

package factory

import (
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// ServiceFactory creates the analyzer and the trust service settings
type ServiceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(cfg *config.Config, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateAnalyzer creates an analyzer rendering timestamps in the configured zone
func (f *ServiceFactory) CreateAnalyzer() (*core.Analyzer, error) {
	analyzerCfg := f.cfg.GetAnalyzer()
	loc, err := analyzerCfg.Location()
	if err != nil {
		return nil, err
	}
	return core.NewAnalyzer(loc, analyzerCfg.TimestampLayout), nil
}

// CreateServiceOptions builds the trust service options
func (f *ServiceFactory) CreateServiceOptions() (core.ServiceOptions, error) {
	sourceCfg, err := f.cfg.GetSource()
	if err != nil {
		return core.ServiceOptions{}, err
	}
	cacheCfg, err := f.cfg.GetCache()
	if err != nil {
		return core.ServiceOptions{}, err
	}

	return core.ServiceOptions{
		CacheEnabled:      cacheCfg.Enabled,
		CacheTTL:          cacheCfg.TTL,
		HistoryEnabled:    f.cfg.GetHistory().Enabled,
		DefaultMaxResults: sourceCfg.MaxResults,
		MaxResultsCap:     sourceCfg.MaxResultsCap,
		Concurrency:       sourceCfg.Concurrency,
	}, nil
}

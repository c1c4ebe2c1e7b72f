package factory

import (
	"fmt"

	"github.com/mikey/mail-trust-filter/internal/adapters/history"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// HistoryFactory creates the analysis history store
type HistoryFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHistoryFactory creates a new history factory
func NewHistoryFactory(cfg *config.Config, logger *zap.Logger) *HistoryFactory {
	return &HistoryFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateHistory opens the history store, or returns nil when history is disabled
func (f *HistoryFactory) CreateHistory() (core.HistoryRepository, error) {
	historyCfg := f.cfg.GetHistory()
	if !historyCfg.Enabled {
		f.logger.Info("Analysis history disabled")
		return nil, nil
	}
	if historyCfg.Path == "" {
		return nil, fmt.Errorf("history.path is required when history is enabled")
	}

	store, err := history.NewSQLiteStore(historyCfg.Path)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Opened analysis history", zap.String("path", historyCfg.Path))
	return store, nil
}

package factory

import (
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/utils"
	"go.uber.org/zap"
)

// TextProcessorFactory creates text processors and message parsers
type TextProcessorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTextProcessorFactory creates a new TextProcessorFactory
func NewTextProcessorFactory(cfg *config.Config, logger *zap.Logger) *TextProcessorFactory {
	return &TextProcessorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateTextProcessor creates a new TextProcessor
func (f *TextProcessorFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}

// CreateParser creates an RFC 822 parser using the configured snippet length
func (f *TextProcessorFactory) CreateParser(tp *utils.TextProcessor) *rfc822.Parser {
	return rfc822.NewParser(tp, f.cfg.GetInt("source.snippet_length"))
}

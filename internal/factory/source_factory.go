package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mail-trust-filter/internal/adapters/gmail"
	"github.com/mikey/mail-trust-filter/internal/adapters/imap"
	"github.com/mikey/mail-trust-filter/internal/adapters/mbox"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// SourceFactory creates message sources based on configuration
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
	parser *rfc822.Parser
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger, parser *rfc822.Parser) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
		parser: parser,
	}
}

// CreateMessageSource creates the configured message source
func (f *SourceFactory) CreateMessageSource(ctx context.Context) (core.MessageSource, error) {
	sourceCfg, err := f.cfg.GetSource()
	if err != nil {
		return nil, err
	}

	switch sourceCfg.Type {
	case "gmail":
		gmailCfg := f.cfg.GetGmail()
		svc, err := gmail.NewService(ctx, gmailCfg, f.logger)
		if err != nil {
			return nil, err
		}
		return gmail.NewSource(svc, gmail.Options{
			User:          gmailCfg.User,
			Query:         gmailCfg.Query,
			RetryAttempts: sourceCfg.RetryAttempts,
			RetryBackoff:  sourceCfg.RetryBackoff,
		}, f.logger), nil
	case "imap":
		imapCfg := f.cfg.GetIMAP()
		if imapCfg.Host == "" {
			return nil, fmt.Errorf("imap.host is required for the imap source")
		}
		return imap.NewSource(imapCfg, nil, f.parser, f.logger), nil
	case "mbox":
		mboxCfg := f.cfg.GetMbox()
		if mboxCfg.Path == "" {
			return nil, fmt.Errorf("mbox.path is required for the mbox source")
		}
		return mbox.NewSource(mboxCfg.Path, f.parser, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceCfg.Type)
	}
}

package factory

import (
	"fmt"
	"io"
	"os"

	"github.com/mikey/mail-trust-filter/internal/adapters/filter"
	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/allowlist"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.TrustService
	parser  *rfc822.Parser
	out     io.Writer
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.TrustService, parser *rfc822.Parser) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
		parser:  parser,
		out:     os.Stdout,
	}
}

// CreateEmailFilter creates an email filter based on the configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	serverCfg := f.cfg.GetServer()

	switch serverCfg.FilterType {
	case "postfix":
		checker := allowlist.NewChecker(serverCfg.AllowlistedDomains, f.logger)
		return filter.NewPostfixFilter(f.service, f.parser, checker, f.logger, serverCfg), nil
	case "http":
		return filter.NewHTTPFilter(f.service, f.parser, f.logger, serverCfg.HTTPAddress), nil
	case "cli":
		return filter.NewCliFilter(f.service, f.logger, f.out,
			f.cfg.GetString("cli.output"), f.cfg.GetBool("cli.verbose"))
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", serverCfg.FilterType)
	}
}

package allowlist

import (
	"strings"

	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// Checker decides whether a sender's domain is exempt from rejection
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new allowlist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			normalized[domain] = struct{}{}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized allowlist checker", zap.Int("domains", len(normalized)))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// IsAllowed reports whether the sender of a From header value is allowlisted.
// Subdomains of an allowlisted domain are allowed too.
func (c *Checker) IsAllowed(from string) bool {
	if len(c.domains) == 0 {
		return false
	}

	domain := strings.ToLower(core.SenderDomain(core.SenderAddress(from)))
	for domain != "" {
		if _, ok := c.domains[domain]; ok {
			if c.logger != nil {
				c.logger.Debug("Sender domain is allowlisted",
					zap.String("domain", domain),
					zap.String("sender", from))
			}
			return true
		}
		_, parent, found := strings.Cut(domain, ".")
		if !found {
			break
		}
		domain = parent
	}

	return false
}

// Len returns the number of allowlisted domains
func (c *Checker) Len() int {
	return len(c.domains)
}

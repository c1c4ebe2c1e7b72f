package ports

import (
	"context"

	"github.com/mikey/mail-trust-filter/internal/core"
)

// EmailFilter defines the interface for the filter front ends
type EmailFilter interface {
	// ProcessMessage scores a message and returns its verdict
	ProcessMessage(ctx context.Context, msg *core.RawMessage) (*core.Verdict, error)

	// Start starts the filter
	Start() error

	// Stop stops the filter
	Stop() error
}

package core

import (
	"context"
)

// MessageSource lists and fetches messages from a mailbox
type MessageSource interface {
	// ListMessageIDs returns up to max message IDs, newest first
	ListMessageIDs(ctx context.Context, max int) ([]string, error)

	// GetMessage fetches a single message by ID
	GetMessage(ctx context.Context, id string) (*RawMessage, error)
}

// VerdictCache defines the interface for caching verdicts by message fingerprint
type VerdictCache interface {
	// Get retrieves a cached entry by key
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// HistoryRepository records verdicts and queries past analyses
type HistoryRepository interface {
	Record(ctx context.Context, entry HistoryEntry) error
	List(ctx context.Context, query HistoryQuery) ([]HistoryEntry, error)
	Close() error
}

// Explainer produces a prose explanation of an existing verdict
type Explainer interface {
	Explain(ctx context.Context, msg RawMessage, verdict Verdict) (string, error)
}

package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNoSource is returned when a scan is requested without a message source
var ErrNoSource = errors.New("no message source configured")

// ErrHistoryDisabled is returned when history is queried but not configured
var ErrHistoryDisabled = errors.New("analysis history is disabled")

// ServiceOptions tunes the trust service
type ServiceOptions struct {
	CacheEnabled      bool
	CacheTTL          time.Duration
	HistoryEnabled    bool
	DefaultMaxResults int
	MaxResultsCap     int
	Concurrency       int
}

// TrustService is the core service for scoring messages
type TrustService struct {
	analyzer  *Analyzer
	source    MessageSource
	cache     VerdictCache
	history   HistoryRepository
	explainer Explainer
	logger    *zap.Logger
	opts      ServiceOptions
	now       func() time.Time
}

// NewTrustService creates a new trust service.
// Source, cache, history and explainer may be nil.
func NewTrustService(
	analyzer *Analyzer,
	source MessageSource,
	cache VerdictCache,
	history HistoryRepository,
	explainer Explainer,
	logger *zap.Logger,
	opts ServiceOptions,
) *TrustService {
	if analyzer == nil {
		analyzer = defaultAnalyzer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if explainer == nil {
		explainer = NewStaticExplainer(analyzer)
	}
	if cache == nil {
		opts.CacheEnabled = false
	}
	if history == nil {
		opts.HistoryEnabled = false
	}
	if opts.DefaultMaxResults <= 0 {
		opts.DefaultMaxResults = 10
	}
	if opts.MaxResultsCap <= 0 {
		opts.MaxResultsCap = 20
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}

	return &TrustService{
		analyzer:  analyzer,
		source:    source,
		cache:     cache,
		history:   history,
		explainer: explainer,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// AnalyzeMessage scores one message, consulting the cache first.
// Cache and history are keyed by the message fingerprint.
func (s *TrustService) AnalyzeMessage(ctx context.Context, msg RawMessage) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	key := msg.Fingerprint()

	// Check cache if enabled
	if s.opts.CacheEnabled {
		if entry, err := s.cache.Get(ctx, key); err == nil {
			s.logger.Debug("Cache hit for message", zap.String("message_id", msg.ID))
			return entry.Verdict, nil
		}
	}

	verdict := s.analyzer.Analyze(msg)
	s.logger.Debug("Analyzed message",
		zap.String("message_id", msg.ID),
		zap.Int("trust_score", verdict.TrustScore),
		zap.String("category", string(verdict.Category)),
		zap.String("threat_level", string(verdict.ThreatLevel)))

	now := s.now()

	// Update cache with result if enabled
	if s.opts.CacheEnabled {
		entry := &CacheEntry{
			Key:       key,
			Verdict:   verdict,
			CachedAt:  now,
			ExpiresAt: now.Add(s.opts.CacheTTL),
		}
		if err := s.cache.Set(ctx, entry); err != nil {
			s.logger.Error("Failed to update cache", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	if s.opts.HistoryEnabled {
		if err := s.history.Record(ctx, HistoryEntry{Key: key, Verdict: verdict, AnalyzedAt: now}); err != nil {
			s.logger.Error("Failed to record history", zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	return verdict, nil
}

// ScanInbox fetches up to maxResults messages and scores them.
// Messages that cannot be fetched are skipped; the rest keep list order.
func (s *TrustService) ScanInbox(ctx context.Context, maxResults int) (*ScanResult, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}

	limit := s.ResolveMaxResults(maxResults)
	ids, err := s.source.ListMessageIDs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	results := make([]*Verdict, len(ids))
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup

	for i, id := range ids {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() { <-sem }()

			msg, err := s.source.GetMessage(ctx, id)
			if err != nil {
				s.logger.Warn("Failed to fetch message", zap.String("message_id", id), zap.Error(err))
				return
			}
			verdict, err := s.AnalyzeMessage(ctx, *msg)
			if err != nil {
				return
			}
			results[i] = &verdict
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verdicts := make([]Verdict, 0, len(results))
	for _, v := range results {
		if v != nil {
			verdicts = append(verdicts, *v)
		}
	}

	result := &ScanResult{
		Verdicts:     verdicts,
		TotalFetched: len(verdicts),
		Stats:        Summarize(verdicts),
		ScannedAt:    s.now(),
	}

	s.logger.Info("Scanned inbox",
		zap.Int("listed", len(ids)),
		zap.Int("analyzed", result.TotalFetched),
		zap.Int("threats", result.Stats.ThreatCount),
		zap.Int("average_trust_score", result.Stats.AverageTrustScore))

	return result, nil
}

// ResolveMaxResults applies the default and the cap to a requested page size
func (s *TrustService) ResolveMaxResults(requested int) int {
	if requested <= 0 {
		requested = s.opts.DefaultMaxResults
	}
	if requested > s.opts.MaxResultsCap {
		requested = s.opts.MaxResultsCap
	}
	return requested
}

// History queries past analyses
func (s *TrustService) History(ctx context.Context, query HistoryQuery) ([]HistoryEntry, error) {
	if !s.opts.HistoryEnabled {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, query)
}

// Narrate explains a verdict in prose, falling back to the static breakdown
func (s *TrustService) Narrate(ctx context.Context, msg RawMessage, verdict Verdict) string {
	text, err := s.explainer.Explain(ctx, msg, verdict)
	if err == nil && strings.TrimSpace(text) != "" {
		return text
	}
	if err != nil {
		s.logger.Warn("Explainer failed, using score breakdown",
			zap.String("message_id", msg.ID), zap.Error(err))
	}
	return FormatBreakdown(verdict, s.analyzer.Evaluate(msg).Contributions)
}

// StaticExplainer explains a verdict by replaying the rules that produced it
type StaticExplainer struct {
	analyzer *Analyzer
}

// NewStaticExplainer creates an explainer backed by the rule tables
func NewStaticExplainer(analyzer *Analyzer) *StaticExplainer {
	if analyzer == nil {
		analyzer = defaultAnalyzer
	}
	return &StaticExplainer{analyzer: analyzer}
}

// Explain implements Explainer
func (e *StaticExplainer) Explain(_ context.Context, msg RawMessage, verdict Verdict) (string, error) {
	return FormatBreakdown(verdict, e.analyzer.Evaluate(msg).Contributions), nil
}

// FormatBreakdown renders a verdict headline followed by one line per contribution
func FormatBreakdown(verdict Verdict, contributions []ScoreContribution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trust score %d/100 (%s, %s)\n", verdict.TrustScore, verdict.ThreatLevel, verdict.Category)
	fmt.Fprintf(&b, "  %+4d  %s\n", baseTrustScore, "Base score")
	for _, c := range contributions {
		fmt.Fprintf(&b, "  %+4d  %s\n", c.Delta, c.Label)
	}
	return b.String()
}

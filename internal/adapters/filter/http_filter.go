package filter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mikey/mail-trust-filter/internal/adapters/rfc822"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// Messages returned to API clients
const (
	msgNoEmails        = "No emails found in your inbox."
	msgAuthExpired     = "Gmail access token expired. Please sign out and sign in again."
	msgAccessDenied    = "Gmail API access denied. Make sure you granted permission to read your emails."
	msgRateLimited     = "Gmail API rate limit exceeded. Please try again in a few minutes."
	msgFetchFailed     = "Failed to fetch emails from Gmail API"
	msgNoSource        = "No message source configured"
	msgHistoryDisabled = "Analysis history is disabled"
)

// maxUploadSize bounds the body of POST /api/analyze
const maxUploadSize = 30 * 1024 * 1024

// isoLayout renders timestamps the way browsers print Date.toISOString
const isoLayout = "2006-01-02T15:04:05.000Z"

// HTTPFilter serves verdicts over a JSON API
type HTTPFilter struct {
	service *core.TrustService
	parser  *rfc822.Parser
	logger  *zap.Logger
	addr    string
	server  *http.Server
	now     func() time.Time
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type emailsResponse struct {
	Emails       []core.Verdict `json:"emails"`
	Message      string         `json:"message,omitempty"`
	TotalFetched int            `json:"totalFetched"`
	Stats        core.Stats     `json:"stats"`
	Timestamp    string         `json:"timestamp"`
}

type historyItem struct {
	core.Verdict
	AnalyzedAt string `json:"analyzedAt"`
}

type historyResponse struct {
	Entries []historyItem `json:"entries"`
	Stats   core.Stats    `json:"stats"`
}

type analyzeResponse struct {
	Email       core.Verdict `json:"email"`
	Explanation string       `json:"explanation,omitempty"`
}

// NewHTTPFilter creates a new HTTP API filter
func NewHTTPFilter(service *core.TrustService, parser *rfc822.Parser, logger *zap.Logger, addr string) *HTTPFilter {
	if parser == nil {
		parser = rfc822.NewParser(nil, 0)
	}
	return &HTTPFilter{
		service: service,
		parser:  parser,
		logger:  logger,
		addr:    addr,
		now:     time.Now,
	}
}

// Handler returns the API routes
func (f *HTTPFilter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/emails", f.handleEmails)
	mux.HandleFunc("GET /api/history", f.handleHistory)
	mux.HandleFunc("POST /api/analyze", f.handleAnalyze)
	return mux
}

// Start starts the HTTP listener
func (f *HTTPFilter) Start() error {
	f.server = &http.Server{
		Addr:              f.addr,
		Handler:           f.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	f.logger.Info("HTTP filter starting", zap.String("address", f.addr))

	go func() {
		if err := f.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the HTTP listener down
func (f *HTTPFilter) Stop() error {
	if f.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return f.server.Shutdown(ctx)
}

// ProcessMessage scores a message
func (f *HTTPFilter) ProcessMessage(ctx context.Context, msg *core.RawMessage) (*core.Verdict, error) {
	verdict, err := f.service.AnalyzeMessage(ctx, *msg)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (f *HTTPFilter) handleEmails(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	maxResults, err := strconv.Atoi(q.Get("maxResults"))
	if err != nil {
		maxResults = 0
	}
	f.logger.Debug("Fetching emails", zap.Int("max_results", f.service.ResolveMaxResults(maxResults)))

	result, err := f.service.ScanInbox(r.Context(), maxResults)
	if err != nil {
		f.writeScanError(w, err)
		return
	}

	resp := emailsResponse{
		Emails:       []core.Verdict{},
		TotalFetched: result.TotalFetched,
		Stats:        result.Stats,
		Timestamp:    result.ScannedAt.UTC().Format(isoLayout),
	}
	if len(result.Verdicts) == 0 {
		resp.Message = msgNoEmails
		writeJSON(w, http.StatusOK, resp)
		return
	}

	verdicts := core.FilterByCategory(result.Verdicts, q.Get("category"))
	verdicts = core.FilterByTrust(verdicts, q.Get("trust"))
	verdicts = core.Search(verdicts, q.Get("search"))
	if sortBy := q.Get("sort"); sortBy != "" {
		verdicts = core.Sort(verdicts, sortBy)
	}
	if verdicts != nil {
		resp.Emails = verdicts
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeScanError maps provider failures onto the API's status codes
func (f *HTTPFilter) writeScanError(w http.ResponseWriter, err error) {
	f.logger.Error("Failed to scan inbox", zap.Error(err))

	switch {
	case errors.Is(err, core.ErrAuthExpired):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: msgAuthExpired})
	case errors.Is(err, core.ErrPermissionDenied):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: msgAccessDenied})
	case errors.Is(err, core.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: msgRateLimited})
	case errors.Is(err, core.ErrNoSource):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: msgNoSource})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgFetchFailed, Details: err.Error()})
	}
}

func (f *HTTPFilter) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := f.service.History(r.Context(), core.HistoryQuery{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		SortBy:   q.Get("sort"),
		Limit:    limit,
	})
	if errors.Is(err, core.ErrHistoryDisabled) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: msgHistoryDisabled})
		return
	}
	if err != nil {
		f.logger.Error("Failed to query history", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to query history", Details: err.Error()})
		return
	}

	resp := historyResponse{Entries: make([]historyItem, 0, len(entries))}
	verdicts := make([]core.Verdict, 0, len(entries))
	for _, e := range entries {
		resp.Entries = append(resp.Entries, historyItem{Verdict: e.Verdict, AnalyzedAt: e.AnalyzedAt.UTC().Format(isoLayout)})
		verdicts = append(verdicts, e.Verdict)
	}
	resp.Stats = core.Summarize(verdicts)
	writeJSON(w, http.StatusOK, resp)
}

func (f *HTTPFilter) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxUploadSize)
	defer body.Close()

	id := r.URL.Query().Get("id")
	msg, err := f.parser.Parse(body, id, f.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to parse message", Details: err.Error()})
		return
	}
	if msg.ID == "" {
		msg.ID = lookupHeader(msg, "Message-Id")
	}

	verdict, err := f.ProcessMessage(r.Context(), msg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to analyze message", Details: err.Error()})
		return
	}

	resp := analyzeResponse{Email: *verdict}
	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain {
		resp.Explanation = f.service.Narrate(r.Context(), *msg, *verdict)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

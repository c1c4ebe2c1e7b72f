package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-trust-filter/internal/adapters/cache"
	"github.com/mikey/mail-trust-filter/internal/adapters/history"
	"github.com/mikey/mail-trust-filter/internal/allowlist"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

const threatMessage = "From: Netflix <billing@suspicious-domain.com>\r\n" +
	"To: alice@example.com\r\n" +
	"Subject: Your Netflix subscription is expiring\r\n" +
	"Message-Id: <threat-1@suspicious-domain.com>\r\n" +
	"\r\n" +
	"Click here immediately to avoid suspension\r\n"

const safeMessage = "From: GitHub <noreply@github.com>\r\n" +
	"To: alice@example.com\r\n" +
	"Subject: Build passed\r\n" +
	"\r\n" +
	"All checks passed on main.\r\n"

var testHeaders = config.HeaderNames{
	Score:    "X-Trust-Score",
	Category: "X-Trust-Category",
	Threat:   "X-Threat-Level",
	Flags:    "X-Trust-Flags",
}

func newService() *core.TrustService {
	return core.NewTrustService(nil, nil, nil, nil, nil, zap.NewNop(), core.ServiceOptions{})
}

type delivery struct {
	sender     string
	recipients []string
	data       []byte
}

func newPostfix(t *testing.T, cfg config.ServerConfig, allowed ...string) (*PostfixFilter, *[]delivery) {
	t.Helper()
	return newPostfixWith(t, newService(), cfg, allowed...)
}

func newPostfixWith(t *testing.T, svc *core.TrustService, cfg config.ServerConfig, allowed ...string) (*PostfixFilter, *[]delivery) {
	t.Helper()
	cfg.Headers = testHeaders
	cfg.Postfix.Enabled = true
	f := NewPostfixFilter(svc, nil, allowlist.NewChecker(allowed, zap.NewNop()), zap.NewNop(), cfg)
	var sent []delivery
	f.deliver = func(sender string, recipients []string, data []byte) error {
		sent = append(sent, delivery{sender, recipients, data})
		return nil
	}
	return f, &sent
}

func send(t *testing.T, f *PostfixFilter, from, raw string) error {
	t.Helper()
	sess, err := (&smtpBackend{filter: f}).NewSession(nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Logout()
	if err := sess.Mail(from, nil); err != nil {
		t.Fatalf("Mail: %v", err)
	}
	if err := sess.Rcpt("alice@example.com", nil); err != nil {
		t.Fatalf("Rcpt: %v", err)
	}
	return sess.Data(strings.NewReader(raw))
}

func TestAnnotateMessage(t *testing.T) {
	raw := "From: a@b.c\r\nX-Trust-Score: 100\r\nSubject: Hello\r\n world\r\n\r\nBody\r\n"
	got := string(annotateMessage([]byte(raw), []core.Header{{Name: "X-Trust-Score", Value: "10"}}, "[P] "))
	want := "X-Trust-Score: 10\r\nFrom: a@b.c\r\nSubject: [P] Hello\r\n world\r\n\r\nBody\r\n"
	if got != want {
		t.Errorf("annotateMessage =\n%q\nwant\n%q", got, want)
	}
}

func TestAnnotateMessageEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		prefix string
		want   string
	}{
		{
			name:   "lf line endings",
			raw:    "Subject: hi\n\nbody\n",
			prefix: "",
			want:   "X-Test: v\nSubject: hi\n\nbody\n",
		},
		{
			name:   "prefix already present",
			raw:    "Subject: [P] hi\r\n\r\nbody",
			prefix: "[P] ",
			want:   "X-Test: v\r\nSubject: [P] hi\r\n\r\nbody",
		},
		{
			name:   "missing subject",
			raw:    "From: a@b.c\r\n\r\nbody",
			prefix: "[P] ",
			want:   "X-Test: v\r\nFrom: a@b.c\r\nSubject: [P]\r\n\r\nbody",
		},
		{
			name:   "headers only",
			raw:    "From: a@b.c\r\n",
			prefix: "",
			want:   "X-Test: v\r\nFrom: a@b.c\r\n\r\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := string(annotateMessage([]byte(tc.raw), []core.Header{{Name: "X-Test", Value: "v"}}, tc.prefix))
			if got != tc.want {
				t.Errorf("got %q; want %q", got, tc.want)
			}
		})
	}
}

func TestHeaderValueStripsNewlines(t *testing.T) {
	if got := headerValue("a\r\nInjected: yes"); got != "a Injected: yes" {
		t.Errorf("headerValue = %q", got)
	}
}

func TestPostfixAnnotatesSafeMessage(t *testing.T) {
	f, sent := newPostfix(t, config.ServerConfig{BlockThreats: true, ModifySubject: true})
	if err := send(t, f, "noreply@github.com", safeMessage); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("deliveries = %d; want 1", len(*sent))
	}
	d := (*sent)[0]
	if d.sender != "noreply@github.com" || len(d.recipients) != 1 {
		t.Errorf("envelope = %q %v", d.sender, d.recipients)
	}
	out := string(d.data)
	for _, want := range []string{"X-Trust-Score: 85\r\n", "X-Threat-Level: Safe\r\n", "X-Trust-Category: Updates\r\n", "Subject: Build passed\r\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "\r\n\r\nAll checks passed on main.\r\n") {
		t.Errorf("body not preserved:\n%s", out)
	}
}

func TestPostfixRejectsUltraThreat(t *testing.T) {
	f, sent := newPostfix(t, config.ServerConfig{BlockThreats: true})
	err := send(t, f, "billing@suspicious-domain.com", threatMessage)

	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		t.Fatalf("Data error = %v; want *smtp.SMTPError", err)
	}
	if smtpErr.Code != 550 || smtpErr.EnhancedCode != (smtp.EnhancedCode{5, 7, 1}) {
		t.Errorf("reply = %d %v", smtpErr.Code, smtpErr.EnhancedCode)
	}
	if len(*sent) != 0 {
		t.Errorf("rejected message was delivered")
	}
}

func TestPostfixReusedMessageIDStillRejectsThreat(t *testing.T) {
	verdicts := cache.NewMemoryCache(zap.NewNop(), 0)
	defer verdicts.Stop()
	svc := core.NewTrustService(nil, nil, verdicts, nil, nil, zap.NewNop(), core.ServiceOptions{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	})
	f, sent := newPostfixWith(t, svc, config.ServerConfig{BlockThreats: true})

	benign := "Message-Id: <x@evil>\r\n" + safeMessage
	threat := strings.Replace(threatMessage, "<threat-1@suspicious-domain.com>", "<x@evil>", 1)

	if err := send(t, f, "noreply@github.com", benign); err != nil {
		t.Fatalf("benign Data: %v", err)
	}
	err := send(t, f, "billing@suspicious-domain.com", threat)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
		t.Fatalf("threat Data error = %v; want 550", err)
	}
	if len(*sent) != 1 {
		t.Errorf("deliveries = %d; want 1", len(*sent))
	}
}

func TestPostfixRecordsMessagesWithoutID(t *testing.T) {
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	svc := core.NewTrustService(nil, nil, nil, store, nil, zap.NewNop(), core.ServiceOptions{HistoryEnabled: true})
	f, _ := newPostfixWith(t, svc, config.ServerConfig{})

	other := strings.Replace(safeMessage, "Build passed", "Deploy finished", 1)
	for _, raw := range []string{safeMessage, other} {
		if err := send(t, f, "noreply@github.com", raw); err != nil {
			t.Fatalf("Data: %v", err)
		}
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Fatalf("history rows = %d; want 2", n)
	}
}

func TestPostfixAllowlistedThreatIsTagged(t *testing.T) {
	f, sent := newPostfix(t, config.ServerConfig{BlockThreats: true, ModifySubject: true}, "suspicious-domain.com")
	if err := send(t, f, "billing@suspicious-domain.com", threatMessage); err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("deliveries = %d; want 1", len(*sent))
	}
	out := string((*sent)[0].data)
	for _, want := range []string{
		"X-Trust-Score: 0\r\n",
		"X-Threat-Level: Ultra Threat\r\n",
		"Subject: " + DefaultSubjectPrefix + "Your Netflix subscription is expiring\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPostfixDeliveryFailureIsTemporary(t *testing.T) {
	f, _ := newPostfix(t, config.ServerConfig{})
	f.deliver = func(string, []string, []byte) error { return errors.New("connection refused") }

	err := send(t, f, "noreply@github.com", safeMessage)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 451 {
		t.Fatalf("Data error = %v; want 451", err)
	}
}

func TestCliFilterFormats(t *testing.T) {
	msg := &core.RawMessage{
		ID:      "1",
		Snippet: "All checks passed",
		Headers: []core.Header{{Name: "From", Value: "noreply@github.com"}, {Name: "Subject", Value: "Build passed"}},
	}

	var text bytes.Buffer
	f, err := NewCliFilter(newService(), zap.NewNop(), &text, "", true)
	if err != nil {
		t.Fatalf("NewCliFilter: %v", err)
	}
	if _, err := f.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	for _, want := range []string{"Trust score: 85/100", "Threat level: Safe", "Base score"} {
		if !strings.Contains(text.String(), want) {
			t.Errorf("text output missing %q:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	f, _ = NewCliFilter(newService(), zap.NewNop(), &js, FormatJSON, false)
	if _, err := f.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	var v core.Verdict
	if err := json.Unmarshal(js.Bytes(), &v); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if v.TrustScore != 85 || v.ThreatLevel != core.ThreatSafe {
		t.Errorf("json verdict = %+v", v)
	}

	var yml bytes.Buffer
	f, _ = NewCliFilter(newService(), zap.NewNop(), &yml, FormatYAML, false)
	if _, err := f.ProcessMessage(context.Background(), msg); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !strings.Contains(yml.String(), "trustScore: 85") {
		t.Errorf("yaml output = %s", yml.String())
	}

	if _, err := NewCliFilter(newService(), zap.NewNop(), &text, "xml", false); err == nil {
		t.Error("expected error for unsupported format")
	}
}

type fakeSource struct {
	msgs    map[string]core.RawMessage
	ids     []string
	listErr error
}

func (s *fakeSource) ListMessageIDs(_ context.Context, max int) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.ids) > max {
		return s.ids[:max], nil
	}
	return s.ids, nil
}

func (s *fakeSource) GetMessage(_ context.Context, id string) (*core.RawMessage, error) {
	m, ok := s.msgs[id]
	if !ok {
		return nil, core.ClassifyStatus("get", 404, errors.New("not found"))
	}
	return &m, nil
}

func apiFilter(src core.MessageSource) *HTTPFilter {
	svc := core.NewTrustService(nil, src, nil, nil, nil, zap.NewNop(), core.ServiceOptions{})
	return NewHTTPFilter(svc, nil, zap.NewNop(), "127.0.0.1:0")
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
	}
	return rec, body
}

func TestEmailsEndpoint(t *testing.T) {
	src := &fakeSource{
		ids: []string{"safe", "threat", "gone"},
		msgs: map[string]core.RawMessage{
			"safe": {ID: "safe", InternalDate: "1700000000000", Headers: []core.Header{
				{Name: "From", Value: "noreply@github.com"}, {Name: "Subject", Value: "Build passed"}}},
			"threat": {ID: "threat", InternalDate: "1700000000000", Snippet: "Click here immediately to avoid suspension", Headers: []core.Header{
				{Name: "From", Value: "billing@suspicious-domain.com"}, {Name: "Subject", Value: "Your Netflix subscription is expiring"}}},
		},
	}
	h := apiFilter(src).Handler()

	rec, body := get(t, h, "/api/emails?maxResults=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["totalFetched"].(float64) != 2 {
		t.Errorf("totalFetched = %v", body["totalFetched"])
	}
	emails := body["emails"].([]interface{})
	if len(emails) != 2 || emails[0].(map[string]interface{})["id"] != "safe" {
		t.Errorf("emails = %v", emails)
	}
	stats := body["stats"].(map[string]interface{})
	if stats["threatCount"].(float64) != 1 || stats["averageTrustScore"].(float64) != 43 {
		t.Errorf("stats = %v", stats)
	}
	if _, ok := body["timestamp"].(string); !ok {
		t.Errorf("timestamp missing")
	}

	_, body = get(t, h, "/api/emails?category=threats")
	if emails := body["emails"].([]interface{}); len(emails) != 1 {
		t.Errorf("threats = %v", emails)
	}
}

func TestEmailsEndpointEmptyInbox(t *testing.T) {
	rec, body := get(t, apiFilter(&fakeSource{}).Handler(), "/api/emails")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["message"] != msgNoEmails {
		t.Errorf("message = %v", body["message"])
	}
	if emails, ok := body["emails"].([]interface{}); !ok || len(emails) != 0 {
		t.Errorf("emails = %v; want empty list", body["emails"])
	}
}

func TestEmailsEndpointErrors(t *testing.T) {
	tests := []struct {
		status int
		want   int
		msg    string
	}{
		{401, http.StatusUnauthorized, msgAuthExpired},
		{403, http.StatusForbidden, msgAccessDenied},
		{429, http.StatusTooManyRequests, msgRateLimited},
		{500, http.StatusInternalServerError, msgFetchFailed},
	}
	for _, tc := range tests {
		src := &fakeSource{listErr: core.ClassifyStatus("list", tc.status, errors.New("boom"))}
		rec, body := get(t, apiFilter(src).Handler(), "/api/emails")
		if rec.Code != tc.want || body["error"] != tc.msg {
			t.Errorf("upstream %d: got %d %v", tc.status, rec.Code, body["error"])
		}
		if tc.want == http.StatusInternalServerError && body["details"] == nil {
			t.Errorf("upstream %d: details missing", tc.status)
		}
	}

	rec, _ := get(t, apiFilter(nil).Handler(), "/api/emails")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no source: status = %d", rec.Code)
	}
}

func TestHistoryEndpointDisabled(t *testing.T) {
	rec, body := get(t, apiFilter(&fakeSource{}).Handler(), "/api/history")
	if rec.Code != http.StatusNotFound || body["error"] != msgHistoryDisabled {
		t.Errorf("got %d %v", rec.Code, body)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := apiFilter(nil).Handler()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze?explain=true", strings.NewReader(threatMessage))
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Email       core.Verdict `json:"email"`
		Explanation string       `json:"explanation"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Email.ID != "<threat-1@suspicious-domain.com>" {
		t.Errorf("id = %q", resp.Email.ID)
	}
	if resp.Email.ThreatLevel != core.ThreatUltra || resp.Email.TrustScore != 0 {
		t.Errorf("verdict = %+v", resp.Email)
	}
	if !strings.Contains(resp.Explanation, "Suspicious Domain") {
		t.Errorf("explanation = %q", resp.Explanation)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/analyze = %d", rec.Code)
	}
}

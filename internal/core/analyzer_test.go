package core

import (
	"reflect"
	"testing"
	"time"
)

func msg(id, from, subject, snippet string) RawMessage {
	m := RawMessage{ID: id, Snippet: snippet, InternalDate: "1700000000000"}
	if subject != "" {
		m.Headers = append(m.Headers, Header{Name: "Subject", Value: subject})
	}
	if from != "" {
		m.Headers = append(m.Headers, Header{Name: "From", Value: from})
	}
	return m
}

func TestAnalyze_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		msg      RawMessage
		score    int
		category Category
		threat   ThreatLevel
		flags    []string
	}{
		{
			name:     "trusted automated sender",
			msg:      msg("1", "GitHub <noreply@github.com>", "New sign-in", "A new device signed in"),
			score:    85,
			category: CategoryUpdates,
			threat:   ThreatSafe,
			flags:    []string{FlagVerifiedSender, FlagAutomatedSender, FlagServiceUpdate, FlagLegitimateDomain},
		},
		{
			name:     "two phishing phrases",
			msg:      msg("2", "security@example.org", "Account notice", "Please verify account and confirm identity"),
			score:    20,
			category: CategorySuspicious,
			threat:   ThreatUltra,
			flags:    []string{FlagPhishingAttempt, FlagPhishingAttempt},
		},
		{
			name:     "suspicious domain with urgent content",
			msg:      msg("3", "Netflix <billing@suspicious-domain.com>", "Your Netflix subscription is expiring", "Click here immediately to avoid suspension"),
			score:    0,
			category: CategorySuspicious,
			threat:   ThreatUltra,
			flags:    []string{FlagSuspiciousDomain, FlagPhishingAttempt, FlagSuspiciousContent, FlagUrgentLanguage},
		},
		{
			name:     "promotion with unsubscribe",
			msg:      msg("4", "deals@shop.example", "Weekend deal", "Great deal on shoes. Unsubscribe anytime."),
			score:    50,
			category: CategoryPromotions,
			threat:   ThreatSafe,
			flags:    []string{FlagPromotionalContent},
		},
		{
			name:     "promotion without unsubscribe",
			msg:      msg("5", "deals@shop.example", "Weekend deal", "Great deal on shoes."),
			score:    35,
			category: CategoryPromotions,
			threat:   ThreatSuspicious,
			flags:    []string{FlagMissingUnsubscribe, FlagPromotionalContent},
		},
		{
			name:     "social wins over promotions",
			msg:      msg("6", "LinkedIn <messages@linkedin.com>", "A deal for you", "Premium offer"),
			score:    65,
			category: CategorySocial,
			threat:   ThreatSafe,
			flags:    []string{FlagVerifiedSender, FlagMissingUnsubscribe, FlagSocialPlatform},
		},
		{
			name:     "plain message",
			msg:      msg("7", "alice@example.com", "Lunch", "See you at noon"),
			score:    50,
			category: CategoryUpdates,
			threat:   ThreatSafe,
			flags:    []string{FlagStandardEmail},
		},
		{
			name:     "many suspicious keywords from trusted domain",
			msg:      msg("8", "friend@gmail.com", "Winner", "congratulations, claim it"),
			score:    56,
			category: CategoryUpdates,
			threat:   ThreatSuspicious,
			flags:    []string{FlagVerifiedSender, FlagSuspiciousContent},
		},
		{
			name:     "urgency word matched inside another word",
			msg:      msg("9", "bob@example.com", "Unknown caller", "left a message"),
			score:    40,
			category: CategoryUpdates,
			threat:   ThreatSafe,
			flags:    []string{FlagUrgentLanguage},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Analyze(tc.msg)
			if v.TrustScore != tc.score {
				t.Errorf("TrustScore = %d; want %d", v.TrustScore, tc.score)
			}
			if v.Category != tc.category {
				t.Errorf("Category = %q; want %q", v.Category, tc.category)
			}
			if v.ThreatLevel != tc.threat {
				t.Errorf("ThreatLevel = %q; want %q", v.ThreatLevel, tc.threat)
			}
			if !reflect.DeepEqual(v.Flags, tc.flags) {
				t.Errorf("Flags = %v; want %v", v.Flags, tc.flags)
			}
			if v.ID != tc.msg.ID || v.Snippet != tc.msg.Snippet {
				t.Errorf("id/snippet not copied: %+v", v)
			}
		})
	}
}

func TestAnalyze_ContributionsAndRawScore(t *testing.T) {
	ev := NewAnalyzer(time.UTC, "").Evaluate(
		msg("3", "billing@suspicious-domain.com", "Your Netflix subscription is expiring", "Click here immediately to avoid suspension"))

	if ev.RawScore != -23 {
		t.Fatalf("RawScore = %d; want -23", ev.RawScore)
	}
	if ev.SuspiciousCount != 1 || ev.PhishingCount != 1 {
		t.Fatalf("counts = %d/%d; want 1/1", ev.SuspiciousCount, ev.PhishingCount)
	}
	want := []ScoreContribution{
		{Label: FlagSuspiciousDomain, Delta: -40},
		{Label: "Suspicious keyword: click here", Delta: -8},
		{Label: "Phishing keyword: avoid suspension", Delta: -15},
		{Label: FlagUrgentLanguage, Delta: -10},
	}
	if !reflect.DeepEqual(ev.Contributions, want) {
		t.Fatalf("Contributions = %+v; want %+v", ev.Contributions, want)
	}
	if ev.SenderDomain != "suspicious-domain.com" {
		t.Fatalf("SenderDomain = %q", ev.SenderDomain)
	}
}

func TestAnalyze_MissingHeaders(t *testing.T) {
	v := Analyze(RawMessage{ID: "x"})
	if v.Subject != NoSubject {
		t.Errorf("Subject = %q; want %q", v.Subject, NoSubject)
	}
	if v.Sender != UnknownSender {
		t.Errorf("Sender = %q; want %q", v.Sender, UnknownSender)
	}
	if v.Timestamp != InvalidDate {
		t.Errorf("Timestamp = %q; want %q", v.Timestamp, InvalidDate)
	}
	if !v.ReceivedAt.IsZero() {
		t.Errorf("ReceivedAt = %v; want zero", v.ReceivedAt)
	}
	if !reflect.DeepEqual(v.Flags, []string{FlagStandardEmail}) {
		t.Errorf("Flags = %v", v.Flags)
	}
}

func TestAnalyze_FirstHeaderWins(t *testing.T) {
	m := RawMessage{Headers: []Header{
		{Name: "subject", Value: "lowercase name is ignored"},
		{Name: "Subject", Value: "first"},
		{Name: "Subject", Value: "second"},
		{Name: "From", Value: "a@example.com"},
	}}
	if got := Analyze(m).Subject; got != "first" {
		t.Fatalf("Subject = %q; want %q", got, "first")
	}
}

func TestAnalyze_SuspiciousDomainCaseSensitive(t *testing.T) {
	if v := Analyze(msg("1", "x@my-suspicious-mail.com", "hi", "")); v.Flags[0] != FlagSuspiciousDomain {
		t.Errorf("lowercase domain not flagged: %v", v.Flags)
	}
	if v := Analyze(msg("2", "x@SUSPICIOUS-mail.com", "hi", "")); v.Flags[0] == FlagSuspiciousDomain {
		t.Errorf("uppercase domain flagged: %v", v.Flags)
	}
}

func TestAnalyze_Timestamp(t *testing.T) {
	v := Analyze(msg("1", "a@example.com", "hi", ""))
	if v.Timestamp != "11/14/2023, 10:13:20 PM" {
		t.Errorf("Timestamp = %q", v.Timestamp)
	}
	if !v.ReceivedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("ReceivedAt = %v", v.ReceivedAt)
	}

	loc := time.FixedZone("UTC+2", 2*60*60)
	v = NewAnalyzer(loc, time.RFC3339).Analyze(msg("1", "a@example.com", "hi", ""))
	if v.Timestamp != "2023-11-15T00:13:20+02:00" {
		t.Errorf("Timestamp = %q", v.Timestamp)
	}

	m := msg("1", "a@example.com", "hi", "")
	m.InternalDate = "not-a-number"
	if v := Analyze(m); v.Timestamp != InvalidDate {
		t.Errorf("Timestamp = %q; want %q", v.Timestamp, InvalidDate)
	}
}

func TestAnalyze_Properties(t *testing.T) {
	subjects := []string{"", "urgent winner prize lottery", "verify account confirm identity update payment", "deal offer sale", "hello"}
	senders := []string{"", "noreply@github.com", "a@fake-bank.net", "x@suspicious.io", "Name <b@linkedin.com>", "garbage"}
	snippets := []string{"", "click here act now", "security alert unusual activity avoid suspension", "unsubscribe"}

	for _, s := range subjects {
		for _, f := range senders {
			for _, sn := range snippets {
				m := msg("p", f, s, sn)
				v := Analyze(m)
				if v.TrustScore < 0 || v.TrustScore > 100 {
					t.Fatalf("score out of range for %q/%q/%q: %d", f, s, sn, v.TrustScore)
				}
				if len(v.Flags) == 0 {
					t.Fatalf("empty flags for %q/%q/%q", f, s, sn)
				}
				if again := Analyze(m); !reflect.DeepEqual(v, again) {
					t.Fatalf("not idempotent for %q/%q/%q", f, s, sn)
				}
			}
		}
	}
}

func TestSenderAddress(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Name" <user@example.com>`, "user@example.com"},
		{`user@example.com`, "user@example.com"},
		{`Contact: user@example.com (work)`, "user@example.com"},
		{`nobody`, "nobody"},
		{`Unknown Sender`, "Unknown Sender"},
	}
	for _, tc := range tests {
		if got := SenderAddress(tc.in); got != tc.want {
			t.Errorf("SenderAddress(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestSenderDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "example.com"},
		{"a@b@c", "b@c"},
		{"nobody", ""},
		{"user@", ""},
	}
	for _, tc := range tests {
		if got := SenderDomain(tc.in); got != tc.want {
			t.Errorf("SenderDomain(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestExplain(t *testing.T) {
	v := Verdict{Flags: []string{FlagVerifiedSender, FlagPhishingAttempt, FlagPhishingAttempt, FlagSocialPlatform, FlagAutomatedSender}}
	want := []ScoreContribution{
		{Label: FlagVerifiedSender, Delta: 30},
		{Label: FlagPhishingAttempt, Delta: -15},
		{Label: FlagPhishingAttempt, Delta: -15},
		{Label: FlagAutomatedSender, Delta: 5},
	}
	if got := Explain(v); !reflect.DeepEqual(got, want) {
		t.Fatalf("Explain = %+v; want %+v", got, want)
	}
}

func TestEncodeDecodeVerdict(t *testing.T) {
	v := Analyze(msg("1", "noreply@github.com", "New sign-in", "A new device signed in"))
	data, err := EncodeVerdict(v)
	if err != nil {
		t.Fatalf("EncodeVerdict: %v", err)
	}
	got, err := DecodeVerdict(data)
	if err != nil {
		t.Fatalf("DecodeVerdict: %v", err)
	}
	if !got.ReceivedAt.Equal(v.ReceivedAt) {
		t.Fatalf("ReceivedAt = %v; want %v", got.ReceivedAt, v.ReceivedAt)
	}
	got.ReceivedAt = v.ReceivedAt
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("decoded = %+v; want %+v", got, v)
	}
}

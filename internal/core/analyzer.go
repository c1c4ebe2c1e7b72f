package core

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimestampLayout renders timestamps the way an en-US locale does
const DefaultTimestampLayout = "1/2/2006, 3:04:05 PM"

var (
	angleAddrPattern = regexp.MustCompile(`<(.+)>`)
	bareAddrPattern  = regexp.MustCompile(`(\S+@\S+)`)
)

// ScoreContribution is one signal that moved the trust score
type ScoreContribution struct {
	Label string `json:"label" yaml:"label"`
	Delta int    `json:"delta" yaml:"delta"`
}

// Evaluation is a verdict together with the signals that produced it
type Evaluation struct {
	Verdict         Verdict
	SenderAddress   string
	SenderDomain    string
	Contributions   []ScoreContribution
	RawScore        int
	SuspiciousCount int
	PhishingCount   int
}

// Analyzer scores messages against the static rule tables.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	loc    *time.Location
	layout string
}

// NewAnalyzer creates an analyzer rendering timestamps in loc with layout
func NewAnalyzer(loc *time.Location, layout string) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return &Analyzer{loc: loc, layout: layout}
}

var defaultAnalyzer = NewAnalyzer(time.UTC, DefaultTimestampLayout)

// Analyze scores a message with UTC timestamps and the default layout
func Analyze(msg RawMessage) Verdict {
	return defaultAnalyzer.Analyze(msg)
}

// Analyze computes the verdict for a message
func (a *Analyzer) Analyze(msg RawMessage) Verdict {
	return a.Evaluate(msg).Verdict
}

// Evaluate runs every rule group in order and records each contribution
func (a *Analyzer) Evaluate(msg RawMessage) Evaluation {
	subject, ok := msg.Header("Subject")
	if !ok || subject == "" {
		subject = NoSubject
	}
	from, ok := msg.Header("From")
	if !ok || from == "" {
		from = UnknownSender
	}

	address := SenderAddress(from)
	domain := SenderDomain(address)

	ev := Evaluation{SenderAddress: address, SenderDomain: domain}
	score := baseTrustScore
	var flags []string

	apply := func(label string, delta int) {
		score += delta
		ev.Contributions = append(ev.Contributions, ScoreContribution{Label: label, Delta: delta})
	}

	// Domain reputation
	if isTrustedDomain(domain) {
		apply(FlagVerifiedSender, trustedDomainBonus)
		flags = append(flags, FlagVerifiedSender)
	} else if isSuspiciousDomain(domain) || strings.Contains(domain, "suspicious") {
		apply(FlagSuspiciousDomain, suspiciousDomainPenalty)
		flags = append(flags, FlagSuspiciousDomain)
	}

	content := strings.ToLower(subject + " " + msg.Snippet)

	for _, keyword := range suspiciousKeywords {
		if strings.Contains(content, keyword) {
			ev.SuspiciousCount++
			apply("Suspicious keyword: "+keyword, suspiciousKeywordCost)
		}
	}

	for _, keyword := range phishingKeywords {
		if strings.Contains(content, keyword) {
			ev.PhishingCount++
			apply("Phishing keyword: "+keyword, phishingKeywordCost)
			flags = append(flags, FlagPhishingAttempt)
		}
	}

	if ev.SuspiciousCount > 0 {
		flags = append(flags, FlagSuspiciousContent)
	}

	if containsAny(content, urgencyWords) {
		apply(FlagUrgentLanguage, urgencyPenalty)
		flags = append(flags, FlagUrgentLanguage)
	}

	if strings.Contains(address, "noreply") || strings.Contains(address, "no-reply") {
		apply(FlagAutomatedSender, automatedSenderBonus)
		flags = append(flags, FlagAutomatedSender)
	}

	if !strings.Contains(content, "unsubscribe") &&
		(strings.Contains(content, "offer") || strings.Contains(content, "deal")) {
		apply(FlagMissingUnsubscribe, missingUnsubscribeCost)
		flags = append(flags, FlagMissingUnsubscribe)
	}

	ev.RawScore = score
	score = clamp(score, minTrustScore, maxTrustScore)

	var category Category
	switch {
	case isSocialDomain(domain):
		category = CategorySocial
		flags = append(flags, FlagSocialPlatform)
	case containsAny(content, promotionalWords):
		category = CategoryPromotions
		flags = append(flags, FlagPromotionalContent)
	case score < suspiciousThreshold:
		category = CategorySuspicious
	case strings.Contains(domain, "github") || strings.Contains(domain, "google") ||
		strings.Contains(content, "notification"):
		category = CategoryUpdates
		flags = append(flags, FlagServiceUpdate)
	default:
		category = CategoryUpdates
	}

	var threat ThreatLevel
	switch {
	case score < ultraThreshold || ev.PhishingCount > 1:
		threat = ThreatUltra
	case score < suspiciousThreshold || ev.SuspiciousCount > 2:
		threat = ThreatSuspicious
	default:
		threat = ThreatSafe
	}

	if score > legitimateThreshold {
		flags = append(flags, FlagLegitimateDomain)
	}

	if len(flags) == 0 {
		flags = []string{FlagStandardEmail}
	}

	receivedAt, timestamp := a.renderTimestamp(msg.InternalDate)

	ev.Verdict = Verdict{
		ID:          msg.ID,
		Subject:     subject,
		Sender:      from,
		TrustScore:  score,
		Category:    category,
		ThreatLevel: threat,
		Timestamp:   timestamp,
		Snippet:     msg.Snippet,
		Flags:       flags,
		ReceivedAt:  receivedAt,
	}
	return ev
}

// renderTimestamp parses epoch milliseconds; malformed input renders as InvalidDate
func (a *Analyzer) renderTimestamp(internalDate string) (time.Time, string) {
	millis, err := strconv.ParseInt(strings.TrimSpace(internalDate), 10, 64)
	if err != nil {
		return time.Time{}, InvalidDate
	}
	t := time.UnixMilli(millis).In(a.loc)
	return t, t.Format(a.layout)
}

// SenderAddress extracts the bare address from a From header value.
// It prefers text inside angle brackets, then a token@token run, then the whole value.
func SenderAddress(from string) string {
	if m := angleAddrPattern.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	if m := bareAddrPattern.FindStringSubmatch(from); m != nil {
		return m[1]
	}
	return from
}

// SenderDomain returns everything after the first @, or "" when there is none
func SenderDomain(address string) string {
	_, domain, found := strings.Cut(address, "@")
	if !found {
		return ""
	}
	return domain
}

// flagDeltas maps the flags that carry a fixed weight to that weight
var flagDeltas = map[string]int{
	FlagVerifiedSender:     trustedDomainBonus,
	FlagSuspiciousDomain:   suspiciousDomainPenalty,
	FlagPhishingAttempt:    phishingKeywordCost,
	FlagUrgentLanguage:     urgencyPenalty,
	FlagAutomatedSender:    automatedSenderBonus,
	FlagMissingUnsubscribe: missingUnsubscribeCost,
}

// Explain rebuilds the contributions above the base score from the flags of a stored verdict.
// Suspicious keyword hits are not recoverable from flags and are left out.
func Explain(v Verdict) []ScoreContribution {
	var out []ScoreContribution
	for _, flag := range v.Flags {
		if delta, ok := flagDeltas[flag]; ok {
			out = append(out, ScoreContribution{Label: flag, Delta: delta})
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

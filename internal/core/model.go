package core

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Header is a single message header as delivered by the mail provider
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// RawMessage represents a message as handed over by a message source
type RawMessage struct {
	ID      string
	Headers []Header
	Snippet string
	// InternalDate is the receive time in epoch milliseconds, string encoded
	InternalDate string
}

// Fingerprint identifies a message by its ID and every field the analyzer reads.
// Two messages sharing an ID but differing in content get different fingerprints.
func (m RawMessage) Fingerprint() string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(m.ID)
	for _, name := range []string{"Subject", "From", "Date"} {
		if value, ok := m.Header(name); ok {
			write("+" + value)
		} else {
			write("-")
		}
	}
	write(m.Snippet)
	write(m.InternalDate)
	return hex.EncodeToString(h.Sum(nil))
}

// Header returns the value of the first header whose name matches exactly
func (m RawMessage) Header(name string) (string, bool) {
	for _, h := range m.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// Category is the content classification of a message
type Category string

const (
	CategorySocial     Category = "Social"
	CategoryPromotions Category = "Promotions"
	CategoryUpdates    Category = "Updates"
	CategorySuspicious Category = "Suspicious"
)

// ThreatLevel is the coarse risk bucket of a message
type ThreatLevel string

const (
	ThreatSafe       ThreatLevel = "Safe"
	ThreatSuspicious ThreatLevel = "Suspicious"
	ThreatUltra      ThreatLevel = "Ultra Threat"
)

// Rank orders threat levels from least to most severe
func (t ThreatLevel) Rank() int {
	switch t {
	case ThreatUltra:
		return 3
	case ThreatSuspicious:
		return 2
	case ThreatSafe:
		return 1
	default:
		return 0
	}
}

// Verdict represents the result of analyzing a single message
type Verdict struct {
	ID          string      `json:"id" yaml:"id"`
	Subject     string      `json:"subject" yaml:"subject"`
	Sender      string      `json:"sender" yaml:"sender"`
	TrustScore  int         `json:"trustScore" yaml:"trustScore"`
	Category    Category    `json:"category" yaml:"category"`
	ThreatLevel ThreatLevel `json:"threatLevel" yaml:"threatLevel"`
	Timestamp   string      `json:"timestamp" yaml:"timestamp"`
	Snippet     string      `json:"snippet" yaml:"snippet"`
	Flags       []string    `json:"flags" yaml:"flags"`

	// ReceivedAt is the parsed internal date, zero when it could not be parsed
	ReceivedAt time.Time `json:"-" yaml:"-"`
}

// IsThreat reports whether the verdict is anything other than Safe
func (v Verdict) IsThreat() bool {
	return v.ThreatLevel != ThreatSafe
}

// CacheEntry is a cached verdict keyed by message fingerprint
type CacheEntry struct {
	Key       string
	Verdict   Verdict
	CachedAt  time.Time
	ExpiresAt time.Time
}

// HistoryEntry is a verdict recorded in the analysis history.
// Key is the message fingerprint; entries sharing a key replace each other.
type HistoryEntry struct {
	Key        string
	Verdict    Verdict
	AnalyzedAt time.Time
}

// HistoryQuery selects entries from the analysis history
type HistoryQuery struct {
	Search   string
	Category string
	SortBy   string
	Limit    int
}

// Stats aggregates a list of verdicts
type Stats struct {
	Total             int `json:"total" yaml:"total"`
	ThreatCount       int `json:"threatCount" yaml:"threatCount"`
	AverageTrustScore int `json:"averageTrustScore" yaml:"averageTrustScore"`
}

// ScanResult is the outcome of scanning an inbox
type ScanResult struct {
	Verdicts     []Verdict
	TotalFetched int
	Stats        Stats
	ScannedAt    time.Time
}

type verdictRecord struct {
	Verdict
	ReceivedAtMillis int64 `json:"receivedAtMillis,omitempty"`
}

// EncodeVerdict serializes a verdict for storage, keeping ReceivedAt
func EncodeVerdict(v Verdict) ([]byte, error) {
	rec := verdictRecord{Verdict: v}
	if !v.ReceivedAt.IsZero() {
		rec.ReceivedAtMillis = v.ReceivedAt.UnixMilli()
	}
	return json.Marshal(rec)
}

// DecodeVerdict restores a verdict written by EncodeVerdict
func DecodeVerdict(data []byte) (Verdict, error) {
	var rec verdictRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Verdict{}, err
	}
	v := rec.Verdict
	if rec.ReceivedAtMillis != 0 {
		v.ReceivedAt = time.UnixMilli(rec.ReceivedAtMillis).UTC()
	}
	return v, nil
}

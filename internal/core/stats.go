package core

import (
	"math"
	"sort"
	"strings"
)

// Category filters
const (
	FilterAll     = "all"
	FilterThreats = "threats"
)

// Trust bands
const (
	BandAll        = "all"
	BandLowTrust   = "low-trust"
	BandMildThreat = "mild-threat"
	BandThreat     = "threat"
)

// Sort keys
const (
	SortByDate   = "date"
	SortByTrust  = "trust"
	SortByThreat = "threat"
)

// Summarize reduces verdicts to the dashboard counters
func Summarize(verdicts []Verdict) Stats {
	stats := Stats{Total: len(verdicts)}
	if len(verdicts) == 0 {
		return stats
	}

	sum := 0
	for _, v := range verdicts {
		sum += v.TrustScore
		if v.IsThreat() {
			stats.ThreatCount++
		}
	}
	stats.AverageTrustScore = int(math.Round(float64(sum) / float64(len(verdicts))))
	return stats
}

// FilterByCategory keeps verdicts in the named category.
// "all" keeps everything, "threats" keeps anything not Safe.
func FilterByCategory(verdicts []Verdict, name string) []Verdict {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, FilterAll) {
		return verdicts
	}
	return filter(verdicts, func(v Verdict) bool {
		if strings.EqualFold(name, FilterThreats) {
			return v.IsThreat()
		}
		return strings.EqualFold(string(v.Category), name)
	})
}

// FilterByTrust keeps verdicts whose score falls in the named band
func FilterByTrust(verdicts []Verdict, band string) []Verdict {
	switch strings.ToLower(strings.TrimSpace(band)) {
	case BandLowTrust:
		return filter(verdicts, func(v Verdict) bool { return v.TrustScore < 50 })
	case BandMildThreat:
		return filter(verdicts, func(v Verdict) bool { return v.TrustScore >= 40 && v.TrustScore < 50 })
	case BandThreat:
		return filter(verdicts, func(v Verdict) bool { return v.TrustScore < 40 })
	default:
		return verdicts
	}
}

// Search keeps verdicts whose subject or sender contains term, ignoring case
func Search(verdicts []Verdict, term string) []Verdict {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return verdicts
	}
	return filter(verdicts, func(v Verdict) bool {
		return strings.Contains(strings.ToLower(v.Subject), term) ||
			strings.Contains(strings.ToLower(v.Sender), term)
	})
}

// Sort returns a copy of verdicts ordered by the given key.
// Unknown keys leave the order unchanged.
func Sort(verdicts []Verdict, by string) []Verdict {
	out := make([]Verdict, len(verdicts))
	copy(out, verdicts)

	var less func(a, b Verdict) bool
	switch strings.ToLower(by) {
	case SortByDate:
		less = func(a, b Verdict) bool { return a.ReceivedAt.After(b.ReceivedAt) }
	case SortByTrust:
		less = func(a, b Verdict) bool { return a.TrustScore > b.TrustScore }
	case SortByThreat:
		less = func(a, b Verdict) bool { return a.ThreatLevel.Rank() > b.ThreatLevel.Rank() }
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func filter(verdicts []Verdict, keep func(Verdict) bool) []Verdict {
	out := make([]Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

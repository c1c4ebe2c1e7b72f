package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/mikey/mail-trust-filter/internal/adapters/filter"
	"github.com/mikey/mail-trust-filter/internal/core"
)

// printVerdicts writes one row per verdict
func printVerdicts(out io.Writer, verdicts []core.Verdict) {
	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tSCORE\tTHREAT\tCATEGORY\tFROM\tSUBJECT")
	for _, v := range verdicts {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			v.ID, v.Timestamp, v.TrustScore, v.ThreatLevel, v.Category,
			truncate(v.Sender, 40), truncate(v.Subject, 60))
	}
	_ = tw.Flush()
}

// printStats writes the dashboard counters
func printStats(out io.Writer, stats core.Stats) {
	fmt.Fprintf(out, "Total: %d  Threats: %d  Average trust score: %d\n",
		stats.Total, stats.ThreatCount, stats.AverageTrustScore)
}

// writeOutput encodes value for the json and yaml formats
func writeOutput(out io.Writer, format string, value interface{}) error {
	return filter.WriteStructured(out, format, value)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

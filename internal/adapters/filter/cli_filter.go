package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// CliFilter analyzes single messages and prints the verdict
type CliFilter struct {
	service *core.TrustService
	logger  *zap.Logger
	out     io.Writer
	format  string
	verbose bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.TrustService, logger *zap.Logger, out io.Writer, format string, verbose bool) (*CliFilter, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	return &CliFilter{
		service: service,
		logger:  logger,
		out:     out,
		format:  format,
		verbose: verbose,
	}, nil
}

// ProcessMessage analyzes a message and writes the result
func (f *CliFilter) ProcessMessage(ctx context.Context, msg *core.RawMessage) (*core.Verdict, error) {
	f.logger.Debug("Processing message", zap.String("message_id", msg.ID))

	startTime := time.Now()
	verdict, err := f.service.AnalyzeMessage(ctx, *msg)
	if err != nil {
		f.logger.Error("Failed to analyze message", zap.Error(err))
		return nil, err
	}
	duration := time.Since(startTime)

	if f.format != FormatText {
		return &verdict, WriteStructured(f.out, f.format, verdict)
	}

	WriteVerdictText(f.out, verdict)
	if f.verbose {
		fmt.Fprintf(f.out, "\n=== Explanation ===\n%s", f.service.Narrate(ctx, *msg, verdict))
		fmt.Fprintf(f.out, "\nProcessing time: %v\n", duration)
	}
	return &verdict, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

// WriteVerdictText prints a verdict as a human readable block
func WriteVerdictText(w io.Writer, v core.Verdict) {
	fmt.Fprintf(w, "\n=== Message ===\n")
	fmt.Fprintf(w, "From: %s\n", v.Sender)
	fmt.Fprintf(w, "Subject: %s\n", v.Subject)
	fmt.Fprintf(w, "Received: %s\n", v.Timestamp)
	if v.Snippet != "" {
		fmt.Fprintf(w, "Snippet: %s\n", v.Snippet)
	}

	fmt.Fprintf(w, "\n=== Verdict ===\n")
	fmt.Fprintf(w, "Trust score: %d/100\n", v.TrustScore)
	fmt.Fprintf(w, "Category: %s\n", v.Category)
	fmt.Fprintf(w, "Threat level: %s\n", v.ThreatLevel)
	fmt.Fprintf(w, "Flags: %s\n", strings.Join(v.Flags, ", "))
}

// WriteStructured encodes value as json or yaml
func WriteStructured(w io.Writer, format string, value interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

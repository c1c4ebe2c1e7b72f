package filter

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
)

// AnalysisErrorHeader marks messages that were forwarded without a verdict
const AnalysisErrorHeader = "X-Trust-Analysis-Error"

// splitMessage separates the header block from the body and reports the line ending in use
func splitMessage(raw []byte) (header, body []byte, eol string) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+2], raw[i+4:], "\r\n"
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+1], raw[i+2:], "\n"
	}
	eol = "\r\n"
	if !bytes.Contains(raw, []byte("\r\n")) && bytes.Contains(raw, []byte("\n")) {
		eol = "\n"
	}
	return raw, nil, eol
}

// headerField is one header including its folded continuation lines
type headerField struct {
	name  string
	lines []string
}

// parseFields splits a header block into fields, keeping the original text of each line
func parseFields(header []byte, eol string) []headerField {
	var fields []headerField
	for _, line := range strings.Split(strings.TrimSuffix(string(header), eol), eol) {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(fields) > 0 {
			last := &fields[len(fields)-1]
			last.lines = append(last.lines, line)
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		fields = append(fields, headerField{name: strings.TrimSpace(name), lines: []string{line}})
	}
	return fields
}

// headerValue strips newlines so a value cannot start a new header
func headerValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// verdictHeaders renders the trust headers for a verdict
func verdictHeaders(names config.HeaderNames, v *core.Verdict) []core.Header {
	flags := "none"
	if len(v.Flags) > 0 {
		flags = strings.Join(v.Flags, ", ")
	}
	return []core.Header{
		{Name: names.Score, Value: fmt.Sprintf("%d", v.TrustScore)},
		{Name: names.Category, Value: string(v.Category)},
		{Name: names.Threat, Value: string(v.ThreatLevel)},
		{Name: names.Flags, Value: flags},
	}
}

// annotateMessage prepends the given headers to raw, dropping any existing
// copies of them, and prefixes the subject when subjectPrefix is set.
// The body is passed through untouched.
func annotateMessage(raw []byte, add []core.Header, subjectPrefix string) []byte {
	header, body, eol := splitMessage(raw)

	replaced := make(map[string]bool, len(add))
	for _, h := range add {
		if h.Name != "" {
			replaced[strings.ToLower(h.Name)] = true
		}
	}

	var out bytes.Buffer
	for _, h := range add {
		if h.Name == "" {
			continue
		}
		out.WriteString(h.Name + ": " + headerValue(h.Value) + eol)
	}

	sawSubject := false
	for _, f := range parseFields(header, eol) {
		lower := strings.ToLower(f.name)
		if replaced[lower] {
			continue
		}
		if lower == "subject" && !sawSubject {
			sawSubject = true
			f.lines[0] = prefixSubject(f.lines[0], subjectPrefix)
		}
		for _, line := range f.lines {
			out.WriteString(line + eol)
		}
	}
	if !sawSubject && subjectPrefix != "" {
		out.WriteString("Subject: " + strings.TrimSpace(subjectPrefix) + eol)
	}

	out.WriteString(eol)
	out.Write(body)
	return out.Bytes()
}

// prefixSubject inserts prefix in front of a Subject line value unless it is already there
func prefixSubject(line, prefix string) string {
	if prefix == "" {
		return line
	}
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimLeft(value, " \t")
	if strings.HasPrefix(value, prefix) {
		return line
	}
	return name + ": " + prefix + value
}

// lookupHeader finds a header by name, ignoring case
func lookupHeader(msg *core.RawMessage, name string) string {
	for _, h := range msg.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

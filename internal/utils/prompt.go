package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/mail-trust-filter/internal/core"
)

// ErrEmptyExplanation is returned when a model reply carries no summary
var ErrEmptyExplanation = errors.New("model returned an empty explanation")

const explainPromptFormat = `You are assisting an email security dashboard. A deterministic rule engine has already scored the email below.
Do not change its verdict. Explain the verdict to a non-technical reader in two or three sentences.
Respond with a JSON object containing:
- summary: string (the explanation)

Verdict:
Trust score: %d/100
Category: %s
Threat level: %s
Flags: %s

Email:
From: %s
Subject: %s
Snippet:
%s

Respond only with the JSON object and nothing else.`

// ExplanationReply is the structured reply expected from a model
type ExplanationReply struct {
	Summary string `json:"summary"`
}

// BuildExplainPrompt renders the prompt sent to every explainer model
func (tp *TextProcessor) BuildExplainPrompt(msg core.RawMessage, verdict core.Verdict, maxBodySize int) string {
	snippet := tp.ProcessText(msg.Snippet, maxBodySize)
	return fmt.Sprintf(explainPromptFormat,
		verdict.TrustScore,
		verdict.Category,
		verdict.ThreatLevel,
		strings.Join(verdict.Flags, ", "),
		verdict.Sender,
		verdict.Subject,
		snippet)
}

// ParseExplanation extracts the summary from a model reply.
// Replies that are not JSON are used verbatim.
func ParseExplanation(text string) (string, error) {
	var reply ExplanationReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		obj, ok := ExtractJSONObject(text)
		if !ok || json.Unmarshal([]byte(obj), &reply) != nil {
			reply.Summary = text
		}
	}
	summary := strings.TrimSpace(reply.Summary)
	if summary == "" {
		return "", ErrEmptyExplanation
	}
	return summary, nil
}

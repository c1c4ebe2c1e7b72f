package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-trust-filter/internal/config"
	"go.uber.org/zap"
)

func TestResponseText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text(`{"summary": `),
				genai.Text(`"Looks legitimate."}`),
			}},
		}},
	}
	got, err := responseText(resp)
	if err != nil {
		t.Fatalf("responseText: %v", err)
	}
	if got != `{"summary": "Looks legitimate."}` {
		t.Errorf("responseText = %q", got)
	}
}

func TestResponseTextEmpty(t *testing.T) {
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
		{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
	} {
		if _, err := responseText(resp); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("responseText(%+v) err = %v; want ErrEmptyResponse", resp, err)
		}
	}
}

func TestNewExplainerRequiresKey(t *testing.T) {
	if _, err := NewExplainer(context.Background(), config.GeminiConfig{}, zap.NewNop(), nil); err == nil {
		t.Error("expected error without API key")
	}
}

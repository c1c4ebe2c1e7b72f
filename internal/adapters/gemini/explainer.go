package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrEmptyResponse is returned when Gemini produces no candidates
var ErrEmptyResponse = errors.New("empty response from Gemini")

// Explainer narrates verdicts with Google Gemini
type Explainer struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	cfg           config.GeminiConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExplainer creates a new Gemini explainer
func NewExplainer(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) (*Explainer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"

	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}

	return &Explainer{
		client:        client,
		model:         model,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (e *Explainer) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Explain implements core.Explainer
func (e *Explainer) Explain(ctx context.Context, msg core.RawMessage, verdict core.Verdict) (string, error) {
	prompt := e.textProcessor.BuildExplainPrompt(msg, verdict, e.cfg.MaxBodySize)

	resp, err := e.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	e.logger.Debug("Gemini explanation received",
		zap.String("message_id", msg.ID),
		zap.String("model", e.cfg.ModelName))

	return utils.ParseExplanation(text)
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

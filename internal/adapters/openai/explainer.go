package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = "You explain email security verdicts. Respond only with JSON."

// Explainer narrates verdicts with the OpenAI chat completion API
type Explainer struct {
	client        *openai.Client
	cfg           config.OpenAIConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExplainer creates a new OpenAI explainer
func NewExplainer(client *openai.Client, cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Explainer {
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &Explainer{
		client:        client,
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Explain implements core.Explainer
func (e *Explainer) Explain(ctx context.Context, msg core.RawMessage, verdict core.Verdict) (string, error) {
	prompt := e.textProcessor.BuildExplainPrompt(msg, verdict, e.cfg.MaxBodySize)

	req := openai.ChatCompletionRequest{
		Model: e.cfg.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from OpenAI")
	}

	e.logger.Debug("OpenAI explanation received",
		zap.String("message_id", msg.ID),
		zap.String("model", e.cfg.ModelName),
		zap.String("completion_id", resp.ID))

	return utils.ParseExplanation(resp.Choices[0].Message.Content)
}

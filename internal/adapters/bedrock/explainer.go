package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/utils"
	"go.uber.org/zap"
)

// InvokeModelAPI is the part of the Bedrock runtime client the explainer uses
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Explainer narrates verdicts with a model hosted on Amazon Bedrock
type Explainer struct {
	client        InvokeModelAPI
	cfg           config.BedrockConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExplainer creates a new Bedrock explainer
func NewExplainer(client InvokeModelAPI, cfg config.BedrockConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Explainer {
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

	payload, err := e.requestBody(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.cfg.ModelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	text, err := e.responseText(resp.Body)
	if err != nil {
		return "", err
	}

	e.logger.Debug("Bedrock explanation received",
		zap.String("message_id", msg.ID),
		zap.String("model", e.cfg.ModelID))

	return utils.ParseExplanation(text)
}

// requestBody builds the model specific invocation payload
func (e *Explainer) requestBody(prompt string) ([]byte, error) {
	switch {
	case e.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
			"max_tokens_to_sample": e.cfg.MaxTokens,
			"temperature":          e.cfg.Temperature,
			"top_p":                e.cfg.TopP,
		})
	case e.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": e.cfg.MaxTokens,
				"temperature":   e.cfg.Temperature,
				"topP":          e.cfg.TopP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  e.cfg.MaxTokens,
			"temperature": e.cfg.Temperature,
			"top_p":       e.cfg.TopP,
		})
	}
}

// responseText extracts the generated text from a model specific response body
func (e *Explainer) responseText(body []byte) (string, error) {
	switch {
	case e.isAnthropicModel():
		var resp struct {
			Completion string `json:"completion"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		return resp.Completion, nil
	case e.isAmazonTitanModel():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		switch {
		case resp.Output != "":
			return resp.Output, nil
		case resp.Text != "":
			return resp.Text, nil
		case resp.Response != "":
			return resp.Response, nil
		default:
			return string(body), nil
		}
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (e *Explainer) isAnthropicModel() bool {
	return strings.HasPrefix(e.cfg.ModelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (e *Explainer) isAmazonTitanModel() bool {
	return strings.HasPrefix(e.cfg.ModelID, "amazon.titan")
}

package factory

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/mail-trust-filter/internal/adapters/bedrock"
	"github.com/mikey/mail-trust-filter/internal/adapters/gemini"
	"github.com/mikey/mail-trust-filter/internal/adapters/openai"
	"github.com/mikey/mail-trust-filter/internal/config"
	"github.com/mikey/mail-trust-filter/internal/core"
	"github.com/mikey/mail-trust-filter/internal/utils"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ExplainerFactory creates verdict explainers
type ExplainerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewExplainerFactory creates a new explainer factory
func NewExplainerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *ExplainerFactory {
	return &ExplainerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateExplainer creates the configured explainer.
// The "none" provider returns nil so the service falls back to the score breakdown.
func (f *ExplainerFactory) CreateExplainer(ctx context.Context) (core.Explainer, error) {
	provider := f.cfg.GetExplainer().Provider

	switch provider {
	case "", "none":
		return nil, nil
	case "bedrock":
		return f.createBedrock(ctx)
	case "gemini":
		return gemini.NewExplainer(ctx, f.cfg.GetGemini(), f.logger, f.textProcessor)
	case "openai":
		return f.createOpenAI()
	default:
		return nil, fmt.Errorf("unsupported explainer provider: %s", provider)
	}
}

func (f *ExplainerFactory) createBedrock(ctx context.Context) (core.Explainer, error) {
	bedrockCfg := f.cfg.GetBedrock()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(bedrockCfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg)
	return bedrock.NewExplainer(client, bedrockCfg, f.logger, f.textProcessor), nil
}

func (f *ExplainerFactory) createOpenAI() (core.Explainer, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	client := goopenai.NewClient(openaiCfg.APIKey)
	return openai.NewExplainer(client, openaiCfg, f.logger, f.textProcessor), nil
}

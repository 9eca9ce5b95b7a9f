// Package llm wraps the inference service: provider selection, error
// classification, retries and JSON extraction.
package llm

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completion is the outcome of one outbound generation call.
type Completion struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Generator performs exactly one outbound generation call per Generate.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, jsonMode bool) (*Completion, error)
	Model() string
}

// Model wraps a langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg config.Config) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, &Error{Kind: KindInvalidKey, Err: errors.New("OpenAI API key required")}
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, &Error{Kind: KindInvalidKey, Err: errors.New("Anthropic API key required")}
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModelFromLLM(model, cfg.LLMModel), nil
}

// NewModelFromLLM wraps an existing langchaingo model.
func NewModelFromLLM(model llms.Model, name string) *Model {
	return &Model{llm: model, modelName: name}
}

// Generate sends one request with an optional system prompt.
func (m *Model) Generate(ctx context.Context, system, prompt string, jsonMode bool) (*Completion, error) {
	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	var opts []llms.CallOption
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, &Error{Kind: KindMalformed, Err: errors.New("no response choices")}
	}

	choice := response.Choices[0]
	return &Completion{
		Text:         choice.Content,
		InputTokens:  tokenCount(choice.GenerationInfo, "PromptTokens", "InputTokens", "prompt_tokens"),
		OutputTokens: tokenCount(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "completion_tokens"),
	}, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// tokenCount reads the first present usage key. Providers disagree on
// both the key and the numeric type.
func tokenCount(info map[string]any, keys ...string) int64 {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// newOllama constructs a ChatModel backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	host := cfg.Ollama.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		BaseURL: host,
		Model:   cfg.Ollama.Model,
	})
}

// newOpenAI constructs a ChatModel backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
}

// newAzure constructs a ChatModel backed by Azure OpenAI Service.
func newAzure(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	azCfg := &einoopenai.ChatModelConfig{
		Model:      cfg.AzureOpenAI.Deployment,
		APIKey:     cfg.AzureOpenAI.APIKey,
		BaseURL:    cfg.AzureOpenAI.Endpoint,
		ByAzure:    true,
		APIVersion: cfg.AzureOpenAI.APIVersion,
		MaxTokens:  &maxTokens,
		// Use the deployment name as-is — the default mapper strips dots/colons
		// which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	// o-series and codex deployments reject the temperature parameter.
	if !isAzureReasoningModel(cfg.AzureOpenAI.Deployment) {
		temp := cfg.Tuning.Temperature
		azCfg.Temperature = &temp
	}
	return einoopenai.NewChatModel(ctx, azCfg) //nolint:wrapcheck // constructor passthrough
}

// newBedrock constructs a ChatModel for AWS Bedrock via an ark-compatible
// endpoint. AWS credentials are resolved via the standard SDK credential
// chain (env vars, ~/.aws/credentials, instance profile, etc.).
func newBedrock(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{ //nolint:wrapcheck // constructor passthrough
		Model:       cfg.Bedrock.ModelID,
		APIKey:      cfg.Bedrock.APIKey,
		BaseURL:     cfg.Bedrock.Endpoint,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
}

// newGemini constructs a ChatModel backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.ToolCallingChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	return einogemini.NewChatModel(ctx, &einogemini.Config{ //nolint:wrapcheck // constructor passthrough
		Client: client,
		Model:  cfg.Gemini.Model,
	})
}

// Package llm provides the generation gateway: a narrow Generator contract
// over an eino ChatModel so the chat layer depends on "prompt in, completion
// out" and nothing else.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator produces one completion for one prompt, synchronously.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate returns the model's completion for the given prompt.
	// The call blocks until the full response is available or ctx is done.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ChatModelGenerator implements Generator on top of an eino ChatModel.
// The prompt is sent as a single user message; system instructions are
// expected to be part of the assembled prompt text.
type ChatModelGenerator struct {
	// model is the underlying chat model.
	model model.BaseChatModel
}

// NewChatModelGenerator wraps an eino ChatModel as a Generator.
func NewChatModelGenerator(m model.BaseChatModel) (*ChatModelGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("llm: chat model must not be nil")
	}
	return &ChatModelGenerator{model: m}, nil
}

// Generate sends the prompt as a user message and returns the completion text.
func (g *ChatModelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("llm: generation failed: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("llm: model returned nil response")
	}
	return resp.Content, nil
}

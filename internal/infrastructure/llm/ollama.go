package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"

	"DigestRanker/internal/config"
	"DigestRanker/internal/ports"
)

// OllamaGenerator implements ports.TextGenerator over a local Ollama server.
type OllamaGenerator struct {
	llm llms.Model
}

var _ ports.TextGenerator = (*OllamaGenerator)(nil)

// NewOllamaGenerator connects to cfg.Endpoint with cfg.Model.
func NewOllamaGenerator(cfg config.LLMConfig) (*OllamaGenerator, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.Endpoint != "" {
		opts = append(opts, ollama.WithServerURL(cfg.Endpoint))
	}
	model, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewModelGenerator(model), nil
}

// NewModelGenerator adapts any langchaingo model.
func NewModelGenerator(model llms.Model) *OllamaGenerator {
	return &OllamaGenerator{llm: model}
}

// Generate sends a system and a human message and returns the first choice.
func (g *OllamaGenerator) Generate(ctx context.Context, system, input string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, input),
	}

	resp, err := g.llm.GenerateContent(ctx, content)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("generate content: empty response")
	}
	return resp.Choices[0].Content, nil
}

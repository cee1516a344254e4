// internal/inference/langchain.go
package inference

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/fyrsmithlabs/reflectd/internal/config"
)

// LangChainModel adapts a langchaingo model to the Model interface.
//
// Built against any OpenAI-compatible endpoint (OpenAI itself, TEI,
// Ollama, vLLM), which covers every backend the fleet runs.
type LangChainModel struct {
	llm llms.Model
}

// NewLangChainModel wraps an existing langchaingo model.
func NewLangChainModel(llm llms.Model) *LangChainModel {
	return &LangChainModel{llm: llm}
}

// NewOpenAIModel constructs a Model against an OpenAI-compatible endpoint.
func NewOpenAIModel(cfg config.InferenceConfig) (*LangChainModel, error) {
	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		// langchaingo requires a token even for keyless local endpoints.
		apiKey = "placeholder"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(apiKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &LangChainModel{llm: llm}, nil
}

// Complete implements Model.
func (m *LangChainModel) Complete(ctx context.Context, prompt string) (string, error) {
	reply, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt,
		llms.WithTemperature(0.3),
		llms.WithJSONMode(),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return reply, nil
}

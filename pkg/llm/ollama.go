package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	ollama "github.com/jmorganca/ollama/api"
)

// OllamaGenerator sends prompts to a local Ollama instance.
type OllamaGenerator struct {
	model   string
	timeout time.Duration
}

// NewOllamaGenerator creates a generator for the given model. Connection
// details come from the standard OLLAMA_HOST environment.
func NewOllamaGenerator(model string, timeout time.Duration) *OllamaGenerator {
	return &OllamaGenerator{model: model, timeout: timeout}
}

// chatRequest builds a non-streaming request for one prompt exchange.
func (g *OllamaGenerator) chatRequest(system, prompt string) *ollama.ChatRequest {
	messages := []ollama.Message{}
	if system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: system})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: prompt})

	stream := false
	return &ollama.ChatRequest{
		Model:    g.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": 0.1,
			"top_p":       0.9,
		},
	}
}

// Generate sends one chat request and returns the concatenated response text.
func (g *OllamaGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return "", fmt.Errorf("could not create ollama client: %w", err)
	}
	req := g.chatRequest(system, prompt)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var content strings.Builder
	respFunc := func(res ollama.ChatResponse) error {
		content.WriteString(res.Message.Content)
		return nil
	}
	if err := client.Chat(ctx, req, respFunc); err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	if strings.TrimSpace(content.String()) == "" {
		return "", ErrEmptyResponse
	}
	return content.String(), nil
}

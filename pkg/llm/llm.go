package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResponse is returned when the model produced no usable output.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Generator is the text-generation collaborator: prompt in, text out. It may
// fail or time out; callers treat a per-item failure as non-fatal and skip
// the item.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ExtractJSON pulls the JSON payload out of a model response, tolerating
// fenced code blocks and surrounding prose.
func ExtractJSON(response string) (string, error) {
	text := strings.TrimSpace(response)
	if start := strings.Index(text, "```json"); start != -1 {
		text = text[start+len("```json"):]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
		return strings.TrimSpace(text), nil
	}
	if start := strings.Index(text, "```"); start != -1 {
		text = text[start+3:]
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
		return strings.TrimSpace(text), nil
	}
	for _, open := range []byte{'{', '['} {
		close := byte('}')
		if open == '[' {
			close = ']'
		}
		start := strings.IndexByte(text, open)
		end := strings.LastIndexByte(text, close)
		if start != -1 && end > start {
			return text[start : end+1], nil
		}
	}
	return "", fmt.Errorf("no JSON payload found in response")
}

// DecodeJSON extracts and unmarshals the JSON payload of a model response.
func DecodeJSON(response string, v any) error {
	payload, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

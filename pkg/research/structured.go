package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
)

// stripFences removes a surrounding markdown code fence (```json or ```).
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = strings.TrimLeft(text[len("```json"):], " \t\r\n")
	case strings.HasPrefix(text, "```"):
		text = strings.TrimLeft(text[len("```"):], " \t\r\n")
	}
	if strings.HasSuffix(text, "```") {
		text = strings.TrimRight(text[:len(text)-3], " \t\r\n")
	}
	return text
}

// invokeJSON asks the model for a JSON object matching schema and decodes it into T.
// Malformed output is a ParseError.
func invokeJSON[T any](ctx context.Context, llm ports.Invoker, req ports.Request) (T, error) {
	var out T
	resp, err := llm.Invoke(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(stripFences(resp.Text)), &out); err != nil {
		return out, domain.Parse(req.Name, fmt.Errorf("model returned malformed JSON: %w", err))
	}
	return out, nil
}

func invokeText(ctx context.Context, llm ports.Invoker, req ports.Request) (string, error) {
	resp, err := llm.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func human(content string) ports.Message {
	return ports.Message{Role: ports.RoleHuman, Content: content}
}

func assistant(content string) ports.Message {
	return ports.Message{Role: ports.RoleAssistant, Content: content}
}

// JSON Schemas of the structured responses.
var (
	datasetSchemaShape = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"generated_schema": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"key":         map[string]any{"type": "string"},
						"type":        map[string]any{"type": "string", "enum": []any{"string", "number", "array", "boolean"}},
						"description": map[string]any{"type": "string"},
					},
					"required": []any{"key", "type", "description"},
				},
			},
		},
		"required": []any{"generated_schema"},
	}

	sectionsShape = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sections": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"section_name": map[string]any{"type": "string"},
						"sub_sections": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []any{"section_name", "sub_sections"},
				},
			},
		},
		"required": []any{"sections"},
	}

	queriesShape = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"queries": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": map[string]any{"query": map[string]any{"type": "string"}},
					"required":   []any{"query"},
				},
			},
		},
		"required": []any{"queries"},
	}

	feedbackShape = map[string]any{
		"type": "object",
		"properties": map[string]any{
			"feedback": map[string]any{"type": []any{"boolean", "string"}},
		},
		"required": []any{"feedback"},
	}
)

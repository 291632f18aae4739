// Package llm adapts langchaingo chat models to ports.Invoker.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
)

// DefaultOllamaURL is the OpenAI-compatible endpoint of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434/v1"

// Config selects and tunes the chat model.
type Config struct {
	Provider    string // openai or ollama
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
}

// Client implements ports.Invoker on top of a langchaingo model.
type Client struct {
	model       llms.Model
	temperature float64
	logger      *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

// New wraps an existing model.
func New(model llms.Model, opts ...Option) *Client {
	c := &Client{
		model:       model,
		temperature: 0.5,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds an OpenAI-compatible client. Ollama is reached through
// its OpenAI-compatible endpoint.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	options := []openai.Option{openai.WithModel(cfg.Model)}
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		options = append(options, openai.WithToken(cfg.APIKey))
		if cfg.BaseURL != "" {
			options = append(options, openai.WithBaseURL(cfg.BaseURL))
		}
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = DefaultOllamaURL
		}
		options = append(options, openai.WithBaseURL(base), openai.WithToken("ollama"))
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	model, err := openai.New(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", cfg.Provider, err)
	}
	return New(model, append([]Option{WithTemperature(cfg.Temperature)}, opts...)...), nil
}

// Invoke sends the request and returns the first choice.
func (c *Client) Invoke(ctx context.Context, req ports.Request) (ports.Response, error) {
	system := req.System
	callOpts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if req.Schema != nil {
		shape, err := json.Marshal(req.Schema)
		if err != nil {
			return ports.Response{}, fmt.Errorf("invalid response schema: %w", err)
		}
		system += "\n\nRespond with a single JSON object matching this JSON Schema:\n" + string(shape)
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	for _, m := range req.Messages {
		messages = append(messages, llms.TextParts(messageType(m.Role), m.Content))
	}

	resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		c.logger.Warn("model call failed", "node", req.Name, "err", err)
		return ports.Response{}, Classify(req.Name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return ports.Response{}, domain.Transient(req.Name, errors.New("model returned no choices"))
	}
	return ports.Response{Text: resp.Choices[0].Content}, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case ports.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ports.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

var transientHints = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"broken pipe",
	"temporarily unavailable",
	"service unavailable",
	"overloaded",
	"try again",
	"unexpected eof",
}

// Classify marks provider failures that are worth retrying as transient.
// Cancellation is returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	reason := strings.ToLower(err.Error())
	for _, hint := range transientHints {
		if strings.Contains(reason, hint) {
			return domain.Transient(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

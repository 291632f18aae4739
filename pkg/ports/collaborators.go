package ports

import "context"

// Message roles understood by Invoker implementations.
const (
	RoleSystem    = "system"
	RoleHuman     = "human"
	RoleAssistant = "ai"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single model invocation.
type Request struct {
	// Name identifies the calling node, for logs and metrics.
	Name     string
	System   string
	Messages []Message

	// Schema, when set, asks for a JSON object matching this JSON Schema.
	Schema map[string]any
}

// Response is the raw model output.
type Response struct {
	Text string
}

// Invoker is a language-model inference collaborator.
// Implementations classify retryable failures as domain.ErrTransient.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// Searcher is a web-search collaborator.
// It returns the raw text of up to depth results, in ranking order.
type Searcher interface {
	Search(ctx context.Context, query string, depth int) ([]string, error)
}

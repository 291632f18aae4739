package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
)

// Event is one JSON line written by the JSONHandler.
type Event struct {
	Type string `json:"type"` // "review" or "system"
	Prompt
	Message string `json:"message,omitempty"`
}

// JSONHandler implements IOHandler over JSON-lines.
// Answers are read one per line, either as JSON strings or as raw text.
type JSONHandler struct {
	Reader  *bufio.Reader
	Encoder *json.Encoder
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Encoder: enc,
	}
}

func (h *JSONHandler) Output(_ context.Context, p Prompt) error {
	return h.Encoder.Encode(Event{Type: "review", Prompt: p})
}

func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		text = val
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) SystemOutput(_ context.Context, msg string) error {
	return h.Encoder.Encode(Event{Type: "system", Message: msg})
}

package testutils

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
)

// SetupStoreDir creates a temporary directory for a file checkpoint store and
// returns its absolute path. It fails the test immediately on error.
func SetupStoreDir(t *testing.T, name string) string {
	t.Helper()

	absPath, err := filepath.Abs(filepath.Join(t.TempDir(), name))
	require.NoError(t, err, "Failed to get absolute path for temp dir")
	return absPath
}

// ScriptedLLM answers every request with the canned text registered under its name.
type ScriptedLLM map[string]string

func (s ScriptedLLM) Invoke(_ context.Context, req ports.Request) (ports.Response, error) {
	text, ok := s[req.Name]
	if !ok {
		return ports.Response{}, fmt.Errorf("unexpected request %q", req.Name)
	}
	return ports.Response{Text: text}, nil
}

// StaticSearch returns one snippet per query.
type StaticSearch struct{}

func (StaticSearch) Search(_ context.Context, q string, _ int) ([]string, error) {
	return []string{"about " + q}, nil
}

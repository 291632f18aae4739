package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintBanner_PlainWriter(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)

	out := buf.String()
	assert.Contains(t, out, "|____/")
	assert.NotContains(t, out, "\x1b[", "a non-terminal writer gets no escape codes")
}

func TestStyled_PlainWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "hello", Styled(&buf, "hello", "#ff0000"))
}

func TestRenderers(t *testing.T) {
	out, err := PlainRenderer("| a |\n|---|\n\n\n")
	require.NoError(t, err)
	assert.Equal(t, "| a |\n|---|\n", out)

	out, err = NewRenderer(80)("# Title\n\nbody text")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "body text")
}

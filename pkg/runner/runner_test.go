package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	deepresearch "github.com/Thesius-ai/thesius-deepresearch-cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/dsl"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *deepresearch.Engine {
	t.Helper()
	schema := domain.MustSchema(
		domain.Replace("draft", domain.TypeString),
		domain.Replace("approved", domain.TypeString),
		domain.Append("feedback"),
	)

	b := dsl.New(schema)
	b.Add("plan").Do(func(_ context.Context, s domain.State) (domain.Output, error) {
		return domain.Update{"draft": fmt.Sprintf("draft v%d", len(s.Sequence("feedback"))+1)}, nil
	}).Go("review")
	b.Add("review").Review(graph.ReviewConfig{
		Sentinel: "continue",
		Forward:  "done",
		Back:     "plan",
		LogField: "feedback",
		Prompt:   "Type 'continue' to approve.",
		Present: func(s domain.State) string {
			v, _ := s.Get("draft")
			return fmt.Sprint(v)
		},
		Capture: func(s domain.State) domain.Update {
			v, _ := s.Get("draft")
			return domain.Update{"approved": v}
		},
	})
	b.Add("done").Do(func(context.Context, domain.State) (domain.Output, error) {
		return domain.Update{}, nil
	}).Terminal()

	eng, err := deepresearch.New(b.MustBuild())
	require.NoError(t, err)
	return eng
}

func start(t *testing.T, eng *deepresearch.Engine, id string) *domain.Outcome {
	t.Helper()
	out, err := eng.Start(context.Background(), id, nil)
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingInput, out.Status)
	return out
}

func TestRunner_FeedbackThenApprove(t *testing.T) {
	eng := newEngine(t)
	var buf bytes.Buffer
	r := runner.New(runner.WithHandler(runner.NewTextHandler(strings.NewReader("shorter please\ncontinue\n"), &buf)))

	out, err := r.Run(context.Background(), eng, start(t, eng, "r1"))
	require.NoError(t, err)
	assert.True(t, out.Done())

	approved, _ := out.State.Get("approved")
	assert.Equal(t, "draft v2", approved)

	output := buf.String()
	assert.Contains(t, output, "draft v1")
	assert.Contains(t, output, "draft v2")
	assert.Contains(t, output, "Type 'continue' to approve.")
	assert.Contains(t, output, "[System] Run r1 finished.")
}

func TestRunner_QuitLeavesRunResumable(t *testing.T) {
	for _, input := range []string{"exit\n", "QUIT\n", ""} {
		t.Run(fmt.Sprintf("%q", input), func(t *testing.T) {
			eng := newEngine(t)
			var buf bytes.Buffer
			r := runner.New(runner.WithHandler(runner.NewTextHandler(strings.NewReader(input), &buf)))

			out, err := r.Run(context.Background(), eng, start(t, eng, "r2"))
			assert.ErrorIs(t, err, domain.ErrUserAbort)
			assert.Equal(t, "review", out.Pending)
			assert.Contains(t, buf.String(), "deepresearch resume r2")

			cp, err := eng.Load(context.Background(), "r2")
			require.NoError(t, err)
			assert.Equal(t, domain.StatusAwaitingInput, cp.Status)
		})
	}
}

func TestRunner_Renderer(t *testing.T) {
	eng := newEngine(t)
	var buf bytes.Buffer
	h := runner.NewTextHandler(strings.NewReader("continue\n"), &buf,
		runner.WithTextHandlerRenderer(func(s string) (string, error) { return "**" + s + "**", nil }))

	_, err := runner.New(runner.WithHandler(h)).Run(context.Background(), eng, start(t, eng, "r3"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "**draft v1**")
}

func TestRunner_JSONHandler(t *testing.T) {
	eng := newEngine(t)
	var buf bytes.Buffer
	h := runner.NewJSONHandler(strings.NewReader("\"more detail\"\ncontinue\n"), &buf)

	out, err := runner.New(runner.WithHandler(h)).Run(context.Background(), eng, start(t, eng, "r4"))
	require.NoError(t, err)
	assert.True(t, out.Done())
	assert.Equal(t, []any{"more detail", "continue"}, out.State.Sequence("feedback"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var first runner.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "review", first.Type)
	assert.Equal(t, "review", first.Node)
	assert.Equal(t, "draft v1", first.Content)

	var last runner.Event
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "system", last.Type)
}

func TestRunner_ResumesActiveRun(t *testing.T) {
	eng := newEngine(t)
	var buf bytes.Buffer
	r := runner.New(runner.WithHandler(runner.NewTextHandler(strings.NewReader("continue\n"), &buf)))

	active := &domain.Outcome{RunID: "r5", Status: domain.StatusActive}
	_, err := r.Run(context.Background(), eng, active)
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestRunner_NilOutcome(t *testing.T) {
	_, err := runner.New().Run(context.Background(), newEngine(t), nil)
	assert.Error(t, err)
}

package runtime_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reviewSchema = domain.MustSchema(
	domain.Replace("draft", domain.TypeString),
	domain.Replace("approved", domain.TypeString),
	domain.Append("messages"),
	domain.Replace("drafts", domain.TypeInt),
)

func reviewGraph(t *testing.T) *graph.Graph {
	t.Helper()
	nodes := []graph.Node{
		{Name: "write", Fn: func(_ context.Context, s domain.State) (domain.Output, error) {
			n, err := domain.Decode[int](s, "drafts")
			if err != nil {
				return nil, err
			}
			n++
			return domain.Update{"draft": fmt.Sprintf("draft %d", n), "drafts": n}, nil
		}},
		graph.Review("review", graph.ReviewConfig{
			Sentinel: "continue",
			Forward:  "publish",
			Back:     "write",
			LogField: "messages",
			Capture: func(s domain.State) domain.Update {
				v, _ := s.Get("draft")
				return domain.Update{"approved": v}
			},
		}),
		{Name: "publish", Fn: func(context.Context, domain.State) (domain.Output, error) {
			return domain.Update{}, nil
		}},
	}
	g, err := graph.Compile(reviewSchema, nodes,
		[]graph.Edge{{From: "write", To: "review"}, {From: "publish", To: domain.End}},
		"write",
	)
	require.NoError(t, err)
	return g
}

func TestEngine_HumanSuspendProvideResume(t *testing.T) {
	eng, store := newEngine(t, reviewGraph(t))
	ctx := context.Background()

	out, err := eng.Start(ctx, "r", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, out.Status)
	assert.Equal(t, "review", out.Pending)

	// Resume on a suspended run does nothing.
	again, err := eng.Resume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingInput, again.Status)

	// Feedback loops back without committing the draft.
	out, err = eng.Provide(ctx, "r", "too short")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, out.Status)
	assert.Equal(t, "write", out.Pending)
	assert.False(t, out.State.Has("approved"))
	assert.Equal(t, []any{"too short"}, out.State.Sequence("messages"))

	cp, err := store.Load(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "write", cp.Pending)

	out, err = eng.Resume(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "review", out.Pending)

	out, err = eng.Provide(ctx, "r", "continue")
	require.NoError(t, err)
	approved, _ := out.State.Get("approved")
	assert.Equal(t, "draft 2", approved)
	assert.Equal(t, "publish", out.Pending)

	out, err = eng.Resume(ctx, "r")
	require.NoError(t, err)
	assert.True(t, out.Done())

	_, err = eng.Provide(ctx, "r", "continue")
	assert.ErrorIs(t, err, domain.ErrRunFinished)
}

func TestEngine_ProvideRequiresSuspendedRun(t *testing.T) {
	g, err := graph.Compile(linearSchema,
		[]graph.Node{{Name: "a", Fn: func(context.Context, domain.State) (domain.Output, error) {
			return nil, fmt.Errorf("stop here")
		}}},
		[]graph.Edge{{From: "a", To: domain.End}},
		"a",
	)
	require.NoError(t, err)
	eng, _ := newEngine(t, g)

	_, err = eng.Start(context.Background(), "r", nil)
	require.Error(t, err)

	_, err = eng.Provide(context.Background(), "r", "hello")
	assert.ErrorIs(t, err, domain.ErrNotAwaitingInput)

	_, err = eng.Provide(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

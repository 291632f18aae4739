package research_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	deepresearch "github.com/Thesius-ai/thesius-deepresearch-cli"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/adapters/file"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, llm ports.Invoker, opts ...deepresearch.Option) *deepresearch.Engine {
	t.Helper()
	g, err := research.NewPipeline(llm, &fakeSearch{}, fastRetry()).Graph()
	require.NoError(t, err)
	eng, err := deepresearch.New(g, opts...)
	require.NoError(t, err)
	return eng
}

// runToEnd approves both reviews and returns the final outcome.
func runToEnd(t *testing.T, eng *deepresearch.Engine, cfg research.RunConfig) *domain.Outcome {
	t.Helper()
	ctx := context.Background()

	out, err := eng.Start(ctx, "run", research.Initial("Databases", "SQL tutoring data", cfg))
	require.NoError(t, err)
	require.Equal(t, domain.StatusAwaitingInput, out.Status)
	require.Equal(t, research.NodeSchemaReview, out.Pending)

	out, err = eng.Provide(ctx, "run", research.ApproveInput)
	require.NoError(t, err)
	out, err = eng.Resume(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, research.NodeReportStructureReview, out.Pending)

	out, err = eng.Provide(ctx, "run", research.ApproveInput)
	require.NoError(t, err)
	out, err = eng.Resume(ctx, "run")
	require.NoError(t, err)
	require.True(t, out.Done())
	return out
}

func TestPipeline_ThreeSectionsFiveRecordsEach(t *testing.T) {
	llm := newFakeLLM()
	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())

	assert.Len(t, out.State.Sequence(research.FieldFinalDataset), 15)
	assert.Empty(t, out.State.Sequence(research.FieldError))
	assert.Equal(t, 3, llm.count(research.NodeSectionKnowledge))

	structure, _ := out.State.Get(research.FieldReportStructure)
	assert.Equal(t, "1. Alpha\n2. Beta\n3. Gamma", structure)
}

func TestPipeline_ParseErrorInOneSection(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionDataset, func(r ports.Request) (string, error) {
		if strings.Contains(lastContent(r), "knowledge:Beta") {
			return "Sorry, I cannot produce JSON today.", nil
		}
		return recordsJSON(5), nil
	})

	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())

	assert.Len(t, out.State.Sequence(research.FieldFinalDataset), 10)
	assert.Equal(t, []any{"ParseError"}, out.State.Sequence(research.FieldError))
	assert.Equal(t, 3, llm.count(research.NodeSectionDataset), "parse errors are not retried")
}

func TestPipeline_ValidationErrorInOneSection(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionDataset, func(r ports.Request) (string, error) {
		if strings.Contains(lastContent(r), "knowledge:Gamma") {
			return `[{"question": "q"}]`, nil
		}
		return recordsJSON(2), nil
	})

	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())

	assert.Len(t, out.State.Sequence(research.FieldFinalDataset), 4)
	assert.Equal(t, []any{"ValidationError"}, out.State.Sequence(research.FieldError))
}

func TestPipeline_TransientExhaustion(t *testing.T) {
	llm := newFakeLLM()
	var attempts atomic.Int32
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Only"), nil
	})
	llm.on(research.NodeSectionDataset, func(ports.Request) (string, error) {
		attempts.Add(1)
		return "", domain.Transient("openai", errors.New("rate limited"))
	})

	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())

	assert.Equal(t, int32(3), attempts.Load())
	assert.Empty(t, out.State.Sequence(research.FieldFinalDataset))
	assert.Equal(t, []any{domain.TagMaxRetries}, out.State.Sequence(research.FieldError))
}

func TestPipeline_ChildNodeExhaustionTag(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Alpha", "Beta"), nil
	})
	llm.on(research.NodeQueryGenerator, func(r ports.Request) (string, error) {
		if strings.Contains(fmt.Sprint(r), "Beta") {
			return "", domain.Transient("openai", errors.New("503 service unavailable"))
		}
		return `{"queries":[{"query":"q1"}]}`, nil
	})

	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())

	assert.Len(t, out.State.Sequence(research.FieldFinalDataset), 5)
	assert.Equal(t, []any{domain.TagMaxRetries}, out.State.Sequence(research.FieldError))
}

func TestPipeline_ReflectionLoopIsBounded(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Only"), nil
	})
	llm.on(research.NodeReflection, func(ports.Request) (string, error) {
		return `{"feedback": "needs more sources"}`, nil
	})

	cfg := research.DefaultRunConfig()
	cfg.NumReflections = 2
	out := runToEnd(t, newEngine(t, llm), cfg)

	assert.True(t, out.Done())
	assert.Equal(t, 3, llm.count(research.NodeQueryGenerator), "one initial round plus two re-entries")

	// The critique is carried into the next query round.
	reqs := llm.requests[research.NodeQueryGenerator]
	assert.Contains(t, lastContent(reqs[1]), "needs more sources")
}

func TestPipeline_LegacyReflectionGate(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Only"), nil
	})
	llm.on(research.NodeReflection, func(ports.Request) (string, error) {
		return `{"feedback": "needs more sources"}`, nil
	})

	cfg := research.DefaultRunConfig()
	cfg.LegacyReflectionGate = true
	runToEnd(t, newEngine(t, llm), cfg)

	assert.Equal(t, 1, llm.count(research.NodeQueryGenerator), "counter below max exits forward")
}

func TestPipeline_LegacyGateWithoutReflectionsHitsStepLimit(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Only"), nil
	})
	llm.on(research.NodeReflection, func(ports.Request) (string, error) {
		return `{"feedback": "needs more sources"}`, nil
	})
	cfg := research.DefaultRunConfig()
	cfg.LegacyReflectionGate = true
	cfg.NumReflections = 0

	ctx := context.Background()
	eng := newEngine(t, llm, deepresearch.WithMaxSteps(40))
	_, err := eng.Start(ctx, "run", research.Initial("Databases", "", cfg))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = eng.Provide(ctx, "run", research.ApproveInput)
		require.NoError(t, err)
		_, err = eng.Resume(ctx, "run")
	}

	assert.ErrorIs(t, err, domain.ErrGraphConfig)
	assert.Greater(t, llm.count(research.NodeQueryGenerator), 5)
}

func TestPipeline_QueriesCappedAndDepthPassed(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return sectionsJSON("Only"), nil
	})
	search := &fakeSearch{}
	g, err := research.NewPipeline(llm, search, fastRetry()).Graph()
	require.NoError(t, err)
	eng, err := deepresearch.New(g)
	require.NoError(t, err)

	cfg := research.DefaultRunConfig()
	cfg.SearchDepth = 3
	runToEnd(t, eng, cfg)

	assert.Equal(t, []int{3, 3}, search.depths, "max_queries=2 caps three proposed queries")
}

func TestPipeline_SchemaFeedbackLoop(t *testing.T) {
	llm := newFakeLLM()
	eng := newEngine(t, llm)
	ctx := context.Background()

	_, err := eng.Start(ctx, "run", research.Initial("Databases", "SQL", research.DefaultRunConfig()))
	require.NoError(t, err)

	out, err := eng.Provide(ctx, "run", "add a difficulty column")
	require.NoError(t, err)
	assert.Equal(t, research.NodeSchemaGenerator, out.Pending)

	out, err = eng.Resume(ctx, "run")
	require.NoError(t, err)
	assert.Equal(t, research.NodeSchemaReview, out.Pending)
	assert.Equal(t, 2, llm.count(research.NodeSchemaGenerator))

	// The second generation sees the reviewer's feedback.
	second := llm.requests[research.NodeSchemaGenerator][1]
	assert.Equal(t, "add a difficulty column", lastContent(second))

	msgs := out.State.Sequence(research.FieldMessages)
	assert.Len(t, msgs, 3, "schema, feedback, schema")
}

func TestPipeline_ReportFeedbackLeavesStructureUnset(t *testing.T) {
	llm := newFakeLLM()
	eng := newEngine(t, llm)
	ctx := context.Background()

	_, err := eng.Start(ctx, "run", research.Initial("Databases", "SQL", research.DefaultRunConfig()))
	require.NoError(t, err)
	_, err = eng.Provide(ctx, "run", research.ApproveInput)
	require.NoError(t, err)
	_, err = eng.Resume(ctx, "run")
	require.NoError(t, err)

	out, err := eng.Provide(ctx, "run", "split Beta in two")
	require.NoError(t, err)
	assert.Equal(t, research.NodeReportStructurePlanner, out.Pending)
	assert.False(t, out.State.Has(research.FieldReportStructure))
}

func TestPipeline_ResumeFromFileStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := newEngine(t, newFakeLLM(), deepresearch.WithStore(file.New(dir)))
	_, err := first.Start(ctx, "run", research.Initial("Databases", "SQL", research.DefaultRunConfig()))
	require.NoError(t, err)
	_, err = first.Provide(ctx, "run", research.ApproveInput)
	require.NoError(t, err)

	// A fresh process: every typed value now comes back from JSON.
	second := newEngine(t, newFakeLLM(), deepresearch.WithStore(file.New(dir)))
	out, err := second.Resume(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, research.NodeReportStructureReview, out.Pending)

	_, err = second.Provide(ctx, "run", research.ApproveInput)
	require.NoError(t, err)
	out, err = second.Resume(ctx, "run")
	require.NoError(t, err)

	assert.True(t, out.Done())
	assert.Len(t, out.State.Sequence(research.FieldFinalDataset), 15)
}

func TestPipeline_NoSections(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSectionFormatter, func(ports.Request) (string, error) {
		return `{"sections": []}`, nil
	})

	out := runToEnd(t, newEngine(t, llm), research.DefaultRunConfig())
	assert.Empty(t, out.State.Sequence(research.FieldFinalDataset))
	assert.Equal(t, 0, llm.count(research.NodeSectionKnowledge))
}

func TestPipeline_InvalidSchemaFailsRun(t *testing.T) {
	llm := newFakeLLM()
	llm.on(research.NodeSchemaGenerator, func(ports.Request) (string, error) {
		return `{"generated_schema": [{"key": "x", "type": "date", "description": "d"}]}`, nil
	})
	eng := newEngine(t, llm)

	_, err := eng.Start(context.Background(), "run", research.Initial("t", "o", research.DefaultRunConfig()))
	assert.ErrorIs(t, err, domain.ErrValidation)

	cp, err := eng.Load(context.Background(), "run")
	require.NoError(t, err)
	assert.Equal(t, research.NodeSchemaGenerator, cp.Pending, "failed node stays pending")
	assert.Equal(t, []any{"ValidationError"}, cp.State.Sequence(research.FieldError))
}

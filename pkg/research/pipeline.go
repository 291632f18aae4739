package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Thesius-ai/thesius-deepresearch-cli/internal/logging"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/dsl"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/retry"
)

// ApproveInput is the reviewer input that accepts the content under review.
const ApproveInput = "continue"

// Pipeline builds the deep-research workflow around its external collaborators.
type Pipeline struct {
	llm    ports.Invoker
	search ports.Searcher
	retry  retry.Policy
	logger *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithRetryPolicy overrides the retry policy of nodes that call collaborators.
// The fallback is set per node and is ignored here.
func WithRetryPolicy(p retry.Policy) Option {
	return func(pl *Pipeline) {
		pl.retry = p
	}
}

// WithLogger sets the logger used by the nodes.
func WithLogger(logger *slog.Logger) Option {
	return func(pl *Pipeline) {
		if logger != nil {
			pl.logger = logger
		}
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(llm ports.Invoker, search ports.Searcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:    llm,
		search: search,
		retry:  retry.Default(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.retry.Fallback = nil
	return p
}

// Initial returns the initial state of a run.
func Initial(topic, outline string, cfg RunConfig) map[string]any {
	return map[string]any{
		FieldTopic:     topic,
		FieldOutline:   outline,
		FieldRunConfig: cfg,
	}
}

// Graph compiles the parent workflow with the research graph as its fan-out child.
func (p *Pipeline) Graph() (*graph.Graph, error) {
	child, err := p.ResearchGraph()
	if err != nil {
		return nil, fmt.Errorf("research graph: %w", err)
	}

	b := dsl.New(ParentSchema)
	b.Add(NodeSchemaGenerator).Do(p.wrap(p.schemaGenerator)).ErrorField(FieldError).Go(NodeSchemaReview)
	b.Add(NodeSchemaReview).Review(graph.ReviewConfig{
		Sentinel: ApproveInput,
		Forward:  NodeReportStructurePlanner,
		Back:     NodeSchemaGenerator,
		LogField: FieldMessages,
		Wrap:     func(in string) any { return human(in) },
		Capture: func(s domain.State) domain.Update {
			v, _ := s.Get(FieldSchema)
			return domain.Update{FieldSchema: v}
		},
		Prompt:  "Feedback on the dataset schema (type 'continue' to accept)",
		Present: PresentSchema,
	})
	b.Add(NodeReportStructurePlanner).Do(p.wrap(p.reportStructurePlanner)).ErrorField(FieldError).Go(NodeReportStructureReview)
	b.Add(NodeReportStructureReview).Review(graph.ReviewConfig{
		Sentinel: ApproveInput,
		Forward:  NodeSectionFormatter,
		Back:     NodeReportStructurePlanner,
		LogField: FieldMessages,
		Wrap:     func(in string) any { return human(in) },
		Capture: func(s domain.State) domain.Update {
			return domain.Update{FieldReportStructure: lastMessage(s)}
		},
		Prompt:  "Feedback on the report structure (type 'continue' to accept)",
		Present: lastMessage,
	})
	b.Add(NodeSectionFormatter).Do(p.wrap(p.sectionFormatter)).ErrorField(FieldError).
		Routes(NodeResearchAgent, NodeFinalDatasetAggregator)
	b.Add(NodeResearchAgent).Subgraph(child, FieldSectionDataset).
		ErrorField(FieldError).
		Go(NodeFinalDatasetAggregator)
	b.Add(NodeFinalDatasetAggregator).Do(aggregate).Terminal()
	return b.Build()
}

// ResearchGraph compiles the per-section research loop.
func (p *Pipeline) ResearchGraph() (*graph.Graph, error) {
	datasetPolicy := p.retry
	datasetPolicy.Fallback = emptyDataset

	b := dsl.New(ResearchSchema)
	b.Add(NodeSectionKnowledge).Do(p.wrap(p.sectionKnowledge)).Go(NodeQueryGenerator)
	b.Add(NodeQueryGenerator).Do(p.wrap(p.queryGenerator)).Go(NodeSearch)
	b.Add(NodeSearch).Do(p.wrap(p.webSearch)).Go(NodeResultAccumulator)
	b.Add(NodeResultAccumulator).Do(p.wrap(p.resultAccumulator)).Go(NodeReflection)
	b.Add(NodeReflection).Do(p.wrap(p.reflection)).Routes(NodeFinalSectionFormatter, NodeQueryGenerator)
	b.Add(NodeFinalSectionFormatter).Do(p.wrap(p.finalSectionFormatter)).Go(NodeSectionDataset)
	b.Add(NodeSectionDataset).Do(datasetPolicy.Wrap(p.generateSectionDataset)).Terminal()
	return b.Build()
}

func (p *Pipeline) wrap(fn graph.NodeFunc) graph.NodeFunc {
	return p.retry.Wrap(fn)
}

func (p *Pipeline) schemaGenerator(ctx context.Context, s domain.State) (domain.Output, error) {
	history, err := messagesOf(s)
	if err != nil {
		return nil, err
	}
	topic, _ := s.Get(FieldTopic)
	outline, _ := s.Get(FieldOutline)

	msgs := append([]ports.Message{human(fmt.Sprintf("Topic: %v\nOutline: %v", topic, outline))}, history...)
	ds, err := invokeJSON[DatasetSchema](ctx, p.llm, ports.Request{
		Name:     NodeSchemaGenerator,
		System:   schemaGeneratorPrompt,
		Messages: msgs,
		Schema:   datasetSchemaShape,
	})
	if err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, domain.Validation(NodeSchemaGenerator, err)
	}
	p.logger.Debug("schema generated", "fields", len(ds.Fields))

	return domain.Update{
		FieldSchema:   ds,
		FieldMessages: []any{assistant("Generated schema:\n" + PresentSchema(domain.NewState(map[string]any{FieldSchema: ds})))},
	}, nil
}

func (p *Pipeline) reportStructurePlanner(ctx context.Context, s domain.State) (domain.Output, error) {
	history, err := messagesOf(s)
	if err != nil {
		return nil, err
	}
	topic, _ := s.Get(FieldTopic)
	outline, _ := s.Get(FieldOutline)

	text, err := invokeText(ctx, p.llm, ports.Request{
		Name:     NodeReportStructurePlanner,
		System:   reportPlannerPrompt,
		Messages: append([]ports.Message{human(fmt.Sprintf("Topic: %v\nOutline: %v", topic, outline))}, history...),
	})
	if err != nil {
		return nil, err
	}
	return domain.Update{FieldMessages: []any{assistant(text)}}, nil
}

func (p *Pipeline) sectionFormatter(ctx context.Context, s domain.State) (domain.Output, error) {
	structure, _ := s.Get(FieldReportStructure)
	resp, err := invokeJSON[struct {
		Sections []Section `json:"sections"`
	}](ctx, p.llm, ports.Request{
		Name:     NodeSectionFormatter,
		System:   sectionFormatterPrompt,
		Messages: []ports.Message{human(fmt.Sprint(structure))},
		Schema:   sectionsShape,
	})
	if err != nil {
		return nil, err
	}

	update := domain.Update{FieldSections: resp.Sections}
	if len(resp.Sections) == 0 {
		p.logger.Warn("no sections to research")
		return domain.Goto(NodeFinalDatasetAggregator, update), nil
	}

	topic, _ := s.Get(FieldTopic)
	schema, _ := s.Get(FieldSchema)
	sends := make([]domain.Send, len(resp.Sections))
	for i, sec := range resp.Sections {
		sends[i] = domain.Send{Node: NodeResearchAgent, State: domain.Update{
			FieldTopic:           topic,
			FieldSection:         sec,
			FieldSchema:          schema,
			FieldReportStructure: structure,
		}}
	}
	return domain.FanOut(update, sends...), nil
}

func (p *Pipeline) sectionKnowledge(ctx context.Context, s domain.State) (domain.Output, error) {
	sec, err := domain.Decode[Section](s, FieldSection)
	if err != nil {
		return nil, err
	}
	text, err := invokeText(ctx, p.llm, ports.Request{
		Name:     NodeSectionKnowledge,
		System:   sectionKnowledgePrompt,
		Messages: []ports.Message{human(sec.String())},
	})
	if err != nil {
		return nil, err
	}
	return domain.Update{FieldKnowledge: text}, nil
}

func (p *Pipeline) queryGenerator(ctx context.Context, s domain.State) (domain.Output, error) {
	cfg, err := runConfigOf(s)
	if err != nil {
		return nil, err
	}
	sec, err := domain.Decode[Section](s, FieldSection)
	if err != nil {
		return nil, err
	}
	var previous []Query
	if err := domain.DecodeValue(s.Sequence(FieldSearchedQueries), &previous); err != nil {
		return nil, err
	}
	feedback, _ := s.Get(FieldReflectionFeedback)
	if feedback == nil {
		feedback = ""
	}

	resp, err := invokeJSON[struct {
		Queries []Query `json:"queries"`
	}](ctx, p.llm, ports.Request{
		Name:   NodeQueryGenerator,
		System: fmt.Sprintf(queryGeneratorPrompt, cfg.MaxQueries),
		Messages: []ports.Message{human(fmt.Sprintf("Section: %s\nPrevious Queries: %s\nReflection Feedback: %v",
			sec, joinQueries(previous), feedback))},
		Schema: queriesShape,
	})
	if err != nil {
		return nil, err
	}

	queries := resp.Queries
	if len(queries) > cfg.MaxQueries {
		queries = queries[:cfg.MaxQueries]
	}
	return domain.Update{
		FieldGeneratedQueries: queries,
		FieldSearchedQueries:  queries,
	}, nil
}

func (p *Pipeline) webSearch(ctx context.Context, s domain.State) (domain.Output, error) {
	cfg, err := runConfigOf(s)
	if err != nil {
		return nil, err
	}
	queries, err := domain.Decode[[]Query](s, FieldGeneratedQueries)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(queries))
	for _, q := range queries {
		content, err := p.search.Search(ctx, q.Query, cfg.SearchDepth)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Query: q, RawContent: content})
	}
	return domain.Update{FieldSearchResults: results}, nil
}

func (p *Pipeline) resultAccumulator(ctx context.Context, s domain.State) (domain.Output, error) {
	var results []SearchResult
	if err := domain.DecodeValue(s.Sequence(FieldSearchResults), &results); err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "Query: %s\n", r.Query.Query)
		for _, c := range r.RawContent {
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	text, err := invokeText(ctx, p.llm, ports.Request{
		Name:     NodeResultAccumulator,
		System:   resultAccumulatorPrompt,
		Messages: []ports.Message{human(b.String())},
	})
	if err != nil {
		return nil, err
	}
	return domain.Update{FieldAccumulatedContent: text}, nil
}

func (p *Pipeline) reflection(ctx context.Context, s domain.State) (domain.Output, error) {
	cfg, err := runConfigOf(s)
	if err != nil {
		return nil, err
	}
	sec, err := domain.Decode[Section](s, FieldSection)
	if err != nil {
		return nil, err
	}
	count, err := domain.Decode[int](s, FieldReflectionCount)
	if err != nil {
		return nil, err
	}
	content, _ := s.Get(FieldAccumulatedContent)

	resp, err := invokeJSON[struct {
		Feedback Feedback `json:"feedback"`
	}](ctx, p.llm, ports.Request{
		Name:     NodeReflection,
		System:   reflectionPrompt,
		Messages: []ports.Message{human(fmt.Sprintf("Section: %s\nAccumulated Content: %v", sec, content))},
		Schema:   feedbackShape,
	})
	if err != nil {
		return nil, err
	}

	switch d := gateFor(cfg)(resp.Feedback, count, cfg.NumReflections).(type) {
	case Retry:
		p.logger.Debug("reflection requested another round", "section", sec.Name, "round", count+1)
		return domain.Goto(NodeQueryGenerator, domain.Update{
			FieldReflectionFeedback: d.Feedback,
			FieldReflectionCount:    count + 1,
		}), nil
	default:
		return domain.Goto(NodeFinalSectionFormatter, domain.Update{
			FieldReflectionFeedback: resp.Feedback.String(),
		}), nil
	}
}

func (p *Pipeline) finalSectionFormatter(ctx context.Context, s domain.State) (domain.Output, error) {
	knowledge, _ := s.Get(FieldKnowledge)
	content, _ := s.Get(FieldAccumulatedContent)
	text, err := invokeText(ctx, p.llm, ports.Request{
		Name:     NodeFinalSectionFormatter,
		System:   finalSectionFormatterPrompt,
		Messages: []ports.Message{human(fmt.Sprintf("Internal Knowledge: %v\nSearch Result content: %v", knowledge, content))},
	})
	if err != nil {
		return nil, err
	}
	return domain.Update{FieldFinalSectionContent: text}, nil
}

// aggregate collects every section's records into the final dataset.
func aggregate(_ context.Context, s domain.State) (domain.Output, error) {
	return domain.Update{FieldFinalDataset: s.Sequence(FieldSectionDataset)}, nil
}

func messagesOf(s domain.State) ([]ports.Message, error) {
	var msgs []ports.Message
	if err := domain.DecodeValue(s.Sequence(FieldMessages), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return msgs, nil
}

func lastMessage(s domain.State) string {
	msgs, err := messagesOf(s)
	if err != nil || len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func joinQueries(qs []Query) string {
	parts := make([]string, len(qs))
	for i, q := range qs {
		parts[i] = q.Query
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

package research_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/research"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/retry"
)

type fakeLLM struct {
	mu       sync.Mutex
	handlers map[string]func(ports.Request) (string, error)
	calls    map[string]int
	requests map[string][]ports.Request
}

func newFakeLLM() *fakeLLM {
	f := &fakeLLM{
		calls:    map[string]int{},
		requests: map[string][]ports.Request{},
	}
	f.handlers = map[string]func(ports.Request) (string, error){
		research.NodeSchemaGenerator: func(ports.Request) (string, error) {
			return `{"generated_schema":[
				{"key":"question","type":"string","description":"A question"},
				{"key":"answer","type":"string","description":"The answer"}]}`, nil
		},
		research.NodeReportStructurePlanner: func(ports.Request) (string, error) {
			return "1. Alpha\n2. Beta\n3. Gamma", nil
		},
		research.NodeSectionFormatter: func(ports.Request) (string, error) {
			return sectionsJSON("Alpha", "Beta", "Gamma"), nil
		},
		research.NodeSectionKnowledge: func(r ports.Request) (string, error) {
			return "knowledge:" + firstLine(lastContent(r)), nil
		},
		research.NodeQueryGenerator: func(ports.Request) (string, error) {
			return `{"queries":[{"query":"q1"},{"query":"q2"},{"query":"q3"}]}`, nil
		},
		research.NodeResultAccumulator: func(ports.Request) (string, error) {
			return "accumulated notes", nil
		},
		research.NodeReflection: func(ports.Request) (string, error) {
			return `{"feedback": true}`, nil
		},
		research.NodeFinalSectionFormatter: func(r ports.Request) (string, error) {
			return "final " + lastContent(r), nil
		},
		research.NodeSectionDataset: func(ports.Request) (string, error) {
			return "```json\n" + recordsJSON(5) + "\n```", nil
		},
	}
	return f
}

func (f *fakeLLM) on(name string, h func(ports.Request) (string, error)) {
	f.handlers[name] = h
}

func (f *fakeLLM) Invoke(_ context.Context, req ports.Request) (ports.Response, error) {
	f.mu.Lock()
	f.calls[req.Name]++
	f.requests[req.Name] = append(f.requests[req.Name], req)
	h := f.handlers[req.Name]
	f.mu.Unlock()
	if h == nil {
		return ports.Response{}, fmt.Errorf("unexpected request %q", req.Name)
	}
	text, err := h(req)
	return ports.Response{Text: text}, err
}

func (f *fakeLLM) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

type fakeSearch struct {
	mu     sync.Mutex
	depths []int
}

func (s *fakeSearch) Search(_ context.Context, query string, depth int) ([]string, error) {
	s.mu.Lock()
	s.depths = append(s.depths, depth)
	s.mu.Unlock()
	return []string{"result for " + query}, nil
}

func sectionsJSON(names ...string) string {
	type section struct {
		Name string   `json:"section_name"`
		Subs []string `json:"sub_sections"`
	}
	out := struct {
		Sections []section `json:"sections"`
	}{}
	for _, n := range names {
		out.Sections = append(out.Sections, section{Name: n, Subs: []string{n + " basics"}})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func recordsJSON(n int) string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = map[string]string{"question": fmt.Sprintf("q%d", i), "answer": fmt.Sprintf("a%d", i)}
	}
	b, _ := json.Marshal(rows)
	return string(b)
}

func lastContent(r ports.Request) string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1].Content
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func noWait(context.Context, time.Duration) error { return nil }

func fastRetry() research.Option {
	return research.WithRetryPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Sleep: noWait})
}

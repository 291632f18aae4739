package graph

import (
	"context"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// ReviewConfig describes a human review step: content produced by Back is shown,
// the sentinel approves it and anything else is sent back as feedback.
type ReviewConfig struct {
	Sentinel string
	Forward  string
	Back     string

	// LogField is an append field that receives every input line.
	LogField string

	// Capture returns the fields committed when the content is approved.
	Capture func(domain.State) domain.Update

	// Wrap converts the raw input into the value appended to LogField.
	Wrap func(input string) any

	Prompt  string
	Present func(domain.State) string
}

// Review builds a human node from cfg.
func Review(name string, cfg ReviewConfig) Node {
	wrap := cfg.Wrap
	if wrap == nil {
		wrap = func(s string) any { return s }
	}
	return Node{
		Name:    name,
		Kind:    KindHuman,
		Routes:  []string{cfg.Forward, cfg.Back},
		Prompt:  cfg.Prompt,
		Present: cfg.Present,
		Human: func(_ context.Context, state domain.State, input string) (domain.Command, error) {
			update := domain.Update{}
			if cfg.LogField != "" {
				update[cfg.LogField] = []any{wrap(input)}
			}
			if input != cfg.Sentinel {
				return domain.Goto(cfg.Back, update), nil
			}
			if cfg.Capture != nil {
				for k, v := range cfg.Capture(state) {
					update[k] = v
				}
			}
			return domain.Goto(cfg.Forward, update), nil
		},
	}
}

package research

import (
	"errors"
	"fmt"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// RunConfig holds the parameters of one run. It is written into the run state
// when the run starts and never changed afterwards, so a resumed run keeps
// the parameters it started with.
//
// Reflection uses BoundedGate unless LegacyReflectionGate is set. The legacy
// gate advances while the counter is below NumReflections and loops on
// negative feedback afterwards, with no upper bound: with NumReflections 0 a
// section that never gets affirmative feedback runs until the engine step
// limit fails the run.
type RunConfig struct {
	MaxQueries             int  `json:"max_queries"`
	SearchDepth            int  `json:"search_depth"`
	NumReflections         int  `json:"num_reflections"`
	MaxRowsFromEachSection int  `json:"max_rows_from_each_section"`
	LegacyReflectionGate   bool `json:"legacy_reflection_gate,omitempty"`
}

// DefaultRunConfig returns the stock run parameters.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxQueries:             2,
		SearchDepth:            1,
		NumReflections:         2,
		MaxRowsFromEachSection: 5,
	}
}

// DecodeRunConfig reads a loosely typed configuration bag. Missing keys keep
// their defaults and numeric strings are accepted.
func DecodeRunConfig(raw map[string]any) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := domain.DecodeValue(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid run configuration: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects unusable parameters.
func (c RunConfig) Validate() error {
	var errs []error
	if c.MaxQueries < 1 {
		errs = append(errs, errors.New("max_queries must be at least 1"))
	}
	if c.SearchDepth < 1 {
		errs = append(errs, errors.New("search_depth must be at least 1"))
	}
	if c.NumReflections < 0 {
		errs = append(errs, errors.New("num_reflections cannot be negative"))
	}
	if c.MaxRowsFromEachSection < 1 {
		errs = append(errs, errors.New("max_rows_from_each_section must be at least 1"))
	}
	return errors.Join(errs...)
}

func runConfigOf(s domain.State) (RunConfig, error) {
	if !s.Has(FieldRunConfig) {
		return DefaultRunConfig(), nil
	}
	cfg, err := domain.Decode[RunConfig](s, FieldRunConfig)
	if err != nil {
		return cfg, domain.Errorf(domain.KindGraphConfig, "run config", "%v", err)
	}
	return cfg, nil
}

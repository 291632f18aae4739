package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/ports"
)

// compileRecordsSchema compiles the record contract of a dataset schema.
func compileRecordsSchema(ds DatasetSchema) (*jsonschema.Schema, error) {
	b, err := json.Marshal(ds.RecordsJSONSchema())
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("dataset.json", bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile("dataset.json")
}

// ParseRecords decodes raw model output into dataset records and validates
// them against ds. Malformed JSON is a ParseError, records that break the
// schema are a ValidationError.
func ParseRecords(raw string, ds DatasetSchema) ([]any, error) {
	const op = NodeSectionDataset

	var doc any
	if err := json.Unmarshal([]byte(stripFences(raw)), &doc); err != nil {
		return nil, domain.Parse(op, err)
	}

	sch, err := compileRecordsSchema(ds)
	if err != nil {
		return nil, domain.Errorf(domain.KindGraphConfig, op, "dataset schema does not compile: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, domain.Validation(op, err)
	}

	records, ok := doc.([]any)
	if !ok {
		return nil, domain.Validation(op, fmt.Errorf("dataset is %T, not an array", doc))
	}
	return records, nil
}

// generateSectionDataset is the unwrapped dataset node; the retry policy
// around it turns terminal failures into an empty, tagged result.
func (p *Pipeline) generateSectionDataset(ctx context.Context, s domain.State) (domain.Output, error) {
	cfg, err := runConfigOf(s)
	if err != nil {
		return nil, err
	}
	ds, err := domain.Decode[DatasetSchema](s, FieldSchema)
	if err != nil {
		return nil, domain.Validation(NodeSectionDataset, err)
	}
	structure, _ := s.Get(FieldReportStructure)
	content, _ := s.Get(FieldFinalSectionContent)

	text, err := invokeText(ctx, p.llm, ports.Request{
		Name:   NodeSectionDataset,
		System: datasetPrompt(ds.Fields, cfg.MaxRowsFromEachSection),
		Messages: []ports.Message{
			human(fmt.Sprintf("Report Structure: %v\nSection Contents: %v", structure, content)),
		},
	})
	if err != nil {
		return nil, err
	}

	records, err := ParseRecords(text, ds)
	if err != nil {
		return nil, err
	}
	return domain.Update{FieldSectionDataset: records}, nil
}

// emptyDataset is the fallback result of a section whose dataset failed.
func emptyDataset(tag string) domain.Update {
	return domain.Update{
		FieldSectionDataset: []any{},
		FieldError:          tag,
	}
}

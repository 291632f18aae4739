package research

import (
	"fmt"
	"strings"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// PresentSchema renders the dataset schema under review as a markdown table.
func PresentSchema(s domain.State) string {
	ds, err := domain.Decode[DatasetSchema](s, FieldSchema)
	if err != nil || len(ds.Fields) == 0 {
		return "_no schema generated yet_"
	}
	var b strings.Builder
	b.WriteString("| Field | Type | Description |\n|---|---|---|\n")
	for _, f := range ds.Fields {
		fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Key, f.Type, strings.ReplaceAll(f.Description, "|", `\|`))
	}
	return b.String()
}

// PresentSections renders the sections chosen for research as markdown.
func PresentSections(s domain.State) string {
	sections, err := domain.Decode[[]Section](s, FieldSections)
	if err != nil || len(sections) == 0 {
		return "_no sections_"
	}
	var b strings.Builder
	for _, sec := range sections {
		fmt.Fprintf(&b, "### %s\n\n", sec.Name)
		for _, sub := range sec.SubSections {
			fmt.Fprintf(&b, "- %s\n", sub)
		}
		b.WriteString("\n")
	}
	return b.String()
}

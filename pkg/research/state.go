package research

import "github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"

// Node names of the parent graph.
const (
	NodeSchemaGenerator        = "schema_generator"
	NodeSchemaReview           = "human_feedback_on_schema"
	NodeReportStructurePlanner = "report_structure_planner"
	NodeReportStructureReview  = "human_feedback_report_structure"
	NodeSectionFormatter       = "section_formatter"
	NodeResearchAgent          = "research_agent"
	NodeFinalDatasetAggregator = "final_dataset_aggregator"
)

// Node names of the per-section research graph.
const (
	NodeSectionKnowledge      = "section_knowledge"
	NodeQueryGenerator        = "query_generator"
	NodeSearch                = "search"
	NodeResultAccumulator     = "result_accumulator"
	NodeReflection            = "reflection"
	NodeFinalSectionFormatter = "final_section_formatter"
	NodeSectionDataset        = "final_section_dataset_generator"
)

// State fields.
const (
	FieldTopic               = "topic"
	FieldOutline             = "outline"
	FieldMessages            = "messages"
	FieldReportStructure     = "report_structure"
	FieldSections            = "sections"
	FieldSchema              = "schema"
	FieldFinalDataset        = "final_dataset"
	FieldSectionDataset      = "final_section_dataset"
	FieldError               = "error"
	FieldRunConfig           = "run_config"
	FieldSection             = "section"
	FieldKnowledge           = "knowledge"
	FieldReflectionFeedback  = "reflection_feedback"
	FieldGeneratedQueries    = "generated_queries"
	FieldSearchedQueries     = "searched_queries"
	FieldSearchResults       = "search_results"
	FieldAccumulatedContent  = "accumulated_content"
	FieldReflectionCount     = "reflection_count"
	FieldFinalSectionContent = "final_section_content"
)

// ParentSchema is the state of a whole research run.
// Section datasets and error tags accumulate across fan-out children.
var ParentSchema = domain.MustSchema(
	domain.Replace(FieldTopic, domain.TypeString),
	domain.Replace(FieldOutline, domain.TypeString),
	domain.Append(FieldMessages),
	domain.Replace(FieldReportStructure, domain.TypeString),
	domain.Replace(FieldSections, domain.TypeSequence),
	domain.Replace(FieldSchema, domain.TypeObject),
	domain.Append(FieldSectionDataset),
	domain.Replace(FieldFinalDataset, domain.TypeSequence),
	domain.Append(FieldError),
	domain.Replace(FieldRunConfig, domain.TypeObject),
)

// ResearchSchema is the private state of one section's research child.
var ResearchSchema = domain.MustSchema(
	domain.Replace(FieldTopic, domain.TypeString),
	domain.Replace(FieldReportStructure, domain.TypeString),
	domain.Replace(FieldSection, domain.TypeObject),
	domain.Replace(FieldKnowledge, domain.TypeString),
	domain.Replace(FieldReflectionFeedback, domain.TypeString),
	domain.Replace(FieldGeneratedQueries, domain.TypeSequence),
	domain.Append(FieldSearchedQueries),
	domain.Append(FieldSearchResults),
	domain.Replace(FieldAccumulatedContent, domain.TypeString),
	domain.Replace(FieldReflectionCount, domain.TypeInt),
	domain.Replace(FieldFinalSectionContent, domain.TypeString),
	domain.Replace(FieldSchema, domain.TypeObject),
	domain.Replace(FieldSectionDataset, domain.TypeSequence),
	domain.Replace(FieldError, domain.TypeString),
	domain.Replace(FieldRunConfig, domain.TypeObject),
)

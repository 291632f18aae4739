package research

import (
	"encoding/json"
	"fmt"
	"strings"
)

const schemaGeneratorPrompt = `You design dataset schemas for training and fine-tuning language models.
Read the topic and outline, then propose the columns of a dataset that serves that task.
Every column needs a short key, a type (string, number, array or boolean) and a description
of what the column holds. Prefer few, well-typed columns that carry the natural-language
input, any structured context and the expected model output.
Answer with a JSON object {"generated_schema": [{"key", "type", "description"}, ...]}.`

const reportPlannerPrompt = `You break complex topics into detailed content outlines.
Identify the core subject and, if mentioned, the audience or focus. Ignore anything about
dataset formats, model training or pipelines.
Produce a numbered, hierarchical outline of 5 to 15 major sections with subsections and
bullet points covering the concepts, definitions, applications and common problems of the
topic, in a logical teaching order. If the request is ambiguous, ask one or two clarifying
questions instead. Take earlier feedback in the conversation into account.`

const sectionFormatterPrompt = `Convert the outline into a list of sections.
For every top-level section give its name without numbering, and describe each subsection
as one fluent sentence combining its title and bullet points.
Answer with a JSON object {"sections": [{"section_name", "sub_sections": [...]}, ...]}.`

const sectionKnowledgePrompt = `You are a subject-matter expert. Write what you already know about the
section below: key facts, definitions, examples and open problems. Be thorough and precise.`

const queryGeneratorPrompt = `You write web-search queries that fill the gaps in a report section.
Do not repeat previous queries. Use the reflection feedback, when present, to target what is
still missing. Write at most %d queries.
Answer with a JSON object {"queries": [{"query": "..."}]}.`

const resultAccumulatorPrompt = `Merge the raw search results into one coherent body of notes.
Keep facts, figures and examples, drop boilerplate and duplicates, and keep it organized by theme.`

const reflectionPrompt = `Judge whether the accumulated content covers the section well enough to
write it. Answer with a JSON object {"feedback": true} when it does, otherwise
{"feedback": "<what is missing or incorrect>"}.`

const finalSectionFormatterPrompt = `Write the final content of the section from your internal
knowledge and the search notes. Keep it factual, structured and complete.`

// datasetPrompt instructs the model to emit rows rows of JSON records shaped by fields.
func datasetPrompt(fields []SchemaField, rows int) string {
	example := make(map[string]string, len(fields))
	for _, f := range fields {
		example[f.Key] = f.Description
	}
	shape, _ := json.MarshalIndent(example, "", "  ")

	var b strings.Builder
	b.WriteString("You generate question-answer training data from the content given by the user.\n")
	b.WriteString("Analyze the content for key concepts, details, applications and edge cases, then\n")
	b.WriteString("write a diverse set of records that covers it. Escape special characters inside\n")
	b.WriteString("JSON strings and format any code properly.\n\n")
	fmt.Fprintf(&b, "Generate exactly %d records.\n\n", rows)
	b.WriteString("## Response Format\nRespond only with a JSON array of objects:\n[\n")
	b.Write(shape)
	b.WriteString(",\n...\n]\n")
	return b.String()
}

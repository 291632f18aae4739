/*
Package research implements the deep-research dataset pipeline on top of the
workflow engine.

A run proposes a dataset schema and a report structure, each approved by a human
reviewer, splits the structure into sections and researches every section in an
isolated child: query generation, web search, accumulation and a bounded
reflection loop, then a final write-up turned into validated dataset records.
The records of all sections are aggregated into the final dataset.

Language-model and search calls go through ports.Invoker and ports.Searcher and
are wrapped in the retry policy.
*/
package research

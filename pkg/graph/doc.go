/*
Package graph defines nodes, static edges and the compiled, immutable Graph.

A Graph is validated once by Compile and never changes afterwards. It only
describes control and data contracts; executing it is the job of the runtime.

Three node kinds exist:

  - Work nodes return an Update (follow the static edge) or a Command.
  - Human nodes suspend the run until an external actor provides a line of input.
  - Subgraph nodes run another Graph to its end marker as an isolated child.
*/
package graph

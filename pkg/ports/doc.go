/*
Package ports defines the driven ports (interfaces) of the workflow engine.

These interfaces decouple the engine and the research pipeline from concrete
storage backends and external collaborators.

# Key Interfaces

  - CheckpointStore: persists and loads run checkpoints (suspend/resume).
  - DistributedLocker: coordinates access to a run across processes.
  - Invoker: a language-model inference collaborator.
  - Searcher: a web-search collaborator.
*/
package ports

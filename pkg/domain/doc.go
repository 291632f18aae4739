/*
Package domain contains the core models shared by the workflow engine.

It defines the typed state container, the routing instructions a node can return,
the checkpoint snapshot used for suspend/resume, the error taxonomy and the
lifecycle events emitted during a run. This package performs no I/O and knows
nothing about what any node actually does.

# Key Entities

  - Schema / Field: the declared shape of a run state and the reducer policy per field.
  - State: an immutable snapshot of field values. Every merge produces a new State.
  - Update: a partial state produced by a node.
  - Command: a routing instruction (goto a node, goto End, or fan out to children).
  - Checkpoint: the persisted snapshot of a run plus the node it will execute next.
*/
package domain

package domain

// End is the terminal marker. Routing to End finishes the current graph.
const End = "__end__"

// Output is what a work node returns: either an Update (follow the static edge)
// or a Command (explicit routing).
type Output interface {
	isOutput()
}

func (Update) isOutput() {}

// Send asks the engine to run one isolated child starting at Node,
// seeded with the parent state plus State.
type Send struct {
	Node  string `json:"node"`
	State Update `json:"state,omitempty"`
}

// Command carries a routing decision and the update to merge before routing.
// Exactly one of Goto or Sends is used. An empty Command follows the static edge.
type Command struct {
	Goto   string `json:"goto,omitempty"`
	Sends  []Send `json:"sends,omitempty"`
	Update Update `json:"update,omitempty"`
}

func (Command) isOutput() {}

// Goto routes to a single node (or End) after merging update.
func Goto(node string, update Update) Command {
	return Command{Goto: node, Update: update}
}

// FanOut dispatches one child per send after merging update into the parent.
func FanOut(update Update, sends ...Send) Command {
	return Command{Update: update, Sends: sends}
}

// IsFanOut reports whether the command dispatches children.
func (c Command) IsFanOut() bool {
	return len(c.Sends) > 0
}

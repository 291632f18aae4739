package graph

import (
	"fmt"
	"strings"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
	wf "github.com/Thesius-ai/thesius-deepresearch-cli/pkg/graph"
)

// GraphOverlay contains run data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFor builds the overlay of a checkpoint.
func OverlayFor(cp *domain.Checkpoint) *GraphOverlay {
	if cp == nil {
		return nil
	}
	return &GraphOverlay{VisitedNodes: cp.History, CurrentNode: cp.Pending}
}

// GenerateMermaid produces a Mermaid flowchart of a compiled graph.
// Shapes follow the node kind:
//   - entry: ((Circle))
//   - human: [/Parallelogram/]
//   - subgraph: [[Subroutine]], with the child drawn as a nested subgraph
//   - work: [Rectangle]
//
// Static edges are solid, declared Command routes are dotted.
func GenerateMermaid(g *wf.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	writeGraph(&sb, g, "", "    ")

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if safeID == "" || seen[safeID] || !g.Has(id) || id == domain.End {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentNode != "" && overlay.CurrentNode != domain.End {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}
	return sb.String()
}

func writeGraph(sb *strings.Builder, g *wf.Graph, prefix, indent string) {
	endID := prefix + "end"
	usesEnd := false

	for _, node := range g.Nodes() {
		id := sanitizeMermaidID(prefix + node.Name)

		opener, closer := "[", "]"
		switch {
		case node.Name == g.Entry():
			opener, closer = "((", "))"
		case node.Kind == wf.KindHuman:
			opener, closer = "[/", "/]"
		case node.Kind == wf.KindSubgraph:
			opener, closer = "[[", "]]"
		}
		fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, id, opener, node.Name, closer)

		target := func(to string) string {
			if to == domain.End {
				usesEnd = true
				return sanitizeMermaidID(endID)
			}
			return sanitizeMermaidID(prefix + to)
		}

		if to, ok := g.Successor(node.Name); ok {
			fmt.Fprintf(sb, "%s%s --> %s\n", indent, id, target(to))
		}
		for _, to := range node.Routes {
			fmt.Fprintf(sb, "%s%s -.-> %s\n", indent, id, target(to))
		}

		if node.Kind == wf.KindSubgraph && node.Subgraph != nil {
			childPrefix := prefix + node.Name + "."
			fmt.Fprintf(sb, "%ssubgraph %s_child[\"%s\"]\n", indent, id, node.Name)
			writeGraph(sb, node.Subgraph, childPrefix, indent+"    ")
			fmt.Fprintf(sb, "%send\n", indent)
			fmt.Fprintf(sb, "%s%s -. send .-> %s\n", indent, id, sanitizeMermaidID(childPrefix+node.Subgraph.Entry()))
		}
	}

	if usesEnd {
		fmt.Fprintf(sb, "%s%s((\"END\"))\n", indent, sanitizeMermaidID(endID))
	}
}

func sanitizeMermaidID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_")
	return r.Replace(id)
}

package renderer

import (
	"fmt"
	"regexp"
	"strings"
)

// NodeShape selects the Mermaid node delimiter pair.
type NodeShape string

const (
	ShapeRect    NodeShape = "rect"
	ShapeRounded NodeShape = "rounded"
	ShapeDiamond NodeShape = "diamond"
)

type diagramNode struct {
	id    string
	label string
	shape NodeShape
}

type diagramEdge struct {
	from  string
	to    string
	label string
}

// Diagram accumulates a declarative node/edge list and emits a Mermaid
// flowchart. Emission order follows insertion order, so building the diagram
// from a sorted model keeps output byte-identical across runs.
type Diagram struct {
	nodes []diagramNode
	edges []diagramEdge
	seen  map[string]bool
}

// NewDiagram creates an empty diagram.
func NewDiagram() *Diagram {
	return &Diagram{seen: make(map[string]bool)}
}

// AddNode adds a node once; repeated ids are ignored.
func (d *Diagram) AddNode(id, label string, shape NodeShape) *Diagram {
	if d.seen[id] {
		return d
	}
	d.seen[id] = true
	d.nodes = append(d.nodes, diagramNode{id: sanitizeID(id), label: label, shape: shape})
	return d
}

// AddEdge connects two previously added nodes.
func (d *Diagram) AddEdge(from, to, label string) *Diagram {
	d.edges = append(d.edges, diagramEdge{from: sanitizeID(from), to: sanitizeID(to), label: label})
	return d
}

// Empty reports whether the diagram has no nodes.
func (d *Diagram) Empty() bool {
	return len(d.nodes) == 0
}

// Flowchart renders the diagram as a Mermaid flowchart with the given
// direction (TD, LR, ...).
func (d *Diagram) Flowchart(direction string) string {
	var sb strings.Builder
	sb.WriteString("flowchart " + direction + "\n")
	for _, n := range d.nodes {
		sb.WriteString("    " + formatNode(n) + "\n")
	}
	for _, e := range d.edges {
		if e.label != "" {
			sb.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", e.from, e.label, e.to))
		} else {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", e.from, e.to))
		}
	}
	return sb.String()
}

func formatNode(n diagramNode) string {
	label := strings.ReplaceAll(n.label, `"`, "'")
	switch n.shape {
	case ShapeDiamond:
		return fmt.Sprintf(`%s{"%s"}`, n.id, label)
	case ShapeRounded:
		return fmt.Sprintf(`%s("%s")`, n.id, label)
	default:
		return fmt.Sprintf(`%s["%s"]`, n.id, label)
	}
}

var idSanitizer = regexp.MustCompile(`[^A-Za-z0-9_]`)

func sanitizeID(raw string) string {
	id := idSanitizer.ReplaceAllString(raw, "_")
	if id == "" {
		return "_"
	}
	return id
}

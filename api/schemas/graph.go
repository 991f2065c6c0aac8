package schemas

// -- Canonical Knowledge Graph Data Model --

// NodeType represents the kind of code entity a node stands for.
type NodeType string

const (
	NodeFile     NodeType = "file"
	NodeClass    NodeType = "class"
	NodeFunction NodeType = "function"
	NodeUnknown  NodeType = "unknown"
)

// EdgeType defines the semantic type of a relationship between two nodes.
type EdgeType string

const (
	EdgeImports EdgeType = "imports"
	EdgeCalls   EdgeType = "calls"
)

// Node is a single entity in the knowledge graph. The ID is the bare
// identifier: a function or class name, or the filename for file nodes.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	File string   `json:"file"`
}

// Edge is a directed relationship between two symbolic names. Targets are
// unresolved: a call to a stdlib function produces an edge whose target has
// no corresponding Node. The graph models mentions, not a symbol table.
type Edge struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   EdgeType `json:"type"`
}

// Graph is the full structural document for one workspace. Node and edge
// order is insertion order from the build pass and is preserved through
// serialization so that diagram output stays reproducible.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or false when the id is
// dangling (referenced by an edge but never declared).
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

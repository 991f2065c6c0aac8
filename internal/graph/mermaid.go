package graph

import (
	"fmt"
	"strings"

	"aurora/api/schemas"
)

// RenderMermaid turns a subgraph into a Mermaid diagram description. Nodes
// cluster by their owning file (file nodes form their own implicit cluster),
// each node type gets a distinct style, and every edge becomes one directed
// statement labeled with its type. Identifiers are sanitized into
// diagram-safe tokens while the original id stays as the display label.
func RenderMermaid(sub *schemas.Graph) string {
	lines := []string{
		"graph TD",
		"  %% Dark Theme Styles",
		"  classDef fileNode fill:#1e3a5f,stroke:#4fc3f7,stroke-width:2px,color:#fff;",
		"  classDef classNode fill:#5d4037,stroke:#ffb74d,stroke-width:2px,color:#fff;",
		"  classDef funcNode fill:#2e4a3a,stroke:#81c784,stroke-width:2px,color:#fff;",
		"  classDef default fill:#37474f,stroke:#90a4ae,stroke-width:1px,color:#fff;",
	}

	// Group nodes by owning file, preserving first-seen order for
	// reproducible output.
	var groupOrder []string
	groups := make(map[string][]schemas.Node)
	for _, n := range sub.Nodes {
		group := n.File
		if n.Type == schemas.NodeFile {
			group = "Files"
		}
		if group == "" {
			group = "unknown"
		}
		if _, seen := groups[group]; !seen {
			groupOrder = append(groupOrder, group)
		}
		groups[group] = append(groups[group], n)
	}

	for _, group := range groupOrder {
		wrapped := group != "unknown" && group != "Files"
		if wrapped {
			lines = append(lines, fmt.Sprintf("  subgraph %s [%s]", sanitizeID(group), group))
		}
		for _, n := range groups[group] {
			lines = append(lines, renderNode(n))
		}
		if wrapped {
			lines = append(lines, "  end")
		}
	}

	for _, e := range sub.Edges {
		edgeType := string(e.Type)
		if edgeType == "" {
			edgeType = "uses"
		}
		lines = append(lines, fmt.Sprintf("  %s -->|%s| %s", sanitizeID(e.Source), edgeType, sanitizeID(e.Target)))
	}

	return strings.Join(lines, "\n")
}

// RenderMermaidBlock wraps the diagram in a fenced markdown block.
func RenderMermaidBlock(sub *schemas.Graph) string {
	return "```mermaid\n" + RenderMermaid(sub) + "\n```"
}

// MermaidNotice renders a one-node placeholder diagram with a message, used
// when there is nothing to visualize.
func MermaidNotice(message string) string {
	return fmt.Sprintf("```mermaid\ngraph TD;\n  A[%s];\n```", message)
}

func renderNode(n schemas.Node) string {
	id := sanitizeID(n.ID)
	switch n.Type {
	case schemas.NodeFile:
		return fmt.Sprintf("    %s[[%s]]:::fileNode", id, n.ID)
	case schemas.NodeClass:
		return fmt.Sprintf("    %s{{%s}}:::classNode", id, n.ID) // hexagon
	case schemas.NodeFunction:
		return fmt.Sprintf("    %s(%s):::funcNode", id, n.ID) // rounded
	default:
		return fmt.Sprintf("    %s[%s]", id, n.ID)
	}
}

// sanitizeID replaces every non-alphanumeric rune so the token is safe as a
// Mermaid identifier.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

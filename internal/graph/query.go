package graph

import (
	"strings"

	"aurora/api/schemas"
)

// Search performs a case-insensitive substring match against node id/file
// and edge source/target. An empty result is valid, not an error.
func Search(g *schemas.Graph, query string) *schemas.Graph {
	q := strings.ToLower(query)
	result := &schemas.Graph{Nodes: []schemas.Node{}, Edges: []schemas.Edge{}}

	for _, n := range g.Nodes {
		if strings.Contains(strings.ToLower(n.ID), q) || strings.Contains(strings.ToLower(n.File), q) {
			result.Nodes = append(result.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if strings.Contains(strings.ToLower(e.Source), q) || strings.Contains(strings.ToLower(e.Target), q) {
			result.Edges = append(result.Edges, e)
		}
	}
	return result
}

// ExtractSubgraph derives a smaller graph from seed node ids.
//
// With includeNeighbors false, only edges with both endpoints in the seed
// set are retained, then the node set expands to cover every retained edge:
// isolated seeds still appear, unrelated neighbors never enter.
//
// With includeNeighbors true, every edge touching any seed is retained and
// all endpoints of those edges join the node set (one-hop expansion in both
// directions).
//
// Output order follows the graph's insertion order; endpoints with no node
// record come last, in edge order, as unknown nodes. Stable across calls for
// the same input.
func ExtractSubgraph(g *schemas.Graph, seedIDs []string, includeNeighbors bool) *schemas.Graph {
	seeds := make(map[string]struct{}, len(seedIDs))
	for _, id := range seedIDs {
		seeds[id] = struct{}{}
	}

	keep := make(map[string]struct{}, len(seedIDs))
	for id := range seeds {
		keep[id] = struct{}{}
	}

	var edges []schemas.Edge
	if includeNeighbors {
		for _, e := range g.Edges {
			_, srcSeed := seeds[e.Source]
			_, dstSeed := seeds[e.Target]
			if srcSeed || dstSeed {
				edges = append(edges, e)
				keep[e.Source] = struct{}{}
				keep[e.Target] = struct{}{}
			}
		}
	} else {
		for _, e := range g.Edges {
			_, srcSeed := seeds[e.Source]
			_, dstSeed := seeds[e.Target]
			if srcSeed && dstSeed {
				edges = append(edges, e)
			}
		}
		// Expand over retained edges only; with both endpoints seeded this
		// cannot pull in outsiders, but keeps the invariant explicit.
		for _, e := range edges {
			keep[e.Source] = struct{}{}
			keep[e.Target] = struct{}{}
		}
	}

	result := &schemas.Graph{Edges: edges}

	known := make(map[string]struct{}, len(keep))
	for _, n := range g.Nodes {
		if _, ok := keep[n.ID]; ok {
			result.Nodes = append(result.Nodes, n)
			known[n.ID] = struct{}{}
		}
	}
	// Dangling endpoints (and seeds naming nothing in the graph) become
	// unknown nodes so every edge endpoint is present in the node set.
	appendUnknown := func(id string) {
		if _, ok := known[id]; ok {
			return
		}
		if _, ok := keep[id]; !ok {
			return
		}
		known[id] = struct{}{}
		result.Nodes = append(result.Nodes, schemas.Node{ID: id, Type: schemas.NodeUnknown, File: "unknown"})
	}
	for _, e := range edges {
		appendUnknown(e.Source)
		appendUnknown(e.Target)
	}
	for _, id := range seedIDs {
		appendUnknown(id)
	}
	return result
}

// MentionedNodeIDs returns, in graph insertion order, the ids of nodes whose
// id occurs as a substring of text. Used to seed conversation-driven
// visualizations.
func MentionedNodeIDs(g *schemas.Graph, text string) []string {
	var ids []string
	for _, n := range g.Nodes {
		if n.ID != "" && strings.Contains(text, n.ID) {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

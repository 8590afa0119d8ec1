package graph

import "token-graph-lab/internal/domain"

// Adjacency maps a node id to the ids it shares a link with, in either
// direction.
type Adjacency map[string]map[string]struct{}

// Neighbors indexes the links of nodes and links as an undirected adjacency.
func Neighbors(nodes []domain.Node, links []domain.Link) Adjacency {
	adj := make(Adjacency, len(nodes))
	for i := range nodes {
		adj[nodes[i].ID] = make(map[string]struct{})
	}
	for _, l := range links {
		if src, ok := adj[l.Source]; ok {
			src[l.Target] = struct{}{}
		}
		if dst, ok := adj[l.Target]; ok {
			dst[l.Source] = struct{}{}
		}
	}
	return adj
}

// Of returns the neighbor set of id, or nil.
func (a Adjacency) Of(id string) map[string]struct{} {
	return a[id]
}

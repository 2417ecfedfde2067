// Package analysis enumerates paths through a relationship graph, labels
// nodes and edges, runs the pattern rules and assembles the risk report.
package analysis

import "sentinel/internal/graph"

// NodeState labels a node.
type NodeState string

const (
	NodeNormal     NodeState = "normal"
	NodeSuspicious NodeState = "suspicious"
	NodeCritical   NodeState = "critical" // reserved
	NodeUnknown    NodeState = "unknown"  // reserved
)

// EdgeState labels an edge.
type EdgeState string

const (
	EdgeNormal     EdgeState = "normal"
	EdgeSuspicious EdgeState = "suspicious"
	EdgeAnomalous  EdgeState = "anomalous" // reserved
	EdgeForbidden  EdgeState = "forbidden" // reserved
)

// maxAgentTools is the outbound tool count above which an agent is
// labeled suspicious.
const maxAgentTools = 5

// Labels holds node states by id and edge states by edge index.
type Labels struct {
	Nodes map[string]NodeState
	Edges []EdgeState
}

// Label computes node and edge states from local graph properties.
func Label(g *graph.Graph) Labels {
	l := Labels{
		Nodes: make(map[string]NodeState, len(g.Nodes)),
		Edges: make([]EdgeState, len(g.Edges)),
	}
	deg := degrees(g)
	for _, n := range g.Nodes {
		l.Nodes[n.ID] = nodeState(n, deg[n.ID])
	}
	for i, e := range g.Edges {
		l.Edges[i] = edgeState(e)
	}
	return l
}

type degree struct {
	in, out      int
	toolsOut     int
	fromAgentsIn int
}

func degrees(g *graph.Graph) map[string]*degree {
	kinds := make(map[string]string, len(g.Nodes))
	deg := make(map[string]*degree, len(g.Nodes))
	for _, n := range g.Nodes {
		kinds[n.ID] = n.Kind
		deg[n.ID] = &degree{}
	}
	for _, e := range g.Edges {
		src, dst := deg[e.Source], deg[e.Target]
		if src == nil || dst == nil {
			continue
		}
		src.out++
		dst.in++
		if e.Relationship == graph.ExplicitUsage {
			src.toolsOut++
		}
		if kinds[e.Source] == graph.KindAgent {
			dst.fromAgentsIn++
		}
	}
	return deg
}

func nodeState(n graph.Node, d *degree) NodeState {
	switch n.Kind {
	case graph.KindAgent:
		if n.Metadata.Role == "" && n.Metadata.Goal == "" {
			return NodeSuspicious
		}
		if d.in+d.out == 0 {
			return NodeSuspicious
		}
		if d.toolsOut > maxAgentTools {
			return NodeSuspicious
		}
	case graph.KindTool:
		if d.fromAgentsIn == 0 {
			return NodeSuspicious
		}
	}
	return NodeNormal
}

func edgeState(e graph.Edge) EdgeState {
	switch {
	case e.Relationship == graph.ExplicitUsage && e.Weight > 0.8:
		return EdgeNormal
	case e.Relationship == graph.FileProximity && e.Weight < 0.4:
		return EdgeNormal
	case e.Weight > 0.9:
		return EdgeSuspicious
	case e.Relationship == graph.SameCrewCollaboration:
		return EdgeNormal
	case e.Weight > 0.7:
		return EdgeSuspicious
	}
	return EdgeNormal
}

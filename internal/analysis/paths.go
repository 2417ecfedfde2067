package analysis

import "sentinel/internal/graph"

// DefaultMaxDepth bounds path length in nodes. Raising it without a path
// cap lets dense graphs explode combinatorially.
const DefaultMaxDepth = 5

// PathKind classifies a path by the kinds of its nodes.
type PathKind string

const (
	PathAgentCollaboration PathKind = "agent_collaboration"
	PathAgentToolUsage     PathKind = "agent_tool_usage"
	PathMixedInteraction   PathKind = "mixed_interaction"
	PathTrivial            PathKind = "trivial"
	PathUnknown            PathKind = "unknown"
)

// Path is a simple directed walk starting at an agent.
type Path struct {
	Nodes     []string `json:"path"`
	Length    int      `json:"length"`
	Kind      PathKind `json:"path_type"`
	RiskScore float64  `json:"risk_score"`
}

// EnumerateOptions bounds enumeration.
type EnumerateOptions struct {
	MaxDepth int // nodes per path; <= 0 means DefaultMaxDepth
	MaxPaths int // total paths; <= 0 means unbounded
}

// Enumerate returns every simple path of length 2..MaxDepth that starts at
// an agent node, grouped by start node in node order and depth-first within
// a start. The second result reports whether MaxPaths cut enumeration short.
func Enumerate(g *graph.Graph, opts EnumerateOptions) ([]Path, bool) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	adj := adjacency(g)
	kinds := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		kinds[n.ID] = n.Kind
	}

	var (
		paths     []Path
		truncated bool
		stack     []string
		visited   = make(map[string]bool)
	)
	var dfs func(id string)
	dfs = func(id string) {
		if truncated {
			return
		}
		stack = append(stack, id)
		visited[id] = true
		defer func() {
			stack = stack[:len(stack)-1]
			delete(visited, id)
		}()

		if len(stack) >= 2 {
			if opts.MaxPaths > 0 && len(paths) >= opts.MaxPaths {
				truncated = true
				return
			}
			p := make([]string, len(stack))
			copy(p, stack)
			paths = append(paths, Path{Nodes: p, Length: len(p), Kind: classify(p, kinds)})
		}
		if len(stack) >= maxDepth {
			return
		}
		for _, next := range adj[id] {
			if !visited[next] {
				dfs(next)
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Kind == graph.KindAgent {
			dfs(n.ID)
		}
	}
	return paths, truncated
}

// adjacency lists distinct successors in first-edge order, so parallel edges
// of different relationships do not yield the same path twice.
func adjacency(g *graph.Graph) map[string][]string {
	adj := make(map[string][]string, len(g.Nodes))
	seen := make(map[[2]string]bool, len(g.Edges))
	for _, e := range g.Edges {
		k := [2]string{e.Source, e.Target}
		if seen[k] {
			continue
		}
		seen[k] = true
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

func classify(ids []string, kinds map[string]string) PathKind {
	if len(ids) < 2 {
		return PathTrivial
	}
	allAgents, restTools := true, kinds[ids[0]] == graph.KindAgent
	hasAgent, hasTool := false, false
	for i, id := range ids {
		k := kinds[id]
		if k != graph.KindAgent {
			allAgents = false
		}
		if i > 0 && k != graph.KindTool {
			restTools = false
		}
		hasAgent = hasAgent || k == graph.KindAgent
		hasTool = hasTool || k == graph.KindTool
	}
	switch {
	case allAgents:
		return PathAgentCollaboration
	case restTools:
		return PathAgentToolUsage
	case hasAgent && hasTool:
		return PathMixedInteraction
	}
	return PathUnknown
}

// ---------------------------------------------------------------------------
// Risk
// ---------------------------------------------------------------------------

const longPathBonus = 0.3

func nodePenalty(s NodeState) float64 {
	switch s {
	case NodeSuspicious:
		return 0.4
	case NodeCritical:
		return 0.8
	}
	return 0
}

func edgePenalty(s EdgeState) float64 {
	switch s {
	case EdgeSuspicious:
		return 0.3
	case EdgeAnomalous:
		return 0.6
	case EdgeForbidden:
		return 1.0
	}
	return 0
}

// scorer computes path risk against fixed labels.
type scorer struct {
	labels    Labels
	firstEdge map[[2]string]int
}

func newScorer(g *graph.Graph, labels Labels) *scorer {
	s := &scorer{labels: labels, firstEdge: make(map[[2]string]int, len(g.Edges))}
	for i, e := range g.Edges {
		k := [2]string{e.Source, e.Target}
		if _, ok := s.firstEdge[k]; !ok {
			s.firstEdge[k] = i
		}
	}
	return s
}

// Risk scores ids in [0, 1]: a bonus for paths longer than four nodes plus
// node and edge penalties, capped at 1.
func (s *scorer) Risk(ids []string) float64 {
	if len(ids) < 2 {
		return 0
	}
	risk := 0.0
	if len(ids) > 4 {
		risk += longPathBonus
	}
	for _, id := range ids {
		risk += nodePenalty(s.labels.Nodes[id])
	}
	for i := 0; i+1 < len(ids); i++ {
		if idx, ok := s.firstEdge[[2]string{ids[i], ids[i+1]}]; ok {
			risk += edgePenalty(s.labels.Edges[idx])
		}
	}
	if risk > 1 {
		return 1
	}
	return risk
}

// RiskLevel maps a score to low, medium or high.
func RiskLevel(score float64) string {
	switch {
	case score < 0.3:
		return "low"
	case score < 0.7:
		return "medium"
	}
	return "high"
}

package analysis

import (
	"fmt"

	"sentinel/internal/graph"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AffectedEdge identifies an edge a finding refers to.
type AffectedEdge struct {
	Source       string             `json:"source"`
	Target       string             `json:"target"`
	Relationship graph.Relationship `json:"relationship,omitempty"`
	Weight       float64            `json:"weight"`
	SourceFile   string             `json:"source_file,omitempty"`
	TargetFile   string             `json:"target_file,omitempty"`
}

// ToolUsage records an agent's outbound tool count.
type ToolUsage struct {
	Agent     string `json:"agent"`
	ToolCount int    `json:"tool_count"`
}

// Finding is the output of one rule that fired.
type Finding struct {
	RuleName      string         `json:"rule_name"`
	Severity      Severity       `json:"severity"`
	Description   string         `json:"description"`
	AffectedNodes []string       `json:"affected_nodes,omitempty"`
	AffectedEdges []AffectedEdge `json:"affected_edges,omitempty"`
	AffectedPaths [][]string     `json:"affected_paths,omitempty"`
	Details       string         `json:"details"`
	Data          []ToolUsage    `json:"data,omitempty"`
}

// Input is what every rule inspects.
type Input struct {
	Graph  *graph.Graph
	Labels Labels
	Paths  []Path
}

// Rule is one independent pattern check. Check returns nil when the rule
// does not fire.
type Rule struct {
	Name           string
	Severity       Severity
	Description    string
	Recommendation string
	Enabled        bool
	Check          func(in *Input) *Finding
}

// Rule names.
const (
	RuleIsolatedAgents       = "isolated_agents"
	RuleExcessiveToolUsage   = "excessive_tool_usage"
	RuleCircularDependencies = "circular_dependencies"
	RuleUnusedTools          = "unused_tools"
	RuleComplexChains        = "complex_collaboration_chains"
	RuleHighWeight           = "high_weight_relationships"
	RuleCrossFile            = "cross_file_anomalies"
)

const (
	excessiveToolThreshold = 3
	chainLengthThreshold   = 3
	highWeightThreshold    = 0.9
	crossFileThreshold     = 0.7
)

// DefaultRules returns the rule catalog in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:           RuleIsolatedAgents,
			Severity:       SeverityMedium,
			Description:    "Detect isolated agents (without any connections)",
			Recommendation: "Consider connecting isolated agents to tools or other agents",
			Enabled:        true,
			Check:          checkIsolatedAgents,
		},
		{
			Name:           RuleExcessiveToolUsage,
			Severity:       SeverityLow,
			Description:    "Detect agents with excessive tool usage",
			Recommendation: "Review agents with excessive tool usage for potential optimization",
			Enabled:        true,
			Check:          checkExcessiveToolUsage,
		},
		{
			Name:           RuleCircularDependencies,
			Severity:       SeverityHigh,
			Description:    "Detect circular dependencies",
			Recommendation: "CRITICAL: Resolve circular dependencies to prevent infinite loops",
			Enabled:        true,
			Check:          checkCircularDependencies,
		},
		{
			Name:           RuleUnusedTools,
			Severity:       SeverityLow,
			Description:    "Detect tools not used by agents",
			Recommendation: "Consider removing unused tools or connecting them to agents",
			Enabled:        true,
			Check:          checkUnusedTools,
		},
		{
			Name:           RuleComplexChains,
			Severity:       SeverityMedium,
			Description:    "Detect complex agent collaboration chains",
			Recommendation: "Simplify complex agent collaboration chains if possible",
			Enabled:        true,
			Check:          checkComplexChains,
		},
		{
			Name:           RuleHighWeight,
			Severity:       SeverityHigh,
			Description:    "Detect abnormally high weight relationships",
			Recommendation: "Review relationships with unusually high weights",
			Enabled:        true,
			Check:          checkHighWeight,
		},
		{
			Name:           RuleCrossFile,
			Severity:       SeverityMedium,
			Description:    "Detect cross-file access anomalies",
			Recommendation: "Verify cross-file relationships are intentional and secure",
			Enabled:        true,
			Check:          checkCrossFile,
		},
	}
}

// Evaluate runs enabled rules in order and stamps each finding with its
// rule's name, severity and description.
func Evaluate(rules []Rule, in *Input) []Finding {
	findings := []Finding{}
	for _, r := range rules {
		if !r.Enabled || r.Check == nil {
			continue
		}
		f := r.Check(in)
		if f == nil {
			continue
		}
		f.RuleName = r.Name
		f.Severity = r.Severity
		f.Description = r.Description
		findings = append(findings, *f)
	}
	return findings
}

// ---------------------------------------------------------------------------
// Checks
// ---------------------------------------------------------------------------

func checkIsolatedAgents(in *Input) *Finding {
	deg := degrees(in.Graph)
	var ids []string
	for _, n := range in.Graph.Nodes {
		if n.Kind == graph.KindAgent && deg[n.ID].in+deg[n.ID].out == 0 {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Finding{AffectedNodes: ids, Details: fmt.Sprintf("Found %d isolated agent(s)", len(ids))}
}

func checkExcessiveToolUsage(in *Input) *Finding {
	deg := degrees(in.Graph)
	var usage []ToolUsage
	for _, n := range in.Graph.Nodes {
		if n.Kind == graph.KindAgent && deg[n.ID].toolsOut > excessiveToolThreshold {
			usage = append(usage, ToolUsage{Agent: n.ID, ToolCount: deg[n.ID].toolsOut})
		}
	}
	if len(usage) == 0 {
		return nil
	}
	ids := make([]string, len(usage))
	for i, u := range usage {
		ids[i] = u.Agent
	}
	return &Finding{
		AffectedNodes: ids,
		Details:       fmt.Sprintf("Found %d agent(s) with excessive tool usage", len(usage)),
		Data:          usage,
	}
}

// checkCircularDependencies looks for a directed cycle. Collaboration edges
// are emitted in symmetric pairs and are not followed.
func checkCircularDependencies(in *Input) *Finding {
	adj := make(map[string][]string)
	for _, e := range in.Graph.Edges {
		if e.Relationship == graph.SameCrewCollaboration {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool)
	var hasCycle func(id string, onStack map[string]bool) bool
	hasCycle = func(id string, onStack map[string]bool) bool {
		visited[id] = true
		onStack[id] = true
		for _, next := range adj[id] {
			if !visited[next] {
				if hasCycle(next, onStack) {
					return true
				}
			} else if onStack[next] {
				return true
			}
		}
		delete(onStack, id)
		return false
	}

	for _, n := range in.Graph.Nodes {
		if visited[n.ID] {
			continue
		}
		if hasCycle(n.ID, make(map[string]bool)) {
			var ids []string
			for _, m := range in.Graph.Nodes {
				if visited[m.ID] {
					ids = append(ids, m.ID)
				}
			}
			return &Finding{AffectedNodes: ids, Details: "Detected circular dependencies in the graph"}
		}
	}
	return nil
}

func checkUnusedTools(in *Input) *Finding {
	deg := degrees(in.Graph)
	var ids []string
	for _, n := range in.Graph.Nodes {
		if n.Kind == graph.KindTool && deg[n.ID].in == 0 {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Finding{AffectedNodes: ids, Details: fmt.Sprintf("Found %d unused tool(s)", len(ids))}
}

func checkComplexChains(in *Input) *Finding {
	var chains [][]string
	for _, p := range in.Paths {
		if p.Kind == PathAgentCollaboration && p.Length > chainLengthThreshold {
			chains = append(chains, p.Nodes)
		}
	}
	if len(chains) == 0 {
		return nil
	}
	return &Finding{AffectedPaths: chains, Details: fmt.Sprintf("Found %d complex collaboration chain(s)", len(chains))}
}

func checkHighWeight(in *Input) *Finding {
	var edges []AffectedEdge
	for _, e := range in.Graph.Edges {
		if e.Weight > highWeightThreshold {
			edges = append(edges, AffectedEdge{Source: e.Source, Target: e.Target, Relationship: e.Relationship, Weight: e.Weight})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	return &Finding{AffectedEdges: edges, Details: fmt.Sprintf("Found %d relationship(s) with unusually high weights", len(edges))}
}

func checkCrossFile(in *Input) *Finding {
	var edges []AffectedEdge
	for _, e := range in.Graph.Edges {
		src, ok1 := in.Graph.Node(e.Source)
		dst, ok2 := in.Graph.Node(e.Target)
		if !ok1 || !ok2 || src.SourceFile == "" || dst.SourceFile == "" || src.SourceFile == dst.SourceFile {
			continue
		}
		if e.Weight > crossFileThreshold {
			edges = append(edges, AffectedEdge{
				Source:       e.Source,
				Target:       e.Target,
				Relationship: e.Relationship,
				Weight:       e.Weight,
				SourceFile:   src.SourceFile,
				TargetFile:   dst.SourceFile,
			})
		}
	}
	if len(edges) == 0 {
		return nil
	}
	return &Finding{AffectedEdges: edges, Details: fmt.Sprintf("Found %d potentially anomalous cross-file relationship(s)", len(edges))}
}

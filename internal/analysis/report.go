package analysis

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"

	"sentinel/internal/graph"
	"sentinel/internal/inventory"
)

// AnalyzerVersion is stamped into every report.
const AnalyzerVersion = "1.0"

// Info describes the analysis run.
type Info struct {
	Timestamp       string `json:"timestamp"`
	AnalyzerVersion string `json:"analyzer_version"`
	RulesApplied    int    `json:"rules_applied"`
}

// Assessment is the headline result.
type Assessment struct {
	TotalRiskScore          float64 `json:"total_risk_score"`
	RiskLevel               string  `json:"risk_level"`
	TotalPathsAnalyzed      int     `json:"total_paths_analyzed"`
	SuspiciousPatternsFound int     `json:"suspicious_patterns_found"`
}

// NodeAnalysis reports node states.
type NodeAnalysis struct {
	TotalNodes            int                  `json:"total_nodes"`
	NodeStateDistribution map[NodeState]int    `json:"node_state_distribution"`
	NodesWithStates       map[string]NodeState `json:"nodes_with_states"`
}

// EdgeAnalysis reports edge states keyed by edge index.
type EdgeAnalysis struct {
	TotalEdges            int                  `json:"total_edges"`
	EdgeStateDistribution map[EdgeState]int    `json:"edge_state_distribution"`
	EdgesWithStates       map[string]EdgeState `json:"edges_with_states"`
}

// RiskDistribution buckets path risk by level.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// PathAnalysis reports the enumerated paths.
type PathAnalysis struct {
	PathTypeDistribution  map[PathKind]int `json:"path_type_distribution"`
	RiskScoreDistribution RiskDistribution `json:"risk_score_distribution"`
	DetailedPaths         []Path           `json:"detailed_paths"`
	PathsTruncated        bool             `json:"paths_truncated"`
}

// Report is the analysis document.
type Report struct {
	Info               Info         `json:"analysis_info"`
	Overall            Assessment   `json:"overall_assessment"`
	NodeAnalysis       NodeAnalysis `json:"node_analysis"`
	EdgeAnalysis       EdgeAnalysis `json:"edge_analysis"`
	PathAnalysis       PathAnalysis `json:"path_analysis"`
	SuspiciousPatterns []Finding    `json:"suspicious_patterns"`
	Recommendations    []string     `json:"recommendations"`
}

// Options configures an analysis run.
type Options struct {
	MaxDepth      int
	MaxPaths      int
	DisabledRules []string
	Timestamp     string
	Logger        *slog.Logger
}

// Analyze labels g, enumerates and scores its paths, runs the rule catalog
// and projects everything into a Report. It never fails.
func Analyze(g *graph.Graph, opts Options) *Report {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	rules := DefaultRules()
	disabled := make(map[string]bool, len(opts.DisabledRules))
	for _, name := range opts.DisabledRules {
		disabled[name] = true
	}
	applied := 0
	for i := range rules {
		if disabled[rules[i].Name] {
			rules[i].Enabled = false
		}
		if rules[i].Enabled {
			applied++
		}
	}

	labels := Label(g)
	paths, truncated := Enumerate(g, EnumerateOptions{MaxDepth: opts.MaxDepth, MaxPaths: opts.MaxPaths})
	if truncated {
		log.Warn("path enumeration truncated", "max_paths", opts.MaxPaths)
	}
	sc := newScorer(g, labels)
	for i := range paths {
		paths[i].RiskScore = sc.Risk(paths[i].Nodes)
	}

	findings := Evaluate(rules, &Input{Graph: g, Labels: labels, Paths: paths})
	log.Debug("analysis complete", "paths", len(paths), "findings", len(findings))

	return project(g, labels, paths, truncated, findings, rules, Info{
		Timestamp:       opts.Timestamp,
		AnalyzerVersion: AnalyzerVersion,
		RulesApplied:    applied,
	})
}

func project(g *graph.Graph, labels Labels, paths []Path, truncated bool, findings []Finding, rules []Rule, info Info) *Report {
	r := &Report{
		Info:               info,
		SuspiciousPatterns: findings,
		Recommendations:    recommendations(g, labels, findings, rules),
	}

	total := 0.0
	pa := PathAnalysis{
		PathTypeDistribution: map[PathKind]int{},
		DetailedPaths:        paths,
		PathsTruncated:       truncated,
	}
	if pa.DetailedPaths == nil {
		pa.DetailedPaths = []Path{}
	}
	for _, p := range paths {
		total += p.RiskScore
		pa.PathTypeDistribution[p.Kind]++
		switch RiskLevel(p.RiskScore) {
		case "low":
			pa.RiskScoreDistribution.Low++
		case "medium":
			pa.RiskScoreDistribution.Medium++
		default:
			pa.RiskScoreDistribution.High++
		}
	}
	r.PathAnalysis = pa

	mean := 0.0
	if len(paths) > 0 {
		mean = total / float64(len(paths))
	}
	r.Overall = Assessment{
		TotalRiskScore:          math.Round(mean*1000) / 1000,
		RiskLevel:               RiskLevel(mean),
		TotalPathsAnalyzed:      len(paths),
		SuspiciousPatternsFound: len(findings),
	}

	r.NodeAnalysis = NodeAnalysis{
		TotalNodes:            len(g.Nodes),
		NodeStateDistribution: map[NodeState]int{},
		NodesWithStates:       map[string]NodeState{},
	}
	for _, n := range g.Nodes {
		s := labels.Nodes[n.ID]
		r.NodeAnalysis.NodeStateDistribution[s]++
		r.NodeAnalysis.NodesWithStates[n.ID] = s
	}

	r.EdgeAnalysis = EdgeAnalysis{
		TotalEdges:            len(g.Edges),
		EdgeStateDistribution: map[EdgeState]int{},
		EdgesWithStates:       map[string]EdgeState{},
	}
	for i, s := range labels.Edges {
		r.EdgeAnalysis.EdgeStateDistribution[s]++
		r.EdgeAnalysis.EdgesWithStates[strconv.Itoa(i)] = s
	}
	return r
}

func recommendations(g *graph.Graph, labels Labels, findings []Finding, rules []Rule) []string {
	advice := make(map[string]string, len(rules))
	for _, r := range rules {
		advice[r.Name] = r.Recommendation
	}
	out := []string{}
	for _, f := range findings {
		if a := advice[f.RuleName]; a != "" {
			out = append(out, a)
		}
	}
	suspicious := 0
	for _, n := range g.Nodes {
		if n.Kind == graph.KindAgent && labels.Nodes[n.ID] == NodeSuspicious {
			suspicious++
		}
	}
	if suspicious > 0 {
		out = append(out, fmt.Sprintf("Review %d suspicious agent(s) for potential issues", suspicious))
	}
	return out
}

// Load reads a report document from path.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	return &r, nil
}

// Save writes r as indented JSON to path.
func Save(r *Report, path string) error {
	return inventory.WriteJSON(path, r)
}

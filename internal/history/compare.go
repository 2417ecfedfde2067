package history

import (
	"math"
	"slices"

	"sentinel/internal/analysis"
)

// Delta is a before/after pair of counts.
type Delta struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

// Change returns After minus Before.
func (d Delta) Change() int { return d.After - d.Before }

// ScoreDelta is a before/after pair of risk scores.
type ScoreDelta struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Change returns After minus Before, rounded to 3 decimals.
func (d ScoreDelta) Change() float64 {
	return math.Round((d.After-d.Before)*1000) / 1000
}

// Comparison is the difference between two analysis reports.
type Comparison struct {
	Before Run `json:"before"`
	After  Run `json:"after"`

	Nodes     Delta      `json:"nodes"`
	Edges     Delta      `json:"edges"`
	Paths     Delta      `json:"paths"`
	Findings  Delta      `json:"findings"`
	RiskScore ScoreDelta `json:"risk_score"`
	RiskLevel [2]string  `json:"risk_level"`

	RiskDistribution map[string]Delta            `json:"risk_distribution"`
	PathTypes        map[analysis.PathKind]Delta `json:"path_types"`

	// NewFindings fired after but not before; ResolvedFindings the reverse.
	NewFindings      []string `json:"new_findings"`
	ResolvedFindings []string `json:"resolved_findings"`
}

// Compare diffs two reports. Findings are matched by rule name.
func Compare(before, after *analysis.Report) *Comparison {
	c := &Comparison{
		Nodes:     Delta{before.NodeAnalysis.TotalNodes, after.NodeAnalysis.TotalNodes},
		Edges:     Delta{before.EdgeAnalysis.TotalEdges, after.EdgeAnalysis.TotalEdges},
		Paths:     Delta{before.Overall.TotalPathsAnalyzed, after.Overall.TotalPathsAnalyzed},
		Findings:  Delta{before.Overall.SuspiciousPatternsFound, after.Overall.SuspiciousPatternsFound},
		RiskScore: ScoreDelta{before.Overall.TotalRiskScore, after.Overall.TotalRiskScore},
		RiskLevel: [2]string{before.Overall.RiskLevel, after.Overall.RiskLevel},
		RiskDistribution: map[string]Delta{
			"low":    {before.PathAnalysis.RiskScoreDistribution.Low, after.PathAnalysis.RiskScoreDistribution.Low},
			"medium": {before.PathAnalysis.RiskScoreDistribution.Medium, after.PathAnalysis.RiskScoreDistribution.Medium},
			"high":   {before.PathAnalysis.RiskScoreDistribution.High, after.PathAnalysis.RiskScoreDistribution.High},
		},
		PathTypes:        map[analysis.PathKind]Delta{},
		NewFindings:      []string{},
		ResolvedFindings: []string{},
	}
	for k, n := range before.PathAnalysis.PathTypeDistribution {
		d := c.PathTypes[k]
		d.Before = n
		c.PathTypes[k] = d
	}
	for k, n := range after.PathAnalysis.PathTypeDistribution {
		d := c.PathTypes[k]
		d.After = n
		c.PathTypes[k] = d
	}

	was := ruleNames(before)
	is := ruleNames(after)
	for _, n := range is {
		if !slices.Contains(was, n) {
			c.NewFindings = append(c.NewFindings, n)
		}
	}
	for _, n := range was {
		if !slices.Contains(is, n) {
			c.ResolvedFindings = append(c.ResolvedFindings, n)
		}
	}
	return c
}

func ruleNames(r *analysis.Report) []string {
	names := make([]string, 0, len(r.SuspiciousPatterns))
	for _, f := range r.SuspiciousPatterns {
		names = append(names, f.RuleName)
	}
	return names
}

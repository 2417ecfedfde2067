package tui

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"sentinel/internal/analysis"
	"sentinel/internal/graph"
	"sentinel/internal/inventory"
)

// WriteSummary prints a short styled report of a run. Any argument may be
// nil; its section is omitted.
func WriteSummary(w io.Writer, inv *inventory.Inventory, g *graph.Graph, r *analysis.Report) error {
	var b strings.Builder

	if inv != nil {
		s := inv.ScanSummary
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Scan"), inv.ScanInfo.Target)
		fmt.Fprintf(&b, "  agents %d  tools %d  tasks %d  crews %d  files %d (%d python)\n",
			s.TotalAgents, s.TotalTools, s.TotalTasks, s.TotalCrews, s.TotalFiles, s.PythonFiles)
		fallback := 0
		for _, f := range inv.Files {
			if f.ParseMode == inventory.ParseRegex {
				fallback++
			}
		}
		if fallback > 0 {
			fmt.Fprintf(&b, "  %s\n", levelStyle("medium").Render(fmt.Sprintf("%d file(s) parsed with the regex fallback", fallback)))
		}
	}

	if g != nil {
		fmt.Fprintf(&b, "%s %d nodes, %d edges\n", headerStyle.Render("Graph"), len(g.Nodes), len(g.Edges))
		rels := make([]string, 0, len(g.Summary.RelationshipTypes))
		for rel, n := range g.Summary.RelationshipTypes {
			rels = append(rels, fmt.Sprintf("%s %d", rel, n))
		}
		slices.Sort(rels)
		if len(rels) > 0 {
			fmt.Fprintf(&b, "  %s\n", dimStyle.Render(strings.Join(rels, ", ")))
		}
	}

	if r != nil {
		o := r.Overall
		fmt.Fprintf(&b, "%s %s (score %.3f)\n",
			headerStyle.Render("Risk"),
			levelStyle(o.RiskLevel).Render(strings.ToUpper(o.RiskLevel)),
			o.TotalRiskScore)
		d := r.PathAnalysis.RiskScoreDistribution
		fmt.Fprintf(&b, "  paths %d (low %d, medium %d, high %d)", o.TotalPathsAnalyzed, d.Low, d.Medium, d.High)
		if r.PathAnalysis.PathsTruncated {
			b.WriteString(" truncated")
		}
		b.WriteString("\n")
		for _, f := range r.SuspiciousPatterns {
			fmt.Fprintf(&b, "  %s %s: %s\n",
				levelStyle(string(f.Severity)).Render("["+string(f.Severity)+"]"),
				f.RuleName,
				f.Details)
		}
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&b, "  %s %s\n", dimStyle.Render("*"), rec)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"sentinel/internal/analysis"
	"sentinel/internal/history"
	"sentinel/internal/pipeline"
	"sentinel/internal/settings"
)

// ScanTool handles the sentinel_scan MCP tool.
type ScanTool struct {
	logger *slog.Logger
}

// NewScanTool creates a ScanTool. logger may be nil.
func NewScanTool(logger *slog.Logger) *ScanTool {
	return &ScanTool{logger: logger}
}

// Definition returns the MCP tool definition for sentinel_scan.
func (t *ScanTool) Definition() mcp.Tool {
	return mcp.NewTool("sentinel_scan",
		mcp.WithDescription(
			"Scan a directory or Python file and list the agents, tools, tasks and crews it constructs.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory or file to scan"),
		),
	)
}

// Handle processes the sentinel_scan tool call.
func (t *ScanTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	s, err := settings.Load(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load settings: %v", err)), nil
	}
	inv, err := pipeline.Scan(ctx, path, pipeline.Options{Settings: s, Logger: t.logger})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	var sb strings.Builder
	sum := inv.ScanSummary
	fmt.Fprintf(&sb, "## Scan of %s\n\n", path)
	fmt.Fprintf(&sb, "- **Agents**: %d\n- **Tools**: %d\n- **Tasks**: %d\n- **Crews**: %d\n- **Files**: %d (%d python)\n",
		sum.TotalAgents, sum.TotalTools, sum.TotalTasks, sum.TotalCrews, sum.TotalFiles, sum.PythonFiles)

	if len(inv.Agents) > 0 {
		sb.WriteString("\n### Agents\n\n")
		for _, a := range inv.Agents {
			fmt.Fprintf(&sb, "- `%s` %s: %s (%s:%d)\n", a.ID, a.DisplayName, a.Role, a.SourceFile, a.SourceLine)
		}
	}
	if len(inv.Tools) > 0 {
		sb.WriteString("\n### Tools\n\n")
		for _, tool := range inv.Tools {
			fmt.Fprintf(&sb, "- `%s` %s [%s]", tool.ID, tool.DisplayName, tool.Kind)
			if tool.FunctionName != "" {
				fmt.Fprintf(&sb, " as `%s`", tool.FunctionName)
			}
			sb.WriteString("\n")
		}
	}
	for _, f := range inv.Files {
		if f.Warning != "" {
			fmt.Fprintf(&sb, "\n> %s: %s (%s)\n", f.Path, f.Warning, f.ParseMode)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// AnalyzeTool handles the sentinel_analyze MCP tool.
type AnalyzeTool struct {
	logger *slog.Logger
	store  *history.Store
}

// NewAnalyzeTool creates an AnalyzeTool. store may be nil, which disables
// recording.
func NewAnalyzeTool(logger *slog.Logger, store *history.Store) *AnalyzeTool {
	return &AnalyzeTool{logger: logger, store: store}
}

// Definition returns the MCP tool definition for sentinel_analyze.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("sentinel_analyze",
		mcp.WithDescription(
			"Build the agent relationship graph for a directory or Python file and report risk, "+
				"suspicious patterns and the riskiest interaction paths.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Directory or file to analyze"),
		),
		mcp.WithNumber("top_paths",
			mcp.Description("How many of the riskiest paths to list (default: 5)"),
		),
		mcp.WithBoolean("record",
			mcp.Description("Record the run in the history ledger (default: false)"),
		),
	)
}

// Handle processes the sentinel_analyze tool call.
func (t *AnalyzeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	s, err := settings.Load(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load settings: %v", err)), nil
	}
	res, err := pipeline.Run(ctx, path, pipeline.Options{Settings: s, Logger: t.logger})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}

	rep := res.Report
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Analysis of %s\n\n", path)
	fmt.Fprintf(&sb, "- **Risk**: %s (%.3f)\n", rep.Overall.RiskLevel, rep.Overall.TotalRiskScore)
	fmt.Fprintf(&sb, "- **Graph**: %d nodes, %d edges\n", len(res.Graph.Nodes), len(res.Graph.Edges))
	fmt.Fprintf(&sb, "- **Paths analyzed**: %d", rep.Overall.TotalPathsAnalyzed)
	if rep.PathAnalysis.PathsTruncated {
		sb.WriteString(" (truncated)")
	}
	sb.WriteString("\n\n### Findings\n\n")
	writeFindings(&sb, rep.SuspiciousPatterns)

	if top := riskiest(rep.PathAnalysis.DetailedPaths, intArg(req, "top_paths", 5)); len(top) > 0 {
		sb.WriteString("\n### Riskiest paths\n\n")
		for _, p := range top {
			fmt.Fprintf(&sb, "- %.2f %s [%s]\n", p.RiskScore, pathLabel(res.Graph, p.Nodes), p.Kind)
		}
	}
	if len(rep.Recommendations) > 0 {
		sb.WriteString("\n### Recommendations\n\n")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}

	if boolArg(req, "record", false) {
		if t.store == nil {
			sb.WriteString("\nHistory is unavailable; run not recorded.\n")
		} else {
			target := path
			if abs, err := filepath.Abs(path); err == nil {
				target = abs
			}
			run, err := t.store.Record(ctx, history.RecordParams{Target: target, Report: rep})
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("failed to record run: %v", err)), nil
			}
			fmt.Fprintf(&sb, "\nRecorded run `%s`.\n", run.ID)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// riskiest returns up to n paths by descending risk, stable on ties.
func riskiest(paths []analysis.Path, n int) []analysis.Path {
	if n <= 0 {
		return nil
	}
	sorted := slices.Clone(paths)
	slices.SortStableFunc(sorted, func(a, b analysis.Path) int {
		switch {
		case a.RiskScore > b.RiskScore:
			return -1
		case a.RiskScore < b.RiskScore:
			return 1
		}
		return 0
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

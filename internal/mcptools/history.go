package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"sentinel/internal/history"
)

// HistoryTool handles the sentinel_history MCP tool.
type HistoryTool struct {
	store *history.Store
}

// NewHistoryTool creates a HistoryTool with the given run ledger.
func NewHistoryTool(store *history.Store) *HistoryTool {
	return &HistoryTool{store: store}
}

// Definition returns the MCP tool definition for sentinel_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("sentinel_history",
		mcp.WithDescription("List recorded analysis runs, newest first."),
		mcp.WithString("target",
			mcp.Description("Only list runs of this absolute target path"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to list (default: 20)"),
		),
	)
}

// Handle processes the sentinel_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := t.store.Recent(ctx, req.GetString("target", ""), intArg(req, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No recorded runs."), nil
	}
	var sb strings.Builder
	sb.WriteString("## Recorded runs\n\n")
	for _, r := range runs {
		fmt.Fprintf(&sb, "- `%s` %s %s (%.3f), %d findings: %s\n",
			r.ID, r.AnalyzedAt, r.RiskLevel, r.RiskScore, r.Findings, r.Target)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// CompareTool handles the sentinel_compare MCP tool.
type CompareTool struct {
	store *history.Store
}

// NewCompareTool creates a CompareTool with the given run ledger.
func NewCompareTool(store *history.Store) *CompareTool {
	return &CompareTool{store: store}
}

// Definition returns the MCP tool definition for sentinel_compare.
func (t *CompareTool) Definition() mcp.Tool {
	return mcp.NewTool("sentinel_compare",
		mcp.WithDescription("Compare two recorded runs: graph size, paths, risk and findings."),
		mcp.WithString("before",
			mcp.Required(),
			mcp.Description("Baseline run id or unique prefix"),
		),
		mcp.WithString("after",
			mcp.Required(),
			mcp.Description("Later run id or unique prefix"),
		),
	)
}

// Handle processes the sentinel_compare tool call.
func (t *CompareTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	before, after := req.GetString("before", ""), req.GetString("after", "")
	if before == "" || after == "" {
		return mcp.NewToolResultError("'before' and 'after' are required"), nil
	}
	c, err := t.store.Compare(ctx, before, after)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compare failed: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s vs %s\n\n", c.Before.ID, c.After.ID)
	for _, row := range []struct {
		name string
		d    history.Delta
	}{
		{"Nodes", c.Nodes}, {"Edges", c.Edges}, {"Paths", c.Paths}, {"Findings", c.Findings},
	} {
		fmt.Fprintf(&sb, "- **%s**: %d -> %d (%+d)\n", row.name, row.d.Before, row.d.After, row.d.Change())
	}
	fmt.Fprintf(&sb, "- **Risk**: %s -> %s (%+.3f)\n", c.RiskLevel[0], c.RiskLevel[1], c.RiskScore.Change())
	for _, f := range c.NewFindings {
		fmt.Fprintf(&sb, "- new: %s\n", f)
	}
	for _, f := range c.ResolvedFindings {
		fmt.Fprintf(&sb, "- resolved: %s\n", f)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// Package mcptools provides MCP tool handlers over the analyzer.
//
// Each tool is a struct with its dependencies injected via constructor,
// a Definition() returning the mcp.Tool schema and a Handle() processing
// the request. Failures are reported as tool errors, not protocol errors.
package mcptools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"sentinel/internal/analysis"
	"sentinel/internal/graph"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// pathLabel renders a node id path with display names where known.
func pathLabel(g *graph.Graph, ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id
		if g != nil {
			if n, ok := g.Node(id); ok && n.Name != "" {
				parts[i] = n.Name
			}
		}
	}
	return strings.Join(parts, " -> ")
}

// writeFindings appends a markdown list of findings to sb.
func writeFindings(sb *strings.Builder, findings []analysis.Finding) {
	if len(findings) == 0 {
		sb.WriteString("No suspicious patterns found.\n")
		return
	}
	for _, f := range findings {
		fmt.Fprintf(sb, "- **%s** (%s): %s\n", f.RuleName, f.Severity, f.Details)
	}
}

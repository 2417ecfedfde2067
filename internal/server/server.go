// Package server wires the MCP tools into a server instance.
package server

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"sentinel/internal/history"
	"sentinel/internal/mcptools"
)

// Version is reported to MCP clients.
var Version = "dev"

const instructions = `Sentinel statically analyzes multi-agent Python code.
Use sentinel_scan to list agents, tools, tasks and crews, sentinel_analyze
for risk findings and paths, and sentinel_history / sentinel_compare to
track changes between recorded runs.`

func noop() {}

// New creates the MCP server with every tool registered. historyPath names
// the run ledger; when it cannot be opened the history tools are left out
// and analysis runs are not recorded.
//
// The returned cleanup function is always non-nil.
func New(logger *slog.Logger, historyPath string) (*server.MCPServer, func()) {
	if logger == nil {
		logger = slog.Default()
	}
	s := server.NewMCPServer(
		"sentinel",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	var store *history.Store
	cleanup := noop
	if historyPath != "" {
		st, err := history.New(historyPath)
		if err != nil {
			logger.Warn("history unavailable", "path", historyPath, "err", err)
		} else {
			store = st
			cleanup = func() { _ = st.Close() }
		}
	}

	scan := mcptools.NewScanTool(logger)
	s.AddTool(scan.Definition(), scan.Handle)

	analyze := mcptools.NewAnalyzeTool(logger, store)
	s.AddTool(analyze.Definition(), analyze.Handle)

	if store != nil {
		hist := mcptools.NewHistoryTool(store)
		s.AddTool(hist.Definition(), hist.Handle)

		cmp := mcptools.NewCompareTool(store)
		s.AddTool(cmp.Definition(), cmp.Handle)
	}
	return s, cleanup
}

package main

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"sentinel/internal/container"
	"sentinel/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noHistory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analyzer as MCP tools over stdio",
		Long: `Start an MCP server on stdin/stdout exposing sentinel_scan,
sentinel_analyze, sentinel_history and sentinel_compare. Logs go to stderr
so they do not interfere with the transport.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var historyPath string
			if !noHistory {
				p, err := container.HistoryPath()
				if err != nil {
					return err
				}
				historyPath = p
			}
			s, cleanup := server.New(opts.logger, historyPath)
			defer cleanup()
			if err := mcpserver.ServeStdio(s); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not open the history ledger")
	return cmd
}

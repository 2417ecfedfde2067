package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"sentinel/internal/analysis"
	"sentinel/internal/graph"
	"sentinel/internal/history"
	"sentinel/internal/inventory"
	"sentinel/internal/pipeline"
	"sentinel/internal/tui"
)

// ---------------------------------------------------------------------------
// scan
// ---------------------------------------------------------------------------

func newScanCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Extract agents, tools, tasks and crews into an inventory",
		Long: `Scan a directory or a single Python file and write the component
inventory as JSON. Without -o the inventory is printed to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			s, err := opts.loadSettings(target)
			if err != nil {
				return err
			}
			inv, err := pipeline.Scan(cmd.Context(), target, pipeline.Options{Settings: s, Logger: opts.logger})
			if err != nil {
				return err
			}
			if output == "" {
				return writeJSON(cmd.OutOrStdout(), inv)
			}
			if err := inventory.Save(inv, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inventory written to %s\n", output)
			return tui.WriteSummary(cmd.OutOrStdout(), inv, nil, nil)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Inventory output file")
	return cmd
}

// ---------------------------------------------------------------------------
// analyze
// ---------------------------------------------------------------------------

type analyzeFlags struct {
	inventory string
	graph     string
	analysis  string
	all       bool
	vault     string
	record    bool
}

// artifacts resolves the output files for target. With --all, unset graph
// and analysis names are derived from the inventory name, which itself
// defaults to the target's base name.
func (f analyzeFlags) artifacts(target string) pipeline.Artifacts {
	a := pipeline.Artifacts{
		Inventory: f.inventory,
		Graph:     f.graph,
		Analysis:  f.analysis,
		Vault:     f.vault,
	}
	if !f.all {
		return a
	}
	if a.Inventory == "" {
		base := filepath.Base(filepath.Clean(target))
		a.Inventory = strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
	}
	derived := pipeline.DerivedArtifacts(a.Inventory)
	if a.Graph == "" {
		a.Graph = derived.Graph
	}
	if a.Analysis == "" {
		a.Analysis = derived.Analysis
	}
	return a
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var f analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Scan, build the relationship graph and analyze risk",
		Long: `Run every stage over a directory or file and print a summary.

Artifacts are written only where asked: -o for the inventory, -g for the
graph, -p for the path analysis, --vault for a markdown vault. -a writes
all three JSON artifacts, deriving graph_<name>.json and paths_<name>.json
from the inventory name. --record stores the run in the history ledger.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			s, err := opts.loadSettings(target)
			if err != nil {
				return err
			}
			res, err := pipeline.Run(cmd.Context(), target, pipeline.Options{Settings: s, Logger: opts.logger})
			if err != nil {
				return err
			}
			arts := f.artifacts(target)
			if err := res.Write(arts); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range []string{arts.Inventory, arts.Graph, arts.Analysis, arts.Vault} {
				if p != "" {
					fmt.Fprintf(out, "wrote %s\n", p)
				}
			}
			if err := tui.WriteSummary(out, res.Inventory, res.Graph, res.Report); err != nil {
				return err
			}
			if !f.record {
				return nil
			}
			run, err := recordRun(cmd.Context(), history.RecordParams{Target: target, Report: res.Report})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "recorded run %s\n", run.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.inventory, "output", "o", "", "Inventory output file")
	cmd.Flags().StringVarP(&f.graph, "graph", "g", "", "Graph output file")
	cmd.Flags().StringVarP(&f.analysis, "paths", "p", "", "Path analysis output file")
	cmd.Flags().BoolVarP(&f.all, "all", "a", false, "Write inventory, graph and analysis with derived names")
	cmd.Flags().StringVar(&f.vault, "vault", "", "Write a markdown vault into this directory")
	cmd.Flags().BoolVar(&f.record, "record", false, "Record the run in the history ledger")
	return cmd
}

func recordRun(ctx context.Context, p history.RecordParams) (*history.Run, error) {
	store, err := openHistory()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if abs, err := filepath.Abs(p.Target); err == nil {
		p.Target = abs
	}
	return store.Record(ctx, p)
}

// ---------------------------------------------------------------------------
// analyze-graph
// ---------------------------------------------------------------------------

func newAnalyzeGraphCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "analyze-graph <graph.json>",
		Short: "Run path and rule analysis over an existing graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graph.Load(args[0])
			if err != nil {
				return err
			}
			s, err := opts.loadSettings(filepath.Dir(args[0]))
			if err != nil {
				return err
			}
			rep := pipeline.AnalyzeGraph(g, pipeline.Options{Settings: s, Logger: opts.logger})
			if output != "" {
				if err := analysis.Save(rep, output); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			}
			return tui.WriteSummary(cmd.OutOrStdout(), nil, g, rep)
		},
	}
	cmd.Flags().StringVarP(&output, "paths", "p", "", "Path analysis output file")
	return cmd
}

// ---------------------------------------------------------------------------
// inspect
// ---------------------------------------------------------------------------

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var graphPath string
	cmd := &cobra.Command{
		Use:   "inspect <analysis.json>",
		Short: "Browse findings and paths interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := analysis.Load(args[0])
			if err != nil {
				return err
			}
			var g *graph.Graph
			if graphPath != "" {
				if g, err = graph.Load(graphPath); err != nil {
					return err
				}
			}
			return tui.Inspect(g, rep)
		},
	}
	cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "Graph file used for display names")
	return cmd
}

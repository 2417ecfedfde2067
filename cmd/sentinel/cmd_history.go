package main

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"sentinel/internal/analysis"
	"sentinel/internal/history"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ---------------------------------------------------------------------------
// history
// ---------------------------------------------------------------------------

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		findings bool
	)
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List recorded runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target string
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				target = abs
			}
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), target, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no recorded runs")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %s  %-6s %.3f  paths %d  findings %d  %s\n",
					shortID(r.ID), r.AnalyzedAt, r.RiskLevel, r.RiskScore, r.Paths, r.Findings, runLabel(r))
				if !findings || r.Findings == 0 {
					continue
				}
				rules, err := store.FindingRules(cmd.Context(), r.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "          %s\n", strings.Join(rules, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list")
	cmd.Flags().BoolVar(&findings, "findings", false, "Show the rules that fired for each run")
	return cmd
}

func runLabel(r history.Run) string {
	if r.Workspace != "" {
		return fmt.Sprintf("%s/%s (%s)", r.Workspace, r.Project, r.Target)
	}
	return r.Target
}

// ---------------------------------------------------------------------------
// compare
// ---------------------------------------------------------------------------

func newCompareCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare <runA> <runB>",
		Short: "Compare two recorded runs",
		Long: `Compare two runs from the history ledger. Run ids may be abbreviated
to any unique prefix. runA is the baseline.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			c, err := store.Compare(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			writeComparison(cmd.OutOrStdout(), c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the comparison as JSON")
	return cmd
}

func writeComparison(w io.Writer, c *history.Comparison) {
	fmt.Fprintf(w, "before %s  %s\n", shortID(c.Before.ID), runLabel(c.Before))
	fmt.Fprintf(w, "after  %s  %s\n\n", shortID(c.After.ID), runLabel(c.After))

	row := func(name string, d history.Delta) {
		fmt.Fprintf(w, "%-10s %6d -> %-6d (%+d)\n", name, d.Before, d.After, d.Change())
	}
	row("nodes", c.Nodes)
	row("edges", c.Edges)
	row("paths", c.Paths)
	row("findings", c.Findings)
	fmt.Fprintf(w, "%-10s %6.3f -> %-6.3f (%+.3f)  %s -> %s\n",
		"risk", c.RiskScore.Before, c.RiskScore.After, c.RiskScore.Change(), c.RiskLevel[0], c.RiskLevel[1])

	fmt.Fprintln(w, "\nrisk distribution")
	for _, level := range []string{"low", "medium", "high"} {
		row("  "+level, c.RiskDistribution[level])
	}

	if len(c.PathTypes) > 0 {
		fmt.Fprintln(w, "\npath types")
		kinds := make([]analysis.PathKind, 0, len(c.PathTypes))
		for k := range c.PathTypes {
			kinds = append(kinds, k)
		}
		slices.Sort(kinds)
		for _, k := range kinds {
			row("  "+string(k), c.PathTypes[k])
		}
	}

	for _, f := range c.NewFindings {
		fmt.Fprintf(w, "+ %s\n", f)
	}
	for _, f := range c.ResolvedFindings {
		fmt.Fprintf(w, "- %s\n", f)
	}
}

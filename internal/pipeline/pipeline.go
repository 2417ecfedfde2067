// Package pipeline runs the analyzer end to end: read sources, extract the
// inventory, build the graph, analyze it and write the artifacts.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"sentinel/internal/analysis"
	"sentinel/internal/export"
	"sentinel/internal/extract"
	"sentinel/internal/graph"
	"sentinel/internal/inventory"
	"sentinel/internal/settings"
	"sentinel/internal/source"
)

// Options configures a run. Zero values mean defaults.
type Options struct {
	Settings *settings.Settings
	Logger   *slog.Logger
	// Now is the run clock. Every timestamp of one run comes from a single
	// call.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Settings == nil {
		o.Settings = settings.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) buildOptions(ts string) graph.BuildOptions {
	return graph.BuildOptions{
		RequireCrew: o.Settings.RequiresCrew(),
		Logger:      o.Logger,
		Timestamp:   ts,
	}
}

func (o Options) analysisOptions(ts string) analysis.Options {
	return analysis.Options{
		MaxDepth:      o.Settings.Analysis.MaxDepth,
		MaxPaths:      o.Settings.Analysis.MaxPaths,
		DisabledRules: o.Settings.Analysis.DisabledRules,
		Timestamp:     ts,
		Logger:        o.Logger,
	}
}

// Result holds the three artifacts of a run.
type Result struct {
	Inventory *inventory.Inventory
	Graph     *graph.Graph
	Report    *analysis.Report
}

// Scan reads target and extracts its inventory.
func Scan(ctx context.Context, target string, opts Options) (*inventory.Inventory, error) {
	opts = opts.withDefaults()
	return scan(ctx, target, opts, timestamp(opts.Now()))
}

func scan(ctx context.Context, target string, opts Options, ts string) (*inventory.Inventory, error) {
	log := opts.Logger
	src, err := source.NewReader(opts.Settings, log).Read(ctx, target)
	if err != nil {
		return nil, err
	}

	ex := extract.New(log)
	records := make([]inventory.FileRecord, 0, len(src.Files)+len(src.Skipped))
	for _, f := range src.Files {
		rec, err := ex.AddSource(ctx, f.Path, f.Text)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	ex.Resolve()
	records = append(records, src.Skipped...)

	inv := ex.Inventory()
	inv.ScanInfo = inventory.ScanInfo{
		Target:         target,
		ScanType:       src.ScanType,
		Timestamp:      ts,
		ScannerVersion: inventory.ScannerVersion,
	}
	inv.FileStructure = src.Structure
	inv.Files = records
	inv.Summarize()
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", target, err)
	}
	log.Info("scan complete",
		"target", target,
		"files", len(src.Files),
		"agents", len(inv.Agents),
		"tools", len(inv.Tools),
		"tasks", len(inv.Tasks),
		"crews", len(inv.Crews),
	)
	return inv, nil
}

// Run executes every stage for target. Only a missing target, an
// unreadable root directory or cancellation fail a run.
func Run(ctx context.Context, target string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	ts := timestamp(opts.Now())

	inv, err := scan(ctx, target, opts, ts)
	if err != nil {
		return nil, err
	}
	g := graph.Build(inv, opts.buildOptions(ts))
	opts.Logger.Info("graph built", "nodes", len(g.Nodes), "edges", len(g.Edges))

	rep := analysis.Analyze(g, opts.analysisOptions(ts))
	opts.Logger.Info("analysis complete",
		"risk", rep.Overall.RiskLevel,
		"paths", rep.Overall.TotalPathsAnalyzed,
		"findings", rep.Overall.SuspiciousPatternsFound,
	)
	return &Result{Inventory: inv, Graph: g, Report: rep}, nil
}

// BuildGraph builds a graph from an existing inventory.
func BuildGraph(inv *inventory.Inventory, opts Options) *graph.Graph {
	opts = opts.withDefaults()
	return graph.Build(inv, opts.buildOptions(timestamp(opts.Now())))
}

// AnalyzeGraph runs the path and rule analysis over an existing graph.
func AnalyzeGraph(g *graph.Graph, opts Options) *analysis.Report {
	opts = opts.withDefaults()
	return analysis.Analyze(g, opts.analysisOptions(timestamp(opts.Now())))
}

func timestamp(t time.Time) string {
	return t.Format(time.RFC3339)
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// Artifacts names the output files of a run. Empty fields are not written.
type Artifacts struct {
	Inventory string
	Graph     string
	Analysis  string
	Vault     string
}

// ArtifactsIn returns the conventional artifact layout under dir.
func ArtifactsIn(dir string) Artifacts {
	return Artifacts{
		Inventory: filepath.Join(dir, "inventory.json"),
		Graph:     filepath.Join(dir, "graph.json"),
		Analysis:  filepath.Join(dir, "analysis.json"),
		Vault:     filepath.Join(dir, "vault"),
	}
}

// DerivedArtifacts names artifacts after the inventory file: for
// "scan.json" the graph goes to "graph_scan.json" and the analysis to
// "paths_scan.json", next to the inventory.
func DerivedArtifacts(inventoryPath string) Artifacts {
	dir := filepath.Dir(inventoryPath)
	base := strings.TrimSuffix(filepath.Base(inventoryPath), filepath.Ext(inventoryPath))
	return Artifacts{
		Inventory: inventoryPath,
		Graph:     filepath.Join(dir, "graph_"+base+".json"),
		Analysis:  filepath.Join(dir, "paths_"+base+".json"),
	}
}

// Write saves every artifact named in a.
func (r *Result) Write(a Artifacts) error {
	if a.Inventory != "" {
		if err := inventory.Save(r.Inventory, a.Inventory); err != nil {
			return err
		}
	}
	if a.Graph != "" {
		if err := graph.Save(r.Graph, a.Graph); err != nil {
			return err
		}
	}
	if a.Analysis != "" {
		if err := analysis.Save(r.Report, a.Analysis); err != nil {
			return err
		}
	}
	if a.Vault != "" {
		v, err := export.Generate(r.Graph, r.Report)
		if err != nil {
			return fmt.Errorf("generate vault: %w", err)
		}
		if err := export.Write(v, a.Vault); err != nil {
			return fmt.Errorf("write vault: %w", err)
		}
	}
	return nil
}

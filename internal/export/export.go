package export

// export.go: renders a graph and its analysis report as a markdown vault.
//
// Vault layout:
//   index.md                   counts, headline risk, links to every page
//   agents/<id>.md             one per agent node
//   tools.md                   every tool with kind, location and users
//   findings.md                one section per finding
//   risk.md                    assessment, distributions, riskiest paths, cycles
//   graphs/relationships.md    Mermaid LR relationship graph
//
// Links use [[path|display]] with no .md extension. Output is a pure function
// of its input, so identical input gives byte-identical files.

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"sentinel/internal/analysis"
	"sentinel/internal/frontmatter"
	"sentinel/internal/graph"
)

// topPaths is how many of the riskiest paths risk.md lists.
const topPaths = 10

// Vault holds pre-generated page content (path → markdown).
// Paths are relative to the output directory, using forward slashes.
type Vault struct {
	pages map[string]string
}

// Pages returns the page paths in sorted order.
func (v *Vault) Pages() []string {
	paths := make([]string, 0, len(v.pages))
	for p := range v.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Page returns the content of one page.
func (v *Vault) Page(path string) (string, bool) {
	s, ok := v.pages[path]
	return s, ok
}

// noteMeta is the frontmatter of every page.
type noteMeta struct {
	Tags      []string `yaml:"tags"`
	Generated string   `yaml:"generated,omitempty"`
	Risk      string   `yaml:"risk,omitempty"`
}

// Generate builds all vault pages from g and r. No files are written.
func Generate(g *graph.Graph, r *analysis.Report) (*Vault, error) {
	v := &Vault{pages: make(map[string]string)}
	ts := r.Info.Timestamp

	pages := []struct {
		path string
		meta noteMeta
		body string
	}{
		{"index.md", noteMeta{Tags: []string{"sentinel/index"}, Generated: ts, Risk: r.Overall.RiskLevel}, buildIndex(g, r)},
		{"tools.md", noteMeta{Tags: []string{"sentinel/tools"}, Generated: ts}, buildTools(g, r)},
		{"findings.md", noteMeta{Tags: []string{"sentinel/findings"}, Generated: ts}, buildFindings(g, r)},
		{"risk.md", noteMeta{Tags: []string{"sentinel/risk"}, Generated: ts, Risk: r.Overall.RiskLevel}, buildRisk(g, r)},
		{"graphs/relationships.md", noteMeta{Tags: []string{"sentinel/graph"}, Generated: ts}, buildRelationshipGraph(g)},
	}
	for _, n := range g.Nodes {
		if n.Kind != graph.KindAgent {
			continue
		}
		state := string(r.NodeAnalysis.NodesWithStates[n.ID])
		tags := []string{"sentinel/agent", "state-" + stateOrUnknown(state)}
		pages = append(pages, struct {
			path string
			meta noteMeta
			body string
		}{"agents/" + sanitizeFilename(n.ID) + ".md", noteMeta{Tags: tags, Generated: ts}, buildAgent(g, r, n)})
	}

	for _, p := range pages {
		note, err := renderNote(p.meta, p.body)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", p.path, err)
		}
		v.pages[p.path] = note
	}
	return v, nil
}

// Write writes all pages to outputDir in sorted path order. The agents/
// and graphs/ subdirectories are always created.
func Write(v *Vault, outputDir string) error {
	for _, sub := range []string{"agents", "graphs"} {
		if err := os.MkdirAll(filepath.Join(outputDir, sub), 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", sub, err)
		}
	}
	for _, p := range v.Pages() {
		abs := filepath.Join(outputDir, filepath.FromSlash(p))
		if err := writeNote(abs, v.pages[p]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Page builders
// ---------------------------------------------------------------------------

func buildIndex(g *graph.Graph, r *analysis.Report) string {
	var b strings.Builder
	b.WriteString("# Multi-Agent System Analysis\n\n")
	fmt.Fprintf(&b, "- **Target**: `%s`\n", g.Info.SourceScan.Target)
	fmt.Fprintf(&b, "- **Analyzed**: %s\n", r.Info.Timestamp)
	fmt.Fprintf(&b, "- **Risk**: %s (%.3f)\n", r.Overall.RiskLevel, r.Overall.TotalRiskScore)
	fmt.Fprintf(&b, "- **Nodes**: %d\n", len(g.Nodes))
	fmt.Fprintf(&b, "- **Edges**: %d\n", len(g.Edges))
	fmt.Fprintf(&b, "- **Paths analyzed**: %d\n", r.Overall.TotalPathsAnalyzed)
	fmt.Fprintf(&b, "- **Findings**: %d\n\n", r.Overall.SuspiciousPatternsFound)

	b.WriteString("## Agents\n\n")
	agents := 0
	for _, n := range g.Nodes {
		if n.Kind != graph.KindAgent {
			continue
		}
		agents++
		label := n.Name
		if n.Metadata.Role != "" {
			label += ": " + n.Metadata.Role
		}
		fmt.Fprintf(&b, "- [[agents/%s|%s]]\n", sanitizeFilename(n.ID), label)
	}
	if agents == 0 {
		b.WriteString("_None found._\n")
	}

	b.WriteString("\n## Pages\n\n")
	b.WriteString("- [[tools|Tools]]\n")
	b.WriteString("- [[findings|Findings]]\n")
	b.WriteString("- [[risk|Risk Report]]\n")
	b.WriteString("- [[graphs/relationships|Relationship Graph]]\n")
	return b.String()
}

func buildAgent(g *graph.Graph, r *analysis.Report, n graph.Node) string {
	var b strings.Builder
	md := n.Metadata
	fmt.Fprintf(&b, "# %s\n\n", n.Name)
	fmt.Fprintf(&b, "- **Id**: `%s`\n", n.ID)
	fmt.Fprintf(&b, "- **Defined at**: `%s:%d`\n", n.SourceFile, n.SourceLine)
	if md.BindingName != "" {
		fmt.Fprintf(&b, "- **Binding**: `%s`\n", md.BindingName)
	}
	fmt.Fprintf(&b, "- **State**: %s\n", stateOrUnknown(string(r.NodeAnalysis.NodesWithStates[n.ID])))
	if md.DiscoveredBy != "" {
		fmt.Fprintf(&b, "- **Discovered by**: %s\n", md.DiscoveredBy)
	}

	for _, f := range []struct{ title, value string }{
		{"Role", md.Role}, {"Goal", md.Goal}, {"Backstory", md.Backstory},
	} {
		if f.value != "" {
			fmt.Fprintf(&b, "\n## %s\n\n%s\n", f.title, f.value)
		}
	}

	var tools, outgoing, incoming []string
	for _, e := range g.Edges {
		switch {
		case e.Source == n.ID && e.Relationship == graph.ExplicitUsage:
			tools = append(tools, nodeName(g, e.Target))
		case e.Source == n.ID:
			outgoing = append(outgoing, fmt.Sprintf("[[agents/%s|%s]] (%s)", sanitizeFilename(e.Target), nodeName(g, e.Target), e.Relationship))
		case e.Target == n.ID && e.Relationship != graph.ExplicitUsage:
			incoming = append(incoming, fmt.Sprintf("[[agents/%s|%s]] (%s)", sanitizeFilename(e.Source), nodeName(g, e.Source), e.Relationship))
		}
	}
	writeList(&b, "Tools", tools)
	writeList(&b, "Outgoing", outgoing)
	writeList(&b, "Incoming", incoming)

	if len(md.Tasks) > 0 {
		b.WriteString("\n## Tasks\n\n")
		b.WriteString("| Task | Description | Depends on |\n")
		b.WriteString("|------|-------------|------------|\n")
		for _, t := range md.Tasks {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", t.Name, cell(t.Description), strings.Join(t.Dependencies, ", "))
		}
	}
	writeList(&b, "Sequential Tasks", md.SequentialTasks)

	var crews []string
	for _, c := range md.Crews {
		crews = append(crews, fmt.Sprintf("%s (`%s:%d`)", c.Name, c.File, c.Line))
	}
	writeList(&b, "Crews", crews)
	return b.String()
}

func buildTools(g *graph.Graph, r *analysis.Report) string {
	var b strings.Builder
	b.WriteString("# Tools\n\n")

	users := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Relationship == graph.ExplicitUsage {
			users[e.Target] = append(users[e.Target], fmt.Sprintf("[[agents/%s|%s]]", sanitizeFilename(e.Source), nodeName(g, e.Source)))
		}
	}

	rows := 0
	for _, n := range g.Nodes {
		if n.Kind != graph.KindTool {
			continue
		}
		if rows == 0 {
			b.WriteString("| Tool | Kind | Location | State | Used by |\n")
			b.WriteString("|------|------|----------|-------|---------|\n")
		}
		rows++
		name := n.Name
		if n.Metadata.FunctionName != "" && n.Metadata.FunctionName != n.Name {
			name += " (`" + n.Metadata.FunctionName + "`)"
		}
		used := strings.Join(users[n.ID], ", ")
		if used == "" {
			used = "_unused_"
		}
		fmt.Fprintf(&b, "| %s | %s | `%s:%d` | %s | %s |\n",
			cell(name), n.Metadata.ToolKind, n.SourceFile, n.SourceLine,
			stateOrUnknown(string(r.NodeAnalysis.NodesWithStates[n.ID])), used)
	}
	if rows == 0 {
		b.WriteString("_None found._\n")
	}
	return b.String()
}

func buildFindings(g *graph.Graph, r *analysis.Report) string {
	var b strings.Builder
	b.WriteString("# Findings\n\n")
	if len(r.SuspiciousPatterns) == 0 {
		b.WriteString("_No suspicious patterns found._\n")
		return b.String()
	}
	for i, f := range r.SuspiciousPatterns {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", f.RuleName)
		fmt.Fprintf(&b, "- **Severity**: %s\n", f.Severity)
		fmt.Fprintf(&b, "- **Description**: %s\n", f.Description)
		fmt.Fprintf(&b, "- **Details**: %s\n", f.Details)
		if len(f.AffectedNodes) > 0 {
			names := make([]string, len(f.AffectedNodes))
			for j, id := range f.AffectedNodes {
				names[j] = nodeName(g, id)
			}
			fmt.Fprintf(&b, "- **Nodes**: %s\n", strings.Join(names, ", "))
		}
		for _, e := range f.AffectedEdges {
			fmt.Fprintf(&b, "- **Edge**: %s → %s (%s, %.2f)\n", nodeName(g, e.Source), nodeName(g, e.Target), e.Relationship, e.Weight)
		}
		for _, p := range f.AffectedPaths {
			fmt.Fprintf(&b, "- **Path**: %s\n", pathNames(g, p))
		}
		for _, u := range f.Data {
			fmt.Fprintf(&b, "- **Tool count**: %s uses %d tools\n", nodeName(g, u.Agent), u.ToolCount)
		}
	}
	if len(r.Recommendations) > 0 {
		b.WriteString("\n## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			b.WriteString("- " + rec + "\n")
		}
	}
	return b.String()
}

// buildRisk builds risk.md: assessment, distributions, riskiest paths and
// dependency cycles.
func buildRisk(g *graph.Graph, r *analysis.Report) string {
	var b strings.Builder
	b.WriteString("# Risk Report\n\n")
	fmt.Fprintf(&b, "**Overall**: %s (%.3f) over %d path(s)\n", r.Overall.RiskLevel, r.Overall.TotalRiskScore, r.Overall.TotalPathsAnalyzed)
	if r.PathAnalysis.PathsTruncated {
		b.WriteString("\n> Path enumeration hit the configured cap; the totals below are partial.\n")
	}

	rd := r.PathAnalysis.RiskScoreDistribution
	b.WriteString("\n## Risk Distribution\n\n")
	b.WriteString("| Level | Paths |\n")
	b.WriteString("|-------|-------|\n")
	fmt.Fprintf(&b, "| low | %d |\n| medium | %d |\n| high | %d |\n", rd.Low, rd.Medium, rd.High)

	b.WriteString("\n## Path Types\n\n")
	if len(r.PathAnalysis.PathTypeDistribution) == 0 {
		b.WriteString("_No paths._\n")
	} else {
		kinds := make([]string, 0, len(r.PathAnalysis.PathTypeDistribution))
		for k := range r.PathAnalysis.PathTypeDistribution {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		b.WriteString("| Type | Paths |\n")
		b.WriteString("|------|-------|\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "| %s | %d |\n", k, r.PathAnalysis.PathTypeDistribution[analysis.PathKind(k)])
		}
	}

	b.WriteString("\n## Riskiest Paths\n\n")
	paths := slices.Clone(r.PathAnalysis.DetailedPaths)
	// Stable: ties keep enumeration order.
	slices.SortStableFunc(paths, func(x, y analysis.Path) int {
		switch {
		case x.RiskScore > y.RiskScore:
			return -1
		case x.RiskScore < y.RiskScore:
			return 1
		}
		return 0
	})
	if len(paths) > topPaths {
		paths = paths[:topPaths]
	}
	if len(paths) == 0 {
		b.WriteString("_None._\n")
	} else {
		b.WriteString("| Path | Type | Risk |\n")
		b.WriteString("|------|------|------|\n")
		for _, p := range paths {
			fmt.Fprintf(&b, "| %s | %s | %.3f |\n", pathNames(g, p.Nodes), p.Kind, p.RiskScore)
		}
	}

	b.WriteString("\n## Dependency Cycles\n\n")
	cycles := findCycles(g)
	if len(cycles) == 0 {
		b.WriteString("_None found._\n")
	} else {
		for _, c := range cycles {
			b.WriteString("- " + c + "\n")
		}
	}
	return b.String()
}

// buildRelationshipGraph builds graphs/relationships.md: Mermaid LR graph.
// Collaboration edges are drawn dotted.
func buildRelationshipGraph(g *graph.Graph) string {
	var b strings.Builder
	b.WriteString("# Relationship Graph\n\n")
	if len(g.Nodes) == 0 {
		b.WriteString("_No components._\n")
		return b.String()
	}

	b.WriteString("```mermaid\ngraph LR\n")
	for _, n := range g.Nodes {
		if n.Kind == graph.KindTool {
			fmt.Fprintf(&b, "  %s[/\"%s\"/]\n", n.ID, mermaidLabel(n.Name))
		} else {
			fmt.Fprintf(&b, "  %s[\"%s\"]\n", n.ID, mermaidLabel(n.Name))
		}
	}
	for _, e := range g.Edges {
		arrow := "-->"
		if e.Relationship == graph.SameCrewCollaboration {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "  %s %s|%s| %s\n", e.Source, arrow, e.Relationship, e.Target)
	}
	b.WriteString("```\n")
	return b.String()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// renderNote prefixes body with frontmatter. Tags are sorted alphabetically.
func renderNote(meta noteMeta, body string) (string, error) {
	meta.Tags = slices.Clone(meta.Tags)
	sort.Strings(meta.Tags)
	data, err := frontmatter.Write(meta, "\n"+body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n", title)
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func nodeName(g *graph.Graph, id string) string {
	if n, ok := g.Node(id); ok {
		return n.Name
	}
	return id
}

func pathNames(g *graph.Graph, ids []string) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = nodeName(g, id)
	}
	return strings.Join(names, " → ")
}

func stateOrUnknown(s string) string {
	if s == "" {
		return string(analysis.NodeUnknown)
	}
	return s
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func mermaidLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

// sanitizeFilename replaces / and . with -, collapses consecutive - to one,
// and trims leading/trailing -.
func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, ".", "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}

// writeNote writes content to path, creating parent directories as needed.
func writeNote(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// findCycles performs DFS cycle detection over dependency and usage edges.
// Collaboration edges come in symmetric pairs and are ignored. Returns one
// string per cycle in "A → B → A" form, using node names.
func findCycles(g *graph.Graph) []string {
	adj := make(map[string][]string)
	for _, e := range g.Edges {
		if e.Relationship != graph.SameCrewCollaboration {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}
	for id := range adj {
		slices.Sort(adj[id])
		adj[id] = slices.Compact(adj[id])
	}
	nodes := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes = append(nodes, n.ID)
	}
	sort.Strings(nodes)

	// 0=white (unvisited), 1=gray (in stack), 2=black (done).
	color := make(map[string]int)
	var cycles []string
	var path []string

	var dfs func(node string)
	dfs = func(node string) {
		if color[node] == 2 {
			return
		}
		if color[node] == 1 {
			i := slices.Index(path, node)
			cycle := append(slices.Clone(path[i:]), node)
			cycles = append(cycles, pathNames(g, cycle))
			return
		}
		color[node] = 1
		path = append(path, node)
		for _, next := range adj[node] {
			dfs(next)
		}
		path = path[:len(path)-1]
		color[node] = 2
	}

	for _, node := range nodes {
		if color[node] == 0 {
			dfs(node)
		}
	}
	return cycles
}

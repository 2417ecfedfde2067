package export

// export_test.go: Tests for the markdown vault.
//
// Graphs are built directly with graph.AddNode/AddEdge and analyzed with the
// real analysis package; assertions are on page content and written files.

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sentinel/internal/analysis"
	"sentinel/internal/frontmatter"
	"sentinel/internal/graph"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// sampleGraph has a researcher using one tool, handing work to a writer
// through a task dependency, an unused tool and an isolated agent.
func sampleGraph() *graph.Graph {
	g := graph.New()
	g.Info.SourceScan.Target = "crew"
	g.AddNode(graph.Node{ID: "agent_0", Kind: graph.KindAgent, Name: "Agent_1", SourceFile: "crew/main.py", SourceLine: 4,
		Metadata: graph.NodeMetadata{Role: "Researcher", Goal: "Find facts", BindingName: "researcher",
			Tasks: []graph.TaskSummary{{Name: "Task_1", Description: "Research | summarize", Dependencies: []string{}}}}})
	g.AddNode(graph.Node{ID: "agent_1", Kind: graph.KindAgent, Name: "Agent_2", SourceFile: "crew/main.py", SourceLine: 9,
		Metadata: graph.NodeMetadata{Role: "Writer", Goal: "Write", BindingName: "writer",
			Crews: []graph.CrewRef{{Name: "Crew_1", File: "crew/main.py", Line: 20}}}})
	g.AddNode(graph.Node{ID: "agent_2", Kind: graph.KindAgent, Name: "Agent_3", SourceFile: "crew/other.py", SourceLine: 1})
	g.AddNode(graph.Node{ID: "tool_0", Kind: graph.KindTool, Name: "SearchTool", SourceFile: "crew/main.py", SourceLine: 5,
		Metadata: graph.NodeMetadata{ToolKind: "tool_instance"}})
	g.AddNode(graph.Node{ID: "tool_1", Kind: graph.KindTool, Name: "Scraper", SourceFile: "crew/tools.py", SourceLine: 3,
		Metadata: graph.NodeMetadata{ToolKind: "class_definition", FunctionName: "scrape"}})
	g.AddEdge("agent_0", "tool_0", graph.ExplicitUsage)
	g.AddEdge("agent_0", "agent_1", graph.TaskDependency)
	g.Summarize()
	return g
}

func sampleVault(t *testing.T) (*graph.Graph, *analysis.Report, *Vault) {
	t.Helper()
	g := sampleGraph()
	r := analysis.Analyze(g, analysis.Options{Timestamp: "2024-01-01T00:00:00Z"})
	v, err := Generate(g, r)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return g, r, v
}

func page(t *testing.T, v *Vault, path string) string {
	t.Helper()
	s, ok := v.Page(path)
	if !ok {
		t.Fatalf("page %s missing; have %v", path, v.Pages())
	}
	return s
}

// ---------------------------------------------------------------------------
// Layout
// ---------------------------------------------------------------------------

func TestGeneratePages(t *testing.T) {
	_, _, v := sampleVault(t)
	want := []string{
		"agents/agent_0.md",
		"agents/agent_1.md",
		"agents/agent_2.md",
		"findings.md",
		"graphs/relationships.md",
		"index.md",
		"risk.md",
		"tools.md",
	}
	got := v.Pages()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("pages = %v, want %v", got, want)
	}
}

func TestWriteCreatesDirsAndIsIdempotent(t *testing.T) {
	_, _, v := sampleVault(t)
	dir := t.TempDir()
	if err := Write(v, dir); err != nil {
		t.Fatalf("Write: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "risk.md"))
	if err != nil {
		t.Fatal(err)
	}

	_, _, v2 := sampleVault(t)
	if err := Write(v2, dir); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "risk.md"))
	if !bytes.Equal(first, second) {
		t.Error("risk.md differs between identical runs")
	}

	empty, err := Generate(graph.New(), analysis.Analyze(graph.New(), analysis.Options{}))
	if err != nil {
		t.Fatal(err)
	}
	emptyDir := t.TempDir()
	if err := Write(empty, emptyDir); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"agents", "graphs"} {
		if fi, err := os.Stat(filepath.Join(emptyDir, sub)); err != nil || !fi.IsDir() {
			t.Errorf("%s/ not created for an empty graph", sub)
		}
	}
}

// ---------------------------------------------------------------------------
// Frontmatter
// ---------------------------------------------------------------------------

func TestFrontmatterTags(t *testing.T) {
	_, _, v := sampleVault(t)
	tests := []struct {
		path string
		tags []string
	}{
		{"index.md", []string{"sentinel/index"}},
		{"agents/agent_0.md", []string{"sentinel/agent", "state-normal"}},
		{"agents/agent_2.md", []string{"sentinel/agent", "state-suspicious"}},
		{"graphs/relationships.md", []string{"sentinel/graph"}},
	}
	for _, tc := range tests {
		var meta noteMeta
		if _, err := frontmatter.Decode([]byte(page(t, v, tc.path)), &meta); err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if strings.Join(meta.Tags, ",") != strings.Join(tc.tags, ",") {
			t.Errorf("%s tags = %v, want %v", tc.path, meta.Tags, tc.tags)
		}
		if meta.Generated != "2024-01-01T00:00:00Z" {
			t.Errorf("%s generated = %q", tc.path, meta.Generated)
		}
	}
}

// ---------------------------------------------------------------------------
// Page content
// ---------------------------------------------------------------------------

func TestIndexLinks(t *testing.T) {
	_, _, v := sampleVault(t)
	idx := page(t, v, "index.md")
	for _, want := range []string{
		"[[agents/agent_0|Agent_1: Researcher]]",
		"[[graphs/relationships|Relationship Graph]]",
		"- **Target**: `crew`",
	} {
		if !strings.Contains(idx, want) {
			t.Errorf("index.md missing %q", want)
		}
	}
	if strings.Contains(idx, ".md]]") {
		t.Error("wiki links must not carry the .md extension")
	}
}

func TestAgentPage(t *testing.T) {
	_, _, v := sampleVault(t)
	p := page(t, v, "agents/agent_0.md")
	for _, want := range []string{
		"# Agent_1",
		"## Role\n\nResearcher",
		"## Tools\n\n- SearchTool",
		"[[agents/agent_1|Agent_2]] (task_dependency)",
		`| Task_1 | Research \| summarize |  |`,
	} {
		if !strings.Contains(p, want) {
			t.Errorf("agent page missing %q\n%s", want, p)
		}
	}
	writer := page(t, v, "agents/agent_1.md")
	if !strings.Contains(writer, "## Incoming") || !strings.Contains(writer, "Crew_1 (`crew/main.py:20`)") {
		t.Errorf("writer page:\n%s", writer)
	}
}

func TestToolsPage(t *testing.T) {
	_, _, v := sampleVault(t)
	p := page(t, v, "tools.md")
	if !strings.Contains(p, "| SearchTool | tool_instance | `crew/main.py:5` | normal | [[agents/agent_0|Agent_1]] |") {
		t.Errorf("used tool row missing:\n%s", p)
	}
	if !strings.Contains(p, "Scraper (`scrape`)") || !strings.Contains(p, "_unused_") {
		t.Errorf("unused tool row missing:\n%s", p)
	}
}

func TestFindingsPage(t *testing.T) {
	_, r, v := sampleVault(t)
	p := page(t, v, "findings.md")
	for _, f := range r.SuspiciousPatterns {
		if !strings.Contains(p, "## "+f.RuleName) {
			t.Errorf("findings.md missing %s", f.RuleName)
		}
	}
	if !strings.Contains(p, "## isolated_agents") || !strings.Contains(p, "- **Nodes**: Agent_3") {
		t.Errorf("isolated agent finding not rendered:\n%s", p)
	}
	if !strings.Contains(p, "## Recommendations") {
		t.Error("recommendations missing")
	}

	clean, _ := Generate(graph.New(), analysis.Analyze(graph.New(), analysis.Options{}))
	if !strings.Contains(page(t, clean, "findings.md"), "_No suspicious patterns found._") {
		t.Error("empty findings placeholder missing")
	}
}

func TestRiskPage(t *testing.T) {
	_, r, v := sampleVault(t)
	p := page(t, v, "risk.md")
	if !strings.Contains(p, "**Overall**: "+r.Overall.RiskLevel) {
		t.Errorf("overall line missing:\n%s", p)
	}
	if !strings.Contains(p, "Agent_1 → Agent_2") {
		t.Errorf("riskiest paths missing:\n%s", p)
	}
	if !strings.Contains(p, "## Dependency Cycles\n\n_None found._") {
		t.Errorf("expected no cycles:\n%s", p)
	}
}

func TestRelationshipGraph(t *testing.T) {
	_, _, v := sampleVault(t)
	p := page(t, v, "graphs/relationships.md")
	for _, want := range []string{
		"```mermaid\ngraph LR\n",
		`  agent_0["Agent_1"]`,
		`  tool_0[/"SearchTool"/]`,
		"  agent_0 -->|explicit_usage| tool_0\n",
		"  agent_0 -->|task_dependency| agent_1\n",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("graph missing %q\n%s", want, p)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestFindCycles(t *testing.T) {
	g := graph.New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(graph.Node{ID: id, Kind: graph.KindAgent, Name: strings.ToUpper(id)})
	}
	g.AddEdge("a", "b", graph.TaskDependency)
	g.AddEdge("b", "a", graph.TaskDependency)
	g.AddEdge("b", "c", graph.SameCrewCollaboration)
	g.AddEdge("c", "b", graph.SameCrewCollaboration)

	got := findCycles(g)
	if len(got) != 1 || got[0] != "A → B → A" {
		t.Fatalf("findCycles = %v", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"agent_0", "agent_0"},
		{"pkg/sub.mod", "pkg-sub-mod"},
		{"a//b..c", "a-b-c"},
		{"/lead/", "lead"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

package graph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"sentinel/internal/extract"
	"sentinel/internal/graph"
	"sentinel/internal/inventory"
)

func inventoryFrom(t *testing.T, files map[string]string, order ...string) *inventory.Inventory {
	t.Helper()
	e := extract.New(nil)
	for _, name := range order {
		if _, err := e.AddSource(context.Background(), name, []byte(files[name])); err != nil {
			t.Fatalf("AddSource %s: %v", name, err)
		}
	}
	e.Resolve()
	return e.Inventory()
}

func edgesOf(g *graph.Graph, rel graph.Relationship) []graph.Edge {
	var out []graph.Edge
	for _, e := range g.Edges {
		if e.Relationship == rel {
			out = append(out, e)
		}
	}
	return out
}

const sequentialPipeline = `from crewai import Agent, Task, Crew

classifier = Agent(role="Classifier", goal="Classify")
responder = Agent(role="Responder", goal="Respond")
summarizer = Agent(role="Summarizer", goal="Summarize")

t1 = Task(description="Classify the request", agent=classifier)
t2 = Task(description="Respond", agent=responder, context=[t1])
t3 = Task(description="Summarize", agent=summarizer, context=[t1])

crew = Crew(agents=[classifier, responder, summarizer], tasks=[t1, t2, t3])
`

func TestBuildExplicitUsage(t *testing.T) {
	src := `class SearchTool(BaseTool):
    description = "search"

analyst = Agent(role="Analyst", goal="Analyze", tools=[SearchTool()])
`
	inv := inventoryFrom(t, map[string]string{"a.py": src}, "a.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())

	if len(g.Nodes) != len(inv.Agents)+len(inv.Tools) {
		t.Fatalf("node count %d != agents+tools %d", len(g.Nodes), len(inv.Agents)+len(inv.Tools))
	}
	if len(g.Edges) != 1 {
		t.Fatalf("expected 1 edge, got %+v", g.Edges)
	}
	e := g.Edges[0]
	if e.Source != "agent_0" || e.Target != "tool_0" || e.Relationship != graph.ExplicitUsage || e.Weight != 0.9 {
		t.Errorf("unexpected edge %+v", e)
	}
	tool, _ := g.Node("tool_0")
	if tool.Kind != graph.KindTool || tool.Metadata.Description != "search" {
		t.Errorf("tool node: %+v", tool)
	}
}

func TestBuildSequentialPipeline(t *testing.T) {
	inv := inventoryFrom(t, map[string]string{"p.py": sequentialPipeline}, "p.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())

	deps := edgesOf(g, graph.TaskDependency)
	if len(deps) != 2 {
		t.Fatalf("expected 2 task_dependency edges, got %+v", deps)
	}
	want := [][2]string{{"agent_0", "agent_1"}, {"agent_0", "agent_2"}}
	for i, w := range want {
		if deps[i].Source != w[0] || deps[i].Target != w[1] || deps[i].Weight != 0.95 {
			t.Errorf("dependency %d: got %+v want %v", i, deps[i], w)
		}
	}

	collab := edgesOf(g, graph.SameCrewCollaboration)
	if len(collab) != 2 {
		t.Fatalf("expected one collaboration pair, got %+v", collab)
	}
	for _, e := range collab {
		if e.Source == "agent_0" || e.Target == "agent_0" {
			t.Errorf("classifier must not collaborate: %+v", e)
		}
		if e.Weight != 0.4 {
			t.Errorf("collaboration weight: %v", e.Weight)
		}
	}

	classifier, _ := g.Node("agent_0")
	if len(classifier.Metadata.Crews) != 1 || classifier.Metadata.Crews[0].Name != "Crew_1" {
		t.Errorf("crews: %+v", classifier.Metadata.Crews)
	}
	if len(classifier.Metadata.Tasks) != 1 || classifier.Metadata.Tasks[0].Name != "Task_1" {
		t.Errorf("tasks: %+v", classifier.Metadata.Tasks)
	}
	responder, _ := g.Node("agent_1")
	if got := responder.Metadata.Tasks[0].Dependencies; len(got) != 1 || got[0] != "Task_1" {
		t.Errorf("responder task deps: %v", got)
	}

	if g.Summary.TotalEdges != 4 || g.Summary.RelationshipTypes[graph.TaskDependency] != 2 {
		t.Errorf("summary: %+v", g.Summary)
	}
}

func TestBuildEdgeProperties(t *testing.T) {
	inv := inventoryFrom(t, map[string]string{"p.py": sequentialPipeline}, "p.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())

	seen := map[[3]string]bool{}
	for _, e := range g.Edges {
		k := [3]string{e.Source, e.Target, string(e.Relationship)}
		if seen[k] {
			t.Errorf("duplicate edge %v", k)
		}
		seen[k] = true
		if e.Weight != e.Relationship.Weight() {
			t.Errorf("edge %v has non-canonical weight %v", k, e.Weight)
		}
	}
	for _, e := range edgesOf(g, graph.SameCrewCollaboration) {
		if g.HasEdge(e.Source, e.Target, graph.TaskDependency) || g.HasEdge(e.Target, e.Source, graph.TaskDependency) {
			t.Errorf("collaboration edge contradicts dependency: %+v", e)
		}
	}
}

func TestBuildMutualDependency(t *testing.T) {
	src := `a = Agent(role="A", goal="a")
b = Agent(role="B", goal="b")
ta = Task(description="x", agent=a, context=[tb])
tb = Task(description="y", agent=b, context=[ta])
crew = Crew(agents=[a, b])
`
	inv := inventoryFrom(t, map[string]string{"m.py": src}, "m.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())
	if n := len(edgesOf(g, graph.TaskDependency)); n != 2 {
		t.Errorf("expected 2 dependency edges, got %d", n)
	}
	if n := len(edgesOf(g, graph.SameCrewCollaboration)); n != 0 {
		t.Errorf("expected no collaboration edges, got %d", n)
	}
}

func TestBuildSameAgentDependencyHasNoEdge(t *testing.T) {
	src := `solo = Agent(role="r", goal="g")
first = Task(description="1", agent=solo)
second = Task(description="2", agent=solo, context=[first])
`
	inv := inventoryFrom(t, map[string]string{"s.py": src}, "s.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())
	if len(g.Edges) != 0 {
		t.Fatalf("expected no edges, got %+v", g.Edges)
	}
	n, _ := g.Node("agent_0")
	if len(n.Metadata.SequentialTasks) != 1 || n.Metadata.SequentialTasks[0] != "Task_1 -> Task_2" {
		t.Errorf("sequential signal: %v", n.Metadata.SequentialTasks)
	}
}

func TestBuildRequireCrew(t *testing.T) {
	src := `a = Agent(role="A", goal="a")
b = Agent(role="B", goal="b")
`
	inv := inventoryFrom(t, map[string]string{"n.py": src}, "n.py")
	if g := graph.Build(inv, graph.DefaultBuildOptions()); len(g.Edges) != 0 {
		t.Errorf("no crew: expected no edges, got %+v", g.Edges)
	}
	g := graph.Build(inv, graph.BuildOptions{RequireCrew: false})
	if len(g.Edges) != 2 {
		t.Errorf("file colocation: expected a collaboration pair, got %+v", g.Edges)
	}
}

func TestBuildNoCrossFileEdges(t *testing.T) {
	files := map[string]string{
		"agents.py": `writer = Agent(role="w", goal="g", tools=[SearchTool()])
crew = Crew(agents=[writer])
`,
		"tools.py": `class SearchTool(BaseTool):
    pass
editor = Agent(role="e", goal="g", tools=[SearchTool()])
`,
	}
	inv := inventoryFrom(t, files, "agents.py", "tools.py")
	g := graph.Build(inv, graph.DefaultBuildOptions())
	for _, e := range g.Edges {
		s, _ := g.Node(e.Source)
		d, _ := g.Node(e.Target)
		if s.SourceFile != d.SourceFile {
			t.Errorf("cross-file edge %+v", e)
		}
	}
}

func TestAddEdgeDedup(t *testing.T) {
	g := graph.New()
	g.AddNode(graph.Node{ID: "a", Kind: graph.KindAgent})
	g.AddNode(graph.Node{ID: "b", Kind: graph.KindAgent})
	if !g.AddEdge("a", "b", graph.TaskDependency) {
		t.Fatal("first AddEdge should succeed")
	}
	if g.AddEdge("a", "b", graph.TaskDependency) {
		t.Error("duplicate triple must be rejected")
	}
	if !g.AddEdge("a", "b", graph.SameCrewCollaboration) {
		t.Error("different relationship on same pair must be allowed")
	}
	if g.AddEdge("a", "missing", graph.ExplicitUsage) {
		t.Error("edge to unknown node must be rejected")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	inv := inventoryFrom(t, map[string]string{"p.py": sequentialPipeline}, "p.py")
	g := graph.Build(inv, graph.BuildOptions{RequireCrew: true, Timestamp: "2026-01-01T00:00:00Z"})

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := graph.Save(g, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := graph.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	a, _ := json.Marshal(g)
	b, _ := json.Marshal(loaded)
	if !bytes.Equal(a, b) {
		t.Errorf("round trip differs:\n%s\n%s", a, b)
	}
	if !loaded.HasEdge("agent_0", "agent_1", graph.TaskDependency) {
		t.Error("loaded graph lost its edge index")
	}
}

func TestEdgeJSONShape(t *testing.T) {
	data, err := json.Marshal(graph.Edge{Source: "a", Target: "b", Relationship: graph.ExplicitUsage, Weight: 0.9})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if len(m) != 4 {
		t.Errorf("edge must have exactly four keys, got %v", m)
	}
	for _, k := range []string{"source", "target", "relationship", "weight"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %q", k)
		}
	}
}

package extract_test

import (
	"context"
	"testing"

	"sentinel/internal/extract"
	"sentinel/internal/inventory"
)

type srcFile struct {
	path string
	text string
}

func run(t *testing.T, files ...srcFile) *inventory.Inventory {
	t.Helper()
	e := extract.New(nil)
	for _, f := range files {
		if _, err := e.AddSource(context.Background(), f.path, []byte(f.text)); err != nil {
			t.Fatalf("AddSource %s: %v", f.path, err)
		}
	}
	e.Resolve()
	inv := e.Inventory()
	if err := inv.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return inv
}

const pipelineSrc = `from crewai import Agent, Task, Crew

classifier = Agent(role="Classifier", goal="Sort tickets", backstory=persona, tools=[LookupTool()])
responder = Agent(role="Responder", goal=f"Answer {topic}", tools=[LookupTool(), ReplyTool()])
summarizer = Agent(role="Summarizer", goal="Summarize")

classify = Task(description="Classify the ticket", expected_output="A label", agent=classifier)
respond = Task(description=f"Respond to {ticket}", agent=responder, context=[classify])
summarize = Task(description="Summarize", agent=summarizer, context=[classify, missing])

crew = Crew(agents=[classifier, responder, summarizer], tasks=[classify, respond, summarize])
`

func TestAgentsAndToolLists(t *testing.T) {
	inv := run(t, srcFile{"support.py", pipelineSrc})

	if len(inv.Agents) != 3 {
		t.Fatalf("expected 3 agents, got %d", len(inv.Agents))
	}
	a := inv.Agents[0]
	if a.ID != "agent_0" || a.DisplayName != "Agent_1" || a.BindingName != "classifier" {
		t.Errorf("agent identity: %+v", a)
	}
	if a.SourceLine != 3 || a.SourceFile != "support.py" {
		t.Errorf("agent location: %s:%d", a.SourceFile, a.SourceLine)
	}
	if a.Role != "Classifier" || a.Goal != "Sort tickets" {
		t.Errorf("agent fields: %+v", a)
	}
	if a.Backstory != "var:persona" {
		t.Errorf("backstory sentinel: got %q", a.Backstory)
	}
	if inv.Agents[1].Goal != inventory.ComplexValue {
		t.Errorf("formatted agent goal should be complex_value, got %q", inv.Agents[1].Goal)
	}
	if got := inv.Agents[1].DeclaredToolNames; len(got) != 2 || got[0] != "LookupTool" || got[1] != "ReplyTool" {
		t.Errorf("declared tools: %v", got)
	}

	// LookupTool appears in two tool lists but is materialized once.
	if len(inv.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d: %+v", len(inv.Tools), inv.Tools)
	}
	lookup := inv.Tools[0]
	if lookup.DisplayName != "LookupTool" || lookup.Kind != inventory.KindToolInstance || lookup.UsedByAgentBinding != "classifier" {
		t.Errorf("lookup tool: %+v", lookup)
	}
	if inv.Tools[1].UsedByAgentBinding != "responder" {
		t.Errorf("reply tool binding: %+v", inv.Tools[1])
	}
}

func TestTasksAndDependencies(t *testing.T) {
	inv := run(t, srcFile{"support.py", pipelineSrc})

	if len(inv.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(inv.Tasks))
	}
	classify, respond, summarize := inv.Tasks[0], inv.Tasks[1], inv.Tasks[2]
	if classify.Description != "Classify the ticket" || classify.ExpectedOutput != "A label" {
		t.Errorf("classify fields: %+v", classify)
	}
	if respond.Description != "Respond to [formatted_value]" {
		t.Errorf("formatted description: %q", respond.Description)
	}
	if classify.AssignedAgentBinding != "classifier" || classify.AssignedAgent != "Agent_1" {
		t.Errorf("classify assignment: %+v", classify)
	}
	if len(respond.ResolvedDependencies) != 1 || respond.ResolvedDependencies[0].TaskDisplayName != "Task_1" {
		t.Errorf("respond deps: %+v", respond.ResolvedDependencies)
	}
	// missing is unresolved and silently omitted.
	if len(summarize.DependencyBindings) != 2 {
		t.Errorf("summarize bindings: %v", summarize.DependencyBindings)
	}
	if len(summarize.ResolvedDependencies) != 1 || summarize.ResolvedDependencies[0].BindingName != "classify" {
		t.Errorf("summarize deps: %+v", summarize.ResolvedDependencies)
	}

	if len(inv.Crews) != 1 || inv.Crews[0].DisplayName != "Crew_1" || inv.Crews[0].SourceLine != 11 {
		t.Errorf("crews: %+v", inv.Crews)
	}
}

func TestBindingScopeIsPerFile(t *testing.T) {
	a := `writer = Agent(role="w", goal="g")
draft = Task(description="d", agent=writer)
`
	b := `review = Task(description="r", agent=writer, context=[draft])
`
	inv := run(t, srcFile{"a.py", a}, srcFile{"b.py", b})

	review := inv.Tasks[1]
	if review.AssignedAgentBinding != "" || review.AssignedAgent != "" {
		t.Errorf("cross-file agent binding must be dropped: %+v", review)
	}
	if len(review.ResolvedDependencies) != 0 {
		t.Errorf("cross-file dependency must not resolve: %+v", review.ResolvedDependencies)
	}
}

func TestAmbiguousAgentBindingDropped(t *testing.T) {
	src := `worker = Agent(role="one", goal="g")
worker = Agent(role="two", goal="g")
job = Task(description="x", agent=worker)
`
	inv := run(t, srcFile{"dup.py", src})
	if inv.Tasks[0].AssignedAgentBinding != "" {
		t.Errorf("ambiguous binding should be dropped, got %q", inv.Tasks[0].AssignedAgentBinding)
	}
}

func TestSequentialDependencySignal(t *testing.T) {
	src := `solo = Agent(role="r", goal="g")
first = Task(description="1", agent=solo)
second = Task(description="2", agent=solo, context=[first])
`
	inv := run(t, srcFile{"solo.py", src})
	second := inv.Tasks[1]
	if len(second.ResolvedDependencies) != 1 {
		t.Fatalf("expected resolved dependency, got %+v", second.ResolvedDependencies)
	}
	if len(second.SequentialDependencies) != 1 || second.SequentialDependencies[0] != "Task_1" {
		t.Errorf("sequential signal: %v", second.SequentialDependencies)
	}
}

func TestToolClassesAndStandaloneTools(t *testing.T) {
	src := `class SearchTool(BaseTool):
    name: str = "web_search"
    description: str = "Searches the web"

class Helper(object):
    pass

class FetchTool(crewai_tools.BaseTool):
    pass

scraper = ScrapeTool(url="x")
agent = Agent(role="r", goal="g", tools=[SearchTool()])
again = ScrapeTool()
`
	inv := run(t, srcFile{"tools.py", src})

	byName := map[string]inventory.Tool{}
	for _, tl := range inv.Tools {
		if _, dup := byName[tl.DisplayName]; dup {
			t.Fatalf("tool %s materialized twice", tl.DisplayName)
		}
		byName[tl.DisplayName] = tl
	}
	if len(byName) != 3 {
		t.Fatalf("expected 3 tools, got %+v", inv.Tools)
	}
	search := byName["SearchTool"]
	if search.Kind != inventory.KindToolInstance {
		t.Errorf("tool-list use comes first: kind %q", search.Kind)
	}
	if search.Description != "Searches the web" || search.FunctionName != "web_search" {
		t.Errorf("class attributes not merged: %+v", search)
	}
	if byName["ScrapeTool"].Kind != inventory.KindStandaloneInstance || byName["ScrapeTool"].SourceLine != 11 {
		t.Errorf("standalone: %+v", byName["ScrapeTool"])
	}
	if byName["FetchTool"].Kind != inventory.KindClassDefinition {
		t.Errorf("attribute base: %+v", byName["FetchTool"])
	}
}

func TestMalformedConstructor(t *testing.T) {
	inv := run(t, srcFile{"odd.py", `x = Agent("positional", 42)
`})
	if len(inv.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(inv.Agents))
	}
	if a := inv.Agents[0]; a.Role != "" || a.Goal != "" || len(a.DeclaredToolNames) != 0 {
		t.Errorf("expected empty fields, got %+v", a)
	}
}

func TestRegexFallback(t *testing.T) {
	e := extract.New(nil)
	rec, err := e.AddSource(context.Background(), "broken.py", []byte("a = Agent(role='x'\nclass KTool(BaseTool:\nt = Task(\n"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.ParseMode != inventory.ParseRegex || rec.Warning == "" {
		t.Errorf("file record: %+v", rec)
	}
	e.Resolve()
	inv := e.Inventory()
	if len(inv.Agents) != 1 || inv.Agents[0].DiscoveredBy != inventory.DiscoveredByRegex || inv.Agents[0].SourceLine != 1 {
		t.Errorf("agents: %+v", inv.Agents)
	}
	if len(inv.Tools) != 1 || inv.Tools[0].DisplayName != "Tool_1" || inv.Tools[0].SourceLine != 2 {
		t.Errorf("tools: %+v", inv.Tools)
	}
	if len(inv.Tasks) != 1 || inv.Tasks[0].SourceLine != 3 {
		t.Errorf("tasks: %+v", inv.Tasks)
	}
	if inv.Agents[0].Role != "" {
		t.Errorf("fallback must not extract semantic fields")
	}
}

func TestRegexFallbackToolDecorator(t *testing.T) {
	e := extract.New(nil)
	src := "@tool\ndef lookup(q):\n    return q\nagent = Agent(role='x'\n"
	if _, err := e.AddSource(context.Background(), "deco.py", []byte(src)); err != nil {
		t.Fatal(err)
	}
	e.Resolve()
	inv := e.Inventory()
	if len(inv.Tools) != 1 || inv.Tools[0].SourceLine != 1 || inv.Tools[0].DiscoveredBy != inventory.DiscoveredByRegex {
		t.Errorf("tools: %+v", inv.Tools)
	}
}

func TestDeterministicIDs(t *testing.T) {
	first := run(t, srcFile{"support.py", pipelineSrc})
	second := run(t, srcFile{"support.py", pipelineSrc})
	for i := range first.Agents {
		if first.Agents[i].ID != second.Agents[i].ID || first.Agents[i].DisplayName != second.Agents[i].DisplayName {
			t.Errorf("agent %d differs between runs", i)
		}
	}
	for i := range first.Tools {
		if first.Tools[i].ID != second.Tools[i].ID {
			t.Errorf("tool %d differs between runs", i)
		}
	}
}

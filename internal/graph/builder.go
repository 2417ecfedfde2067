package graph

// builder.go: turns an Inventory into a Graph.
//
// Edge rules run in a fixed order and later rules consult earlier edges:
//   1. explicit_usage          agent → tool named in its tool list
//   2. task_dependency         predecessor's agent → successor's agent
//   3. same_crew_collaboration both directions between crew mates, unless a
//                              task_dependency already relates the pair

import (
	"log/slog"
	"unicode/utf8"

	"sentinel/internal/inventory"
)

const summaryLimit = 100

// BuildOptions tunes graph construction.
type BuildOptions struct {
	// RequireCrew limits collaboration edges to files that construct at
	// least one Crew. When false, agents sharing a file are treated as one
	// group even without a Crew.
	RequireCrew bool
	Logger      *slog.Logger
	Timestamp   string
}

// DefaultBuildOptions returns the options used when none are given.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{RequireCrew: true}
}

// Build materializes nodes and edges from inv. It never fails; references
// that do not resolve simply produce no edge.
func Build(inv *inventory.Inventory, opts BuildOptions) *Graph {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	g := New()
	g.Info = Info{
		SourceScan:     inv.ScanInfo,
		BuildTimestamp: opts.Timestamp,
		BuilderVersion: BuilderVersion,
	}

	crewsByFile := make(map[string][]CrewRef)
	for _, c := range inv.Crews {
		crewsByFile[c.SourceFile] = append(crewsByFile[c.SourceFile], CrewRef{Name: c.DisplayName, File: c.SourceFile, Line: c.SourceLine})
	}

	agentByName := make(map[string]string, len(inv.Agents)) // display name → node id
	for _, a := range inv.Agents {
		agentByName[a.DisplayName] = a.ID
	}

	for _, a := range inv.Agents {
		g.AddNode(Node{
			ID:         a.ID,
			Kind:       KindAgent,
			Name:       a.DisplayName,
			SourceFile: a.SourceFile,
			SourceLine: a.SourceLine,
			Metadata: NodeMetadata{
				Role:              a.Role,
				Goal:              a.Goal,
				Backstory:         a.Backstory,
				BindingName:       a.BindingName,
				DeclaredToolNames: a.DeclaredToolNames,
				Crews:             crewsByFile[a.SourceFile],
				Tasks:             tasksFor(a, inv.Tasks),
				SequentialTasks:   sequentialFor(a, inv.Tasks),
				DiscoveredBy:      a.DiscoveredBy,
			},
		})
	}
	for _, t := range inv.Tools {
		g.AddNode(Node{
			ID:         t.ID,
			Kind:       KindTool,
			Name:       t.DisplayName,
			SourceFile: t.SourceFile,
			SourceLine: t.SourceLine,
			Metadata: NodeMetadata{
				ToolKind:           t.Kind,
				Description:        t.Description,
				FunctionName:       t.FunctionName,
				UsedByAgentBinding: t.UsedByAgentBinding,
				DiscoveredBy:       t.DiscoveredBy,
			},
		})
	}

	addUsageEdges(g, inv)
	addDependencyEdges(g, inv, agentByName, log)
	addCollaborationEdges(g, inv, crewsByFile, opts.RequireCrew)

	g.Summarize()
	return g
}

// addUsageEdges links each agent to the tools its tool list names. Tool-list
// tools are materialized per file, so the target is the same-file tool.
func addUsageEdges(g *Graph, inv *inventory.Inventory) {
	type key struct{ name, file string }
	toolIDs := make(map[key]string, len(inv.Tools))
	for _, t := range inv.Tools {
		k := key{t.DisplayName, t.SourceFile}
		if _, ok := toolIDs[k]; !ok {
			toolIDs[k] = t.ID
		}
	}
	for _, a := range inv.Agents {
		for _, name := range a.DeclaredToolNames {
			if id, ok := toolIDs[key{name, a.SourceFile}]; ok {
				g.AddEdge(a.ID, id, ExplicitUsage)
			}
		}
	}
}

func addDependencyEdges(g *Graph, inv *inventory.Inventory, agentByName map[string]string, log *slog.Logger) {
	assigned := make(map[string]string, len(inv.Tasks)) // task display name → agent display name
	for _, t := range inv.Tasks {
		if t.AssignedAgent != "" {
			assigned[t.DisplayName] = t.AssignedAgent
		}
	}
	for _, t := range inv.Tasks {
		succ := assigned[t.DisplayName]
		for _, dep := range t.ResolvedDependencies {
			pred := assigned[dep.TaskDisplayName]
			if pred == "" || succ == "" {
				continue
			}
			if pred == succ {
				log.Debug("intra-agent task sequence", "agent", succ, "from", dep.TaskDisplayName, "to", t.DisplayName)
				continue
			}
			predID, ok1 := agentByName[pred]
			succID, ok2 := agentByName[succ]
			if ok1 && ok2 {
				g.AddEdge(predID, succID, TaskDependency)
			}
		}
	}
}

func addCollaborationEdges(g *Graph, inv *inventory.Inventory, crewsByFile map[string][]CrewRef, requireCrew bool) {
	for i := 0; i < len(inv.Agents); i++ {
		a := inv.Agents[i]
		if requireCrew && len(crewsByFile[a.SourceFile]) == 0 {
			continue
		}
		for j := i + 1; j < len(inv.Agents); j++ {
			b := inv.Agents[j]
			if b.SourceFile != a.SourceFile {
				continue
			}
			if g.HasEdge(a.ID, b.ID, TaskDependency) || g.HasEdge(b.ID, a.ID, TaskDependency) {
				continue
			}
			g.AddEdge(a.ID, b.ID, SameCrewCollaboration)
			g.AddEdge(b.ID, a.ID, SameCrewCollaboration)
		}
	}
}

func tasksFor(a inventory.Agent, tasks []inventory.Task) []TaskSummary {
	var out []TaskSummary
	for _, t := range tasks {
		if t.AssignedAgent != a.DisplayName || t.AssignedAgent == "" {
			continue
		}
		deps := make([]string, 0, len(t.ResolvedDependencies))
		for _, d := range t.ResolvedDependencies {
			deps = append(deps, d.TaskDisplayName)
		}
		out = append(out, TaskSummary{
			Name:         t.DisplayName,
			Description:  truncate(t.Description, summaryLimit),
			Dependencies: deps,
		})
	}
	return out
}

func sequentialFor(a inventory.Agent, tasks []inventory.Task) []string {
	var out []string
	for _, t := range tasks {
		if t.AssignedAgent != a.DisplayName || t.AssignedAgent == "" {
			continue
		}
		for _, prev := range t.SequentialDependencies {
			out = append(out, prev+" -> "+t.DisplayName)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

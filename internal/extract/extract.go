// Package extract recognizes agents, tools, tasks and crews in parsed Python
// modules and accumulates them into an inventory.
//
// Recognition is lexical: a call to a bare identifier named Agent, Task or
// Crew is taken to be the framework constructor regardless of imports. Names
// are only ever resolved inside the file that declares them.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sentinel/internal/inventory"
	"sentinel/internal/pyast"
)

// Extractor accumulates components across the files of one run. Files must
// be added in traversal order; ids and display names follow that order.
type Extractor struct {
	log   *slog.Logger
	inv   inventory.Inventory
	tools map[toolKey]int
	files []*fileScope
}

type toolKey struct {
	name, file string
}

// fileScope is the per-file symbol table keyed by local binding name.
type fileScope struct {
	path   string
	agents map[string][]int
	tasks  map[string]int
	owned  []int
}

// New returns an empty Extractor. A nil logger uses slog.Default().
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		log:   log,
		tools: make(map[toolKey]int),
		inv: inventory.Inventory{
			Agents: []inventory.Agent{},
			Tools:  []inventory.Tool{},
			Crews:  []inventory.Crew{},
			Tasks:  []inventory.Task{},
		},
	}
}

// AddSource parses src and extracts its components. Files that do not parse
// cleanly go through the regex fallback instead. The only error returned is
// a context error; the returned record says which mode was used.
func (e *Extractor) AddSource(ctx context.Context, file string, src []byte) (inventory.FileRecord, error) {
	rec := inventory.FileRecord{Path: file, ParseMode: inventory.ParseAST}
	mod, err := pyast.Parse(ctx, src)
	switch {
	case err == nil:
		e.AddModule(file, mod)
	case errors.Is(err, pyast.ErrSyntax):
		e.log.Warn("parse failed, using regex fallback", "path", file, "err", err)
		rec.ParseMode = inventory.ParseRegex
		rec.Warning = err.Error()
		e.AddFallback(file, pyast.Scan(string(src)))
	default:
		return rec, fmt.Errorf("extract %s: %w", file, err)
	}
	return rec, nil
}

// AddModule runs the recognition passes over one parsed file.
func (e *Extractor) AddModule(file string, mod *pyast.Module) {
	scope := &fileScope{
		path:   file,
		agents: make(map[string][]int),
		tasks:  make(map[string]int),
	}
	e.files = append(e.files, scope)

	consumed := make(map[*pyast.Call]bool)
	e.assignmentPass(scope, mod, consumed)
	e.freeCallPass(file, mod, consumed)
	e.classPass(file, mod)
	e.bindAgents(scope)
}

// AddFallback records anonymous components for a file that failed to parse.
func (e *Extractor) AddFallback(file string, matches []pyast.Match) {
	for _, m := range matches {
		switch m.Kind {
		case pyast.MatchAgent:
			e.inv.Agents = append(e.inv.Agents, inventory.Agent{
				ID:                fmt.Sprintf("agent_%d", len(e.inv.Agents)),
				DisplayName:       fmt.Sprintf("Agent_%d", len(e.inv.Agents)+1),
				SourceFile:        file,
				SourceLine:        m.Line,
				DeclaredToolNames: []string{},
				DiscoveredBy:      inventory.DiscoveredByRegex,
			})
		case pyast.MatchTool:
			e.inv.Tools = append(e.inv.Tools, inventory.Tool{
				ID:           fmt.Sprintf("tool_%d", len(e.inv.Tools)),
				DisplayName:  fmt.Sprintf("Tool_%d", len(e.inv.Tools)+1),
				SourceFile:   file,
				SourceLine:   m.Line,
				Kind:         inventory.KindClassDefinition,
				DiscoveredBy: inventory.DiscoveredByRegex,
			})
		case pyast.MatchTask:
			e.inv.Tasks = append(e.inv.Tasks, newTask(len(e.inv.Tasks), file, m.Line, inventory.DiscoveredByRegex))
		case pyast.MatchCrew:
			e.addCrew(file, m.Line, inventory.DiscoveredByRegex)
		}
	}
}

// Resolve links task context bindings to tasks declared in the same file.
// Call it once after every file has been added.
func (e *Extractor) Resolve() {
	for _, scope := range e.files {
		for _, ti := range scope.owned {
			task := &e.inv.Tasks[ti]
			for _, b := range task.DependencyBindings {
				di, ok := scope.tasks[b]
				if !ok {
					e.log.Debug("unresolved task dependency", "task", task.DisplayName, "binding", b, "path", scope.path)
					continue
				}
				dep := e.inv.Tasks[di]
				task.ResolvedDependencies = append(task.ResolvedDependencies, inventory.ResolvedDependency{
					BindingName:     b,
					TaskDisplayName: dep.DisplayName,
				})
				if task.AssignedAgent != "" && task.AssignedAgent == dep.AssignedAgent {
					task.SequentialDependencies = append(task.SequentialDependencies, dep.DisplayName)
					e.log.Debug("sequential tasks on one agent", "agent", task.AssignedAgent, "from", dep.DisplayName, "to", task.DisplayName)
				}
			}
		}
	}
}

// Inventory returns the accumulated components. Scan metadata is left for
// the caller to fill.
func (e *Extractor) Inventory() *inventory.Inventory {
	inv := e.inv
	return &inv
}

// ---------------------------------------------------------------------------
// Pass 1: assignments
// ---------------------------------------------------------------------------

func (e *Extractor) assignmentPass(scope *fileScope, mod *pyast.Module, consumed map[*pyast.Call]bool) {
	pyast.Walk(mod, func(n pyast.Node) bool {
		a, ok := n.(*pyast.Assign)
		if !ok {
			return true
		}
		call, ok := a.Value.(*pyast.Call)
		if !ok {
			return true
		}
		switch pyast.CalleeName(call) {
		case "Agent":
			e.addAgent(scope, a, call, consumed)
		case "Task":
			e.addTask(scope, a, call)
		}
		return true
	})
}

func (e *Extractor) addAgent(scope *fileScope, a *pyast.Assign, call *pyast.Call, consumed map[*pyast.Call]bool) {
	idx := len(e.inv.Agents)
	names := targetNames(a)
	agent := inventory.Agent{
		ID:                fmt.Sprintf("agent_%d", idx),
		DisplayName:       fmt.Sprintf("Agent_%d", idx+1),
		SourceFile:        scope.path,
		SourceLine:        a.Line(),
		DeclaredToolNames: []string{},
		BindingName:       bindingName(a),
		DiscoveredBy:      inventory.DiscoveredByAST,
	}
	for _, kw := range call.Keywords {
		switch kw.Name {
		case "role":
			agent.Role = literal(kw.Value, false)
		case "goal":
			agent.Goal = literal(kw.Value, false)
		case "backstory":
			agent.Backstory = literal(kw.Value, false)
		case "tools":
			list, ok := kw.Value.(*pyast.List)
			if !ok {
				continue
			}
			for _, elt := range list.Elts {
				tc, ok := elt.(*pyast.Call)
				if !ok {
					continue
				}
				name := pyast.CalleeName(tc)
				if name == "" {
					continue
				}
				consumed[tc] = true
				agent.DeclaredToolNames = append(agent.DeclaredToolNames, name)
				if _, exists := e.tools[toolKey{name, scope.path}]; exists {
					continue
				}
				e.addTool(inventory.Tool{
					DisplayName:        name,
					SourceFile:         scope.path,
					SourceLine:         tc.Line(),
					Kind:               inventory.KindToolInstance,
					UsedByAgentBinding: agent.BindingName,
					DiscoveredBy:       inventory.DiscoveredByAST,
				})
			}
		}
	}
	e.inv.Agents = append(e.inv.Agents, agent)
	for _, n := range names {
		scope.agents[n] = append(scope.agents[n], idx)
	}
}

func (e *Extractor) addTask(scope *fileScope, a *pyast.Assign, call *pyast.Call) {
	idx := len(e.inv.Tasks)
	task := newTask(idx, scope.path, a.Line(), inventory.DiscoveredByAST)
	task.BindingName = bindingName(a)
	for _, kw := range call.Keywords {
		switch kw.Name {
		case "description":
			task.Description = literal(kw.Value, true)
		case "expected_output":
			task.ExpectedOutput = literal(kw.Value, true)
		case "agent":
			if n, ok := kw.Value.(*pyast.Name); ok {
				task.AssignedAgentBinding = n.ID
			}
		case "context":
			list, ok := kw.Value.(*pyast.List)
			if !ok {
				continue
			}
			for _, elt := range list.Elts {
				if n, ok := elt.(*pyast.Name); ok {
					task.DependencyBindings = append(task.DependencyBindings, n.ID)
				}
			}
		}
	}
	e.inv.Tasks = append(e.inv.Tasks, task)
	scope.owned = append(scope.owned, idx)
	for _, n := range targetNames(a) {
		scope.tasks[n] = idx
	}
}

// bindAgents keeps a task's agent binding only when it names exactly one
// agent in the same file.
func (e *Extractor) bindAgents(scope *fileScope) {
	for _, ti := range scope.owned {
		task := &e.inv.Tasks[ti]
		if task.AssignedAgentBinding == "" {
			continue
		}
		matches := scope.agents[task.AssignedAgentBinding]
		if len(matches) != 1 {
			e.log.Debug("dropping task agent binding", "task", task.DisplayName, "binding", task.AssignedAgentBinding, "matches", len(matches))
			task.AssignedAgentBinding = ""
			continue
		}
		task.AssignedAgent = e.inv.Agents[matches[0]].DisplayName
	}
}

// ---------------------------------------------------------------------------
// Pass 2: free constructors and tool classes
// ---------------------------------------------------------------------------

func (e *Extractor) freeCallPass(file string, mod *pyast.Module, consumed map[*pyast.Call]bool) {
	pyast.Walk(mod, func(n pyast.Node) bool {
		call, ok := n.(*pyast.Call)
		if !ok {
			return true
		}
		name := pyast.CalleeName(call)
		switch {
		case name == "Crew":
			e.addCrew(file, call.Line(), inventory.DiscoveredByAST)
		case strings.HasSuffix(name, "Tool") && !consumed[call]:
			if _, exists := e.tools[toolKey{name, file}]; exists {
				return true
			}
			e.addTool(inventory.Tool{
				DisplayName:  name,
				SourceFile:   file,
				SourceLine:   call.Line(),
				Kind:         inventory.KindStandaloneInstance,
				DiscoveredBy: inventory.DiscoveredByAST,
			})
		}
		return true
	})
}

func (e *Extractor) classPass(file string, mod *pyast.Module) {
	pyast.Walk(mod, func(n pyast.Node) bool {
		cd, ok := n.(*pyast.ClassDef)
		if !ok || !hasToolBase(cd) {
			return true
		}
		fn, desc := classAttributes(cd)
		if i, exists := e.tools[toolKey{cd.Name, file}]; exists {
			// Already seen as an instance in this file; fill in what the
			// class body declares.
			t := &e.inv.Tools[i]
			if t.Description == "" {
				t.Description = desc
			}
			if t.FunctionName == "" {
				t.FunctionName = fn
			}
			return true
		}
		e.addTool(inventory.Tool{
			DisplayName:  cd.Name,
			SourceFile:   file,
			SourceLine:   cd.Line(),
			Kind:         inventory.KindClassDefinition,
			FunctionName: fn,
			Description:  desc,
			DiscoveredBy: inventory.DiscoveredByAST,
		})
		return true
	})
}

func hasToolBase(cd *pyast.ClassDef) bool {
	for _, b := range cd.Bases {
		switch b := b.(type) {
		case *pyast.Name:
			if strings.HasSuffix(b.ID, "Tool") {
				return true
			}
		case *pyast.Attribute:
			if strings.HasSuffix(b.Attr, "Tool") {
				return true
			}
		}
	}
	return false
}

// classAttributes reads literal name and description attributes from the
// class body.
func classAttributes(cd *pyast.ClassDef) (name, description string) {
	for _, stmt := range cd.Body {
		a, ok := stmt.(*pyast.Assign)
		if !ok {
			continue
		}
		s, ok := a.Value.(*pyast.Str)
		if !ok || s.Formatted {
			continue
		}
		for _, t := range targetNames(a) {
			switch t {
			case "name":
				name = s.Value()
			case "description":
				description = s.Value()
			}
		}
	}
	return name, description
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (e *Extractor) addTool(t inventory.Tool) {
	t.ID = fmt.Sprintf("tool_%d", len(e.inv.Tools))
	e.tools[toolKey{t.DisplayName, t.SourceFile}] = len(e.inv.Tools)
	e.inv.Tools = append(e.inv.Tools, t)
}

func (e *Extractor) addCrew(file string, line int, by string) {
	n := len(e.inv.Crews)
	e.inv.Crews = append(e.inv.Crews, inventory.Crew{
		ID:           fmt.Sprintf("crew_%d", n),
		DisplayName:  fmt.Sprintf("Crew_%d", n+1),
		SourceFile:   file,
		SourceLine:   line,
		DiscoveredBy: by,
	})
}

func newTask(idx int, file string, line int, by string) inventory.Task {
	return inventory.Task{
		ID:                   fmt.Sprintf("task_%d", idx),
		DisplayName:          fmt.Sprintf("Task_%d", idx+1),
		SourceFile:           file,
		SourceLine:           line,
		DependencyBindings:   []string{},
		ResolvedDependencies: []inventory.ResolvedDependency{},
		DiscoveredBy:         by,
	}
}

// targetNames returns the bare identifiers an assignment binds.
func targetNames(a *pyast.Assign) []string {
	var out []string
	for _, t := range a.Targets {
		if n, ok := t.(*pyast.Name); ok {
			out = append(out, n.ID)
		}
	}
	return out
}

// bindingName is the first bare identifier target, or the dotted form of an
// attribute target such as self.writer.
func bindingName(a *pyast.Assign) string {
	if names := targetNames(a); len(names) > 0 {
		return names[0]
	}
	for _, t := range a.Targets {
		if dotted := dottedName(t); dotted != "" {
			return dotted
		}
	}
	return ""
}

func dottedName(n pyast.Node) string {
	switch n := n.(type) {
	case *pyast.Name:
		return n.ID
	case *pyast.Attribute:
		if base := dottedName(n.Value); base != "" {
			return base + "." + n.Attr
		}
	}
	return ""
}

// literal renders an argument value. String literals yield their text,
// formatted strings only when allowFormatted is set. Bare identifiers become
// var:<name> and anything else complex_value.
func literal(v pyast.Node, allowFormatted bool) string {
	switch v := v.(type) {
	case *pyast.Str:
		if v.Formatted && !allowFormatted {
			return inventory.ComplexValue
		}
		return v.Value()
	case *pyast.Name:
		return inventory.VarPrefix + v.ID
	}
	return inventory.ComplexValue
}

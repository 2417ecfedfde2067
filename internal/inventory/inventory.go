// Package inventory defines the normalized component inventory extracted from
// multi-agent source code, and its JSON document shape.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ScannerVersion is stamped into every inventory document.
const ScannerVersion = "2.0-simplified"

// Scan types.
const (
	ScanDirectory = "directory"
	ScanFile      = "file"
)

// Tool kinds.
const (
	KindClassDefinition    = "class_definition"
	KindToolInstance       = "tool_instance"
	KindStandaloneInstance = "standalone_instance"
)

// Discovery methods.
const (
	DiscoveredByAST   = "ast"
	DiscoveredByRegex = "regex"
)

// Sentinels for argument values that are not string literals.
const (
	ComplexValue = "complex_value"
	VarPrefix    = "var:"
)

// Agent is a constructed agent.
type Agent struct {
	ID                string   `json:"id"`
	DisplayName       string   `json:"display_name"`
	SourceFile        string   `json:"source_file"`
	SourceLine        int      `json:"source_line"`
	Role              string   `json:"role"`
	Goal              string   `json:"goal"`
	Backstory         string   `json:"backstory"`
	DeclaredToolNames []string `json:"declared_tool_names"`
	BindingName       string   `json:"binding_name"`
	DiscoveredBy      string   `json:"discovered_by"`
}

// Tool is a tool class or instance.
type Tool struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	SourceFile         string `json:"source_file"`
	SourceLine         int    `json:"source_line"`
	Kind               string `json:"kind"`
	FunctionName       string `json:"function_name"`
	Description        string `json:"description"`
	UsedByAgentBinding string `json:"used_by_agent_binding,omitempty"`
	DiscoveredBy       string `json:"discovered_by"`
}

// ResolvedDependency links a context binding to the task it names.
type ResolvedDependency struct {
	BindingName     string `json:"binding_name"`
	TaskDisplayName string `json:"task_display_name"`
}

// Task is a constructed task. SequentialDependencies lists resolved
// predecessors assigned to the same agent as the task; they never become
// graph edges.
type Task struct {
	ID                     string               `json:"id"`
	DisplayName            string               `json:"display_name"`
	SourceFile             string               `json:"source_file"`
	SourceLine             int                  `json:"source_line"`
	Description            string               `json:"description"`
	ExpectedOutput         string               `json:"expected_output"`
	AssignedAgentBinding   string               `json:"assigned_agent_binding,omitempty"`
	AssignedAgent          string               `json:"assigned_agent,omitempty"`
	DependencyBindings     []string             `json:"dependency_bindings"`
	ResolvedDependencies   []ResolvedDependency `json:"resolved_dependencies"`
	SequentialDependencies []string             `json:"sequential_dependencies,omitempty"`
	BindingName            string               `json:"binding_name"`
	DiscoveredBy           string               `json:"discovered_by"`
}

// Crew is a recognized crew constructor.
type Crew struct {
	ID           string `json:"id"`
	DisplayName  string `json:"display_name"`
	SourceFile   string `json:"source_file"`
	SourceLine   int    `json:"source_line"`
	DiscoveredBy string `json:"discovered_by"`
}

// Parse modes recorded per file.
const (
	ParseAST     = "ast"
	ParseRegex   = "regex"
	ParseSkipped = "skipped"
)

// FileRecord notes how one source file was processed.
type FileRecord struct {
	Path      string `json:"path"`
	ParseMode string `json:"parse_mode"`
	Warning   string `json:"warning,omitempty"`
}

// ScanInfo describes the run that produced the inventory.
type ScanInfo struct {
	Target         string `json:"target"`
	ScanType       string `json:"scan_type"`
	Timestamp      string `json:"timestamp"`
	ScannerVersion string `json:"scanner_version"`
}

// ScanSummary carries component and file counts.
type ScanSummary struct {
	TotalAgents int `json:"total_agents"`
	TotalTools  int `json:"total_tools"`
	TotalCrews  int `json:"total_crews"`
	TotalTasks  int `json:"total_tasks"`
	TotalFiles  int `json:"total_files"`
	PythonFiles int `json:"python_files"`
}

// FileStructure summarizes the scanned tree.
type FileStructure struct {
	TotalFiles  int            `json:"total_files"`
	PythonFiles int            `json:"python_files"`
	Directories int            `json:"directories"`
	FileTypes   map[string]int `json:"file_types"`
}

// Inventory is the complete extraction result of one run.
type Inventory struct {
	ScanInfo      ScanInfo      `json:"scan_info"`
	ScanSummary   ScanSummary   `json:"scan_summary"`
	Agents        []Agent       `json:"agents"`
	Tools         []Tool        `json:"tools"`
	Crews         []Crew        `json:"crews"`
	Tasks         []Task        `json:"tasks"`
	FileStructure FileStructure `json:"file_structure"`
	Files         []FileRecord  `json:"files"`
}

// Summarize recomputes ScanSummary from the component lists and fs.
func (inv *Inventory) Summarize() {
	inv.ScanSummary = ScanSummary{
		TotalAgents: len(inv.Agents),
		TotalTools:  len(inv.Tools),
		TotalCrews:  len(inv.Crews),
		TotalTasks:  len(inv.Tasks),
		TotalFiles:  inv.FileStructure.TotalFiles,
		PythonFiles: inv.FileStructure.PythonFiles,
	}
}

// Validate checks that ids are unique across agents, tools, tasks and crews
// together, since graph nodes share one id space.
func (inv *Inventory) Validate() error {
	seen := make(map[string]string)
	check := func(kind, id string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("duplicate id %q (%s and %s)", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}
	for _, a := range inv.Agents {
		if err := check("agent", a.ID); err != nil {
			return err
		}
	}
	for _, t := range inv.Tools {
		if err := check("tool", t.ID); err != nil {
			return err
		}
	}
	for _, t := range inv.Tasks {
		if err := check("task", t.ID); err != nil {
			return err
		}
	}
	for _, c := range inv.Crews {
		if err := check("crew", c.ID); err != nil {
			return err
		}
	}
	return nil
}

// Load reads an inventory document from path.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	if err := inv.Validate(); err != nil {
		return nil, fmt.Errorf("inventory %s: %w", path, err)
	}
	return &inv, nil
}

// Save writes inv as indented JSON to path, creating parent directories.
func Save(inv *Inventory, path string) error {
	return WriteJSON(path, inv)
}

// WriteJSON writes v as indented JSON with a trailing newline.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

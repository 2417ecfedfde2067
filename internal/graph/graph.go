// Package graph defines the directed, weighted relationship graph over agents
// and tools and its JSON document shape.
package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"sentinel/internal/inventory"
)

// BuilderVersion is stamped into every graph document.
const BuilderVersion = "1.0"

// Node kinds.
const (
	KindAgent = "agent"
	KindTool  = "tool"
)

// Relationship is an edge type from the fixed vocabulary.
type Relationship string

const (
	ExplicitUsage         Relationship = "explicit_usage"
	TaskDependency        Relationship = "task_dependency"
	SameCrewCollaboration Relationship = "same_crew_collaboration"
	// FileProximity is reserved. The builder never emits it.
	FileProximity Relationship = "file_proximity"
)

// Weight returns the canonical weight of a relationship.
func (r Relationship) Weight() float64 {
	switch r {
	case ExplicitUsage:
		return 0.9
	case TaskDependency:
		return 0.95
	case SameCrewCollaboration:
		return 0.4
	case FileProximity:
		return 0.3
	}
	return 0
}

// CrewRef names a crew an agent is inferred to belong to.
type CrewRef struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// TaskSummary describes a task assigned to an agent.
type TaskSummary struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
}

// NodeMetadata carries kind-specific node attributes. Agent nodes use the
// agent fields, tool nodes the tool fields.
type NodeMetadata struct {
	Role              string        `json:"role,omitempty"`
	Goal              string        `json:"goal,omitempty"`
	Backstory         string        `json:"backstory,omitempty"`
	BindingName       string        `json:"binding_name,omitempty"`
	DeclaredToolNames []string      `json:"declared_tool_names,omitempty"`
	Crews             []CrewRef     `json:"crews,omitempty"`
	Tasks             []TaskSummary `json:"tasks,omitempty"`
	SequentialTasks   []string      `json:"sequential_tasks,omitempty"`

	ToolKind           string `json:"tool_kind,omitempty"`
	Description        string `json:"description,omitempty"`
	FunctionName       string `json:"function_name,omitempty"`
	UsedByAgentBinding string `json:"used_by_agent_binding,omitempty"`

	DiscoveredBy string `json:"discovered_by,omitempty"`
}

// Node is an agent or a tool.
type Node struct {
	ID         string       `json:"id"`
	Kind       string       `json:"kind"`
	Name       string       `json:"name"`
	SourceFile string       `json:"source_file"`
	SourceLine int          `json:"source_line"`
	Metadata   NodeMetadata `json:"metadata"`
}

// Edge is a directed typed edge.
type Edge struct {
	Source       string       `json:"source"`
	Target       string       `json:"target"`
	Relationship Relationship `json:"relationship"`
	Weight       float64      `json:"weight"`
}

// Info describes the build.
type Info struct {
	SourceScan     inventory.ScanInfo `json:"source_scan"`
	BuildTimestamp string             `json:"build_timestamp"`
	BuilderVersion string             `json:"builder_version"`
}

// Summary carries node and edge counts.
type Summary struct {
	TotalNodes        int                  `json:"total_nodes"`
	TotalEdges        int                  `json:"total_edges"`
	NodeTypes         map[string]int       `json:"node_types"`
	RelationshipTypes map[Relationship]int `json:"relationship_types"`
	AverageDegree     float64              `json:"average_degree"`
}

// Metadata is the fixed graph descriptor.
type Metadata struct {
	Directed    bool   `json:"directed"`
	Weighted    bool   `json:"weighted"`
	Description string `json:"description"`
}

// Graph is the relationship graph document.
type Graph struct {
	Info     Info     `json:"graph_info"`
	Summary  Summary  `json:"graph_summary"`
	Nodes    []Node   `json:"nodes"`
	Edges    []Edge   `json:"edges"`
	Metadata Metadata `json:"graph_metadata"`

	index map[string]int
	keys  map[edgeKey]bool
}

type edgeKey struct {
	source, target string
	rel            Relationship
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		Nodes: []Node{},
		Edges: []Edge{},
		Metadata: Metadata{
			Directed:    true,
			Weighted:    true,
			Description: "Agent system component relationship graph",
		},
	}
}

// AddNode appends n. A node whose id is already present is ignored.
func (g *Graph) AddNode(n Node) bool {
	g.reindex()
	if _, ok := g.index[n.ID]; ok {
		return false
	}
	g.index[n.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return true
}

// AddEdge adds a source→target edge with the canonical weight for rel.
// Adding an existing (source, target, relationship) triple is a no-op, as is
// an edge to an unknown node.
func (g *Graph) AddEdge(source, target string, rel Relationship) bool {
	g.reindex()
	if _, ok := g.index[source]; !ok {
		return false
	}
	if _, ok := g.index[target]; !ok {
		return false
	}
	k := edgeKey{source, target, rel}
	if g.keys[k] {
		return false
	}
	g.keys[k] = true
	g.Edges = append(g.Edges, Edge{Source: source, Target: target, Relationship: rel, Weight: rel.Weight()})
	return true
}

// HasEdge reports whether a source→target edge of rel exists.
func (g *Graph) HasEdge(source, target string, rel Relationship) bool {
	g.reindex()
	return g.keys[edgeKey{source, target, rel}]
}

// Node returns the node with id, if present.
func (g *Graph) Node(id string) (Node, bool) {
	g.reindex()
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// reindex rebuilds lookup tables after decoding or direct slice edits.
func (g *Graph) reindex() {
	if g.index != nil && len(g.index) == len(g.Nodes) && len(g.keys) == len(g.Edges) {
		return
	}
	g.index = make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		g.index[n.ID] = i
	}
	g.keys = make(map[edgeKey]bool, len(g.Edges))
	for _, e := range g.Edges {
		g.keys[edgeKey{e.Source, e.Target, e.Relationship}] = true
	}
}

// Summarize recomputes the summary block.
func (g *Graph) Summarize() {
	s := Summary{
		TotalNodes:        len(g.Nodes),
		TotalEdges:        len(g.Edges),
		NodeTypes:         map[string]int{},
		RelationshipTypes: map[Relationship]int{},
	}
	for _, n := range g.Nodes {
		s.NodeTypes[n.Kind]++
	}
	for _, e := range g.Edges {
		s.RelationshipTypes[e.Relationship]++
	}
	if len(g.Nodes) > 0 {
		s.AverageDegree = float64(len(g.Edges)) / float64(len(g.Nodes))
	}
	g.Summary = s
}

// Load reads a graph document from path.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph: %w", err)
	}
	return Decode(data)
}

// Decode parses a graph document.
func Decode(data []byte) (*Graph, error) {
	g := New()
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	g.index = nil
	g.reindex()
	return g, nil
}

// Save writes g as indented JSON to path.
func Save(g *Graph, path string) error {
	return inventory.WriteJSON(path, g)
}

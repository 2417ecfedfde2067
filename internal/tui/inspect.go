// Package tui holds the terminal views: the interactive report viewer, the
// plugin question prompt and the styled run summary.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sentinel/internal/analysis"
	"sentinel/internal/graph"
)

type pane int

const (
	paneFindings pane = iota
	panePaths
)

// inspectModel browses the findings and paths of one report.
type inspectModel struct {
	report   *analysis.Report
	names    map[string]string
	findings table.Model
	paths    table.Model
	focus    pane
	height   int
}

func newInspectModel(g *graph.Graph, r *analysis.Report) inspectModel {
	names := make(map[string]string)
	if g != nil {
		for _, n := range g.Nodes {
			names[n.ID] = n.Name
		}
	}

	findings := table.New(
		table.WithColumns([]table.Column{
			{Title: "Rule", Width: 28},
			{Title: "Severity", Width: 10},
			{Title: "Details", Width: 60},
		}),
		table.WithHeight(10),
	)
	paths := table.New(
		table.WithColumns([]table.Column{
			{Title: "Path", Width: 60},
			{Title: "Type", Width: 18},
			{Title: "Risk", Width: 6},
		}),
		table.WithHeight(10),
	)

	m := inspectModel{
		report:   r,
		names:    names,
		findings: findings,
		paths:    paths,
	}
	m.findings.SetRows(m.findingRows())
	m.paths.SetRows(m.pathRows())
	m.findings.Focus()
	return m
}

func (m inspectModel) findingRows() []table.Row {
	rows := make([]table.Row, 0, len(m.report.SuspiciousPatterns))
	for _, f := range m.report.SuspiciousPatterns {
		rows = append(rows, table.Row{f.RuleName, string(f.Severity), f.Details})
	}
	return rows
}

func (m inspectModel) pathRows() []table.Row {
	rows := make([]table.Row, 0, len(m.report.PathAnalysis.DetailedPaths))
	for _, p := range m.report.PathAnalysis.DetailedPaths {
		rows = append(rows, table.Row{
			m.pathLabel(p.Nodes),
			string(p.Kind),
			fmt.Sprintf("%.2f", p.RiskScore),
		})
	}
	return rows
}

func (m inspectModel) pathLabel(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		if name, ok := m.names[id]; ok && name != "" {
			parts[i] = name
		} else {
			parts[i] = id
		}
	}
	return strings.Join(parts, " → ")
}

func (m inspectModel) Init() tea.Cmd { return nil }

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		h := max((msg.Height-8)/2, 3)
		m.findings.SetHeight(h)
		m.paths.SetHeight(h)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab":
			if m.focus == paneFindings {
				m.focus = panePaths
				m.findings.Blur()
				m.paths.Focus()
			} else {
				m.focus = paneFindings
				m.paths.Blur()
				m.findings.Focus()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.focus == paneFindings {
		m.findings, cmd = m.findings.Update(msg)
	} else {
		m.paths, cmd = m.paths.Update(msg)
	}
	return m, cmd
}

func (m inspectModel) header() string {
	o := m.report.Overall
	level := levelStyle(o.RiskLevel).Render(strings.ToUpper(o.RiskLevel))
	return fmt.Sprintf("%s  risk %s (%.3f)  %s",
		headerStyle.Render("sentinel"),
		level,
		o.TotalRiskScore,
		dimStyle.Render(fmt.Sprintf("%d paths, %d findings", o.TotalPathsAnalyzed, o.SuspiciousPatternsFound)),
	)
}

func (m inspectModel) tabs() string {
	labels := []string{
		fmt.Sprintf("Findings (%d)", len(m.report.SuspiciousPatterns)),
		fmt.Sprintf("Paths (%d)", len(m.report.PathAnalysis.DetailedPaths)),
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		if pane(i) == m.focus {
			out[i] = activeTabStyle.Render(l)
		} else {
			out[i] = tabStyle.Render(l)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

func (m inspectModel) View() string {
	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n\n")
	b.WriteString(m.tabs())
	b.WriteString("\n")
	if m.focus == paneFindings {
		b.WriteString(m.findings.View())
		if row := m.findings.SelectedRow(); row != nil {
			b.WriteString("\n")
			b.WriteString(detailStyle.Render(m.findingDetail(m.findings.Cursor())))
		}
	} else {
		b.WriteString(m.paths.View())
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("tab switch  ↑/↓ move  q quit"))
	return b.String()
}

func (m inspectModel) findingDetail(i int) string {
	if i < 0 || i >= len(m.report.SuspiciousPatterns) {
		return ""
	}
	f := m.report.SuspiciousPatterns[i]
	lines := []string{
		levelStyle(string(f.Severity)).Render(f.RuleName),
		f.Description,
	}
	if len(f.AffectedNodes) > 0 {
		lines = append(lines, "nodes: "+m.pathLabel(f.AffectedNodes))
	}
	for _, p := range f.AffectedPaths {
		lines = append(lines, "path: "+m.pathLabel(p))
	}
	return strings.Join(lines, "\n")
}

// Inspect opens the interactive report viewer. g supplies display names and
// may be nil.
func Inspect(g *graph.Graph, r *analysis.Report, opts ...tea.ProgramOption) error {
	if r == nil {
		return fmt.Errorf("inspect: no report")
	}
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(newInspectModel(g, r), opts...).Run()
	return err
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/container"
	"sentinel/internal/plugin"
	"sentinel/internal/source"
)

const crewSource = `from crewai import Agent, Task, Crew

researcher = Agent(role="Researcher", goal="Research")
writer = Agent(role="Writer", goal="Write")
research = Task(description="Find sources", agent=researcher)
draft = Task(description="Draft article", agent=writer, context=[research])
crew = Crew(agents=[researcher, writer], tasks=[research, draft])
`

const soloSource = `from crewai import Agent
loner = Agent(role="Loner", goal="Nothing")
`

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, opts *rootOptions, args ...string) (string, error) {
	t.Helper()
	if opts == nil {
		opts = &rootOptions{prompt: tuiPrompt}
	}
	root := newRootCmdWith(opts)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func project(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crew.py"), []byte(source), 0o644))
	return dir
}

func withTempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

var recordedRe = regexp.MustCompile(`recorded run (\S+)`)

func recordedID(t *testing.T, out string) string {
	t.Helper()
	m := recordedRe.FindStringSubmatch(out)
	require.NotNil(t, m, "no recorded run id in output:\n%s", out)
	return m[1]
}

// ---------------------------------------------------------------------------
// root
// ---------------------------------------------------------------------------

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"scan", "analyze", "analyze-graph", "inspect", "init", "add", "run", "list", "remove", "history", "compare", "serve"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.Short, name)
	}
}

func TestUnknownLogFormat(t *testing.T) {
	_, err := execute(t, nil, "--log-format", "xml", "scan", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log format")
}

func TestBadArgs(t *testing.T) {
	for _, args := range [][]string{{"scan"}, {"analyze"}, {"add", "ws"}, {"compare", "a"}} {
		_, err := execute(t, nil, args...)
		assert.Error(t, err, args)
	}
}

// ---------------------------------------------------------------------------
// scan / analyze
// ---------------------------------------------------------------------------

func TestScanToStdout(t *testing.T) {
	dir := project(t, crewSource)
	out, err := execute(t, nil, "--log-format", "json", "scan", dir)
	require.NoError(t, err)

	var doc struct {
		Summary struct {
			TotalAgents int `json:"total_agents"`
			TotalCrews  int `json:"total_crews"`
		} `json:"scan_summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Summary.TotalAgents)
	assert.Equal(t, 1, doc.Summary.TotalCrews)
}

func TestScanMissingTarget(t *testing.T) {
	_, err := execute(t, nil, "scan", filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestScanConfigFlag(t *testing.T) {
	dir := project(t, crewSource)
	cfg := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("permissions:\n  deny: [\"crew.py\"]\n"), 0o644))

	out, err := execute(t, nil, "--config", cfg, "scan", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_agents": 0`)
}

func TestAnalyzeAllDerivesNames(t *testing.T) {
	dir := project(t, crewSource)
	outDir := t.TempDir()
	inv := filepath.Join(outDir, "scan.json")

	out, err := execute(t, nil, "analyze", dir, "-o", inv, "-a", "--vault", filepath.Join(outDir, "vault"))
	require.NoError(t, err)
	for _, name := range []string{"scan.json", "graph_scan.json", "paths_scan.json", "vault/index.md"} {
		_, err := os.Stat(filepath.Join(outDir, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
	assert.Contains(t, out, "Risk")
	assert.Contains(t, out, "agents 2")
}

func TestAnalyzeFlagsArtifacts(t *testing.T) {
	f := analyzeFlags{all: true}
	a := f.artifacts(filepath.Join("src", "demo"))
	assert.Equal(t, "demo.json", a.Inventory)
	assert.Equal(t, "graph_demo.json", a.Graph)
	assert.Equal(t, "paths_demo.json", a.Analysis)

	f = analyzeFlags{all: true, graph: "g.json"}
	a = f.artifacts("crew.py")
	assert.Equal(t, "crew.json", a.Inventory)
	assert.Equal(t, "g.json", a.Graph)
	assert.Equal(t, "paths_crew.json", a.Analysis)

	a = analyzeFlags{}.artifacts("crew.py")
	assert.Equal(t, "", a.Inventory+a.Graph+a.Analysis+a.Vault)
}

func TestAnalyzeGraph(t *testing.T) {
	dir := project(t, crewSource)
	outDir := t.TempDir()
	graphPath := filepath.Join(outDir, "graph.json")
	_, err := execute(t, nil, "analyze", dir, "-g", graphPath)
	require.NoError(t, err)

	paths := filepath.Join(outDir, "paths.json")
	out, err := execute(t, nil, "analyze-graph", graphPath, "-p", paths)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+paths)
	assert.Contains(t, out, "Graph")
	_, err = os.Stat(paths)
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// history / compare
// ---------------------------------------------------------------------------

func TestRecordHistoryCompare(t *testing.T) {
	withTempHome(t)
	dir := project(t, crewSource)

	out, err := execute(t, nil, "analyze", dir, "--record")
	require.NoError(t, err)
	first := recordedID(t, out)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.py"), []byte(soloSource), 0o644))
	out, err = execute(t, nil, "analyze", dir, "--record")
	require.NoError(t, err)
	second := recordedID(t, out)

	out, err = execute(t, nil, "history", dir, "--findings")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], shortID(second)), "newest run first:\n%s", out)
	assert.Contains(t, out, shortID(first))

	out, err = execute(t, nil, "compare", first, second)
	require.NoError(t, err)
	assert.Contains(t, out, "nodes")
	assert.Contains(t, out, "2 -> 3")
	assert.Contains(t, out, "+ isolated_agents")

	out, err = execute(t, nil, "compare", "--json", first, second)
	require.NoError(t, err)
	var c struct {
		Nodes struct{ Before, After int } `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &c))
	assert.Equal(t, 2, c.Nodes.Before)
	assert.Equal(t, 3, c.Nodes.After)
}

func TestHistoryEmpty(t *testing.T) {
	withTempHome(t)
	out, err := execute(t, nil, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no recorded runs")
}

func TestCompareUnknownRun(t *testing.T) {
	withTempHome(t)
	_, err := execute(t, nil, "compare", "missing-a", "missing-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// ---------------------------------------------------------------------------
// workspaces
// ---------------------------------------------------------------------------

func TestWorkspaceFlow(t *testing.T) {
	home := withTempHome(t)
	dir := project(t, crewSource)

	out, err := execute(t, nil, "init", "team")
	require.NoError(t, err)
	assert.Contains(t, out, `created workspace "team"`)

	_, err = execute(t, nil, "init", "team")
	assert.Error(t, err, "init twice")

	_, err = execute(t, nil, "add", "team", "alpha", "--path", dir)
	require.NoError(t, err)

	var asked []plugin.ConfigQuestion
	prompted := &rootOptions{prompt: func(qs []plugin.ConfigQuestion) (map[string]string, error) {
		asked = qs
		return map[string]string{"path": dir}, nil
	}}
	_, err = execute(t, prompted, "add", "team", "beta")
	require.NoError(t, err)
	require.Len(t, asked, 1)
	assert.Equal(t, "path", asked[0].Key)

	out, err = execute(t, nil, "list", "team")
	require.NoError(t, err)
	assert.Equal(t, "alpha\nbeta\n", out)

	out, err = execute(t, nil, "run", "team", "--jobs", "2", "--record")
	require.NoError(t, err)
	assert.Contains(t, out, "analyzed team/alpha [crewai]")
	assert.Contains(t, out, "analyzed team/beta [crewai]")
	for _, proj := range []string{"alpha", "beta"} {
		for _, name := range []string{"inventory.json", "graph.json", "analysis.json", "vault/index.md"} {
			p := filepath.Join(home, ".sentinel", "team", proj, "crewai", filepath.FromSlash(name))
			_, err := os.Stat(p)
			assert.NoError(t, err, p)
		}
	}

	out, err = execute(t, nil, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "team/alpha")
	assert.Contains(t, out, "team/beta")

	_, err = execute(t, nil, "remove", "team", "beta")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, ".sentinel", "team", "beta"))
	assert.True(t, os.IsNotExist(err))

	out, err = execute(t, nil, "list")
	require.NoError(t, err)
	assert.Equal(t, "team\n", out)

	_, err = execute(t, nil, "remove", "team")
	require.NoError(t, err)
	out, err = execute(t, nil, "list")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAddRelativePath(t *testing.T) {
	withTempHome(t)
	dir := project(t, crewSource)

	t.Chdir(filepath.Dir(dir))
	rel := "." + string(filepath.Separator) + filepath.Base(dir)
	_, err := execute(t, nil, "init", "team")
	require.NoError(t, err)
	_, err = execute(t, nil, "add", "team", "alpha", "--path", rel)
	require.NoError(t, err)

	w, err := container.Open("team")
	require.NoError(t, err)
	cfg, err := w.LoadProject("alpha")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Plugins["crewai"]["path"])

	t.Chdir(t.TempDir())
	out, err := execute(t, nil, "run", "team", "--record")
	require.NoError(t, err)
	assert.Contains(t, out, "analyzed team/alpha [crewai]")

	out, err = execute(t, nil, "history", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "no recorded runs")
	assert.Contains(t, out, "team/alpha")
}

func TestRunContinuesPastFailures(t *testing.T) {
	withTempHome(t)
	dir := project(t, crewSource)

	w, err := container.Init("mixed")
	require.NoError(t, err)
	require.NoError(t, w.AddProject("good", container.ProjectConfig{
		Plugins: map[string]map[string]string{"crewai": {"path": dir}},
	}))
	require.NoError(t, w.AddProject("missing", container.ProjectConfig{
		Plugins: map[string]map[string]string{"crewai": {"path": filepath.Join(dir, "nope")}},
	}))
	require.NoError(t, w.AddProject("odd", container.ProjectConfig{
		Plugins: map[string]map[string]string{"golang": {"path": dir}},
	}))

	out, err := execute(t, nil, "run", "mixed", "--jobs", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.Contains(t, err.Error(), `unknown plugin "golang"`)
	assert.Contains(t, out, "analyzed mixed/good [crewai]")
}

func TestRunEmptyWorkspace(t *testing.T) {
	withTempHome(t)
	_, err := container.Init("empty")
	require.NoError(t, err)

	out, err := execute(t, nil, "run", "empty")
	require.NoError(t, err)
	assert.Contains(t, out, `no projects in workspace "empty"`)
}

func TestAddUnknownWorkspace(t *testing.T) {
	withTempHome(t)
	_, err := execute(t, nil, "add", "ghost", "p", "--path", ".")
	assert.Error(t, err)
}

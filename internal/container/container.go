// Package container manages the ~/.sentinel/ workspace hierarchy.
//
// Directory layout:
//
//	~/.sentinel/
//	    history.db               # run ledger shared by every workspace
//	    <workspace>/
//	        <project>.yaml       # project config: plugin name -> key/value map
//	        <project>/<plugin>/  # artifacts produced by that plugin
package container

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Workspace represents a named workspace directory (~/.sentinel/<name>/).
type Workspace struct {
	Name string
	Dir  string
}

// ProjectConfig stores per-plugin configuration for a project.
// Keys are plugin names; values are config key/value maps.
type ProjectConfig struct {
	Plugins map[string]map[string]string `yaml:"plugins"`
}

// BaseDir returns the ~/.sentinel directory.
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".sentinel"), nil
}

// HistoryPath returns the location of the run ledger database.
func HistoryPath() (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "history.db"), nil
}

// validName rejects names that would escape the base directory.
func validName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s name %q", kind, name)
	}
	return nil
}

// resolve validates name and returns its workspace, which may not exist yet.
func resolve(name string) (*Workspace, error) {
	if err := validName("workspace", name); err != nil {
		return nil, err
	}
	base, err := BaseDir()
	if err != nil {
		return nil, err
	}
	return &Workspace{Name: name, Dir: filepath.Join(base, name)}, nil
}

// Init creates ~/.sentinel/<name>/. An existing workspace is an error.
func Init(name string) (*Workspace, error) {
	w, err := resolve(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(w.Dir); err == nil {
		return nil, fmt.Errorf("workspace %q already exists at %s", name, w.Dir)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return w, nil
}

// Open returns an existing workspace.
func Open(name string) (*Workspace, error) {
	w, err := resolve(name)
	if err != nil {
		return nil, err
	}
	if fi, err := os.Stat(w.Dir); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("workspace %q not found (run 'sentinel init %s' first)", name, name)
	}
	return w, nil
}

// projectPath returns the path to <project>.yaml inside the workspace.
func (w *Workspace) projectPath(name string) string {
	return filepath.Join(w.Dir, name+".yaml")
}

// ArtifactDir returns where plugin writes artifacts for project.
func (w *Workspace) ArtifactDir(project, plugin string) string {
	return filepath.Join(w.Dir, project, plugin)
}

// AddProject writes a project config file. Errors if it already exists.
func (w *Workspace) AddProject(name string, config ProjectConfig) error {
	if err := validName("project", name); err != nil {
		return err
	}
	path := w.projectPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("project %q already exists in workspace %q", name, w.Name)
	}
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}
	return nil
}

// LoadProject reads and parses a project config file.
func (w *Workspace) LoadProject(name string) (*ProjectConfig, error) {
	data, err := os.ReadFile(w.projectPath(name))
	if err != nil {
		return nil, fmt.Errorf("read project %q: %w", name, err)
	}
	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse project %q: %w", name, err)
	}
	return &cfg, nil
}

// ListProjects returns project names derived from *.yaml files, sorted.
func (w *Workspace) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace dir: %w", err)
	}
	var projects []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			projects = append(projects, name)
		}
	}
	slices.Sort(projects)
	return projects, nil
}

// RemoveProject removes a project's config file and artifact directory.
func (w *Workspace) RemoveProject(name string) error {
	if err := validName("project", name); err != nil {
		return err
	}
	path := w.projectPath(name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("project %q not found in workspace %q", name, w.Name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove project config: %w", err)
	}
	if err := os.RemoveAll(filepath.Join(w.Dir, name)); err != nil {
		return fmt.Errorf("remove project artifacts: %w", err)
	}
	return nil
}

// List returns the names of all workspaces under ~/.sentinel/, sorted.
func List() ([]string, error) {
	base, err := BaseDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read sentinel dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove deletes a workspace and all its contents.
func Remove(name string) error {
	w, err := Open(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// Package settings loads sentinel configuration from .sentinel/settings.yaml.
//
// The deny list mirrors a permission model: glob patterns that control which
// files the scanner reads. Patterns may be written as bare globs
// ("venv/**") or wrapped in a Read() verb ("Read(./venv/**)").
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds sentinel configuration.
type Settings struct {
	Permissions Permissions `yaml:"permissions"`
	Scan        Scan        `yaml:"scan"`
	Graph       Graph       `yaml:"graph"`
	Analysis    Analysis    `yaml:"analysis"`
}

// Permissions controls which files sentinel reads.
type Permissions struct {
	// Deny is a list of glob patterns for files sentinel should not read.
	// Example: ["Read(./venv/**)"]
	Deny []string `yaml:"deny"`
}

// Scan configures the source reader.
type Scan struct {
	Extensions []string `yaml:"extensions"`
	SkipDirs   []string `yaml:"skip_dirs"`
}

// Graph configures the graph builder.
type Graph struct {
	// RequireCrew restricts collaboration edges to files that construct a
	// Crew. Nil means true.
	RequireCrew *bool `yaml:"require_crew"`
}

// Analysis configures path enumeration and rules.
type Analysis struct {
	MaxDepth      int      `yaml:"max_depth"`
	MaxPaths      int      `yaml:"max_paths"`
	DisabledRules []string `yaml:"disabled_rules"`
}

// Defaults.
const (
	DefaultMaxDepth = 5
	DefaultMaxPaths = 200000
)

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{}
	s.applyDefaults()
	return s
}

// Path returns the conventional settings location under root.
func Path(root string) string {
	return filepath.Join(root, ".sentinel", "settings.yaml")
}

// Load reads .sentinel/settings.yaml relative to root. A missing file yields
// defaults, not an error. A root that is a file is looked up next to it.
func Load(root string) (*Settings, error) {
	if fi, err := os.Stat(root); err == nil && !fi.IsDir() {
		root = filepath.Dir(root)
	}
	return LoadFile(Path(root))
}

// LoadFile reads settings from an explicit path. A missing file yields
// defaults.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyDefaults() {
	if len(s.Scan.Extensions) == 0 {
		s.Scan.Extensions = []string{".py"}
	}
	for i, ext := range s.Scan.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		s.Scan.Extensions[i] = ext
	}
	if s.Scan.SkipDirs == nil {
		s.Scan.SkipDirs = []string{".git", "__pycache__"}
	}
	if s.Graph.RequireCrew == nil {
		t := true
		s.Graph.RequireCrew = &t
	}
	if s.Analysis.MaxDepth <= 0 {
		s.Analysis.MaxDepth = DefaultMaxDepth
	}
	if s.Analysis.MaxPaths <= 0 {
		s.Analysis.MaxPaths = DefaultMaxPaths
	}
}

// RequiresCrew reports the effective graph.require_crew value. Safe to call
// on a nil receiver.
func (s *Settings) RequiresCrew() bool {
	if s == nil || s.Graph.RequireCrew == nil {
		return true
	}
	return *s.Graph.RequireCrew
}

// IsDenied reports whether relPath (forward-slash, relative to root) matches
// any deny rule. Safe to call on a nil *Settings receiver.
func (s *Settings) IsDenied(relPath string) bool {
	if s == nil {
		return false
	}
	for _, rule := range s.Permissions.Deny {
		if matchDenyPattern(parseDenyRule(rule), relPath) {
			return true
		}
	}
	return false
}

// parseDenyRule extracts the path glob from a deny rule.
//
//	"Read(./venv/**)" → "venv/**"
//	"venv/**"         → "venv/**"
func parseDenyRule(rule string) string {
	if strings.HasPrefix(rule, "Read(") && strings.HasSuffix(rule, ")") {
		rule = rule[5 : len(rule)-1]
	}
	return strings.TrimPrefix(rule, "./")
}

// matchDenyPattern reports whether path matches a deny glob pattern.
//
// "prefix/**" matches the prefix directory itself and every path beneath it.
// "**/name" matches name at any depth. All other patterns use
// filepath.Match semantics (single * does not cross /).
func matchDenyPattern(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		parts := strings.Split(path, "/")
		for i := range parts {
			if matchDenyPattern(rest, strings.Join(parts[i:], "/")) {
				return true
			}
		}
		return false
	}
	matched, _ := filepath.Match(pattern, path)
	return matched
}

package settings

// settings_test.go: Tests for settings loading, defaults and deny matching.

import (
	"os"
	"path/filepath"
	"testing"
)

// ---------------------------------------------------------------------------
// parseDenyRule / matchDenyPattern
// ---------------------------------------------------------------------------

func TestParseDenyRule(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Read(./venv/**)", "venv/**"},
		{"./venv/**", "venv/**"},
		{"venv/**", "venv/**"},
		{"Read(tests/**)", "tests/**"},
	}
	for _, tc := range tests {
		if got := parseDenyRule(tc.input); got != tc.want {
			t.Errorf("parseDenyRule(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestMatchDenyPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		// /** matches the prefix dir itself and everything beneath.
		{"venv/**", "venv", true},
		{"venv/**", "venv/lib/site.py", true},
		{"venv/**", "other/venv/site.py", false},
		// Single * stays within a segment.
		{"*.py", "main.py", true},
		{"*.py", "pkg/main.py", false},
		// **/ matches at any depth.
		{"**/test_*.py", "test_agents.py", true},
		{"**/test_*.py", "pkg/tests/test_agents.py", true},
		{"**/test_*.py", "pkg/agents.py", false},
		{"vendor", "vendor", true},
		{"vendor", "vendor/x.py", false},
	}
	for _, tc := range tests {
		if got := matchDenyPattern(tc.pattern, tc.path); got != tc.want {
			t.Errorf("matchDenyPattern(%q, %q) = %v, want %v", tc.pattern, tc.path, got, tc.want)
		}
	}
}

func TestSettings_IsDenied(t *testing.T) {
	s := &Settings{Permissions: Permissions{Deny: []string{"Read(./venv/**)", "examples/**"}}}
	for _, p := range []string{"venv", "venv/a.py", "examples/demo/crew.py"} {
		if !s.IsDenied(p) {
			t.Errorf("IsDenied(%q) = false, want true", p)
		}
	}
	for _, p := range []string{"crew.py", "src/venv.py"} {
		if s.IsDenied(p) {
			t.Errorf("IsDenied(%q) = true, want false", p)
		}
	}
}

func TestSettings_NilReceiver(t *testing.T) {
	var s *Settings
	if s.IsDenied("anything") {
		t.Error("nil Settings.IsDenied should always return false")
	}
	if !s.RequiresCrew() {
		t.Error("nil Settings.RequiresCrew should default to true")
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

func writeSettings(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, ".sentinel"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(dir), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_FileNotExist(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("expected nil error for missing file, got: %v", err)
	}
	if s.Analysis.MaxDepth != DefaultMaxDepth || s.Analysis.MaxPaths != DefaultMaxPaths {
		t.Errorf("analysis defaults: %+v", s.Analysis)
	}
	if len(s.Scan.Extensions) != 1 || s.Scan.Extensions[0] != ".py" {
		t.Errorf("extension defaults: %v", s.Scan.Extensions)
	}
	if !s.RequiresCrew() {
		t.Error("require_crew should default to true")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `
permissions:
  deny:
    - "Read(./venv/**)"
scan:
  extensions: ["PY", ".pyi"]
  skip_dirs: []
graph:
  require_crew: false
analysis:
  max_depth: 4
  disabled_rules: [high_weight_relationships]
`)
	s, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !s.IsDenied("venv/x.py") {
		t.Error("venv/x.py should be denied")
	}
	if s.Scan.Extensions[0] != ".py" || s.Scan.Extensions[1] != ".pyi" {
		t.Errorf("extensions not normalized: %v", s.Scan.Extensions)
	}
	if s.Scan.SkipDirs == nil || len(s.Scan.SkipDirs) != 0 {
		t.Errorf("explicit empty skip_dirs must be kept: %v", s.Scan.SkipDirs)
	}
	if s.RequiresCrew() {
		t.Error("require_crew false not honored")
	}
	if s.Analysis.MaxDepth != 4 || s.Analysis.MaxPaths != DefaultMaxPaths {
		t.Errorf("analysis: %+v", s.Analysis)
	}
	if len(s.Analysis.DisabledRules) != 1 {
		t.Errorf("disabled rules: %v", s.Analysis.DisabledRules)
	}
}

func TestLoad_FileTarget(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "analysis:\n  max_paths: 7\n")
	target := filepath.Join(dir, "crew.py")
	if err := os.WriteFile(target, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(target)
	if err != nil {
		t.Fatal(err)
	}
	if s.Analysis.MaxPaths != 7 {
		t.Errorf("settings next to a file target not found: %+v", s.Analysis)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, ":\tbad yaml:")
	if _, err := Load(dir); err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

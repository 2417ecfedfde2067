// Package history keeps a ledger of analysis runs in SQLite so that runs of
// the same target can be listed and compared over time.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"sentinel/internal/analysis"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// newID and now are swapped in tests.
var (
	newID = uuid.NewString
	now   = time.Now
)

// ErrNotFound is returned when no run matches an id.
var ErrNotFound = errors.New("history: run not found")

// ─── Types ───────────────────────────────────────────────────────────────────

// Run is the summary row of one recorded analysis.
type Run struct {
	ID         string  `json:"id"`
	Target     string  `json:"target"`
	Workspace  string  `json:"workspace,omitempty"`
	Project    string  `json:"project,omitempty"`
	AnalyzedAt string  `json:"analyzed_at"`
	RecordedAt string  `json:"recorded_at"`
	Nodes      int     `json:"nodes"`
	Edges      int     `json:"edges"`
	Paths      int     `json:"paths"`
	Findings   int     `json:"findings"`
	RiskScore  float64 `json:"risk_score"`
	RiskLevel  string  `json:"risk_level"`
}

// RecordParams holds input for recording a run.
type RecordParams struct {
	Target    string
	Workspace string
	Project   string
	Report    *analysis.Report
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the run ledger backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the ledger at path, enables WAL mode and
// runs migrations.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			target      TEXT    NOT NULL,
			workspace   TEXT    NOT NULL DEFAULT '',
			project     TEXT    NOT NULL DEFAULT '',
			analyzed_at TEXT    NOT NULL,
			recorded_at TEXT    NOT NULL,
			nodes       INTEGER NOT NULL,
			edges       INTEGER NOT NULL,
			paths       INTEGER NOT NULL,
			findings    INTEGER NOT NULL,
			risk_score  REAL    NOT NULL,
			risk_level  TEXT    NOT NULL,
			report      TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target, recorded_at);

		CREATE TABLE IF NOT EXISTS run_findings (
			run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			rule_name TEXT NOT NULL,
			severity  TEXT NOT NULL,
			details   TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_run_findings_run ON run_findings(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Runs ────────────────────────────────────────────────────────────────────

// Record stores a report and returns its summary row.
func (s *Store) Record(ctx context.Context, p RecordParams) (*Run, error) {
	if p.Report == nil {
		return nil, fmt.Errorf("history: record: nil report")
	}
	data, err := json.Marshal(p.Report)
	if err != nil {
		return nil, fmt.Errorf("history: marshal report: %w", err)
	}
	r := p.Report
	run := &Run{
		ID:         newID(),
		Target:     p.Target,
		Workspace:  p.Workspace,
		Project:    p.Project,
		AnalyzedAt: r.Info.Timestamp,
		RecordedAt: now().UTC().Format(time.RFC3339Nano),
		Nodes:      r.NodeAnalysis.TotalNodes,
		Edges:      r.EdgeAnalysis.TotalEdges,
		Paths:      r.Overall.TotalPathsAnalyzed,
		Findings:   r.Overall.SuspiciousPatternsFound,
		RiskScore:  r.Overall.TotalRiskScore,
		RiskLevel:  r.Overall.RiskLevel,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("history: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, target, workspace, project, analyzed_at, recorded_at,
		                  nodes, edges, paths, findings, risk_score, risk_level, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.Workspace, run.Project, run.AnalyzedAt, run.RecordedAt,
		run.Nodes, run.Edges, run.Paths, run.Findings, run.RiskScore, run.RiskLevel, string(data),
	)
	if err != nil {
		return nil, fmt.Errorf("history: insert run: %w", err)
	}
	for _, f := range r.SuspiciousPatterns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_findings (run_id, rule_name, severity, details) VALUES (?, ?, ?, ?)`,
			run.ID, f.RuleName, string(f.Severity), f.Details,
		); err != nil {
			return nil, fmt.Errorf("history: insert finding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("history: commit: %w", err)
	}
	return run, nil
}

const runColumns = `id, target, workspace, project, analyzed_at, recorded_at,
	nodes, edges, paths, findings, risk_score, risk_level`

func scanRun(sc interface{ Scan(...any) error }) (*Run, error) {
	var r Run
	err := sc.Scan(&r.ID, &r.Target, &r.Workspace, &r.Project, &r.AnalyzedAt, &r.RecordedAt,
		&r.Nodes, &r.Edges, &r.Paths, &r.Findings, &r.RiskScore, &r.RiskLevel)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Recent returns the newest runs first. An empty target lists every target.
func (s *Store) Recent(ctx context.Context, target string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []any{}
	if target != "" {
		query += " AND target = ?"
		args = append(args, target)
	}
	query += " ORDER BY recorded_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// Get returns a run and its full report. id may be a unique prefix.
func (s *Store) Get(ctx context.Context, id string) (*Run, *analysis.Report, error) {
	if id == "" {
		return nil, nil, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+`, report FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(id)+"%",
	)
	if err != nil {
		return nil, nil, fmt.Errorf("history: get run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		found  *Run
		report string
		count  int
	)
	for rows.Next() {
		count++
		var r Run
		var data string
		if err := rows.Scan(&r.ID, &r.Target, &r.Workspace, &r.Project, &r.AnalyzedAt, &r.RecordedAt,
			&r.Nodes, &r.Edges, &r.Paths, &r.Findings, &r.RiskScore, &r.RiskLevel, &data); err != nil {
			return nil, nil, fmt.Errorf("history: scan run: %w", err)
		}
		found, report = &r, data
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	switch count {
	case 0:
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return nil, nil, fmt.Errorf("history: run id prefix %q is ambiguous", id)
	}

	var rep analysis.Report
	if err := json.Unmarshal([]byte(report), &rep); err != nil {
		return nil, nil, fmt.Errorf("history: decode report %s: %w", found.ID, err)
	}
	return found, &rep, nil
}

// FindingRules returns the rule names recorded for a run, in report order.
func (s *Store) FindingRules(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_name FROM run_findings WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list findings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Compare loads two runs and diffs their reports.
func (s *Store) Compare(ctx context.Context, beforeID, afterID string) (*Comparison, error) {
	before, beforeRep, err := s.Get(ctx, beforeID)
	if err != nil {
		return nil, err
	}
	after, afterRep, err := s.Get(ctx, afterID)
	if err != nil {
		return nil, err
	}
	c := Compare(beforeRep, afterRep)
	c.Before, c.After = *before, *after
	return c, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

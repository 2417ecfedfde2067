// Package source walks a scan target and yields the Python files to analyze.
//
// Files come back sorted by their path relative to the target so that ids
// assigned downstream are stable across runs. Symlinks are followed unless
// they resolve to a directory that is already being walked higher up, which
// breaks cycles. A directory reachable through two non-cyclic paths is read
// once per path.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"sentinel/internal/inventory"
	"sentinel/internal/settings"
)

// ErrNotFound is returned when the scan target does not exist.
var ErrNotFound = errors.New("input not found")

var bom = []byte("\xef\xbb\xbf")

// File is one decoded source file.
type File struct {
	// Path is the file as recorded in the inventory: the target joined with
	// Rel, forward-slash separated.
	Path string
	Rel  string
	Text []byte
}

// Result is everything the reader learned about a target.
type Result struct {
	Target    string
	ScanType  string
	Files     []File
	Skipped   []inventory.FileRecord
	Structure inventory.FileStructure
}

// Reader reads source files under a target, honoring scan settings.
type Reader struct {
	settings *settings.Settings
	log      *slog.Logger
}

// NewReader returns a Reader. Nil settings mean defaults; a nil logger uses
// slog.Default().
func NewReader(s *settings.Settings, log *slog.Logger) *Reader {
	if s == nil {
		s = settings.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reader{settings: s, log: log}
}

// Read collects the source files of target, which may be a directory or a
// single file. A missing target yields ErrNotFound.
func (r *Reader) Read(ctx context.Context, target string) (*Result, error) {
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil, fmt.Errorf("stat %s: %w", target, err)
	}
	res := &Result{
		Target:    target,
		Files:     []File{},
		Skipped:   []inventory.FileRecord{},
		Structure: inventory.FileStructure{FileTypes: map[string]int{}},
	}
	if !info.IsDir() {
		res.ScanType = inventory.ScanFile
		r.readSingle(res, target)
		return res, nil
	}

	res.ScanType = inventory.ScanDirectory
	w := &walker{
		reader:    r,
		res:       res,
		root:      target,
		ancestors: make(map[string]bool),
	}
	if err := w.walk(ctx, target, ""); err != nil {
		return nil, err
	}
	slices.SortFunc(res.Files, func(a, b File) int { return strings.Compare(a.Rel, b.Rel) })
	slices.SortFunc(res.Skipped, func(a, b inventory.FileRecord) int { return strings.Compare(a.Path, b.Path) })
	return res, nil
}

func (r *Reader) readSingle(res *Result, target string) {
	ext := strings.ToLower(filepath.Ext(target))
	res.Structure.TotalFiles = 1
	res.Structure.FileTypes[ext] = 1
	if !r.matches(ext) {
		return
	}
	res.Structure.PythonFiles = 1
	path := filepath.ToSlash(target)
	if f, rec, ok := r.load(target, path, filepath.Base(target)); ok {
		res.Files = append(res.Files, f)
	} else {
		res.Skipped = append(res.Skipped, rec)
	}
}

func (r *Reader) matches(ext string) bool {
	return slices.Contains(r.settings.Scan.Extensions, ext)
}

func (r *Reader) skipDir(name string) bool {
	return slices.Contains(r.settings.Scan.SkipDirs, name)
}

// load reads and decodes one file. It reports false with a skipped record
// when the file cannot be used.
func (r *Reader) load(abs, path, rel string) (File, inventory.FileRecord, bool) {
	data, err := os.ReadFile(abs)
	if err != nil {
		r.log.Warn("read failed", "path", path, "err", err)
		return File{}, skipped(path, fmt.Sprintf("read failed: %v", err)), false
	}
	if !utf8.Valid(data) {
		r.log.Warn("not valid UTF-8, skipping", "path", path)
		return File{}, skipped(path, "invalid UTF-8"), false
	}
	return File{Path: path, Rel: rel, Text: bytes.TrimPrefix(data, bom)}, inventory.FileRecord{}, true
}

func skipped(path, warning string) inventory.FileRecord {
	return inventory.FileRecord{Path: path, ParseMode: inventory.ParseSkipped, Warning: warning}
}

// ---------------------------------------------------------------------------
// Directory walk
// ---------------------------------------------------------------------------

type walker struct {
	reader *Reader
	res    *Result
	root   string
	// ancestors holds the real paths of the directories on the current
	// recursion chain.
	ancestors map[string]bool
}

// walk descends into dir, whose path relative to the root is rel ("" for the
// root itself). filepath.WalkDir does not follow symlinks, so the recursion
// is done by hand.
func (w *walker) walk(ctx context.Context, dir, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.reader.log.Warn("cannot resolve directory", "path", dir, "err", err)
		return nil
	}
	if w.ancestors[real] {
		w.reader.log.Warn("symlink cycle, not following", "path", w.display(rel))
		return nil
	}
	w.ancestors[real] = true
	defer delete(w.ancestors, real)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if rel == "" {
			return fmt.Errorf("read %s: %w", dir, err)
		}
		w.reader.log.Warn("cannot read directory", "path", w.display(rel), "err", err)
		return nil
	}
	for _, e := range entries {
		abs := filepath.Join(dir, e.Name())
		childRel := e.Name()
		if rel != "" {
			childRel = rel + "/" + e.Name()
		}

		isDir := e.IsDir()
		if e.Type()&fs.ModeSymlink != 0 {
			target, err := os.Stat(abs)
			if err != nil {
				w.reader.log.Warn("dangling symlink", "path", w.display(childRel), "err", err)
				continue
			}
			isDir = target.IsDir()
		}

		if isDir {
			if w.reader.skipDir(e.Name()) {
				continue
			}
			if w.reader.settings.IsDenied(childRel) {
				w.deny(childRel)
				continue
			}
			w.res.Structure.Directories++
			if err := w.walk(ctx, abs, childRel); err != nil {
				return err
			}
			continue
		}

		if w.reader.settings.IsDenied(childRel) {
			w.deny(childRel)
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		w.res.Structure.TotalFiles++
		w.res.Structure.FileTypes[ext]++
		if !w.reader.matches(ext) {
			continue
		}
		w.res.Structure.PythonFiles++
		if f, rec, ok := w.reader.load(abs, w.display(childRel), childRel); ok {
			w.res.Files = append(w.res.Files, f)
		} else {
			w.res.Skipped = append(w.res.Skipped, rec)
		}
	}
	return nil
}

func (w *walker) deny(rel string) {
	path := w.display(rel)
	w.reader.log.Warn("path denied by settings", "path", path)
	w.res.Skipped = append(w.res.Skipped, skipped(path, "denied by settings"))
}

// display returns the inventory form of a root-relative path.
func (w *walker) display(rel string) string {
	return filepath.ToSlash(filepath.Join(w.root, rel))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"sentinel/internal/container"
	"sentinel/internal/history"
	"sentinel/internal/pipeline"
	"sentinel/internal/plugin"
	"sentinel/internal/tui"
)

type promptFunc func(questions []plugin.ConfigQuestion) (map[string]string, error)

func tuiPrompt(questions []plugin.ConfigQuestion) (map[string]string, error) {
	return tui.Prompt(questions)
}

// newProducer returns the artifact producer registered under name.
func newProducer(name string, logger *slog.Logger, done func(string, *pipeline.Result)) (plugin.ArtifactProducer, bool) {
	switch name {
	case pipeline.ProducerName:
		return &pipeline.Producer{Logger: logger, Done: done}, true
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init <workspace>",
		Short: "Create a new workspace",
		Long: `Create a new workspace at ~/.sentinel/<workspace>/.

Errors if the workspace already exists.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := container.Init(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created workspace %q at %s\n", w.Name, w.Dir)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// add
// ---------------------------------------------------------------------------

func newAddCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "add <workspace> <project>",
		Short: "Add a project to a workspace",
		Long: `Add a project to an existing workspace.

Prompts for the source path to analyze unless --path is given, and writes
~/.sentinel/<workspace>/<project>.yaml. Errors if the project exists.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := container.Open(args[0])
			if err != nil {
				return err
			}
			producer, _ := newProducer(pipeline.ProducerName, opts.logger, nil)

			var answers map[string]string
			if path != "" {
				answers = map[string]string{"path": path}
			} else {
				questions, err := producer.Configure()
				if err != nil {
					return fmt.Errorf("configure plugin: %w", err)
				}
				if answers, err = opts.prompt(questions); err != nil {
					return fmt.Errorf("prompt: %w", err)
				}
			}

			// Stored absolute so run and history do not depend on the cwd.
			if p := answers["path"]; p != "" {
				abs, err := filepath.Abs(p)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				answers["path"] = abs
			}

			cfg := container.ProjectConfig{
				Plugins: map[string]map[string]string{producer.Name(): answers},
			}
			if err := w.AddProject(args[1], cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added project %q to workspace %q\n", args[1], w.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Source path (skips the prompt)")
	return cmd
}

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

type runJob struct {
	project string
	plugin  string
	config  map[string]string
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		jobs   int
		record bool
	)
	cmd := &cobra.Command{
		Use:   "run <workspace>",
		Short: "Analyze every project in a workspace",
		Long: `Run every configured plugin for every project in the workspace.

Artifacts go to ~/.sentinel/<workspace>/<project>/<plugin>/. Up to --jobs
projects are analyzed at once. A failing project does not stop the others.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := container.Open(args[0])
			if err != nil {
				return err
			}
			projects, err := w.ListProjects()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(projects) == 0 {
				fmt.Fprintf(out, "no projects in workspace %q\n", w.Name)
				return nil
			}

			var store *history.Store
			if record {
				if store, err = openHistory(); err != nil {
					return err
				}
				defer store.Close()
			}

			var errs []error
			var jobsList []runJob
			for _, proj := range projects {
				cfg, err := w.LoadProject(proj)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				names := make([]string, 0, len(cfg.Plugins))
				for name := range cfg.Plugins {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					jobsList = append(jobsList, runJob{project: proj, plugin: name, config: cfg.Plugins[name]})
				}
			}

			r := &workspaceRun{
				ws:     w,
				logger: opts.logger,
				store:  store,
				out:    out,
			}
			errs = append(errs, r.runAll(cmd.Context(), jobsList, jobs)...)
			return errors.Join(errs...)
		},
	}
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "Projects analyzed concurrently")
	cmd.Flags().BoolVar(&record, "record", false, "Record every run in the history ledger")
	return cmd
}

// workspaceRun executes project jobs. Output and history writes are
// serialized through mu.
type workspaceRun struct {
	ws     *container.Workspace
	logger *slog.Logger
	store  *history.Store
	out    io.Writer

	mu   sync.Mutex
	errs []error
}

func (r *workspaceRun) runAll(ctx context.Context, jobs []runJob, limit int) []error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, job := range jobs {
		g.Go(func() error {
			if err := r.run(ctx, job); err != nil {
				r.mu.Lock()
				r.errs = append(r.errs, fmt.Errorf("%s/%s [%s]: %w", r.ws.Name, job.project, job.plugin, err))
				r.mu.Unlock()
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		r.errs = append(r.errs, err)
	}
	return r.errs
}

func (r *workspaceRun) run(ctx context.Context, job runJob) error {
	done := func(path string, res *pipeline.Result) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.store == nil {
			return
		}
		if _, err := r.store.Record(ctx, history.RecordParams{
			Target:    path,
			Workspace: r.ws.Name,
			Project:   job.project,
			Report:    res.Report,
		}); err != nil {
			r.errs = append(r.errs, fmt.Errorf("record %s/%s: %w", r.ws.Name, job.project, err))
		}
	}
	producer, ok := newProducer(job.plugin, r.logger, done)
	if !ok {
		return fmt.Errorf("unknown plugin %q", job.plugin)
	}
	dir := r.ws.ArtifactDir(job.project, job.plugin)
	if err := producer.Analyze(ctx, job.config, dir); err != nil {
		return err
	}
	r.mu.Lock()
	fmt.Fprintf(r.out, "analyzed %s/%s [%s] -> %s\n", r.ws.Name, job.project, job.plugin, dir)
	r.mu.Unlock()
	return nil
}

// ---------------------------------------------------------------------------
// list / remove
// ---------------------------------------------------------------------------

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [workspace]",
		Short: "List workspaces, or the projects of one workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var names []string
			if len(args) == 0 {
				ws, err := container.List()
				if err != nil {
					return err
				}
				names = ws
			} else {
				w, err := container.Open(args[0])
				if err != nil {
					return err
				}
				if names, err = w.ListProjects(); err != nil {
					return err
				}
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <workspace> [project]",
		Short: "Remove a workspace, or one project and its artifacts",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if err := container.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed workspace %q\n", args[0])
				return nil
			}
			w, err := container.Open(args[0])
			if err != nil {
				return err
			}
			if err := w.RemoveProject(args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed project %q from workspace %q\n", args[1], w.Name)
			return nil
		},
	}
}

// Package stage wraps external commands with a declared input/output
// contract: preconditions are checked before the command runs, postconditions
// after, and verified outputs are published to the results root.
package stage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spatialpipe/spatialpipe/internal/fsgate"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/platform"
)

// Images resolves container names to runnable image references.
type Images interface {
	EnsureImage(ctx context.Context, name string) (string, error)
}

// Executor runs stages on the host or inside resolved container images.
type Executor struct {
	strat      platform.Strategy
	runner     platform.Runner
	images     Images
	resultsDir string
}

// NewExecutor creates a stage executor publishing into resultsDir.
func NewExecutor(strat platform.Strategy, runner platform.Runner, images Images, resultsDir string) *Executor {
	return &Executor{
		strat:      strat,
		runner:     runner,
		images:     images,
		resultsDir: resultsDir,
	}
}

// Run executes one stage. Stages whose declared outputs are all already
// present are skipped without invoking the command. A missing required input
// is a fatal precondition failure; a required output absent after a
// successful command is a fatal postcondition failure. Outputs are published
// only after the postcondition check passes.
func (e *Executor) Run(ctx context.Context, st models.StageDescriptor) error {
	if outputsSatisfied(st) {
		slog.Info("stage outputs present, skipping", "stage", st.Name)
		return nil
	}

	for _, in := range st.Inputs {
		if in.Optional {
			continue
		}
		if !fsgate.Satisfied(in) {
			return &models.StageError{Type: models.ErrPreconditionFailed, Stage: st.Name, Path: in.Path}
		}
	}

	// Stages own intermediate directory creation for their outputs.
	for _, out := range st.Outputs {
		if dir := filepath.Dir(out.Path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return &models.StageError{Type: models.ErrInternalError, Stage: st.Name, Path: out.Path, Err: err}
			}
		}
	}

	argv := st.Command
	opts := platform.RunOptions{Dir: st.WorkDir}
	if st.Container != "" {
		ref, err := e.images.EnsureImage(ctx, st.Container)
		if err != nil {
			return err
		}
		argv = e.strat.ExecArgs(ref, st.WorkDir, st.Binds, st.Command)
		opts.Dir = ""
	}

	slog.Info("running stage", "stage", st.Name, "container", st.Container)

	code, err := e.runner.Run(ctx, argv, opts)
	if err == nil && code != 0 {
		err = fmt.Errorf("command exited with code %d", code)
	}
	if err != nil {
		return &models.StageError{Type: models.ErrCommandFailed, Stage: st.Name, Path: st.Command[0], Err: err}
	}

	for _, out := range st.Outputs {
		if out.Optional {
			continue
		}
		if !fsgate.Satisfied(out) {
			return &models.StageError{Type: models.ErrPostconditionFailed, Stage: st.Name, Path: out.Path}
		}
	}

	return e.publish(st)
}

func outputsSatisfied(st models.StageDescriptor) bool {
	if len(st.Outputs) == 0 {
		return false
	}
	for _, out := range st.Outputs {
		if out.Optional {
			continue
		}
		if !fsgate.Satisfied(out) {
			return false
		}
	}
	return true
}

// publish copies each produced output into <results>/<stage-name>/. The
// task-local originals are left in place so downstream stages keep consuming
// them from their declared locations.
func (e *Executor) publish(st models.StageDescriptor) error {
	dest := filepath.Join(e.resultsDir, st.Name)
	if err := os.RemoveAll(dest); err != nil {
		return &models.StageError{Type: models.ErrInternalError, Stage: st.Name, Path: dest, Err: err}
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return &models.StageError{Type: models.ErrInternalError, Stage: st.Name, Path: dest, Err: err}
	}

	for _, out := range st.Outputs {
		paths := []string{out.Path}
		if out.Kind == models.PathGlob {
			matches, err := filepath.Glob(out.Path)
			if err != nil {
				return &models.StageError{Type: models.ErrInternalError, Stage: st.Name, Path: out.Path, Err: err}
			}
			paths = matches
		}

		for _, p := range paths {
			if out.Optional && !fsgate.Exists(p) {
				continue
			}
			if err := copyPath(p, filepath.Join(dest, filepath.Base(p))); err != nil {
				return &models.StageError{Type: models.ErrInternalError, Stage: st.Name, Path: p, Err: err}
			}
		}
	}

	slog.Info("published stage outputs", "stage", st.Name, "dest", dest)
	return nil
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.CopyFS(dst, os.DirFS(src))
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

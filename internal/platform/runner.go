package platform

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// RunOptions configures a single command invocation.
type RunOptions struct {
	Dir    string
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes external commands and reports the exit code. The process
// implementation shells out; tests substitute spies to observe or suppress
// invocations.
type Runner interface {
	Run(ctx context.Context, argv []string, opts RunOptions) (int, error)
}

// ExecRunner runs commands via os/exec, streaming output to the provided
// writers (defaulting to the process's stdout/stderr).
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string, opts RunOptions) (int, error) {
	if len(argv) == 0 {
		return -1, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir

	if len(opts.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range opts.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	cmd.Stdout = opts.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing %s: %w", argv[0], err)
	}

	return 0, nil
}

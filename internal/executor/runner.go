package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"
)

// Result is the outcome of one subprocess.
type Result struct {
	ExitCode int
	Stderr   string
}

// Runner executes a shell command string.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
}

// ShellRunner runs commands with `<shell> -c`. A non-zero exit status is
// reported in Result, not as an error; errors mean the command could not be
// started or was cancelled.
type ShellRunner struct {
	Shell string // defaults to "sh"
	Dir   string
	// Stdout and Stderr receive the live process output; nil discards it.
	// Stderr is captured into Result regardless.
	Stdout io.Writer
	Stderr io.Writer
}

func (r ShellRunner) Run(ctx context.Context, command string) (Result, error) {
	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = r.Dir
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stdout = r.Stdout
	if r.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	if ctx.Err() != nil {
		return Result{Stderr: stderr.String()}, ctx.Err()
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}, nil
		}
		return Result{}, fmt.Errorf("exec %s: %w", shell, err)
	}
	return Result{Stderr: stderr.String()}, nil
}

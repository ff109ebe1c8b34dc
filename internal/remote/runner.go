// Package remote runs command lines on backup targets through ssh.
package remote

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/datenknoten/restic-orchestrator/internal/errors"
)

// DefaultShell interprets rendered command lines locally.
const DefaultShell = "/bin/bash"

// Runner executes a single local command line.
//
// A nil error means the line ran and exited 0. A failed command returns an
// error implementing ExitCoder. An error with code SPAWN means nothing ran.
type Runner interface {
	Run(ctx context.Context, line string) (stdout, stderr string, err error)
}

// ExitCoder is implemented by errors that carry a process exit status.
type ExitCoder interface {
	ExitCode() int
}

// ShellRunner runs lines through `<shell> -c`.
type ShellRunner struct {
	Shell string
}

// NewShellRunner returns a ShellRunner using DefaultShell.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{Shell: DefaultShell}
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, line string) (string, string, error) {
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", line)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", errors.WrapWithCode(err, errors.ErrSpawn,
			"Couldn't start "+shell,
			"Make sure "+shell+" exists and is executable.")
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.String(), stderr.String(), exitErr
		}
		return stdout.String(), stderr.String(), errors.Wrap(err, "Command didn't finish cleanly")
	}

	return stdout.String(), stderr.String(), nil
}

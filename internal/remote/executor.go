package remote

import (
	"context"

	"github.com/datenknoten/restic-orchestrator/internal/command"
	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// DefaultSSHBinary is the ssh client invoked on the local machine.
const DefaultSSHBinary = "ssh"

// Result is the outcome of one remote command.
type Result struct {
	ReturnCode int
	Stdout     string
	Stderr     string
}

// Failed reports a non-zero return code.
func (r Result) Failed() bool {
	return r.ReturnCode != 0
}

// Option configures an Executor.
type Option func(*Executor)

// WithDryRun renders and logs commands without running them.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// WithMasker hides secrets in logged command lines.
func WithMasker(m *util.Masker) Option {
	return func(e *Executor) {
		e.masker = m
	}
}

// WithSSHBinary overrides the ssh client.
func WithSSHBinary(path string) Option {
	return func(e *Executor) {
		e.sshBinary = path
	}
}

// Executor runs commands on remote hosts via ssh.
type Executor struct {
	runner    Runner
	log       logger.Logger
	dryRun    bool
	masker    *util.Masker
	sshBinary string
}

// NewExecutor returns an Executor that hands rendered ssh lines to runner.
func NewExecutor(runner Runner, log logger.Logger, opts ...Option) *Executor {
	if log == nil {
		log = logger.Noop()
	}
	e := &Executor{
		runner:    runner,
		log:       log,
		sshBinary: DefaultSSHBinary,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun reports whether commands are only rendered.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Line renders the ssh invocation for cmd on host.
func (e *Executor) Line(host, cmd, user string) string {
	b := command.New(e.sshBinary)
	if user != "" {
		b.Opt("-l", user)
	}
	return b.Arg(host, cmd).Render()
}

// Run executes cmd on host as user (empty for ssh's default).
//
// A command that ran and failed is not an error: its code is in the Result.
// The returned error is reserved for spawn failures, where nothing ran.
func (e *Executor) Run(ctx context.Context, host, cmd, user string) (Result, error) {
	line := e.Line(host, cmd, user)
	masked := e.masker.Mask(line)

	if e.dryRun {
		e.log.Info("[dry-run] %s", masked)
		return Result{}, nil
	}

	e.log.Debug("running: %s", masked)

	stdout, stderr, err := e.runner.Run(ctx, line)
	if err != nil {
		if errors.IsCode(err, errors.ErrSpawn) {
			e.log.Error("couldn't run ssh for %s: %v", host, err)
			return Result{}, err
		}
		res := Result{ReturnCode: exitCode(err), Stdout: stdout, Stderr: stderr}
		e.log.Verbose("%s exited %d", host, res.ReturnCode)
		if res.Stderr != "" {
			e.log.Debug("stderr from %s: %s", host, e.masker.Mask(res.Stderr))
		}
		return res, nil
	}

	e.log.Verbose("%s exited 0", host)
	return Result{Stdout: stdout, Stderr: stderr}, nil
}

// exitCode extracts a positive exit status from err, defaulting to 1.
func exitCode(err error) int {
	var ec ExitCoder
	if errors.As(err, &ec) {
		if code := ec.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}

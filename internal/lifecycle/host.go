// Package lifecycle drives restic on one or more hosts: credential
// provisioning, backup, retention, compaction and hooks, in a fixed order.
package lifecycle

import (
	"context"
	"strconv"

	"github.com/datenknoten/restic-orchestrator/internal/command"
	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/remote"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// Executor runs a command on a remote host. *remote.Executor implements it.
type Executor interface {
	Run(ctx context.Context, host, cmd, user string) (remote.Result, error)
}

// Host drives the lifecycle of a single backup target.
type Host struct {
	cfg  config.HostConfig
	exec Executor
	log  logger.Logger
	opts Options
}

// NewHost returns a Host for cfg. Zero Options fields take their defaults.
func NewHost(cfg config.HostConfig, exec Executor, log logger.Logger, opts Options) *Host {
	if log == nil {
		log = logger.Noop()
	}
	return &Host{cfg: cfg, exec: exec, log: log, opts: opts.withDefaults()}
}

// Backup runs the pre-hook, backup, forget (when retention is configured),
// prune and post-hook. The report is returned even when err is non-nil.
func (h *Host) Backup(ctx context.Context) (*Report, error) {
	r := h.begin(ModeBackup)
	err := h.backup(ctx, r)
	return h.finish(r, err)
}

// Init creates the restic repository.
func (h *Host) Init(ctx context.Context) (*Report, error) {
	r := h.begin(ModeInit)
	err := h.withCredential(ctx, r, func() error {
		return h.step(ctx, r, StepInit, h.restic("init").Render(), false)
	})
	return h.finish(r, err)
}

func (h *Host) backup(ctx context.Context, r *Report) error {
	if h.cfg.PreCommand != "" {
		if err := h.step(ctx, r, StepPreHook, h.cfg.PreCommand, false); err != nil {
			return err
		}
	}

	err := h.withCredential(ctx, r, func() error {
		b := h.restic("backup")
		for _, pattern := range h.cfg.Exclude {
			b.Opt("--exclude", pattern)
		}
		b.Arg(h.cfg.Files...)
		return h.step(ctx, r, StepBackup, b.Render(), false)
	})
	if err != nil {
		return err
	}

	if h.cfg.HasRetention() {
		err := h.withCredential(ctx, r, func() error {
			b := h.restic("forget", command.Option{
				Name:  "--keep-last",
				Value: strconv.Itoa(*h.cfg.KeepLastSnapshots),
			})
			return h.step(ctx, r, StepForget, b.Render(), false)
		})
		if err != nil {
			return err
		}
	}

	err = h.withCredential(ctx, r, func() error {
		return h.step(ctx, r, StepPrune, h.restic("prune").Render(), false)
	})
	if err != nil {
		return err
	}

	if h.cfg.PostCommand != "" {
		return h.step(ctx, r, StepPostHook, h.cfg.PostCommand, false)
	}
	return nil
}

func (h *Host) begin(mode Mode) *Report {
	h.log.Info("%s: starting %s", h.cfg.Host, mode)
	return newReport(h.cfg.Host, mode, h.opts.Clock.Now())
}

func (h *Host) finish(r *Report, err error) (*Report, error) {
	r.Duration = h.opts.Clock.Now().Sub(r.Started)
	r.Err = err

	switch {
	case err != nil:
		h.log.Error("%s: %s stopped: %v", r.Host, r.Mode, err)
	case r.Failed():
		h.log.Warn("%s: %s finished with %d failed %s", r.Host, r.Mode,
			r.FailureCount(), util.Pluralize(r.FailureCount(), "step", "steps"))
	default:
		h.log.Info("%s: %s finished", r.Host, r.Mode)
	}
	return r, err
}

// restic builds a restic invocation carrying the password file, repository,
// sudo setting and host env. Extra options go before the subcommand.
func (h *Host) restic(sub string, extra ...command.Option) *command.Builder {
	b := command.New(h.opts.ResticBinary).
		Sudo(h.cfg.NeedsSudo).
		WithEnv(h.cfg.Env).
		Opt("--password-file", h.opts.PasswordFile).
		Opt("--repo", h.cfg.Repository)
	b.Options = append(b.Options, extra...)
	return b.Arg(sub)
}

// step runs one remote command and records it. Once the stop policy has
// aborted the host, steps are recorded as skipped unless force is set.
// The returned error is a spawn or cancellation error, never a non-zero exit.
func (h *Host) step(ctx context.Context, r *Report, name, cmd string, force bool) error {
	masked := h.opts.Masker.Mask(cmd)

	if r.Aborted && !force {
		h.log.Verbose("%s: skipping %s", h.cfg.Host, name)
		r.record(StepResult{Name: name, Command: masked, Skipped: true})
		return nil
	}
	if err := ctx.Err(); err != nil && !force {
		return err
	}

	h.log.Verbose("%s: %s", h.cfg.Host, name)
	start := h.opts.Clock.Now()
	res, err := h.exec.Run(withStep(ctx, h.cfg.Host, name), h.cfg.Host, cmd, h.cfg.User)
	if err != nil {
		return err
	}

	s := StepResult{
		Name:     name,
		Command:  masked,
		Result:   res,
		Duration: h.opts.Clock.Now().Sub(start),
	}
	r.record(s)

	if s.Failed() {
		h.log.Warn("%s: %s exited %d", h.cfg.Host, name, res.ReturnCode)
		if h.opts.OnFail == OnFailStop && !r.Aborted {
			r.Aborted = true
		}
	}
	return nil
}

package lifecycle

import (
	"context"

	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// provisionCommand writes the repository password to a mode 600 file.
func (h *Host) provisionCommand() string {
	return InstallBinary + " -m 600 /dev/null " + h.opts.PasswordFile +
		" && echo " + util.ShellQuote(h.cfg.BackupPassword) + " >> " + h.opts.PasswordFile
}

func (h *Host) releaseCommand() string {
	return "rm " + h.opts.PasswordFile
}

// withCredential provisions the password file, runs fn and removes the file.
//
// Release is deferred, so it runs when fn returns an error, when fn panics,
// when ctx is cancelled and when the stop policy aborted the host during
// provisioning or fn. If the host was already aborted before provisioning,
// all three steps are recorded as skipped.
func (h *Host) withCredential(ctx context.Context, r *Report, fn func() error) (err error) {
	if r.Aborted {
		if err := h.step(ctx, r, StepProvision, h.provisionCommand(), false); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return err
		}
		return h.step(ctx, r, StepRelease, h.releaseCommand(), false)
	}

	if err := h.step(ctx, r, StepProvision, h.provisionCommand(), false); err != nil {
		return err
	}

	defer func() {
		// The release must reach the host even after Ctrl-C.
		relErr := h.step(context.WithoutCancel(ctx), r, StepRelease, h.releaseCommand(), true)
		if err == nil {
			err = relErr
		}
	}()

	return fn()
}

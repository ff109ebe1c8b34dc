package lifecycle

import (
	"context"

	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// Orchestrator runs hosts one after another in config order.
type Orchestrator struct {
	exec Executor
	log  logger.Logger
	opts Options
}

// NewOrchestrator returns an Orchestrator issuing commands through exec.
func NewOrchestrator(exec Executor, log logger.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = logger.Noop()
	}
	return &Orchestrator{exec: exec, log: log, opts: opts.withDefaults()}
}

// Backup backs up every host.
func (o *Orchestrator) Backup(ctx context.Context, hosts []config.HostConfig) ([]*Report, error) {
	return o.each(ctx, hosts, ModeBackup)
}

// Init initializes the repository of every host.
func (o *Orchestrator) Init(ctx context.Context, hosts []config.HostConfig) ([]*Report, error) {
	return o.each(ctx, hosts, ModeInit)
}

// each runs mode on every host. Failed steps never stop the loop. A spawn
// or cancellation error does: the remaining hosts are not attempted and the
// reports collected so far are returned with the error.
func (o *Orchestrator) each(ctx context.Context, hosts []config.HostConfig, mode Mode) ([]*Report, error) {
	o.log.Verbose("%s: %d %s", mode, len(hosts), util.Pluralize(len(hosts), "host", "hosts"))

	reports := make([]*Report, 0, len(hosts))
	for i, cfg := range hosts {
		h := NewHost(cfg, o.exec, o.log, o.opts)

		var (
			r   *Report
			err error
		)
		if mode == ModeInit {
			r, err = h.Init(ctx)
		} else {
			r, err = h.Backup(ctx)
		}
		reports = append(reports, r)

		if err != nil {
			if skipped := len(hosts) - i - 1; skipped > 0 {
				o.log.Error("not attempting the remaining %d %s", skipped, util.Pluralize(skipped, "host", "hosts"))
			}
			return reports, err
		}
	}
	return reports, nil
}

package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/history"
	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/remote"
	"github.com/datenknoten/restic-orchestrator/internal/ui"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// backupCmd backs up every configured host
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up every configured host",
	Long: `Run the backup lifecycle on every host in the config, in order.

For each host: pre-hook, backup, forget (when keepLastSnapshots is set),
prune, post-hook. A failing step doesn't stop the run unless
--on-failure stop is given, and then only for that host.

Failed steps are reported in the summary and the exit code stays 0. Pass
--strict to exit 1 instead, e.g. so cron mails the output.

Examples:
  restic-orchestrator backup
  restic-orchestrator backup --dry-run
  restic-orchestrator backup --strict
  RESTIC_ORCHESTRATOR_ON_FAILURE=stop restic-orchestrator backup`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return backupCommand(cmd.Context())
	},
}

// initCmd creates the restic repository of every configured host
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the restic repository of every configured host",
	Long: `Run 'restic init' for every host in the config.

Asks for confirmation on a terminal unless --yes or --dry-run is given.

Examples:
  restic-orchestrator init
  restic-orchestrator init --yes --config hosts.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(initCmd)
}

func backupCommand(ctx context.Context) error {
	opts, err := loadOptions(settings)
	if err != nil {
		return err
	}
	return runLifecycle(ctx, lifecycle.ModeBackup, opts, defaultDeps())
}

func initCommand(ctx context.Context) error {
	opts, err := loadOptions(settings)
	if err != nil {
		return err
	}
	return runLifecycle(ctx, lifecycle.ModeInit, opts, defaultDeps())
}

// runLifecycle loads the hosts, runs mode on all of them, records the run
// and prints the summary.
func runLifecycle(ctx context.Context, mode lifecycle.Mode, opts Options, d deps) error {
	log := logger.New("")

	hosts, err := loadHosts(opts, d.fs)
	if err != nil {
		return err
	}

	if mode == lifecycle.ModeInit && !opts.Yes && !opts.DryRun {
		ok, err := d.confirm(
			fmt.Sprintf("Initialize %d restic %s?", len(hosts), util.Pluralize(len(hosts), "repository", "repositories")),
			hostList(hosts))
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrExec, "Couldn't read the confirmation", "Pass --yes to skip it")
		}
		if !ok {
			fmt.Fprintln(d.stdout, "Aborted.")
			return nil
		}
	}

	masker := util.NewMasker()
	for _, h := range hosts {
		masker.Add(h.BackupPassword)
	}

	var exec lifecycle.Executor = remote.NewExecutor(d.runner, logger.New("remote"),
		remote.WithDryRun(opts.DryRun),
		remote.WithMasker(masker))
	if d.progress && !opts.DryRun && opts.Level == logger.LevelInfo {
		exec = ui.NewProgress(exec, d.stderr)
	}

	orch := lifecycle.NewOrchestrator(exec, logger.New("lifecycle"), lifecycle.Options{
		ResticBinary: opts.ResticBinary,
		OnFail:       opts.OnFail,
		Masker:       masker,
	})

	started := d.now()
	var reports []*lifecycle.Report
	if mode == lifecycle.ModeInit {
		reports, err = orch.Init(ctx, hosts)
	} else {
		reports, err = orch.Backup(ctx, hosts)
	}
	duration := d.now().Sub(started)

	if !opts.DryRun && !opts.NoHistory {
		recordRun(context.WithoutCancel(ctx), opts, mode, started, duration, reports, err, masker, log)
	}

	summary := ui.NewSummaryRenderer()
	summary.ShowCommands = opts.DryRun || opts.Level != logger.LevelInfo
	fmt.Fprint(d.stdout, summary.Render(reports))

	if err != nil {
		return err
	}
	if !opts.Strict {
		return nil
	}
	return failedRun(reports)
}

// loadHosts reads the host list with the configured schema.
func loadHosts(opts Options, fs afero.Fs) ([]config.HostConfig, error) {
	storeOpts := []config.StoreOption{config.WithLogger(logger.New("config"))}
	if opts.SchemaPath != "" {
		storeOpts = append(storeOpts, config.WithSchemaFile(opts.SchemaPath))
	}
	store, err := config.NewStore(fs, storeOpts...)
	if err != nil {
		return nil, err
	}
	return store.Load(opts.ConfigPath)
}

// historyPath is --history, or history.db next to the config file.
func historyPath(opts Options) (string, error) {
	if opts.HistoryPath != "" {
		return opts.HistoryPath, nil
	}
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return "", err
		}
		cfgPath = p
	}
	return filepath.Join(filepath.Dir(cfgPath), history.FileName), nil
}

// recordRun writes the run to the history database. History is a side
// record: failures are logged and never change the outcome of the run.
func recordRun(ctx context.Context, opts Options, mode lifecycle.Mode, started time.Time, duration time.Duration,
	reports []*lifecycle.Report, runErr error, masker *util.Masker, log logger.Logger) {
	path, err := historyPath(opts)
	if err != nil {
		log.Warn("not recording run history: %v", err)
		return
	}
	store, err := history.Open(path, history.WithMasker(masker))
	if err != nil {
		log.Warn("not recording run history: %v", err)
		return
	}
	defer store.Close()

	id, err := store.Record(ctx, mode, started, duration, reports, runErr)
	if err != nil {
		log.Warn("not recording run history: %v", err)
		return
	}
	log.Verbose("recorded run %s in %s", id, path)
}

// failedRun turns step failures into the run's error so the exit code
// reflects them. Only used with --strict.
func failedRun(reports []*lifecycle.Report) error {
	failed := 0
	for _, r := range reports {
		if r.Failed() {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return errors.New(errors.ErrExec,
		fmt.Sprintf("%d of %d %s had failing steps", failed, len(reports), util.Pluralize(len(reports), "host", "hosts")),
		"See the summary above. Run with --verbose to see the commands")
}

func hostList(hosts []config.HostConfig) string {
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.Host + ": " + h.Repository
	}
	return strings.Join(names, "\n")
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/remote"
	"github.com/datenknoten/restic-orchestrator/internal/ui"
)

// EnvPrefix prefixes every setting read from the environment.
const EnvPrefix = "RESTIC_ORCHESTRATOR"

// settings holds the global flags, bound to the environment.
var settings = newSettings()

// rootCmd backs up every host when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "restic-orchestrator",
	Short: "Run restic backups on remote hosts over SSH",
	Long: `Drive restic on a list of remote hosts, one host at a time, over ssh.

Each host gets its backup, an optional retention pass, a prune and its
pre/post hooks. The repository password is written to the host only for
the duration of each restic command.

Examples:
  restic-orchestrator
  restic-orchestrator --config hosts.json --dry-run
  restic-orchestrator --on-failure stop`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		return backupCommand(cmd.Context())
	},
}

func newSettings() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "host config file (default <user config dir>/restic-orchestrator/config.json)")
	pf.String("schema", "", "validate the config against this JSON Schema file instead of the built-in one")
	pf.BoolP("dry-run", "n", false, "print the remote commands without running them")
	pf.BoolP("verbose", "v", false, "log each step and show the commands in the summary")
	pf.Bool("debug", false, "also log every rendered ssh line")
	pf.Bool("no-color", false, "disable colored output")
	pf.String("on-failure", string(lifecycle.OnFailContinue), "when a step fails: continue or stop (skip the rest of that host)")
	pf.String("restic-binary", lifecycle.DefaultResticBinary, "restic path on the remote hosts")
	pf.String("history", "", "run history database (default history.db next to the config file)")
	pf.Bool("no-history", false, "don't record this run")
	pf.BoolP("yes", "y", false, "don't ask for confirmation")
	pf.Bool("strict", false, "exit 1 when any step failed")

	if err := settings.BindPFlags(pf); err != nil {
		panic(err)
	}
}

// Options are the resolved global settings.
type Options struct {
	ConfigPath   string
	SchemaPath   string
	DryRun       bool
	Level        logger.Level
	NoColor      bool
	OnFail       lifecycle.OnFail
	ResticBinary string
	HistoryPath  string
	NoHistory    bool
	Yes          bool
	Strict       bool
}

// loadOptions reads and validates the global settings from v.
func loadOptions(v *viper.Viper) (Options, error) {
	onFail, err := lifecycle.ParseOnFail(v.GetString("on-failure"))
	if err != nil {
		return Options{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid --on-failure value",
			"Use --on-failure continue or --on-failure stop")
	}

	level := logger.LevelInfo
	switch {
	case v.GetBool("debug"):
		level = logger.LevelDebug
	case v.GetBool("verbose"):
		level = logger.LevelVerbose
	}

	resticBinary := v.GetString("restic-binary")
	if resticBinary == "" {
		resticBinary = lifecycle.DefaultResticBinary
	}

	return Options{
		ConfigPath:   v.GetString("config"),
		SchemaPath:   v.GetString("schema"),
		DryRun:       v.GetBool("dry-run"),
		Level:        level,
		NoColor:      v.GetBool("no-color"),
		OnFail:       onFail,
		ResticBinary: resticBinary,
		HistoryPath:  v.GetString("history"),
		NoHistory:    v.GetBool("no-history"),
		Yes:          v.GetBool("yes"),
		Strict:       v.GetBool("strict"),
	}, nil
}

// setup configures logging and colors before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(settings)
	if err != nil {
		return err
	}
	if opts.NoColor || os.Getenv("NO_COLOR") != "" {
		ui.DisableColors()
	}
	return logger.Configure(os.Stderr, opts.Level)
}

// deps are the process-level collaborators a command runs against.
type deps struct {
	fs     afero.Fs
	runner remote.Runner
	stdout io.Writer
	stderr io.Writer

	// progress animates each remote step on stderr.
	progress bool
	confirm  func(title, description string) (bool, error)
	now      func() time.Time
}

func defaultDeps() deps {
	return deps{
		fs:       afero.NewOsFs(),
		runner:   remote.NewShellRunner(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		progress: term.IsTerminal(int(os.Stderr.Fd())),
		confirm:  confirm,
		now:      time.Now,
	}
}

// confirm prompts on a terminal and proceeds without one, so cron jobs
// never hang on a question.
func confirm(title, description string) (bool, error) {
	if !ui.IsInteractive() {
		return true, nil
	}
	return ui.Confirm(title, description, false)
}

// Execute runs the root command and exits with the matching return code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprint(os.Stderr, errorText(err))
	}
	os.Exit(int(errors.ExitCode(err)))
}

// errorText renders err for the terminal. Structured errors carry their own
// layout; cobra's usage errors get one.
func errorText(err error) string {
	var rErr *errors.Error
	if errors.As(err, &rErr) {
		return rErr.Error()
	}
	if isUsageError(err) {
		return errors.New(errors.ErrConfig, err.Error(),
			"Run 'restic-orchestrator --help' for usage").Error()
	}
	return errors.Wrap(err, "Something went wrong").Error()
}

// isUsageError checks if the error is cobra complaining about the command line.
func isUsageError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.Contains(msg, "invalid argument")
}

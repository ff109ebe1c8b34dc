package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/datenknoten/restic-orchestrator/internal/doctor"
	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/ui"
)

var checkJSON bool

// checkCmd runs the local preflight checks
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the config and ssh setup without touching any host",
	Long: `Validate the config and run local preflight checks.

Checks:
  - the ssh client is on PATH
  - every host resolves through ~/.ssh/config and DNS
  - every host has a known_hosts entry

Nothing is run on the remote hosts.

Examples:
  restic-orchestrator check
  restic-orchestrator check --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := loadOptions(settings)
		if err != nil {
			return err
		}
		d := defaultDeps()
		d.stdout = cmd.OutOrStdout()
		return checkCommand(opts, d, doctor.Options{}, checkJSON)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "output in JSON format")
	rootCmd.AddCommand(checkCmd)
}

// CheckOutput is the JSON output of the check command.
type CheckOutput struct {
	Results []doctor.CheckResult `json:"results"`
	Summary CheckSummary         `json:"summary"`
}

// CheckSummary counts check results by status.
type CheckSummary struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

func checkCommand(opts Options, d deps, dopts doctor.Options, asJSON bool) error {
	hosts, err := loadHosts(opts, d.fs)
	if err != nil {
		return err
	}

	checks, err := doctor.BuildChecks(hosts, dopts)
	if err != nil {
		return err
	}
	results := doctor.RunAll(checks)

	if asJSON {
		if err := writeCheckJSON(d.stdout, results); err != nil {
			return err
		}
	} else {
		fmt.Fprint(d.stdout, ui.RenderChecks(results))
	}

	if doctor.HasFailures(results) {
		return errors.New(errors.ErrExec, "Preflight checks failed",
			"Fix the failing checks and run 'restic-orchestrator check' again")
	}
	return nil
}

func writeCheckJSON(w io.Writer, results []doctor.CheckResult) error {
	counts := doctor.CountByStatus(results)
	out := CheckOutput{
		Results: results,
		Summary: CheckSummary{
			Pass:     counts[doctor.StatusPass],
			Warn:     counts[doctor.StatusWarn],
			Fail:     counts[doctor.StatusFail],
			AllClear: counts[doctor.StatusWarn]+counts[doctor.StatusFail] == 0,
		},
	}
	if out.Results == nil {
		out.Results = []doctor.CheckResult{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

package lifecycle

import (
	"time"

	"github.com/datenknoten/restic-orchestrator/internal/remote"
)

// Step names, in the order a backup run issues them.
const (
	StepPreHook   = "pre-hook"
	StepProvision = "provision-credential"
	StepBackup    = "backup"
	StepRelease   = "release-credential"
	StepForget    = "forget"
	StepPrune     = "prune"
	StepPostHook  = "post-hook"
	StepInit      = "init"
)

// Mode is the kind of run a report describes.
type Mode string

const (
	ModeBackup Mode = "backup"
	ModeInit   Mode = "init"
)

// StepResult is one remote command issued for a host.
type StepResult struct {
	Name string
	// Command is the remote command with secrets masked.
	Command  string
	Result   remote.Result
	Skipped  bool
	Duration time.Duration
}

// Failed reports a step that ran and returned non-zero.
func (s StepResult) Failed() bool {
	return !s.Skipped && s.Result.Failed()
}

// Report is everything that happened to one host.
type Report struct {
	Host     string
	Mode     Mode
	Started  time.Time
	Duration time.Duration
	Steps    []StepResult

	// FailedStep is the index of the first failed step, -1 if none.
	FailedStep int
	// Aborted is set when the stop policy skipped remaining steps.
	Aborted bool
	// Err is a spawn-level or cancellation error that ended the run early.
	Err error
}

func newReport(host string, mode Mode, started time.Time) *Report {
	return &Report{Host: host, Mode: mode, Started: started, FailedStep: -1}
}

// Failed reports whether any step failed or the run ended with an error.
func (r *Report) Failed() bool {
	return r.FailedStep >= 0 || r.Err != nil
}

// FailureCount is the number of steps that returned non-zero.
func (r *Report) FailureCount() int {
	n := 0
	for _, s := range r.Steps {
		if s.Failed() {
			n++
		}
	}
	return n
}

// Step returns the first step with the given name.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

func (r *Report) record(s StepResult) {
	r.Steps = append(r.Steps, s)
	if s.Failed() && r.FailedStep == -1 {
		r.FailedStep = len(r.Steps) - 1
	}
}

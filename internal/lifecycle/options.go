package lifecycle

import (
	"fmt"

	"github.com/juju/clock"

	"github.com/datenknoten/restic-orchestrator/internal/util"
)

const (
	// DefaultResticBinary is where restic lives on backup targets.
	DefaultResticBinary = "/usr/local/bin/restic"
	// DefaultPasswordFile holds the repository password while restic runs.
	DefaultPasswordFile = "/tmp/backup-password"
	// InstallBinary creates the password file with restrictive permissions.
	InstallBinary = "/usr/bin/install"
)

// OnFail decides what happens to a host's remaining steps after one fails.
type OnFail string

const (
	// OnFailContinue attempts every step regardless of return codes.
	OnFailContinue OnFail = "continue"
	// OnFailStop skips the host's remaining steps after the first failure.
	// An acquired credential is still released.
	OnFailStop OnFail = "stop"
)

// ParseOnFail validates a policy name. Empty means OnFailContinue.
func ParseOnFail(s string) (OnFail, error) {
	switch OnFail(s) {
	case "", OnFailContinue:
		return OnFailContinue, nil
	case OnFailStop:
		return OnFailStop, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (want %q or %q)", s, OnFailContinue, OnFailStop)
	}
}

// Options tune how a host is driven.
type Options struct {
	ResticBinary string
	PasswordFile string
	OnFail       OnFail
	Clock        clock.Clock
	Masker       *util.Masker
}

func (o Options) withDefaults() Options {
	if o.ResticBinary == "" {
		o.ResticBinary = DefaultResticBinary
	}
	if o.PasswordFile == "" {
		o.PasswordFile = DefaultPasswordFile
	}
	if o.OnFail == "" {
		o.OnFail = OnFailContinue
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	return o
}

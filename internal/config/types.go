// Package config loads and validates the list of hosts to back up.
package config

import "github.com/datenknoten/restic-orchestrator/internal/command"

// HostConfig is one backup target.
type HostConfig struct {
	// Host is the ssh destination: hostname, IP or ~/.ssh/config alias.
	Host string `json:"host" yaml:"host"`

	// User is the ssh login user. Empty leaves it to ssh.
	User string `json:"user,omitempty" yaml:"user,omitempty"`

	NeedsSudo bool `json:"needsSudo,omitempty" yaml:"needsSudo,omitempty"`

	// BackupPassword decrypts the repository.
	BackupPassword string `json:"backupPassword" yaml:"backupPassword"`

	// Repository is the restic repository locator (path or URL).
	Repository string `json:"repository" yaml:"repository"`

	Files   []string `json:"files" yaml:"files"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	// Env is passed to every restic command, e.g. storage credentials.
	Env command.Env `json:"env,omitempty" yaml:"env,omitempty"`

	PreCommand  string `json:"preCommand,omitempty" yaml:"preCommand,omitempty"`
	PostCommand string `json:"postCommand,omitempty" yaml:"postCommand,omitempty"`

	// KeepLastSnapshots enables `restic forget --keep-last`. Nil disables it.
	KeepLastSnapshots *int `json:"keepLastSnapshots,omitempty" yaml:"keepLastSnapshots,omitempty"`
}

// HasRetention reports whether forget should run for this host.
func (h HostConfig) HasRetention() bool {
	return h.KeepLastSnapshots != nil
}

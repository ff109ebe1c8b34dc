package doctor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/datenknoten/restic-orchestrator/internal/config"
)

// Options tune which files and lookups the checks use. Zero values use the
// user's real environment.
type Options struct {
	SSHBinary       string
	SSHConfigPath   string
	KnownHostsFiles []string
	LookPath        func(string) (string, error)
	LookupHost      func(ctx context.Context, host string) ([]string, error)
}

// BuildChecks returns the ssh client check followed by a destination and a
// known_hosts check for every host, in config order.
func BuildChecks(hosts []config.HostConfig, opts Options) ([]Check, error) {
	if opts.SSHBinary == "" {
		opts.SSHBinary = "ssh"
	}
	if opts.SSHConfigPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.SSHConfigPath = filepath.Join(home, ".ssh", "config")
		}
	}
	if opts.KnownHostsFiles == nil {
		opts.KnownHostsFiles = DefaultKnownHostsFiles()
	}

	resolver := &Resolver{}
	if opts.SSHConfigPath != "" {
		r, err := NewResolver(opts.SSHConfigPath)
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	checks := []Check{&SSHBinaryCheck{Binary: opts.SSHBinary, LookPath: opts.LookPath}}
	for _, h := range hosts {
		dest := &DestinationCheck{Host: h, Resolver: resolver, LookupHost: opts.LookupHost}
		checks = append(checks, dest, &KnownHostCheck{Destination: dest, Files: opts.KnownHostsFiles})
	}
	return checks, nil
}

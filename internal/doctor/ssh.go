package doctor

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"

	"github.com/datenknoten/restic-orchestrator/internal/config"
)

// SSHBinaryCheck verifies an ssh client is on PATH.
type SSHBinaryCheck struct {
	Binary   string
	LookPath func(string) (string, error)
}

func (c *SSHBinaryCheck) Name() string     { return "ssh_binary" }
func (c *SSHBinaryCheck) Category() string { return "SSH" }

func (c *SSHBinaryCheck) Run() CheckResult {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(c.Binary)
	if err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s not found on PATH", c.Binary),
			Suggestion: "Install the OpenSSH client",
		}
	}
	return CheckResult{Status: StatusPass, Message: "ssh client: " + path}
}

// DestinationCheck resolves a host through ~/.ssh/config and DNS.
type DestinationCheck struct {
	Host       config.HostConfig
	Resolver   *Resolver
	LookupHost func(ctx context.Context, host string) ([]string, error)

	// Resolved is populated by Run.
	Resolved Destination
}

func (c *DestinationCheck) Name() string     { return "destination" }
func (c *DestinationCheck) Category() string { return c.Host.Host }

func (c *DestinationCheck) Run() CheckResult {
	c.Resolved = c.Resolver.Resolve(c.Host.Host, c.Host.User)
	d := c.Resolved

	desc := d.HostName
	if d.HostName != d.Alias {
		desc = d.Alias + " -> " + d.HostName
	}
	var extra []string
	if d.User != "" {
		extra = append(extra, "user "+d.User)
	}
	if d.Port != "" && d.Port != "22" {
		extra = append(extra, "port "+d.Port)
	}
	if len(extra) > 0 {
		desc += " (" + strings.Join(extra, ", ") + ")"
	}

	if net.ParseIP(d.HostName) != nil {
		return CheckResult{Status: StatusPass, Message: desc}
	}

	lookup := c.LookupHost
	if lookup == nil {
		lookup = net.DefaultResolver.LookupHost
	}
	if _, err := lookup(context.Background(), d.HostName); err != nil {
		return CheckResult{
			Status:     StatusFail,
			Message:    fmt.Sprintf("%s: can't resolve %s", desc, d.HostName),
			Suggestion: "Check the host name, or add a HostName entry to ~/.ssh/config",
		}
	}
	return CheckResult{Status: StatusPass, Message: desc}
}

// KnownHostCheck verifies the destination's host key is already trusted,
// so a non-interactive ssh won't stop at the host key prompt.
type KnownHostCheck struct {
	Destination *DestinationCheck
	Files       []string
}

func (c *KnownHostCheck) Name() string     { return "known_host" }
func (c *KnownHostCheck) Category() string { return c.Destination.Category() }

func (c *KnownHostCheck) Run() CheckResult {
	d := c.Destination.Resolved
	if d.HostName == "" {
		d = c.Destination.Resolver.Resolve(c.Destination.Host.Host, c.Destination.Host.User)
	}

	entry, ok, err := FindKnownHost(c.Files, d.Address())
	if err != nil {
		return CheckResult{
			Status:     StatusWarn,
			Message:    "Can't read known_hosts: " + err.Error(),
			Suggestion: "Check permissions on ~/.ssh",
		}
	}
	if !ok {
		return CheckResult{
			Status:     StatusWarn,
			Message:    fmt.Sprintf("No known_hosts entry for %s", d.Address()),
			Suggestion: fmt.Sprintf("Connect once interactively, or run: ssh-keyscan -p %s %s >> ~/.ssh/known_hosts", portOrDefault(d.Port), d.HostName),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s key in %s:%d", entry.KeyType, entry.File, entry.Line),
	}
}

func portOrDefault(p string) string {
	if p == "" {
		return "22"
	}
	return p
}

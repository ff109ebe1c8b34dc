package doctor

import (
	"bytes"
	"os"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// Destination is where ssh will actually connect for a configured host.
type Destination struct {
	Alias    string
	HostName string
	User     string
	Port     string
}

// Address returns host:port, defaulting the port to 22.
func (d Destination) Address() string {
	port := d.Port
	if port == "" {
		port = "22"
	}
	if strings.Contains(d.HostName, ":") && !strings.HasPrefix(d.HostName, "[") {
		return "[" + d.HostName + "]:" + port
	}
	return d.HostName + ":" + port
}

// Resolver applies an ssh client config to host aliases.
type Resolver struct {
	cfg *ssh_config.Config
}

// NewResolver parses the ssh config at path. A missing file yields a
// Resolver that passes aliases through unchanged.
func NewResolver(path string) (*Resolver, error) {
	content, err := readUntilMatch(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Resolver{}, nil
		}
		return nil, err
	}
	return ParseResolver(content)
}

// ParseResolver parses ssh config content.
func ParseResolver(content []byte) (*Resolver, error) {
	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve returns the destination for alias. user, when set, wins over
// the config's User the same way `ssh -l` does.
func (r *Resolver) Resolve(alias, user string) Destination {
	d := Destination{Alias: alias, HostName: alias, User: user}
	if r == nil || r.cfg == nil {
		return d
	}
	if hostname, _ := r.cfg.Get(alias, "HostName"); hostname != "" {
		d.HostName = hostname
	}
	if d.User == "" {
		if u, _ := r.cfg.Get(alias, "User"); u != "" {
			d.User = u
		}
	}
	if port, _ := r.cfg.Get(alias, "Port"); port != "" {
		d.Port = port
	}
	return d
}

// readUntilMatch returns the config up to the first Match directive, which
// ssh_config can't decode.
func readUntilMatch(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			return []byte(strings.Join(lines[:i], "\n")), nil
		}
	}
	return content, nil
}

package doctor

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // known_hosts hashing is defined as HMAC-SHA1
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// KnownHostsEntry is a known_hosts line that matched an address.
type KnownHostsEntry struct {
	File    string
	Line    int
	KeyType string
}

// FindKnownHost searches files for an entry covering address (host:port).
// Revoked and cert-authority lines are ignored. Missing files are skipped.
func FindKnownHost(files []string, address string) (KnownHostsEntry, bool, error) {
	want := knownhosts.Normalize(address)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return KnownHostsEntry{}, false, err
		}
		if e, ok := scanKnownHosts(data, want); ok {
			e.File = file
			return e, true, nil
		}
	}
	return KnownHostsEntry{}, false, nil
}

func scanKnownHosts(data []byte, want string) (KnownHostsEntry, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		marker, hosts, key, _, _, err := ssh.ParseKnownHosts(line)
		if err != nil || marker != "" {
			continue
		}
		for _, h := range hosts {
			if hostMatches(h, want) {
				return KnownHostsEntry{Line: lineNo, KeyType: key.Type()}, true
			}
		}
	}
	return KnownHostsEntry{}, false
}

// hostMatches compares one known_hosts host field against a normalized
// address. Hashed (|1|salt|hash) and glob patterns are supported; negated
// patterns never match.
func hostMatches(pattern, want string) bool {
	switch {
	case strings.HasPrefix(pattern, "|1|"):
		return hashedMatches(pattern, want)
	case strings.HasPrefix(pattern, "!"):
		return false
	case strings.ContainsAny(pattern, "*?"):
		ok, err := filepath.Match(pattern, want)
		return err == nil && ok
	default:
		return pattern == want
	}
}

func hashedMatches(pattern, want string) bool {
	parts := strings.Split(pattern, "|")
	if len(parts) != 4 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	sum, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(want))
	return hmac.Equal(mac.Sum(nil), sum)
}

// DefaultKnownHostsFiles returns the user's known_hosts files.
func DefaultKnownHostsFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "known_hosts"),
		filepath.Join(home, ".ssh", "known_hosts2"),
	}
}

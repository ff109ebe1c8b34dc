package util

import (
	"sort"
	"strings"
	"sync"
)

// MaskPlaceholder replaces every registered secret in masked output.
const MaskPlaceholder = "******"

// Masker hides registered secrets in strings before they are logged or stored.
// Safe for concurrent use.
type Masker struct {
	mu      sync.RWMutex
	secrets []string
}

// NewMasker returns a Masker seeded with the given secrets.
func NewMasker(secrets ...string) *Masker {
	m := &Masker{}
	for _, s := range secrets {
		m.Add(s)
	}
	return m
}

// Add registers a secret along with the forms it takes once quoted for the
// shell: the body of ShellQuote and the double-quote escaped variants used
// for the remote command argument. Empty strings and duplicates are ignored.
func (m *Masker) Add(secret string) {
	if secret == "" {
		return
	}
	quoted := strings.ReplaceAll(secret, "'", `'\''`)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, form := range []string{secret, quoted, EscapeDoubleQuotes(secret), EscapeDoubleQuotes(quoted)} {
		m.addLocked(form)
	}
	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(m.secrets, func(i, j int) bool {
		return len(m.secrets[i]) > len(m.secrets[j])
	})
}

func (m *Masker) addLocked(secret string) {
	for _, s := range m.secrets {
		if s == secret {
			return
		}
	}
	m.secrets = append(m.secrets, secret)
}

// Mask returns s with every registered secret replaced by MaskPlaceholder.
// A nil Masker returns s unchanged.
func (m *Masker) Mask(s string) string {
	if m == nil {
		return s
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, MaskPlaceholder)
	}
	return s
}

package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	remotetest "github.com/datenknoten/restic-orchestrator/internal/remote/testing"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

const twoHostConfig = `[
  {
    "host": "a.example.com",
    "backupPassword": "s3cret-a",
    "repository": "/mnt/backup/a",
    "files": ["/srv/a"],
    "keepLastSnapshots": 7
  },
  {
    "host": "b.example.com",
    "user": "backup",
    "needsSudo": true,
    "backupPassword": "s3cret-b",
    "repository": "/mnt/backup/b",
    "files": ["/etc", "/home"]
  }
]`

// testEnv is a deps set writing to buffers, with the config file on an
// in-memory filesystem and history in a temp dir.
type testEnv struct {
	deps
	runner    *remotetest.FakeRunner
	out       *bytes.Buffer
	errOut    *bytes.Buffer
	confirmed []string
	opts      Options
}

func newTestEnv(t *testing.T, cfg string) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/restic-orchestrator/config.json", []byte(cfg), 0o600))

	env := &testEnv{
		runner: remotetest.NewFakeRunner(),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	clock := time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC)
	env.deps = deps{
		fs:     fs,
		runner: env.runner,
		stdout: env.out,
		stderr: env.errOut,
		confirm: func(title, description string) (bool, error) {
			env.confirmed = append(env.confirmed, title)
			return true, nil
		},
		now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	env.opts = Options{
		ConfigPath:   "/etc/restic-orchestrator/config.json",
		Level:        logger.LevelInfo,
		OnFail:       lifecycle.OnFailContinue,
		ResticBinary: lifecycle.DefaultResticBinary,
		HistoryPath:  filepath.Join(t.TempDir(), "history.db"),
	}
	return env
}

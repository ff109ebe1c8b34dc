package remote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	remotetest "github.com/datenknoten/restic-orchestrator/internal/remote/testing"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

func TestExecutor_Line(t *testing.T) {
	e := NewExecutor(remotetest.NewFakeRunner(), logger.Noop())

	assert.Equal(t, `ssh "web.example.com" "uptime"`, e.Line("web.example.com", "uptime", ""))
	assert.Equal(t, `ssh -l "root" "web.example.com" "uptime"`, e.Line("web.example.com", "uptime", "root"))
	assert.Equal(t,
		`ssh "web" "/usr/local/bin/restic --repo \"/mnt\" \"backup\""`,
		e.Line("web", `/usr/local/bin/restic --repo "/mnt" "backup"`, ""))
}

func TestExecutor_SSHBinary(t *testing.T) {
	e := NewExecutor(remotetest.NewFakeRunner(), logger.Noop(), WithSSHBinary("/usr/bin/ssh"))
	assert.Equal(t, `/usr/bin/ssh "h" "true"`, e.Line("h", "true", ""))
}

func TestExecutor_Run(t *testing.T) {
	tests := []struct {
		name     string
		response remotetest.Response
		want     Result
	}{
		{
			name:     "success captures output verbatim",
			response: remotetest.Response{Stdout: "foo", Stderr: "bar"},
			want:     Result{ReturnCode: 0, Stdout: "foo", Stderr: "bar"},
		},
		{
			name:     "exit code is kept",
			response: remotetest.Response{Stderr: "Fatal: repository does not exist", Err: &remotetest.ExitError{Code: 2}},
			want:     Result{ReturnCode: 2, Stderr: "Fatal: repository does not exist"},
		},
		{
			name:     "error without a code becomes 1",
			response: remotetest.Response{Err: assert.AnError},
			want:     Result{ReturnCode: 1},
		},
		{
			name:     "signal exit becomes 1",
			response: remotetest.Response{Err: &remotetest.ExitError{Code: -1}},
			want:     Result{ReturnCode: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := remotetest.NewFakeRunner(tt.response)
			e := NewExecutor(runner, logger.Noop())

			res, err := e.Run(context.Background(), "web", "uptime", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
			assert.Equal(t, tt.want.ReturnCode != 0, res.Failed())
			assert.Equal(t, []string{`ssh "web" "uptime"`}, runner.Calls)
		})
	}
}

func TestExecutor_RunSpawnErrorPropagates(t *testing.T) {
	spawn := errors.New(errors.ErrSpawn, "Couldn't start /bin/bash", "")
	runner := remotetest.NewFakeRunner(remotetest.Response{Err: spawn})
	log := logger.NewBufferLogger()
	e := NewExecutor(runner, log)

	_, err := e.Run(context.Background(), "web", "uptime", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSpawn))
	assert.True(t, log.HasLevel("error"))
}

func TestExecutor_DryRunNeverRuns(t *testing.T) {
	hosts := []struct {
		host, cmd, user string
	}{
		{"web", "uptime", ""},
		{"db.example.com", "rm -rf /", "root"},
		{"", "", ""},
	}

	for _, h := range hosts {
		runner := remotetest.NewFakeRunner(remotetest.Response{Stdout: "should not appear", Err: &remotetest.ExitError{Code: 3}})
		log := logger.NewBufferLogger()
		e := NewExecutor(runner, log, WithDryRun(true))

		res, err := e.Run(context.Background(), h.host, h.cmd, h.user)
		require.NoError(t, err)
		assert.Equal(t, Result{ReturnCode: 0, Stdout: "", Stderr: ""}, res)
		assert.Zero(t, runner.CallCount())
		assert.True(t, log.Contains("[dry-run] "+e.Line(h.host, h.cmd, h.user)))
	}
}

func TestExecutor_MasksSecretsInLogs(t *testing.T) {
	runner := remotetest.NewFakeRunner()
	log := logger.NewBufferLogger()
	e := NewExecutor(runner, log, WithMasker(util.NewMasker("hunter2")))

	_, err := e.Run(context.Background(), "web", "echo 'hunter2' >> /tmp/backup-password", "")
	require.NoError(t, err)

	require.Len(t, runner.Calls, 1)
	assert.Contains(t, runner.Calls[0], "hunter2")
	assert.False(t, log.Contains("hunter2"))
	assert.True(t, log.Contains(util.MaskPlaceholder))
}

func TestExecutor_DryRunMasksQuotedPasswords(t *testing.T) {
	tests := []struct {
		password string
		cmd      string
	}{
		{"it's", `echo 'it'\''s' >> /tmp/backup-password`},
		{`ab"cd`, `echo 'ab"cd' >> /tmp/backup-password`},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			log := logger.NewBufferLogger()
			e := NewExecutor(remotetest.NewFakeRunner(), log,
				WithDryRun(true), WithMasker(util.NewMasker(tt.password)))

			_, err := e.Run(context.Background(), "web", tt.cmd, "root")
			require.NoError(t, err)

			assert.True(t, log.Contains(`[dry-run] ssh -l "root" "web" "echo '******' >> /tmp/backup-password"`))
			assert.False(t, log.Contains(tt.password))
			assert.False(t, log.Contains(util.EscapeDoubleQuotes(tt.password)))
		})
	}
}

func TestNewExecutor_NilLogger(t *testing.T) {
	e := NewExecutor(remotetest.NewFakeRunner(), nil)
	assert.NotPanics(t, func() {
		_, _ = e.Run(context.Background(), "web", "true", "")
	})
	assert.False(t, e.DryRun())
}

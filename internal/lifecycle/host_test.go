package lifecycle

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datenknoten/restic-orchestrator/internal/command"
	"github.com/datenknoten/restic-orchestrator/internal/config"
	"github.com/datenknoten/restic-orchestrator/internal/errors"
	"github.com/datenknoten/restic-orchestrator/internal/logger"
	"github.com/datenknoten/restic-orchestrator/internal/remote"
	"github.com/datenknoten/restic-orchestrator/internal/util"
)

type call struct {
	host, cmd, user string
}

// fakeExecutor records calls. respond, when set, decides each result.
type fakeExecutor struct {
	calls   []call
	respond func(c call) (remote.Result, error)
	clock   *testclock.Clock
	tick    time.Duration
}

func (f *fakeExecutor) Run(_ context.Context, host, cmd, user string) (remote.Result, error) {
	c := call{host: host, cmd: cmd, user: user}
	f.calls = append(f.calls, c)
	if f.clock != nil {
		f.clock.Advance(f.tick)
	}
	if f.respond != nil {
		return f.respond(c)
	}
	return remote.Result{}, nil
}

func (f *fakeExecutor) commands() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.cmd
	}
	return out
}

func failOn(substr string, code int) func(call) (remote.Result, error) {
	return func(c call) (remote.Result, error) {
		if strings.Contains(c.cmd, substr) {
			return remote.Result{ReturnCode: code, Stderr: "boom"}, nil
		}
		return remote.Result{}, nil
	}
}

func intPtr(n int) *int { return &n }

func baseHost() config.HostConfig {
	return config.HostConfig{
		Host:           "web.example.com",
		User:           "backup",
		BackupPassword: "s3cr3t",
		Repository:     "/mnt/backup",
		Files:          []string{"/etc"},
	}
}

func stepNames(r *Report) []string {
	names := make([]string, len(r.Steps))
	for i, s := range r.Steps {
		names[i] = s.Name
	}
	return names
}

func TestBackup_CommandOrdering(t *testing.T) {
	cfg := baseHost()
	cfg.Exclude = []string{"*.tmp", "/home/*/.cache"}
	cfg.Files = []string{"/etc", "/home", "/srv"}

	exec := &fakeExecutor{}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
	require.NoError(t, err)

	backup, ok := r.Step(StepBackup)
	require.True(t, ok)

	want := `/usr/local/bin/restic --password-file "/tmp/backup-password" --repo "/mnt/backup"` +
		` --exclude "*.tmp" --exclude "/home/*/.cache" "backup" "/etc" "/home" "/srv"`
	assert.Equal(t, want, backup.Command)

	cmd := backup.Command
	assert.Less(t, strings.Index(cmd, "--password-file"), strings.Index(cmd, `"backup"`))
	assert.Less(t, strings.Index(cmd, "--repo"), strings.Index(cmd, `"backup"`))
	assert.Less(t, strings.Index(cmd, `--exclude "*.tmp"`), strings.Index(cmd, `--exclude "/home/*/.cache"`))
	assert.Less(t, strings.Index(cmd, `--exclude "/home/*/.cache"`), strings.Index(cmd, `"/etc"`))
	assert.Less(t, strings.Index(cmd, `"/etc"`), strings.Index(cmd, `"/home"`))
	assert.Less(t, strings.Index(cmd, `"/home"`), strings.Index(cmd, `"/srv"`))
}

func TestBackup_StepOrder(t *testing.T) {
	tests := []struct {
		name string
		edit func(*config.HostConfig)
		want []string
	}{
		{
			name: "minimal",
			edit: func(*config.HostConfig) {},
			want: []string{
				StepProvision, StepBackup, StepRelease,
				StepProvision, StepPrune, StepRelease,
			},
		},
		{
			name: "everything",
			edit: func(c *config.HostConfig) {
				c.PreCommand = "systemctl stop app"
				c.PostCommand = "systemctl start app"
				c.KeepLastSnapshots = intPtr(5)
			},
			want: []string{
				StepPreHook,
				StepProvision, StepBackup, StepRelease,
				StepProvision, StepForget, StepRelease,
				StepProvision, StepPrune, StepRelease,
				StepPostHook,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseHost()
			tt.edit(&cfg)

			exec := &fakeExecutor{}
			r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, stepNames(r))
			assert.Len(t, exec.calls, len(tt.want))
			assert.False(t, r.Failed())
			assert.Equal(t, ModeBackup, r.Mode)

			for _, c := range exec.calls {
				assert.Equal(t, "web.example.com", c.host)
				assert.Equal(t, "backup", c.user)
			}
		})
	}
}

func TestBackup_Forget(t *testing.T) {
	t.Run("unset issues no retention command", func(t *testing.T) {
		exec := &fakeExecutor{}
		_, err := NewHost(baseHost(), exec, logger.Noop(), Options{}).Backup(context.Background())
		require.NoError(t, err)

		for _, cmd := range exec.commands() {
			assert.NotContains(t, cmd, "forget")
			assert.NotContains(t, cmd, "--keep-last")
		}
	})

	t.Run("set issues exactly one", func(t *testing.T) {
		cfg := baseHost()
		cfg.KeepLastSnapshots = intPtr(5)

		exec := &fakeExecutor{}
		_, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
		require.NoError(t, err)

		var matches []string
		for _, cmd := range exec.commands() {
			if strings.Contains(cmd, `--keep-last "5"`) {
				matches = append(matches, cmd)
			}
		}
		require.Len(t, matches, 1)
		assert.Equal(t,
			`/usr/local/bin/restic --password-file "/tmp/backup-password" --repo "/mnt/backup" --keep-last "5" "forget"`,
			matches[0])
	})

	t.Run("zero is still a retention setting", func(t *testing.T) {
		cfg := baseHost()
		cfg.KeepLastSnapshots = intPtr(0)

		exec := &fakeExecutor{}
		r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
		require.NoError(t, err)
		_, ok := r.Step(StepForget)
		assert.True(t, ok)
	})
}

func TestBackup_CredentialCommands(t *testing.T) {
	cfg := baseHost()
	cfg.BackupPassword = "it's secret"

	exec := &fakeExecutor{}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{Masker: util.NewMasker(cfg.BackupPassword)}).
		Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t,
		`/usr/bin/install -m 600 /dev/null /tmp/backup-password && echo 'it'\''s secret' >> /tmp/backup-password`,
		exec.calls[0].cmd)
	assert.Equal(t, "rm /tmp/backup-password", exec.calls[2].cmd)

	prov, _ := r.Step(StepProvision)
	assert.NotContains(t, prov.Command, "secret")
	assert.Contains(t, prov.Command, util.MaskPlaceholder)
}

func TestBackup_QuotedPasswordsMasked(t *testing.T) {
	for _, pw := range []string{"it's", `ab"cd`} {
		t.Run(pw, func(t *testing.T) {
			cfg := baseHost()
			cfg.BackupPassword = pw
			log := logger.NewBufferLogger()

			exec := &fakeExecutor{}
			r, err := NewHost(cfg, exec, log, Options{Masker: util.NewMasker(pw)}).
				Backup(context.Background())
			require.NoError(t, err)

			prov, _ := r.Step(StepProvision)
			assert.Equal(t,
				"/usr/bin/install -m 600 /dev/null /tmp/backup-password && echo '******' >> /tmp/backup-password",
				prov.Command)
			assert.False(t, log.Contains(pw))
		})
	}
}

func TestBackup_EnvAndSudoOnEveryResticCommand(t *testing.T) {
	cfg := baseHost()
	cfg.NeedsSudo = true
	cfg.KeepLastSnapshots = intPtr(3)
	cfg.Env = command.Env{{Key: "AWS_ACCESS_KEY_ID", Value: "id"}, {Key: "AWS_SECRET_ACCESS_KEY", Value: "key"}}

	exec := &fakeExecutor{}
	_, err := NewHost(cfg, exec, logger.Noop(), Options{ResticBinary: "/opt/restic"}).Backup(context.Background())
	require.NoError(t, err)

	var restic int
	for _, cmd := range exec.commands() {
		if !strings.Contains(cmd, "/opt/restic") {
			continue
		}
		restic++
		assert.True(t, strings.HasPrefix(cmd,
			`AWS_ACCESS_KEY_ID="id" AWS_SECRET_ACCESS_KEY="key" /usr/bin/sudo --preserve-env /opt/restic `), cmd)
	}
	assert.Equal(t, 3, restic)
}

func TestBackup_ContinuePolicyRunsEverything(t *testing.T) {
	cfg := baseHost()
	cfg.PostCommand = "systemctl start app"

	exec := &fakeExecutor{respond: failOn(`"backup"`, 1)}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		StepProvision, StepBackup, StepRelease,
		StepProvision, StepPrune, StepRelease,
		StepPostHook,
	}, stepNames(r))
	assert.True(t, r.Failed())
	assert.False(t, r.Aborted)
	assert.Equal(t, 1, r.FailedStep)
	assert.Equal(t, 1, r.FailureCount())
}

func TestBackup_StopPolicy(t *testing.T) {
	cfg := baseHost()
	cfg.KeepLastSnapshots = intPtr(5)
	cfg.PostCommand = "systemctl start app"

	exec := &fakeExecutor{respond: failOn(`"backup"`, 3)}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{OnFail: OnFailStop}).Backup(context.Background())
	require.NoError(t, err)

	assert.True(t, r.Aborted)
	assert.Equal(t, []string{
		"/usr/bin/install -m 600 /dev/null /tmp/backup-password && echo 's3cr3t' >> /tmp/backup-password",
		`/usr/local/bin/restic --password-file "/tmp/backup-password" --repo "/mnt/backup" "backup" "/etc"`,
		"rm /tmp/backup-password",
	}, exec.commands())

	var skipped []string
	for _, s := range r.Steps {
		if s.Skipped {
			skipped = append(skipped, s.Name)
		}
	}
	assert.Equal(t, []string{
		StepProvision, StepForget, StepRelease,
		StepProvision, StepPrune, StepRelease,
		StepPostHook,
	}, skipped)
}

func TestBackup_StopPolicyReleasesAfterFailedProvision(t *testing.T) {
	exec := &fakeExecutor{respond: failOn("/usr/bin/install", 1)}
	r, err := NewHost(baseHost(), exec, logger.Noop(), Options{OnFail: OnFailStop}).Backup(context.Background())
	require.NoError(t, err)

	assert.Len(t, exec.calls, 2)
	assert.Equal(t, "rm /tmp/backup-password", exec.calls[1].cmd)
	assert.Equal(t, 0, r.FailedStep)

	backup, ok := r.Step(StepBackup)
	require.True(t, ok)
	assert.True(t, backup.Skipped)
}

func TestBackup_ReleaseOnSpawnError(t *testing.T) {
	spawn := errors.New(errors.ErrSpawn, "Couldn't start /bin/bash", "")
	exec := &fakeExecutor{respond: func(c call) (remote.Result, error) {
		if strings.Contains(c.cmd, `"backup"`) {
			return remote.Result{}, spawn
		}
		return remote.Result{}, nil
	}}

	cfg := baseHost()
	cfg.PostCommand = "systemctl start app"
	r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(context.Background())
	require.ErrorIs(t, err, spawn)
	require.NotNil(t, r)
	assert.Equal(t, spawn, r.Err)
	assert.True(t, r.Failed())

	assert.Equal(t, "rm /tmp/backup-password", exec.calls[len(exec.calls)-1].cmd)
	for _, c := range exec.commands() {
		assert.NotContains(t, c, "prune")
		assert.NotEqual(t, "systemctl start app", c)
	}
}

func TestBackup_ReleaseOnPanic(t *testing.T) {
	exec := &fakeExecutor{respond: func(c call) (remote.Result, error) {
		if strings.Contains(c.cmd, `"backup"`) {
			panic("executor exploded")
		}
		return remote.Result{}, nil
	}}

	assert.PanicsWithValue(t, "executor exploded", func() {
		_, _ = NewHost(baseHost(), exec, logger.Noop(), Options{}).Backup(context.Background())
	})
	require.Len(t, exec.calls, 3)
	assert.Equal(t, "rm /tmp/backup-password", exec.calls[2].cmd)
}

func TestBackup_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := baseHost()
	cfg.PreCommand = "true"

	exec := &fakeExecutor{}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Backup(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, exec.calls)
	assert.Empty(t, r.Steps)
}

func TestBackup_CancelledMidRunStillReleases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &fakeExecutor{}
	exec.respond = func(c call) (remote.Result, error) {
		if strings.HasPrefix(c.cmd, InstallBinary) {
			cancel()
		}
		return remote.Result{}, nil
	}

	_, err := NewHost(baseHost(), exec, logger.Noop(), Options{}).Backup(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{
		"/usr/bin/install -m 600 /dev/null /tmp/backup-password && echo 's3cr3t' >> /tmp/backup-password",
		"rm /tmp/backup-password",
	}, exec.commands())
}

func TestInit(t *testing.T) {
	cfg := baseHost()
	cfg.NeedsSudo = true

	exec := &fakeExecutor{}
	r, err := NewHost(cfg, exec, logger.Noop(), Options{}).Init(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeInit, r.Mode)
	assert.Equal(t, []string{StepProvision, StepInit, StepRelease}, stepNames(r))
	assert.Equal(t,
		`/usr/bin/sudo --preserve-env /usr/local/bin/restic --password-file "/tmp/backup-password" --repo "/mnt/backup" "init"`,
		exec.calls[1].cmd)
}

func TestInit_FailureStillReleases(t *testing.T) {
	exec := &fakeExecutor{respond: failOn(`"init"`, 1)}
	r, err := NewHost(baseHost(), exec, logger.Noop(), Options{OnFail: OnFailStop}).Init(context.Background())
	require.NoError(t, err)

	assert.True(t, r.Failed())
	assert.Equal(t, []string{StepProvision, StepInit, StepRelease}, stepNames(r))
	release, _ := r.Step(StepRelease)
	assert.False(t, release.Skipped)
}

func TestBackup_Durations(t *testing.T) {
	clk := testclock.NewClock(time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC))
	exec := &fakeExecutor{clock: clk, tick: 2 * time.Second}

	r, err := NewHost(baseHost(), exec, logger.Noop(), Options{Clock: clk}).Backup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC), r.Started)
	for _, s := range r.Steps {
		assert.Equal(t, 2*time.Second, s.Duration, s.Name)
	}
	assert.Equal(t, 12*time.Second, r.Duration)
}

func TestBackup_Logging(t *testing.T) {
	log := logger.NewBufferLogger()
	exec := &fakeExecutor{respond: failOn(`"prune"`, 1)}

	_, err := NewHost(baseHost(), exec, log, Options{}).Backup(context.Background())
	require.NoError(t, err)

	assert.True(t, log.Contains("web.example.com: starting backup"))
	assert.True(t, log.Contains("prune exited 1"))
	assert.True(t, log.Contains("finished with 1 failed step"))
}

func TestParseOnFail(t *testing.T) {
	tests := []struct {
		in      string
		want    OnFail
		wantErr bool
	}{
		{"", OnFailContinue, false},
		{"continue", OnFailContinue, false},
		{"stop", OnFailStop, false},
		{"abort", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOnFail(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

type stepRecorder struct {
	steps []StepInfo
}

func (s *stepRecorder) Run(ctx context.Context, _, _, _ string) (remote.Result, error) {
	info, ok := StepFromContext(ctx)
	if ok {
		s.steps = append(s.steps, info)
	}
	return remote.Result{}, nil
}

func TestStepFromContext(t *testing.T) {
	rec := &stepRecorder{}
	_, err := NewHost(baseHost(), rec, logger.Noop(), Options{}).Init(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []StepInfo{
		{Host: "web.example.com", Name: StepProvision},
		{Host: "web.example.com", Name: StepInit},
		{Host: "web.example.com", Name: StepRelease},
	}, rec.steps)

	_, ok := StepFromContext(context.Background())
	assert.False(t, ok)
}

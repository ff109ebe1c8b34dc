package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/juju/loggo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure_Levels(t *testing.T) {
	tests := []struct {
		name         string
		level        Level
		wantDebug    bool
		wantVerbose  bool
		wantInfoLine bool
	}{
		{name: "info hides verbose and debug", level: LevelInfo, wantInfoLine: true},
		{name: "verbose shows verbose only", level: LevelVerbose, wantVerbose: true, wantInfoLine: true},
		{name: "debug shows everything", level: LevelDebug, wantDebug: true, wantVerbose: true, wantInfoLine: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(loggo.ResetLogging)

			var buf bytes.Buffer
			require.NoError(t, Configure(&buf, tt.level))

			l := New("test")
			l.Debug("debug %s", "line")
			l.Verbose("verbose %s", "line")
			l.Info("info %s", "line")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug line"))
			assert.Equal(t, tt.wantVerbose, strings.Contains(out, "verbose line"))
			assert.Equal(t, tt.wantInfoLine, strings.Contains(out, "info line"))
		})
	}
}

func TestConfigure_ModulePrefix(t *testing.T) {
	t.Cleanup(loggo.ResetLogging)

	var buf bytes.Buffer
	require.NoError(t, Configure(&buf, LevelInfo))

	New("remote").Warn("careful")
	New("").Error("root failure")

	out := buf.String()
	assert.Contains(t, out, "[remote] careful")
	assert.Contains(t, out, "root failure")
	assert.NotContains(t, out, "[] root failure")
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "verbose", LevelVerbose.String())
	assert.Equal(t, "debug", LevelDebug.String())
}

func TestNoop(t *testing.T) {
	l := Noop()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.Verbose("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
	})
}

func TestBufferLogger(t *testing.T) {
	l := NewBufferLogger()

	l.Verbose("running %d hosts", 2)
	l.Error("host %s failed", "web")

	require.Len(t, l.Messages, 2)
	assert.Equal(t, LogMessage{Level: "verbose", Message: "running 2 hosts"}, l.Messages[0])
	assert.True(t, l.HasLevel("error"))
	assert.False(t, l.HasLevel("debug"))
	assert.True(t, l.Contains("web failed"))

	l.Clear()
	assert.Empty(t, l.Messages)
}

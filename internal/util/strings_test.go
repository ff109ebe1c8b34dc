package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinOrNone(t *testing.T) {
	assert.Equal(t, "(none)", JoinOrNone(nil))
	assert.Equal(t, "(none)", JoinOrNone([]string{}))
	assert.Equal(t, "/etc", JoinOrNone([]string{"/etc"}))
	assert.Equal(t, "/etc, /home, /srv", JoinOrNone([]string{"/etc", "/home", "/srv"}))
}

func TestJoinOrDefault(t *testing.T) {
	assert.Equal(t, "-", JoinOrDefault(nil, "-"))
	assert.Equal(t, "a, b", JoinOrDefault([]string{"a", "b"}, "-"))
}

func TestPluralize(t *testing.T) {
	tests := []struct {
		count int
		want  string
	}{
		{0, "hosts"},
		{1, "host"},
		{2, "hosts"},
		{-1, "hosts"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Pluralize(tt.count, "host", "hosts"), "count=%d", tt.count)
	}
}

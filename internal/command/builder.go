// Package command renders structured command descriptions into single
// shell command lines.
//
// Quoting is deliberately minimal: double quotes inside values and
// arguments become \" and nothing else is touched. Backslashes, $,
// backticks and ; pass through, so the output is only safe for trusted,
// operator-authored input.
package command

import (
	"strings"

	"github.com/datenknoten/restic-orchestrator/internal/util"
)

// SudoPrefix elevates a command while keeping the caller's environment.
// The path is fixed and never resolved through PATH.
const SudoPrefix = "/usr/bin/sudo --preserve-env"

// Option is a single flag. An empty Value renders as a bare flag.
type Option struct {
	Name         string
	Value        string
	UseEqualSign bool
}

// Builder holds the parts of one command line. It is filled in by the caller
// and rendered once; Render does not mutate it.
type Builder struct {
	Command   string
	HasSudo   bool
	Env       Env
	Options   []Option
	Arguments []string
}

// New returns a Builder for the given command.
func New(cmd string) *Builder {
	return &Builder{Command: cmd}
}

// Flag appends a value-less option.
func (b *Builder) Flag(name string) *Builder {
	b.Options = append(b.Options, Option{Name: name})
	return b
}

// Opt appends an option rendered as `name "value"`.
func (b *Builder) Opt(name, value string) *Builder {
	b.Options = append(b.Options, Option{Name: name, Value: value})
	return b
}

// OptEq appends an option rendered as `name="value"`.
func (b *Builder) OptEq(name, value string) *Builder {
	b.Options = append(b.Options, Option{Name: name, Value: value, UseEqualSign: true})
	return b
}

// Arg appends positional arguments.
func (b *Builder) Arg(args ...string) *Builder {
	b.Arguments = append(b.Arguments, args...)
	return b
}

// Sudo sets whether the command runs elevated.
func (b *Builder) Sudo(on bool) *Builder {
	b.HasSudo = on
	return b
}

// WithEnv merges env into the builder's environment.
func (b *Builder) WithEnv(env Env) *Builder {
	b.Env = b.Env.Merge(env)
	return b
}

// Render returns the command line.
func (b *Builder) Render() string {
	var sb strings.Builder

	for _, v := range b.Env {
		sb.WriteString(v.Key)
		sb.WriteString(`="`)
		sb.WriteString(util.EscapeDoubleQuotes(v.Value))
		sb.WriteString(`" `)
	}

	if b.HasSudo {
		sb.WriteString(SudoPrefix)
		sb.WriteByte(' ')
	}

	sb.WriteString(b.Command)

	for _, o := range b.Options {
		sb.WriteByte(' ')
		sb.WriteString(o.Name)
		if o.Value == "" {
			continue
		}
		if o.UseEqualSign {
			sb.WriteByte('=')
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(quote(o.Value))
	}

	for _, a := range b.Arguments {
		sb.WriteByte(' ')
		sb.WriteString(quote(a))
	}

	return sb.String()
}

// String implements fmt.Stringer.
func (b *Builder) String() string {
	return b.Render()
}

func quote(s string) string {
	return `"` + util.EscapeDoubleQuotes(s) + `"`
}

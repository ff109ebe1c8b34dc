// Package testing provides fakes for the remote package.
package testing

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ExitError is a failure carrying an exit code, as a finished process
// would report it.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode implements remote.ExitCoder.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Response is a canned reply for lines containing Match.
type Response struct {
	Match  string
	Stdout string
	Stderr string
	Err    error
}

// FakeRunner records every line it is asked to run and answers from the
// first Response whose Match is a substring of the line. Unmatched lines
// succeed with empty output.
type FakeRunner struct {
	mu        sync.Mutex
	Calls     []string
	Responses []Response
}

// NewFakeRunner returns a FakeRunner with the given responses.
func NewFakeRunner(responses ...Response) *FakeRunner {
	return &FakeRunner{Responses: responses}
}

// On adds a response and returns the runner for chaining.
func (f *FakeRunner) On(match string, r Response) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Match = match
	f.Responses = append(f.Responses, r)
	return f
}

// FailWith makes lines containing match exit with code.
func (f *FakeRunner) FailWith(match string, code int) *FakeRunner {
	return f.On(match, Response{Err: &ExitError{Code: code}})
}

// Run implements remote.Runner.
func (f *FakeRunner) Run(ctx context.Context, line string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, line)
	for _, r := range f.Responses {
		if strings.Contains(line, r.Match) {
			return r.Stdout, r.Stderr, r.Err
		}
	}
	return "", "", nil
}

// CallCount returns how many lines were run.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

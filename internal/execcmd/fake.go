package execcmd

import (
	"context"
	"strings"
	"sync"
)

// FakeResult is a canned response for one command invocation
type FakeResult struct {
	Stdout string
	Stderr string
	Err    error
}

// FakeCall records one invocation made against a FakeExecutor
type FakeCall struct {
	Name string
	Args []string
}

// FakeExecutor replays canned results keyed by command prefix. Used by
// driver tests in place of the system executor.
type FakeExecutor struct {
	mu      sync.Mutex
	results map[string][]FakeResult
	calls   []FakeCall

	// Default is returned when no scripted result matches.
	Default FakeResult
}

// NewFakeExecutor creates an empty fake
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{
		results: make(map[string][]FakeResult),
	}
}

// Script queues a result for invocations whose "name args..." string
// starts with prefix. Queued results for the same prefix are consumed
// in order, the last one repeating.
func (f *FakeExecutor) Script(prefix string, result FakeResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[prefix] = append(f.results[prefix], result)
}

// Calls returns a copy of every invocation seen so far
func (f *FakeExecutor) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of invocations whose command line starts
// with prefix.
func (f *FakeExecutor) CallCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		line := c.Name + " " + strings.Join(c.Args, " ")
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}

func (f *FakeExecutor) Run(_ context.Context, name string, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, FakeCall{Name: name, Args: args})

	line := name + " " + strings.Join(args, " ")
	var best string
	for prefix := range f.results {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return f.Default.Stdout, f.Default.Stderr, f.Default.Err
	}

	queue := f.results[best]
	result := queue[0]
	if len(queue) > 1 {
		f.results[best] = queue[1:]
	}
	return result.Stdout, result.Stderr, result.Err
}

package runner

import (
	"context"
	"os"
	"sync"
)

// Call records one FakeRunner invocation.
type Call struct {
	Command string
	Script  string
	// Body is the script file's content at the time of the call.
	Body string
}

// FakeRunner returns canned output instead of spawning processes.
type FakeRunner struct {
	// Respond computes the output for a call. Nil echoes the script body,
	// which behaves like a "cat" interpreter.
	Respond func(call Call) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// Run reads the script, records the call and returns Respond's result.
func (f *FakeRunner) Run(_ context.Context, command, scriptPath string) ([]byte, error) {
	body, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, err
	}

	call := Call{Command: command, Script: scriptPath, Body: string(body)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	if f.Respond == nil {
		return body, nil
	}
	return f.Respond(call)
}

// Calls returns the recorded invocations in order.
func (f *FakeRunner) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

var _ Runner = (*FakeRunner)(nil)

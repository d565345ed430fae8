// Package fakerun provides a scripted tools.CommandRunner for stage tests.
package fakerun

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/wheelctl/internal/tools"
)

// ErrExit is returned for scripted non-zero exits.
var ErrExit = errors.New("fakerun: exit status")

// Handler scripts the outcome of one command. Returning a non-zero exit code
// without an error makes the runner return ErrExit.
type Handler func(cmd tools.Command) (tools.Result, error)

// Runner records every command and dispatches it to Handle.
type Runner struct {
	mu       sync.Mutex
	Commands []tools.Command
	Handle   Handler
}

func (r *Runner) Run(_ context.Context, cmd tools.Command) (tools.Result, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	handle := r.Handle
	r.mu.Unlock()

	if handle == nil {
		return tools.Result{}, nil
	}
	res, err := handle(cmd)
	if err == nil && res.ExitCode != 0 {
		err = ErrExit
	}
	if len(res.Stdout) > 0 && cmd.Stdout != nil {
		_, _ = cmd.Stdout.Write(res.Stdout)
	}
	if len(res.Stderr) > 0 && cmd.Stderr != nil {
		_, _ = cmd.Stderr.Write(res.Stderr)
	}
	return res, err
}

// Lines renders recorded commands as space-joined strings.
func (r *Runner) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Commands))
	for _, cmd := range r.Commands {
		out = append(out, cmd.String())
	}
	return out
}

// Matching returns recorded command lines containing every fragment.
func (r *Runner) Matching(fragments ...string) []string {
	var out []string
	for _, line := range r.Lines() {
		ok := true
		for _, f := range fragments {
			if !strings.Contains(line, f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, line)
		}
	}
	return out
}

// ArgAfter returns the argument following flag, or "".
func ArgAfter(cmd tools.Command, flag string) string {
	for i := 0; i < len(cmd.Args)-1; i++ {
		if cmd.Args[i] == flag {
			return cmd.Args[i+1]
		}
	}
	return ""
}

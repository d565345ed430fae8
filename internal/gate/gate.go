package gate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Gate pauses the workflow before the next stage.
type Gate interface {
	Wait(ctx context.Context, next string) error
}

// Auto never blocks.
type Auto struct{}

func (Auto) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}

// Prompt asks the operator to press Enter before each stage. A single
// goroutine owns the reader, so Wait may be called again after a canceled
// wait; a line typed meanwhile satisfies the next Wait.
type Prompt struct {
	in    *bufio.Reader
	out   io.Writer
	start sync.Once
	lines chan error
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out, lines: make(chan error)}
}

// readLoop sends one value per line and closes lines at EOF.
func (p *Prompt) readLoop() {
	defer close(p.lines)
	for {
		_, err := p.in.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return
		}
		p.lines <- err
		if err != nil {
			return
		}
	}
}

// Wait returns once a line is read, stdin is closed, or ctx is done.
func (p *Prompt) Wait(ctx context.Context, next string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.start.Do(func() { go p.readLoop() })
	fmt.Fprintf(p.out, "press Enter to continue with %s (Ctrl+C to abort) ", next)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return ctx.Err()
	case err, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("gate: read confirmation: %w", err)
		}
		return nil
	}
}

// ForTerminal picks Prompt when confirm is set and in is an interactive
// terminal, Auto otherwise.
func ForTerminal(confirm bool, in *os.File, out io.Writer) Gate {
	if !confirm || in == nil || !term.IsTerminal(int(in.Fd())) {
		return Auto{}
	}
	return NewPrompt(in, out)
}

package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// StaticApprover answers every write the same way.
type StaticApprover bool

func (a StaticApprover) ApproveWrite(context.Context, string) (bool, error) {
	return bool(a), nil
}

// ErrNoTerminal is returned when approval is required but stdin is not a terminal.
var ErrNoTerminal = errors.New("write approval requires an interactive terminal")

// TerminalApprover asks the operator on the controlling terminal. Prompts are
// serialized; anything but "y" or "yes" rejects.
type TerminalApprover struct {
	In  *os.File
	Out io.Writer

	mu     sync.Mutex
	reader *bufio.Reader
}

// NewTerminalApprover prompts on stdin/stderr.
func NewTerminalApprover() *TerminalApprover {
	return &TerminalApprover{In: os.Stdin, Out: os.Stderr}
}

// Interactive reports whether the input is a terminal.
func (a *TerminalApprover) Interactive() bool {
	return a.In != nil && term.IsTerminal(int(a.In.Fd()))
}

func (a *TerminalApprover) ApproveWrite(ctx context.Context, path string) (bool, error) {
	if !a.Interactive() {
		return false, ErrNoTerminal
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.reader == nil {
		a.reader = bufio.NewReader(a.In)
	}
	return ask(ctx, a.reader, a.Out, path)
}

func ask(ctx context.Context, r *bufio.Reader, w io.Writer, path string) (bool, error) {
	_, _ = fmt.Fprintf(w, "MCP Bridge wants to write to %s. Approve? [y/N] ", path)
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- answer{line, err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

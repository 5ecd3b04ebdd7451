// Package host talks to the IDE: its command surface and the operator who
// approves writes.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Commands is the IDE command surface.
type Commands interface {
	// Execute runs a command and returns its raw result.
	Execute(ctx context.Context, command string, args ...any) (json.RawMessage, error)
	// List returns the registered command ids.
	List(ctx context.Context) ([]string, error)
}

// ErrUnavailable is returned when no command surface is configured or it
// cannot be reached.
var ErrUnavailable = errors.New("host command surface unavailable")

// CommandError is a failure reported by the host for a command it received.
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// IsCommandError reports whether err was raised by the host itself rather
// than by the transport.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// Unavailable rejects every command.
type Unavailable struct{}

func (Unavailable) Execute(_ context.Context, command string, _ ...any) (json.RawMessage, error) {
	return nil, fmt.Errorf("%s: %w", command, ErrUnavailable)
}

func (Unavailable) List(context.Context) ([]string, error) {
	return nil, ErrUnavailable
}

// DiagnosticsCommand returns the IDE diagnostics snapshot.
const DiagnosticsCommand = "antigravity.getDiagnostics"

// Package forward delivers prompts to the IDE agent. The IDE command surface
// is unstable, so delivery tries an ordered list of strategies and remembers
// the first one that works.
package forward

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/host"
)

// Strategy is one way of handing a prompt to the agent.
type Strategy struct {
	Name    string
	Command string
	// Args builds the command arguments. modelID may be empty.
	Args func(prompt, modelID string) []any
}

// DefaultStrategies are tried in order until one succeeds.
var DefaultStrategies = []Strategy{
	{
		Name:    "chat-message",
		Command: "antigravity.sendTextToChat",
		Args: func(prompt, modelID string) []any {
			p := map[string]any{"message": prompt}
			if modelID != "" {
				p["modelId"] = modelID
			}
			return []any{p}
		},
	},
	{
		Name:    "chat-base64",
		Command: "antigravity.sendTextToChat",
		Args: func(prompt, modelID string) []any {
			p := EncodePayload(prompt)
			if modelID != "" {
				p["modelId"] = modelID
			}
			return []any{p}
		},
	},
	{
		Name:    "agent-panel",
		Command: "antigravity.sendPromptToAgentPanel",
		Args: func(prompt, _ string) []any {
			return []any{map[string]any{"action": "sendPrompt", "text": prompt}}
		},
	},
}

// EncodePayload returns the base64 request form understood by the chat command.
func EncodePayload(prompt string) map[string]any {
	return map[string]any{
		"prompt":       prompt,
		"promptBase64": base64.StdEncoding.EncodeToString([]byte(prompt)),
		"encoding":     "base64",
	}
}

// Attempt records one command invocation.
type Attempt struct {
	Command string
	Args    []any
	Err     error
}

func (a Attempt) String() string {
	args, _ := json.Marshal(a.Args)
	if a.Err != nil {
		return fmt.Sprintf("ng:%s(%s):%s", a.Command, args, a.Err)
	}
	return fmt.Sprintf("ok:%s(%s)", a.Command, args)
}

// AttemptLog is the ordered record of one delivery or selection.
type AttemptLog []Attempt

func (l AttemptLog) String() string {
	if len(l) == 0 {
		return "<none>"
	}
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = a.String()
	}
	return strings.Join(parts, " | ")
}

// ErrNoStrategy is returned when the strategy list is empty.
var ErrNoStrategy = errors.New("no dispatch strategy configured")

// Forwarder sends prompts through the first working strategy.
type Forwarder struct {
	cmds       host.Commands
	strategies []Strategy

	mu        sync.Mutex
	preferred int
}

// New returns a Forwarder over cmds. A nil strategy list uses DefaultStrategies.
func New(cmds host.Commands, strategies []Strategy) *Forwarder {
	if strategies == nil {
		strategies = DefaultStrategies
	}
	return &Forwarder{cmds: cmds, strategies: strategies, preferred: -1}
}

// Preferred returns the name of the cached strategy, if any.
func (f *Forwarder) Preferred() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.preferred < 0 {
		return ""
	}
	return f.strategies[f.preferred].Name
}

func (f *Forwarder) order() []int {
	f.mu.Lock()
	pref := f.preferred
	f.mu.Unlock()
	idx := make([]int, 0, len(f.strategies))
	if pref >= 0 {
		idx = append(idx, pref)
	}
	for i := range f.strategies {
		if i != pref {
			idx = append(idx, i)
		}
	}
	return idx
}

// Forward hands prompt to the agent. The returned log lists every attempt;
// the error wraps the last failure when no strategy succeeded.
func (f *Forwarder) Forward(ctx context.Context, prompt, modelID string) (AttemptLog, error) {
	if len(f.strategies) == 0 {
		return nil, ErrNoStrategy
	}
	var log AttemptLog
	var last error
	for _, i := range f.order() {
		s := f.strategies[i]
		args := s.Args(prompt, modelID)
		_, err := f.cmds.Execute(ctx, s.Command, args...)
		log = append(log, Attempt{Command: s.Command, Args: args, Err: err})
		if err == nil {
			f.mu.Lock()
			f.preferred = i
			f.mu.Unlock()
			logx.Log.Debug().Str("strategy", s.Name).Int("attempts", len(log)).Msg("prompt forwarded")
			return log, nil
		}
		last = err
		if ctx.Err() != nil {
			break
		}
	}
	return log, last
}

package forward

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/host"
)

// MapModelID translates a public model name to the IDE's internal id.
// Unknown names pass through.
func MapModelID(model string) string {
	switch strings.ToLower(model) {
	case "gemini-3.1-pro-high", "gemini-3-pro":
		return "RIFTRUNNER_THINKING_HIGH"
	case "gemini-3.1-pro":
		return "RIFTRUNNER_THINKING_LOW"
	case "gemini-3.1-flash", "gemini-3-flash":
		return "INFINITYJET"
	case "gemini-2.5-pro":
		return "GOOGLE_GEMINI_2_5_PRO"
	case "gemini-2.5-flash":
		return "GOOGLE_GEMINI_2_5_FLASH"
	default:
		return model
	}
}

// PreferredModelCommands are tried first when they are registered.
var PreferredModelCommands = []string{
	"antigravity.setModel",
	"antigravity.selectModel",
	"antigravity.changeModel",
	"antigravity.agentPanel.setModel",
	"antigravity.agentPanel.selectModel",
	"agCockpit.setModel",
	"agCockpit.selectModel",
	"agCockpit.refreshModelCache",
}

var (
	modelOwnerRe = regexp.MustCompile(`(?i)(antigravity|agCockpit)`)
	modelWordRe  = regexp.MustCompile(`(?i)model`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]`)
)

func modelArgShapes(id string) [][]any {
	return [][]any{
		{id},
		{map[string]any{"model": id}},
		{map[string]any{"modelId": id}},
		{map[string]any{"action": "setModel", "model": id}},
		{map[string]any{"action": "setModel", "modelId": id}},
	}
}

// Selection is the outcome of a model selection attempt.
type Selection struct {
	Requested string
	// Applied is set once some command accepted the model.
	Applied bool
	// Verified is set when the diagnostics snapshot reports the model.
	Verified bool
	// Selected is the model believed active, empty when nothing applied.
	Selected         string
	DiagnosticsModel string
	Attempts         AttemptLog
}

// ModelSelector switches the IDE agent to a model before a dispatch.
type ModelSelector struct {
	cmds host.Commands
}

// NewModelSelector returns a selector over cmds.
func NewModelSelector(cmds host.Commands) *ModelSelector {
	return &ModelSelector{cmds: cmds}
}

// candidates returns the registered preferred commands followed by any other
// registered command that looks model related.
func candidates(registered []string) []string {
	have := make(map[string]bool, len(registered))
	for _, c := range registered {
		have[c] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, c := range PreferredModelCommands {
		if have[c] && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range registered {
		if modelOwnerRe.MatchString(c) && modelWordRe.MatchString(c) && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// Select tries every candidate command with every argument shape. After a
// command succeeds the diagnostics snapshot is consulted; selection stops at
// the first verified selection. Failures are recorded, never returned.
func (s *ModelSelector) Select(ctx context.Context, modelID string) Selection {
	sel := Selection{Requested: modelID}
	logx.Log.Info().Str("model", modelID).Msg("enforcing internal model selection")

	registered, err := s.cmds.List(ctx)
	if err != nil {
		logx.Log.Debug().Err(err).Msg("cannot list host commands")
	}
	for _, cmd := range candidates(registered) {
		if !s.try(ctx, cmd, modelID, &sel.Attempts) {
			continue
		}
		sel.Applied = true
		actual, available := s.diagnosticsModel(ctx)
		if actual != "" {
			sel.DiagnosticsModel = actual
		}
		matched := actual != "" && EquivalentModelName(actual, modelID)
		logx.Log.Info().Str("command", cmd).Str("requested", modelID).Str("diagnostics", actual).
			Bool("diagnostics_available", available).Bool("matched", matched).Msg("model verification")
		if matched {
			sel.Verified = true
			sel.Selected = modelID
			return sel
		}
		if ctx.Err() != nil {
			break
		}
	}
	if sel.Applied {
		sel.Selected = modelID
		logx.Log.Warn().Str("model", modelID).Str("diagnostics", sel.DiagnosticsModel).Str("attempts", sel.Attempts.String()).
			Msg("model command applied but verification is not conclusive")
	} else {
		logx.Log.Warn().Str("model", modelID).Str("attempts", sel.Attempts.String()).Msg("no internal model command applied")
	}
	return sel
}

func (s *ModelSelector) try(ctx context.Context, cmd, modelID string, log *AttemptLog) bool {
	for _, args := range modelArgShapes(modelID) {
		_, err := s.cmds.Execute(ctx, cmd, args...)
		*log = append(*log, Attempt{Command: cmd, Args: args, Err: err})
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// diagnosticsModel reads userSettings.lastSelectedModelName. The second
// result reports whether a snapshot could be fetched at all.
func (s *ModelSelector) diagnosticsModel(ctx context.Context) (string, bool) {
	raw, err := s.cmds.Execute(ctx, host.DiagnosticsCommand)
	if err != nil {
		return "", false
	}
	return SelectedModelName(raw), true
}

// SelectedModelName extracts userSettings.lastSelectedModelName from a
// diagnostics snapshot, which may arrive as an object or as JSON text.
func SelectedModelName(raw json.RawMessage) string {
	var snap struct {
		UserSettings struct {
			LastSelectedModelName string `json:"lastSelectedModelName"`
		} `json:"userSettings"`
	}
	var text string
	if json.Unmarshal(raw, &text) == nil {
		raw = json.RawMessage(text)
	}
	if json.Unmarshal(raw, &snap) != nil {
		return ""
	}
	return strings.TrimSpace(snap.UserSettings.LastSelectedModelName)
}

// EquivalentModelName compares names on their lowercase alphanumerics,
// accepting equality or containment either way. A name without any
// alphanumerics never matches.
func EquivalentModelName(actual, expected string) bool {
	a := nonAlnumRe.ReplaceAllString(strings.ToLower(actual), "")
	e := nonAlnumRe.ReplaceAllString(strings.ToLower(expected), "")
	if a == "" || e == "" {
		return false
	}
	return a == e || strings.Contains(a, e) || strings.Contains(e, a)
}

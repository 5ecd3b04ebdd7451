package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
	"github.com/yohi/antigravity-mcp-bridge/internal/forward"
	"github.com/yohi/antigravity-mcp-bridge/internal/host"
	"github.com/yohi/antigravity-mcp-bridge/internal/sandbox"
)

const (
	defaultLogLines = 100
	previewLen      = 80
)

// Service holds what the bridge methods operate on.
type Service struct {
	Files     *sandbox.Sandbox
	Commands  host.Commands
	Forwarder *forward.Forwarder
	Models    *forward.ModelSelector
	Logs      *logx.Ring
}

// NewService wires a service over the sandbox and the host command surface.
func NewService(files *sandbox.Sandbox, cmds host.Commands, logs *logx.Ring) *Service {
	return &Service{
		Files:     files,
		Commands:  cmds,
		Forwarder: forward.New(cmds, nil),
		Models:    forward.NewModelSelector(cmds),
		Logs:      logs,
	}
}

// Dispatcher returns a dispatcher serving every request method.
func (s *Service) Dispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register(bridgewire.MethodFsList, s.fsList)
	d.Register(bridgewire.MethodFsRead, s.fsRead)
	d.Register(bridgewire.MethodFsWrite, s.fsWrite)
	d.Register(bridgewire.MethodAgentDispatch, s.agentDispatch)
	d.Register(bridgewire.MethodAgentListModels, s.agentListModels)
	d.Register(bridgewire.MethodGetLogs, s.getLogs)
	d.Register(bridgewire.MethodIDEDiagnostics, s.ideDiagnostics)
	return d
}

func (s *Service) fsList(ctx context.Context, params json.RawMessage) (any, error) {
	var p bridgewire.FsListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	recursive := true
	if p.Recursive != nil {
		recursive = *p.Recursive
	}
	files, err := s.Files.List(ctx, recursive)
	if err != nil {
		return nil, err
	}
	return bridgewire.FsListResult{Files: files}, nil
}

func (s *Service) fsRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p bridgewire.FsReadParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" {
		return nil, bridgewire.NewError(bridgewire.CodeInvalidParams, "Path is required")
	}
	content, err := s.Files.Read(ctx, p.Path)
	if err != nil {
		return nil, err
	}
	return bridgewire.FsReadResult{Content: content}, nil
}

func (s *Service) fsWrite(ctx context.Context, params json.RawMessage) (any, error) {
	var p bridgewire.FsWriteParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Path == "" || p.Content == nil {
		return nil, bridgewire.NewError(bridgewire.CodeInvalidParams, "Path and content are required")
	}
	msg, err := s.Files.Write(ctx, p.Path, *p.Content)
	if err != nil {
		return nil, err
	}
	return bridgewire.FsWriteResult{Success: true, Message: msg}, nil
}

func (s *Service) agentDispatch(ctx context.Context, params json.RawMessage) (any, error) {
	var p bridgewire.AgentDispatchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Prompt == "" {
		return nil, bridgewire.NewError(bridgewire.CodeInvalidParams, "Prompt is required")
	}

	var modelID, selected string
	if p.Model != "" {
		modelID = forward.MapModelID(p.Model)
		selected = s.Models.Select(ctx, modelID).Selected
	}

	attempts, err := s.Forwarder.Forward(ctx, p.Prompt, modelID)
	if err != nil {
		logx.Log.Error().Err(err).Str("attempts", attempts.String()).Msg("Failed to dispatch agent task")
		return nil, bridgewire.NewError(bridgewire.CodeAgentDispatchFailed, "Failed to dispatch agent task: %s", err.Error())
	}

	preview := Preview(p.Prompt, previewLen)
	logx.Log.Info().Int("attempts", len(attempts)).Msgf("Agent task dispatched: %q", preview)

	suffix := ""
	switch {
	case selected != "":
		suffix = fmt.Sprintf(" (model: %s)", selected)
	case p.Model != "":
		suffix = fmt.Sprintf(" (requested model: %s)", p.Model)
	}
	return bridgewire.AgentDispatchResult{
		Success: true,
		Message: fmt.Sprintf("Agent task dispatched%s: \"%s\"", suffix, preview),
	}, nil
}

// Preview shortens s to n runes, marking the cut with "...".
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func (s *Service) agentListModels(context.Context, json.RawMessage) (any, error) {
	models := append([]string(nil), bridgewire.Models...)
	return bridgewire.AgentListModelsResult{Models: models}, nil
}

func (s *Service) getLogs(_ context.Context, params json.RawMessage) (any, error) {
	var p bridgewire.GetLogsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	n := defaultLogLines
	if p.Lines != nil && *p.Lines > 0 {
		n = *p.Lines
	}
	return bridgewire.GetLogsResult{Logs: s.Logs.Lines(n)}, nil
}

func (s *Service) ideDiagnostics(ctx context.Context, _ json.RawMessage) (any, error) {
	raw, err := s.Commands.Execute(ctx, host.DiagnosticsCommand)
	if err != nil {
		return nil, bridgewire.NewError(bridgewire.CodeInternalError, "Failed to get IDE diagnostics: %s", err.Error())
	}
	return raw, nil
}

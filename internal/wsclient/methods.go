package wsclient

import (
	"context"
	"encoding/json"

	"github.com/yohi/antigravity-mcp-bridge/core/bridgewire"
	"github.com/yohi/antigravity-mcp-bridge/core/logx"
)

// ListFiles calls fs/list.
func (c *Client) ListFiles(ctx context.Context, recursive bool) ([]string, error) {
	var res bridgewire.FsListResult
	if err := c.Call(ctx, bridgewire.MethodFsList, bridgewire.FsListParams{Recursive: &recursive}, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

// ReadFile calls fs/read.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var res bridgewire.FsReadResult
	if err := c.Call(ctx, bridgewire.MethodFsRead, bridgewire.FsReadParams{Path: path}, &res); err != nil {
		return "", err
	}
	return res.Content, nil
}

// WriteFile calls fs/write.
func (c *Client) WriteFile(ctx context.Context, path, content string) (bridgewire.FsWriteResult, error) {
	var res bridgewire.FsWriteResult
	err := c.Call(ctx, bridgewire.MethodFsWrite, bridgewire.FsWriteParams{Path: path, Content: &content}, &res)
	return res, err
}

// Dispatch calls agent/dispatch. The result only acknowledges delivery.
func (c *Client) Dispatch(ctx context.Context, prompt, model string) (bridgewire.AgentDispatchResult, error) {
	var res bridgewire.AgentDispatchResult
	err := c.Call(ctx, bridgewire.MethodAgentDispatch, bridgewire.AgentDispatchParams{Prompt: prompt, Model: model}, &res)
	return res, err
}

// ListModels calls agent/models/list.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var res bridgewire.AgentListModelsResult
	if err := c.Call(ctx, bridgewire.MethodAgentListModels, struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Models, nil
}

// Logs calls bridge/logs. lines <= 0 lets the peer pick its default.
func (c *Client) Logs(ctx context.Context, lines int) ([]string, error) {
	params := bridgewire.GetLogsParams{}
	if lines > 0 {
		params.Lines = &lines
	}
	var res bridgewire.GetLogsResult
	if err := c.Call(ctx, bridgewire.MethodGetLogs, params, &res); err != nil {
		return nil, err
	}
	return res.Logs, nil
}

// Diagnostics calls ide/diagnostics and returns the raw snapshot.
func (c *Client) Diagnostics(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, bridgewire.MethodIDEDiagnostics, struct{}{}, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// OnWorkspaceEvent subscribes to workspace/event notifications.
func (c *Client) OnWorkspaceEvent(h func(bridgewire.WorkspaceEventParams)) {
	c.On(bridgewire.MethodWorkspaceEvent, func(params json.RawMessage) {
		var ev bridgewire.WorkspaceEventParams
		if err := json.Unmarshal(params, &ev); err != nil {
			logx.Log.Warn().Err(err).Msg("invalid workspace event")
			return
		}
		h(ev)
	})
}

package bridgewire

// FsListParams are the params of fs/list. Recursive defaults to true.
type FsListParams struct {
	Recursive *bool `json:"recursive,omitempty"`
}

type FsListResult struct {
	Files []string `json:"files"`
}

type FsReadParams struct {
	Path string `json:"path"`
}

type FsReadResult struct {
	Content string `json:"content"`
}

// FsWriteParams are the params of fs/write. Content is a pointer so that an
// empty file can be told apart from a missing field.
type FsWriteParams struct {
	Path    string  `json:"path"`
	Content *string `json:"content,omitempty"`
}

type FsWriteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AgentDispatchParams struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// AgentDispatchResult only acknowledges that the prompt reached the host.
type AgentDispatchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type AgentListModelsResult struct {
	Models []string `json:"models"`
}

// EventType classifies a workspace/event notification.
type EventType string

const (
	EventFileCreated EventType = "file_created"
	EventFileChanged EventType = "file_changed"
	EventFileDeleted EventType = "file_deleted"
)

type WorkspaceEventParams struct {
	Type EventType `json:"type"`
	Path string    `json:"path"`
}

type GetLogsParams struct {
	Lines *int `json:"lines,omitempty"`
}

type GetLogsResult struct {
	Logs []string `json:"logs"`
}

// Models are the agent models a dispatch may request.
var Models = []string{
	"gemini-3.1-pro-high",
	"gemini-3.1-pro",
	"gemini-3.1-flash",
	"gemini-3-pro",
	"gemini-3-flash",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
}

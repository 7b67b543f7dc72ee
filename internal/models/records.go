package models

// Kind identifies which table a persisted record belongs to
type Kind string

// Record kinds produced by an ingestion run
const (
	KindSession    Kind = "session"
	KindMessage    Kind = "message"
	KindModelCall  Kind = "model_call"
	KindToolCall   Kind = "tool_call"
	KindDesktopLog Kind = "desktop_log_event"
	KindWorktree   Kind = "worktree_event"
	KindAutomation Kind = "automation_event"
)

// AllKinds lists every record kind in write order
var AllKinds = []Kind{
	KindSession,
	KindMessage,
	KindModelCall,
	KindToolCall,
	KindDesktopLog,
	KindWorktree,
	KindAutomation,
}

// Record is implemented by every persisted fact. Key returns the dedup key that
// makes re-ingestion a no-op.
type Record interface {
	Kind() Kind
	Key() string
}

// SessionRecord is one Codex session, taken from a rollout file's session_meta line
type SessionRecord struct {
	ID            string  `json:"id"`
	StartedAt     int64   `json:"startedAt"`
	Cwd           *string `json:"cwd,omitempty"`
	Project       *string `json:"project,omitempty"`
	Originator    *string `json:"originator,omitempty"`
	CLIVersion    *string `json:"cliVersion,omitempty"`
	GitBranch     *string `json:"gitBranch,omitempty"`
	GitCommit     *string `json:"gitCommit,omitempty"`
	RepositoryURL *string `json:"repositoryUrl,omitempty"`
	SourceFile    string  `json:"sourceFile"`
	LineNumber    int     `json:"lineNumber"`
	DedupKey      string  `json:"dedupKey"`
}

func (r *SessionRecord) Kind() Kind  { return KindSession }
func (r *SessionRecord) Key() string { return r.DedupKey }

// MessageRecord is one user/assistant message. Content is only populated when
// raw message retention is enabled.
type MessageRecord struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"sessionId"`
	Role         string  `json:"role"`
	Ts           int64   `json:"ts"`
	ContentChars int     `json:"contentChars"`
	Content      *string `json:"content,omitempty"`
	SourceFile   string  `json:"sourceFile"`
	LineNumber   int     `json:"lineNumber"`
	DedupKey     string  `json:"dedupKey"`
}

func (r *MessageRecord) Kind() Kind  { return KindMessage }
func (r *MessageRecord) Key() string { return r.DedupKey }

// ModelCallRecord is the token usage reported for one model request
type ModelCallRecord struct {
	ID                    string `json:"id"`
	SessionID             string `json:"sessionId"`
	Ts                    int64  `json:"ts"`
	Model                 string `json:"model"`
	InputTokens           int64  `json:"inputTokens"`
	CachedInputTokens     int64  `json:"cachedInputTokens"`
	OutputTokens          int64  `json:"outputTokens"`
	ReasoningOutputTokens int64  `json:"reasoningOutputTokens"`
	TotalTokens           int64  `json:"totalTokens"`
	SourceFile            string `json:"sourceFile"`
	LineNumber            int    `json:"lineNumber"`
	DedupKey              string `json:"dedupKey"`
}

func (r *ModelCallRecord) Kind() Kind  { return KindModelCall }
func (r *ModelCallRecord) Key() string { return r.DedupKey }

// ToolCallStatus is derived purely from which markers matched
type ToolCallStatus string

const (
	ToolCallOK      ToolCallStatus = "ok"
	ToolCallFailed  ToolCallStatus = "failed"
	ToolCallUnknown ToolCallStatus = "unknown"
)

// ToolCallRecord is one logical tool invocation reconstructed from CLI log markers
type ToolCallRecord struct {
	ToolName       string         `json:"toolName"`
	Command        string         `json:"command,omitempty"`
	Status         ToolCallStatus `json:"status"`
	StartTs        int64          `json:"startTs"`
	EndTs          *int64         `json:"endTs,omitempty"`
	DurationMs     *int64         `json:"durationMs,omitempty"`
	ExitCode       *int           `json:"exitCode,omitempty"`
	Error          *string        `json:"error,omitempty"`
	StdoutBytes    *int64         `json:"stdoutBytes,omitempty"`
	StderrBytes    *int64         `json:"stderrBytes,omitempty"`
	SourceFile     string         `json:"sourceFile"`
	SourceLine     int            `json:"sourceLine"`
	CorrelationKey string         `json:"correlationKey"`
	DedupKey       string         `json:"dedupKey"`
}

func (r *ToolCallRecord) Kind() Kind  { return KindToolCall }
func (r *ToolCallRecord) Key() string { return r.DedupKey }

// DesktopLogEvent is a retained, sanitized desktop application log record
type DesktopLogEvent struct {
	ID           string  `json:"id"`
	Ts           int64   `json:"ts"`
	Level        *string `json:"level,omitempty"`
	Component    *string `json:"component,omitempty"`
	Message      string  `json:"message"`
	PayloadText  *string `json:"payloadText,omitempty"`
	AppSessionID *string `json:"appSessionId,omitempty"`
	ProcessID    *int    `json:"processId,omitempty"`
	ThreadID     *int    `json:"threadId,omitempty"`
	InstanceID   *int    `json:"instanceId,omitempty"`
	SegmentIndex *int    `json:"segmentIndex,omitempty"`
	FilePath     string  `json:"filePath"`
	LineNumber   int     `json:"lineNumber"`
	DedupKey     string  `json:"dedupKey"`
}

func (r *DesktopLogEvent) Kind() Kind  { return KindDesktopLog }
func (r *DesktopLogEvent) Key() string { return r.DedupKey }

// Worktree actions
const (
	WorktreeCreated  = "created"
	WorktreeArchived = "archived"
	WorktreeError    = "error"
)

// Automation actions
const (
	AutomationQueued    = "queued"
	AutomationCompleted = "completed"
	AutomationFailed    = "failed"
)

// Derived event statuses
const (
	EventStatusOK       = "ok"
	EventStatusFailed   = "failed"
	EventStatusInferred = "inferred"
)

// WorktreeEvent is a worktree lifecycle fact derived from a desktop log event,
// or inferred by reconciling against the filesystem.
type WorktreeEvent struct {
	ID           string  `json:"id"`
	Ts           int64   `json:"ts"`
	Action       string  `json:"action"`
	WorktreePath *string `json:"worktreePath,omitempty"`
	Branch       *string `json:"branch,omitempty"`
	Status       string  `json:"status"`
	Error        *string `json:"error,omitempty"`
	SourceLogID  *string `json:"sourceLogId,omitempty"`
	DedupKey     string  `json:"dedupKey"`
}

func (r *WorktreeEvent) Kind() Kind  { return KindWorktree }
func (r *WorktreeEvent) Key() string { return r.DedupKey }

// AutomationEvent is an automation run fact derived from a desktop log event
type AutomationEvent struct {
	ID           string  `json:"id"`
	Ts           int64   `json:"ts"`
	Action       string  `json:"action"`
	AutomationID *string `json:"automationId,omitempty"`
	Name         *string `json:"name,omitempty"`
	Status       string  `json:"status"`
	Error        *string `json:"error,omitempty"`
	SourceLogID  *string `json:"sourceLogId,omitempty"`
	DedupKey     string  `json:"dedupKey"`
}

func (r *AutomationEvent) Kind() Kind  { return KindAutomation }
func (r *AutomationEvent) Key() string { return r.DedupKey }

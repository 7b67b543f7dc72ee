package sessions

import "encoding/json"

// Line types in a rollout file
const (
	typeSessionMeta  = "session_meta"
	typeTurnContext  = "turn_context"
	typeResponseItem = "response_item"
	typeEventMsg     = "event_msg"
)

// envelope is one rollout line: {"timestamp", "type", "payload"}
type envelope struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type sessionMetaPayload struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Cwd        string `json:"cwd"`
	Originator string `json:"originator"`
	CLIVersion string `json:"cli_version"`
	Git        *struct {
		CommitHash    string `json:"commit_hash"`
		Branch        string `json:"branch"`
		RepositoryURL string `json:"repository_url"`
	} `json:"git"`
}

type turnContextPayload struct {
	Model string `json:"model"`
}

type responseItemPayload struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type tokenUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	CacheReadInputTokens  int64 `json:"cache_read_input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
	TotalTokens           int64 `json:"total_tokens"`
}

type tokenInfo struct {
	Model          string      `json:"model"`
	ModelName      string      `json:"model_name"`
	LastTokenUsage *tokenUsage `json:"last_token_usage"`
	Metadata       *struct {
		Model string `json:"model"`
	} `json:"metadata"`
}

type eventMsgPayload struct {
	Type string     `json:"type"`
	Info *tokenInfo `json:"info"`
}

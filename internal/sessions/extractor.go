// Package sessions maps Codex rollout transcripts (sessions/YYYY/MM/DD/*.jsonl)
// to session, message and model-call records.
package sessions

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/vanpelt/codexlens/internal/dedup"
	"github.com/vanpelt/codexlens/internal/linereader"
	"github.com/vanpelt/codexlens/internal/models"
	"github.com/vanpelt/codexlens/internal/redact"
)

// ProjectResolver names the project a session ran in
type ProjectResolver interface {
	Resolve(cwd, repoURL string) string
}

// ModelLookup returns the last model recorded for a session, for reads that
// start after the file's turn_context lines
type ModelLookup interface {
	LastModel(sessionID string) (string, error)
}

var errMissingTimestamp = errors.New("missing timestamp")

// rollout-2025-09-01T12-34-56-<uuid>.jsonl
var rolloutName = regexp.MustCompile(`([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\.jsonl$`)

// Extractor converts decoded rollout lines into records
type Extractor struct {
	RetainBodies bool
	Projects     ProjectResolver
	Models       ModelLookup
	Keys         *dedup.Generator
	Sanitizer    *redact.Sanitizer
}

// Batch is everything derived from one read of a rollout file
type Batch struct {
	Sessions   []*models.SessionRecord
	Messages   []*models.MessageRecord
	ModelCalls []*models.ModelCallRecord
	Errors     []linereader.LineError
}

// All returns every record in write order, sessions first
func (b *Batch) All() []models.Record {
	out := make([]models.Record, 0, len(b.Sessions)+len(b.Messages)+len(b.ModelCalls))
	for _, s := range b.Sessions {
		out = append(out, s)
	}
	for _, m := range b.Messages {
		out = append(out, m)
	}
	for _, c := range b.ModelCalls {
		out = append(out, c)
	}
	return out
}

// fileState is what earlier lines of the same read tell later ones
type fileState struct {
	path   string
	metaID string
	model  string
}

// sessionIDSources are tried in order, first hit wins
var sessionIDSources = []func(st *fileState) (string, bool){
	func(st *fileState) (string, bool) {
		m := rolloutName.FindStringSubmatch(filepath.Base(st.path))
		if m == nil {
			return "", false
		}
		id, err := uuid.Parse(m[1])
		if err != nil {
			return "", false
		}
		return id.String(), true
	},
	func(st *fileState) (string, bool) {
		return st.metaID, st.metaID != ""
	},
}

func (x *Extractor) keys() *dedup.Generator {
	if x.Keys == nil {
		x.Keys = dedup.New(dedup.DefaultKeyLength)
	}
	return x.Keys
}

func (x *Extractor) sanitizer() *redact.Sanitizer {
	if x.Sanitizer == nil {
		x.Sanitizer = redact.New("")
	}
	return x.Sanitizer
}

func (x *Extractor) sessionID(st *fileState) string {
	for _, source := range sessionIDSources {
		if id, ok := source(st); ok {
			return id
		}
	}
	// no id anywhere: derive a stable one from the file
	return x.keys().Hash(map[string]any{"file": st.path})
}

// Extract maps decoded lines of the rollout file at path to records.
// Unknown line types are ignored.
func (x *Extractor) Extract(path string, lines []linereader.ParsedLine) *Batch {
	st := &fileState{path: path}
	batch := &Batch{}

	for _, line := range lines {
		var env envelope
		if err := json.Unmarshal(line.JSON, &env); err != nil {
			batch.Errors = append(batch.Errors, lineError(path, line.LineNumber, "invalid envelope: %v", err))
			continue
		}

		var err error
		switch env.Type {
		case typeSessionMeta:
			err = x.sessionMeta(st, batch, env, line.LineNumber)
		case typeTurnContext:
			var p turnContextPayload
			if json.Unmarshal(env.Payload, &p) == nil && p.Model != "" {
				st.model = p.Model
			}
		case typeResponseItem:
			err = x.responseItem(st, batch, env, line.LineNumber)
		case typeEventMsg:
			err = x.eventMsg(st, batch, env, line.LineNumber)
		}
		if err != nil {
			batch.Errors = append(batch.Errors, lineError(path, line.LineNumber, "%s: %v", env.Type, err))
		}
	}
	return batch
}

func (x *Extractor) sessionMeta(st *fileState, batch *Batch, env envelope, line int) error {
	var p sessionMetaPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	st.metaID = p.ID

	started, err := parseTime(p.Timestamp)
	if err != nil {
		if started, err = parseTime(env.Timestamp); err != nil {
			return err
		}
	}

	var branch, commit, repoURL string
	if p.Git != nil {
		branch, commit, repoURL = p.Git.Branch, p.Git.CommitHash, redact.URL(p.Git.RepositoryURL)
	}

	id := x.sessionID(st)
	rec := &models.SessionRecord{
		ID:            id,
		StartedAt:     started,
		Cwd:           x.sanitizer().Ptr(models.StrPtr(p.Cwd)),
		Originator:    models.StrPtr(p.Originator),
		CLIVersion:    models.StrPtr(p.CLIVersion),
		GitBranch:     models.StrPtr(branch),
		GitCommit:     models.StrPtr(commit),
		RepositoryURL: models.StrPtr(repoURL),
		SourceFile:    st.path,
		LineNumber:    line,
	}
	if x.Projects != nil && (p.Cwd != "" || repoURL != "") {
		rec.Project = models.StrPtr(x.Projects.Resolve(p.Cwd, repoURL))
	}
	rec.DedupKey = x.keys().Key(st.path, line, map[string]any{"sessionId": id})
	batch.Sessions = append(batch.Sessions, rec)
	return nil
}

func (x *Extractor) responseItem(st *fileState, batch *Batch, env envelope, line int) error {
	var p responseItemPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.Type != "message" || p.Role == "" {
		return nil
	}
	ts, err := parseTime(env.Timestamp)
	if err != nil {
		return err
	}

	texts := make([]string, 0, len(p.Content))
	chars := 0
	for _, c := range p.Content {
		if c.Text == "" {
			continue
		}
		texts = append(texts, c.Text)
		chars += utf8.RuneCountInString(c.Text)
	}

	sessionID := x.sessionID(st)
	rec := &models.MessageRecord{
		SessionID:    sessionID,
		Role:         p.Role,
		Ts:           ts,
		ContentChars: chars,
		SourceFile:   st.path,
		LineNumber:   line,
	}
	if x.RetainBodies {
		rec.Content = models.StrPtr(strings.Join(texts, "\n"))
	}
	rec.DedupKey = x.keys().Key(st.path, line, map[string]any{
		"sessionId": sessionID,
		"role":      p.Role,
		"ts":        ts,
		"id":        p.ID,
	})
	rec.ID = naturalID(p.ID, rec.DedupKey, sessionID)
	batch.Messages = append(batch.Messages, rec)
	return nil
}

func (x *Extractor) eventMsg(st *fileState, batch *Batch, env envelope, line int) error {
	var p eventMsgPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return err
	}
	if p.Type != "token_count" || p.Info == nil || p.Info.LastTokenUsage == nil {
		return nil
	}
	ts, err := parseTime(env.Timestamp)
	if err != nil {
		return err
	}

	sessionID := x.sessionID(st)
	usage := p.Info.LastTokenUsage
	cached := usage.CachedInputTokens
	if cached == 0 {
		cached = usage.CacheReadInputTokens
	}
	total := usage.TotalTokens
	if total == 0 {
		total = usage.InputTokens + usage.OutputTokens
	}

	rec := &models.ModelCallRecord{
		SessionID:             sessionID,
		Ts:                    ts,
		Model:                 x.model(p.Info, st, sessionID),
		InputTokens:           usage.InputTokens,
		CachedInputTokens:     cached,
		OutputTokens:          usage.OutputTokens,
		ReasoningOutputTokens: usage.ReasoningOutputTokens,
		TotalTokens:           total,
		SourceFile:            st.path,
		LineNumber:            line,
	}
	rec.DedupKey = x.keys().Key(st.path, line, map[string]any{
		"sessionId": sessionID,
		"ts":        ts,
		"input":     rec.InputTokens,
		"output":    rec.OutputTokens,
	})
	rec.ID = rec.DedupKey
	batch.ModelCalls = append(batch.ModelCalls, rec)
	return nil
}

// model resolves the model for a token_count line: the info fields, then the
// latest turn_context of this read, then the store.
func (x *Extractor) model(info *tokenInfo, st *fileState, sessionID string) string {
	sources := []func() string{
		func() string { return info.Model },
		func() string { return info.ModelName },
		func() string {
			if info.Metadata == nil {
				return ""
			}
			return info.Metadata.Model
		},
		func() string { return st.model },
		func() string {
			if x.Models == nil {
				return ""
			}
			model, err := x.Models.LastModel(sessionID)
			if err != nil {
				return ""
			}
			// later lines of this read reuse it
			st.model = model
			return model
		},
	}
	for _, source := range sources {
		if v := source(); v != "" {
			return v
		}
	}
	return ""
}

// naturalID prefers an external id unless it collides with an ancestor's
func naturalID(external, dedupKey string, ancestors ...string) string {
	if external == "" {
		return dedupKey
	}
	for _, a := range ancestors {
		if external == a {
			return dedupKey
		}
	}
	return external
}

func parseTime(value string) (int64, error) {
	if value == "" {
		return 0, errMissingTimestamp
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}

func lineError(path string, line int, format string, args ...any) linereader.LineError {
	return linereader.LineError{
		File:    path,
		Line:    line,
		Message: linereader.Truncate(fmt.Sprintf(format, args...), linereader.MaxErrorText),
	}
}

package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/vanpelt/codexlens/internal/store"
)

// maxRolloutLine bounds one rollout line while scanning for an earlier model
const maxRolloutLine = 16 << 20

// modelLookup resolves the model of a resumed rollout: the latest
// turn_context before the resume offset, then the store's last model call.
type modelLookup struct {
	ctx   context.Context
	store *store.Store
	path  string
	until int64

	scanned bool
	prior   string
}

func (m *modelLookup) LastModel(sessionID string) (string, error) {
	if !m.scanned {
		m.scanned = true
		m.prior = priorModel(m.path, m.until)
	}
	if m.prior != "" {
		return m.prior, nil
	}

	model, err := m.store.LastModel(m.ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return model, err
}

// priorModel returns the model of the last turn_context in [0, until)
func priorModel(path string, until int64) string {
	if until <= 0 {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var model string
	scanner := bufio.NewScanner(io.LimitReader(f, until))
	scanner.Buffer(make([]byte, 0, 64*1024), maxRolloutLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !strings.Contains(string(line), `"turn_context"`) {
			continue
		}
		var env struct {
			Type    string `json:"type"`
			Payload struct {
				Model string `json:"model"`
			} `json:"payload"`
		}
		if json.Unmarshal(line, &env) == nil && env.Type == "turn_context" && env.Payload.Model != "" {
			model = env.Payload.Model
		}
	}
	return model
}

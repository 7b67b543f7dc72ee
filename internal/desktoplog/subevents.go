package desktoplog

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/vanpelt/codexlens/internal/models"
)

// ActionRule classifies a message into an action by keyword
type ActionRule struct {
	Action  string
	Pattern *regexp.Regexp
}

var (
	worktreeComponent   = regexp.MustCompile(`(?i)^(git|worktrees?)$`)
	worktreeTopic       = regexp.MustCompile(`(?i)\b(worktrees?|git)\b`)
	automationComponent = regexp.MustCompile(`(?i)^automations?$`)
	automationTopic     = regexp.MustCompile(`(?i)\bautomations?\b`)
)

// WorktreeActionRules are checked in order; failures win over the verbs they
// usually accompany ("failed to create worktree").
var WorktreeActionRules = []ActionRule{
	{models.WorktreeError, regexp.MustCompile(`(?i)\b(fail(ed|ure|s)?|error(ed)?|unable|could not|cannot)\b`)},
	{models.WorktreeArchived, regexp.MustCompile(`(?i)\b(archiv(e|ed|es|ing)|remov(e|ed|es|ing)|delet(e|ed|es|ing)|prun(e|ed|es|ing))\b`)},
	{models.WorktreeCreated, regexp.MustCompile(`(?i)\b(creat(e|ed|es|ing)|add(ed|ing)?|checked out|new worktree)\b`)},
}

// AutomationActionRules are checked in order
var AutomationActionRules = []ActionRule{
	{models.AutomationFailed, regexp.MustCompile(`(?i)\b(fail(ed|ure|s)?|error(ed)?)\b`)},
	{models.AutomationCompleted, regexp.MustCompile(`(?i)\b(complet(e|ed|es|ion)|finish(ed|es)?|succe(ss|eded|ssful)|done)\b`)},
	{models.AutomationQueued, regexp.MustCompile(`(?i)\b(queu(e|ed|es|ing)|enqueu(e|ed|ing)|schedul(e|ed|ing))\b`)},
}

// source bundles what the typed extractors may look at
type source struct {
	header  Header
	message string
	payload map[string]any
}

func newSource(h Header, message, payloadText string) source {
	src := source{header: h, message: message}
	if payloadText != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(payloadText), &obj); err == nil {
			src.payload = obj
		}
	}
	return src
}

// stringExtractor returns a value if its location holds one. Extractor lists
// are tried in order and the first hit wins.
type stringExtractor func(src source) (string, bool)

func payloadField(path ...string) stringExtractor {
	return func(src source) (string, bool) {
		var cur any = src.payload
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return "", false
			}
			cur = obj[key]
		}
		switch v := cur.(type) {
		case string:
			return v, v != ""
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
		return "", false
	}
}

func messageGroup(pattern *regexp.Regexp) stringExtractor {
	return func(src source) (string, bool) {
		m := pattern.FindStringSubmatch(src.message)
		if m == nil || m[1] == "" {
			return "", false
		}
		return m[1], true
	}
}

func firstOf(src source, extractors []stringExtractor) string {
	for _, extract := range extractors {
		if v, ok := extract(src); ok {
			return v
		}
	}
	return ""
}

var worktreePathExtractors = []stringExtractor{
	payloadField("worktreePath"),
	payloadField("worktree_path"),
	payloadField("worktree", "path"),
	payloadField("path"),
	payloadField("cwd"),
	messageGroup(regexp.MustCompile(`(?i)worktree[^/\n]*?((?:/|[A-Za-z]:\\)[^\s"',)]+)`)),
	messageGroup(regexp.MustCompile(`(?:^|[\s"'=(])(/[^\s"',)]+)`)),
}

var branchExtractors = []stringExtractor{
	payloadField("branch"),
	payloadField("branchName"),
	payloadField("worktree", "branch"),
	messageGroup(regexp.MustCompile(`(?i)\bbranch[=:\s]+["']?([\w./-]+)`)),
}

var automationIDExtractors = []stringExtractor{
	payloadField("automationId"),
	payloadField("automation_id"),
	payloadField("automation", "id"),
	payloadField("id"),
	messageGroup(regexp.MustCompile(`(?i)\bautomation[ _-]?id[=:\s]+["']?([\w-]+)`)),
}

var automationNameExtractors = []stringExtractor{
	payloadField("automationName"),
	payloadField("name"),
	payloadField("title"),
	payloadField("automation", "name"),
}

// WorktreeFacts is what a log record says about a worktree
type WorktreeFacts struct {
	Action string
	Path   string
	Branch string
}

// AutomationFacts is what a log record says about an automation run
type AutomationFacts struct {
	Action string
	ID     string
	Name   string
}

// ExtractWorktreeEvent derives at most one worktree fact from a record. message and
// payloadText must be the pre-sanitization text.
func ExtractWorktreeEvent(h Header, message, payloadText string) (WorktreeFacts, bool) {
	if !worktreeComponent.MatchString(h.Component) && !worktreeTopic.MatchString(message) {
		return WorktreeFacts{}, false
	}
	action, ok := classify(WorktreeActionRules, message, h.Level, models.WorktreeError)
	if !ok {
		return WorktreeFacts{}, false
	}
	src := newSource(h, message, payloadText)
	return WorktreeFacts{
		Action: action,
		Path:   firstOf(src, worktreePathExtractors),
		Branch: firstOf(src, branchExtractors),
	}, true
}

// ExtractAutomationEvent derives at most one automation fact from a record
func ExtractAutomationEvent(h Header, message, payloadText string) (AutomationFacts, bool) {
	if !automationComponent.MatchString(h.Component) && !automationTopic.MatchString(message) {
		return AutomationFacts{}, false
	}
	action, ok := classify(AutomationActionRules, message, h.Level, models.AutomationFailed)
	if !ok {
		return AutomationFacts{}, false
	}
	src := newSource(h, message, payloadText)
	return AutomationFacts{
		Action: action,
		ID:     firstOf(src, automationIDExtractors),
		Name:   firstOf(src, automationNameExtractors),
	}, true
}

// classify returns the first matching action, falling back to severeAction for
// warn/error records that match no keyword.
func classify(rules []ActionRule, message, level, severeAction string) (string, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(message) {
			return r.Action, true
		}
	}
	if IsSevere(level) {
		return severeAction, true
	}
	return "", false
}

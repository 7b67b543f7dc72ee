package desktoplog

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of the retention policy for one record
type Verdict struct {
	Keep   bool
	Reason string
}

// Rule maps a pattern to a named classification
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// SensitiveRules reject a record outright: transcript content and prompts never
// leave the desktop log.
var SensitiveRules = []Rule{
	{"role-marker", regexp.MustCompile(`(?i)\b(user|assistant)[ _-]?(message|prompt|input|content|turn|text)s?\b`)},
	{"role-json", regexp.MustCompile(`(?i)"role"\s*:\s*"(user|assistant)"`)},
	{"role-prefix", regexp.MustCompile(`(?im)^\s*(user|assistant)\s*:`)},
	{"prompt", regexp.MustCompile(`(?i)\bprompts?\b`)},
	{"transcript", regexp.MustCompile(`(?i)\btranscripts?\b`)},
}

// SafeComponents are accepted regardless of message content
var SafeComponents = map[string]bool{
	"git":            true,
	"worktree":       true,
	"worktrees":      true,
	"automation":     true,
	"automations":    true,
	"app-server":     true,
	"updater":        true,
	"auto-updater":   true,
	"sparkle":        true,
	"main":           true,
	"ipc":            true,
	"sandbox":        true,
	"crash-reporter": true,
	"power-monitor":  true,
	"window-manager": true,
}

// SafeKeywordRules accept a record whose message mentions operational topics
var SafeKeywordRules = []Rule{
	{"git", regexp.MustCompile(`(?i)\bgit\b`)},
	{"worktree", regexp.MustCompile(`(?i)\bworktrees?\b`)},
	{"automation", regexp.MustCompile(`(?i)\bautomations?\b`)},
	{"app-server", regexp.MustCompile(`(?i)\bapp[- _]?server\b`)},
	{"update", regexp.MustCompile(`(?i)\b(update[sd]?|updater|upgrade[sd]?)\b`)},
	{"crash", regexp.MustCompile(`(?i)\b(crash(ed|es)?|uncaught|unhandled|exception)\b`)},
	{"process", regexp.MustCompile(`(?i)\b(spawn(ed)?|exit(ed)? with code|exit code|killed)\b`)},
	{"sandbox", regexp.MustCompile(`(?i)\bsandbox\b`)},
}

// Retain applies the privacy filter in order: reject sensitive messages, then
// accept safe components, safe keywords, or warn/error severity. Everything
// else is rejected.
func Retain(h Header) Verdict {
	if rule, ok := firstMatch(SensitiveRules, h.Message); ok {
		return Verdict{Keep: false, Reason: "sensitive:" + rule}
	}
	if SafeComponents[strings.ToLower(h.Component)] {
		return Verdict{Keep: true, Reason: "component:" + strings.ToLower(h.Component)}
	}
	if rule, ok := firstMatch(SafeKeywordRules, h.Message); ok {
		return Verdict{Keep: true, Reason: "keyword:" + rule}
	}
	if IsSevere(h.Level) {
		return Verdict{Keep: true, Reason: "level:" + h.Level}
	}
	return Verdict{Keep: false, Reason: "unclassified"}
}

func firstMatch(rules []Rule, text string) (string, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Name, true
		}
	}
	return "", false
}

// Package redact removes personal identifiers from text before it is stored.
package redact

import (
	"regexp"
	"strings"
)

const (
	// Placeholder replaces the user-name segment of a profile path
	Placeholder = "[redacted]"
	// HomePlaceholder replaces a home directory outside the usual profile roots
	HomePlaceholder = "[home]"
	// EmailPlaceholder replaces email-like tokens
	EmailPlaceholder = "[redacted-email]"
)

type rule struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order. Profile paths go first so a home directory under /Users
// or /home keeps its recognizable shape.
var rules = []rule{
	{"macos-profile", regexp.MustCompile(`(/Users/)[^/\s"'\\:]+`), "${1}" + Placeholder},
	{"linux-profile", regexp.MustCompile(`(/home/)[^/\s"'\\:]+`), "${1}" + Placeholder},
	{"windows-profile", regexp.MustCompile(`(?i)\b([A-Z]:[\\/]+Users[\\/]+)[^\\/\s"':]+`), "${1}" + Placeholder},
	{"email", regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`), EmailPlaceholder},
}

// Sanitizer redacts user paths and email addresses
type Sanitizer struct {
	homeDir string
}

// New returns a sanitizer that also replaces homeDir wherever it still appears
// after the profile rules ran. An empty homeDir disables that step.
func New(homeDir string) *Sanitizer {
	homeDir = strings.TrimRight(homeDir, `/\`)
	if homeDir == "" || homeDir == "." {
		homeDir = ""
	}
	return &Sanitizer{homeDir: homeDir}
}

// String redacts s
func (s *Sanitizer) String(text string) string {
	if text == "" {
		return text
	}
	for _, r := range rules {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	if s.homeDir != "" {
		text = strings.ReplaceAll(text, s.homeDir, HomePlaceholder)
	}
	return text
}

// Ptr redacts an optional string
func (s *Sanitizer) Ptr(text *string) *string {
	if text == nil {
		return nil
	}
	out := s.String(*text)
	return &out
}

// URL strips userinfo from a remote URL, e.g. https://token@github.com/o/r
func URL(raw string) string {
	if idx := strings.Index(raw, "://"); idx >= 0 {
		rest := raw[idx+3:]
		slash := strings.IndexByte(rest, '/')
		at := strings.LastIndexByte(rest, '@')
		if at >= 0 && (slash < 0 || at < slash) {
			return raw[:idx+3] + rest[at+1:]
		}
	}
	return raw
}

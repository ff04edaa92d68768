package llm

import (
	"regexp"
	"strings"
)

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// failureKeywords are searched in priority order when excerpting logs.
var failureKeywords = []string{"--- FAIL", "FAIL", "panic:", "Error:", "##[error]"}

// Excerpt returns at most max bytes of log text, centred on the first
// failure marker when there is one and the tail otherwise.
func Excerpt(s string, max int) string {
	s = ansi.ReplaceAllString(s, "")
	if len(s) <= max {
		return s
	}
	for _, kw := range failureKeywords {
		idx := strings.Index(s, kw)
		if idx < 0 {
			continue
		}
		start := idx - max/4
		if start < 0 {
			start = 0
		}
		end := start + max
		if end > len(s) {
			end = len(s)
			start = end - max
		}
		return "..." + s[start:end] + "..."
	}
	return "..." + s[len(s)-max:]
}

// StripCodeFence removes a surrounding markdown code fence from model output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractJSON returns the outermost JSON object in model output.
func ExtractJSON(s string) string {
	s = StripCodeFence(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

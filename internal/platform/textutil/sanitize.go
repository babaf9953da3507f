// Package textutil cleans free text supplied by admins before it is persisted.
package textutil

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var strictPolicy = bluemonday.StrictPolicy()

// CleanText normalises s to NFC, strips markup and control characters other than
// newline and tab, trims surrounding space and truncates to maxRunes (0 means no cap).
func CleanText(s string, maxRunes int) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	if strings.ContainsAny(s, "<>") {
		s = html.UnescapeString(strictPolicy.Sanitize(s))
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if maxRunes > 0 {
		if runes := []rune(s); len(runes) > maxRunes {
			s = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return s
}

// CleanLine is CleanText with every run of whitespace collapsed to one space.
func CleanLine(s string, maxRunes int) string {
	return CleanText(strings.Join(strings.Fields(s), " "), maxRunes)
}

// CleanDetails applies CleanText to string values of a details payload, recursing into
// nested maps and slices. The input is not modified.
func CleanDetails(details map[string]any, maxRunes int) map[string]any {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		key = CleanLine(key, 64)
		if key == "" {
			continue
		}
		out[key] = cleanValue(value, maxRunes)
	}
	return out
}

func cleanValue(value any, maxRunes int) any {
	switch v := value.(type) {
	case string:
		return CleanText(v, maxRunes)
	case map[string]any:
		return CleanDetails(v, maxRunes)
	case []any:
		cleaned := make([]any, len(v))
		for i, item := range v {
			cleaned[i] = cleanValue(item, maxRunes)
		}
		return cleaned
	case []string:
		cleaned := make([]string, len(v))
		for i, item := range v {
			cleaned[i] = CleanText(item, maxRunes)
		}
		return cleaned
	default:
		return v
	}
}

package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var blankLineRun = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// CollapseBlankLines squeezes three or more consecutive newlines down to two
// and trims surrounding whitespace.
func CollapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(blankLineRun.ReplaceAllString(s, "\n\n"))
}

// CountNonSpace returns the number of non-whitespace runes in s.
func CountNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// Truncate shortens s to at most max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

// TitleFromText derives a short title from the first non-empty line of s.
func TitleFromText(s string, max int) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#* "))
		if line != "" {
			return Truncate(line, max)
		}
	}
	return ""
}

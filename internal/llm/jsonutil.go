package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	// fencedObjectPattern matches an object inside a markdown code fence.
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	// objectPattern matches the outermost object in free text.
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractJSON pulls a JSON object out of a completion. It handles markdown
// fences, line comments and trailing commas. Valid JSON is returned as is;
// repairs only run when it does not parse and never touch string literals.
// Returns "" if no object is found.
func ExtractJSON(content string) string {
	var raw string
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = objectPattern.FindString(content)
	}
	if raw == "" {
		return ""
	}

	if json.Valid([]byte(raw)) {
		return raw
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return stripTrailingCommas(strings.Join(lines, "\n"))
}

// stripTrailingCommas drops commas that directly precede a closing
// bracket or brace, skipping string literals.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// stripLineComment removes a // comment that sits outside a string literal.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

// Package parser turns generated episode scripts into caption sentences.
package parser

import (
	"regexp"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Script is a parsed episode script.
type Script struct {
	// Title from frontmatter or the first heading, if any.
	Title string
	// Sentences in playback order, used as captions.
	Sentences []string
}

var (
	headingPattern  = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	bulletPattern   = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	speakerPattern  = regexp.MustCompile(`^\s*\*{0,2}([A-Z][A-Za-z0-9 ]{0,24})\*{0,2}:\*{0,2}\s+`)
	cuePattern      = regexp.MustCompile(`\[(?:[^\]]*)\]|\((?:music|pause|sfx)[^)]*\)`)
	emphasisPattern = regexp.MustCompile(`[*_]{1,3}([^*_]+)[*_]{1,3}`)
)

// ParseScript strips markdown and stage cues from text and splits it into sentences.
func ParseScript(text string) Script {
	var script Script

	remaining := text
	if strings.HasPrefix(remaining, "---\n") {
		if end := strings.Index(remaining[4:], "\n---"); end > 0 {
			var fm map[string]any
			if err := yaml.Unmarshal([]byte(remaining[4:4+end]), &fm); err == nil {
				if title, ok := fm["title"].(string); ok {
					script.Title = title
				}
			}
			remaining = strings.TrimPrefix(remaining[4+end+4:], "\n")
		}
	}

	var body strings.Builder
	for _, line := range strings.Split(remaining, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			if script.Title == "" {
				script.Title = strings.TrimSpace(m[1])
			}
			continue
		}
		line = bulletPattern.ReplaceAllString(line, "")
		line = speakerPattern.ReplaceAllString(line, "")
		line = cuePattern.ReplaceAllString(line, "")
		line = emphasisPattern.ReplaceAllString(line, "$1")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString(" ")
		}
		body.WriteString(line)
	}

	for _, s := range SplitSentences(body.String()) {
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			script.Sentences = append(script.Sentences, s)
		}
	}
	return script
}

// SplitSentences splits text at sentence-ending punctuation followed by
// whitespace or end of text.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// Absorb closing quotes and repeated punctuation.
		for i+1 < len(runes) && strings.ContainsRune(`.!?"')`+"”", runes[i+1]) {
			i++
			current.WriteRune(runes[i])
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		// Single capital before a period is likely an initial ("J. Smith").
		if r == '.' && i >= 1 && unicode.IsUpper(runes[i-1]) && (i == 1 || unicode.IsSpace(runes[i-2])) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

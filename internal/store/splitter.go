package store

import "strings"

// tokenKind distinguishes heading lines from content lines in the first
// splitting pass.
type tokenKind int

const (
	tokenContent tokenKind = iota
	tokenHeading
)

// lineToken is one source line classified by the first pass. Level is the
// heading level (1-based) and only set for tokenHeading.
type lineToken struct {
	kind  tokenKind
	level int
	text  string
}

// splitHeadings splits markdown content into heading-bounded spans. A span
// starts at each heading of level 1..maxLevel and runs until the next such
// heading; deeper headings fold into the enclosing span. The governing
// heading chain is retained as a prefix so each span is self-describing.
// Content with no qualifying headings yields a single whole-content span.
func splitHeadings(content string, maxLevel int) []string {
	tokens := tokenizeLines(content)

	var spans []string
	// chain holds the governing headings by level (index 0 = level 1).
	chain := make([]string, maxLevel)
	var current []string
	currentHasHeading := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimRight(strings.Join(current, "\n"), "\n")
		if !currentHasHeading && strings.TrimSpace(text) == "" {
			current = nil
			return
		}
		spans = append(spans, text)
		current = nil
		currentHasHeading = false
	}

	for _, tok := range tokens {
		if tok.kind == tokenHeading && tok.level <= maxLevel {
			flush()
			chain[tok.level-1] = tok.text
			for i := tok.level; i < maxLevel; i++ {
				chain[i] = ""
			}
			for _, h := range chain[:tok.level-1] {
				if h != "" {
					current = append(current, h)
				}
			}
			current = append(current, tok.text)
			currentHasHeading = true
			continue
		}
		current = append(current, tok.text)
	}
	flush()

	if len(spans) == 0 {
		return []string{content}
	}
	return spans
}

// tokenizeLines is the first pass: classify each line as a heading (with its
// level) or content. Lines inside fenced code blocks are never headings.
func tokenizeLines(content string) []lineToken {
	lines := strings.Split(content, "\n")
	tokens := make([]lineToken, 0, len(lines))
	inFence := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			tokens = append(tokens, lineToken{kind: tokenContent, text: line})
			continue
		}
		if level := headingLevel(trimmed); level > 0 && !inFence {
			tokens = append(tokens, lineToken{kind: tokenHeading, level: level, text: trimmed})
			continue
		}
		tokens = append(tokens, lineToken{kind: tokenContent, text: line})
	}
	return tokens
}

// headingLevel returns the ATX heading level of a trimmed line, or 0 if the
// line is not a heading. A heading needs "#"s followed by a space and text.
func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0
	}
	rest := line[level:]
	if !strings.HasPrefix(rest, " ") || strings.TrimSpace(rest) == "" {
		return 0
	}
	return level
}

// Package markdown converts richly formatted draft text into the single-line
// canonical form used for storage. LaTeX formulas are preserved byte for byte,
// including their delimiters, even when the formula body contains sequences
// that look like markup.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	blockFormulaRe  = regexp.MustCompile(`(?s)\$\$[^$]+\$\$`)
	inlineFormulaRe = regexp.MustCompile(`\$[^$]+\$`)

	codeBlockRe  = regexp.MustCompile("(?s)```[^\n]*\n(.+?)```")
	codeInlineRe = regexp.MustCompile("`([^`]+)`")
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRe     = regexp.MustCompile(`\*(.+?)\*|_(.+?)_`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)

	headingRe    = regexp.MustCompile(`^#{1,6}\s+`)
	blockquoteRe = regexp.MustCompile(`^>\s+`)
	listRe       = regexp.MustCompile(`^[*\-+]\s+|^\d+\.\s+`)
	hrRe         = regexp.MustCompile(`^[*\-_]{3,}$`)

	spaceRunRe = regexp.MustCompile(`[ \t]+`)
)

// Normalize converts draft text to the canonical single-line form:
// formulas are swapped for opaque tokens, structural markup is stripped,
// line breaks and whitespace runs are collapsed, and the formulas are
// restored verbatim. Empty input yields empty output.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	n := &normalizer{formulas: make(map[string]string)}

	out := n.protectFormulas(text)
	out = stripFormatting(out)
	out = collapseWhitespace(out)
	out = n.restoreFormulas(out)

	return strings.TrimSpace(out)
}

type normalizer struct {
	formulas map[string]string
	counter  int
}

// token builds a placeholder that no stripping or whitespace pass can touch:
// NUL bytes never appear in markup patterns and carry no whitespace.
func (n *normalizer) token() string {
	t := fmt.Sprintf("\x00%d\x00", n.counter)
	n.counter++
	return t
}

func (n *normalizer) protectFormulas(text string) string {
	// Block formulas first so $$...$$ is not consumed as two inline ones.
	text = blockFormulaRe.ReplaceAllStringFunc(text, func(m string) string {
		t := n.token()
		n.formulas[t] = m
		return t
	})
	return inlineFormulaRe.ReplaceAllStringFunc(text, func(m string) string {
		t := n.token()
		n.formulas[t] = m
		return t
	})
}

func (n *normalizer) restoreFormulas(text string) string {
	for token, formula := range n.formulas {
		text = strings.Replace(text, token, formula, 1)
	}
	return text
}

func stripFormatting(text string) string {
	text = codeBlockRe.ReplaceAllString(text, "$1")
	text = codeInlineRe.ReplaceAllString(text, "$1")
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1$2")
	text = italicRe.ReplaceAllString(text, "$1$2")
	text = strikeRe.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if hrRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		line = headingRe.ReplaceAllString(line, "")
		line = blockquoteRe.ReplaceAllString(line, "")
		line = listRe.ReplaceAllString(line, "")
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// collapseWhitespace removes line breaks (joining lines directly, which is
// the expected behavior for CJK question text) and squashes runs of spaces
// and tabs into a single space.
func collapseWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\n", "")
	return spaceRunRe.ReplaceAllString(text, " ")
}

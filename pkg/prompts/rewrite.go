// Package prompts holds prompt templates and response parsing for the
// rewrite pipeline.
package prompts

import (
	"strconv"
	"strings"
)

// DefaultRewriteTemplate is used when no operator-provided template is
// configured. Placeholders are replaced literally, not via text/template, so
// braces inside question content cannot break rendering.
const DefaultRewriteTemplate = `You are an experienced exam author. Rewrite the following question into a new variant.

Requirements:
- Keep the knowledge points and difficulty identical.
- Change the surface details (names, numbers, phrasing) so the variant reads as a fresh question.
- Keep all mathematical notation in LaTeX.
- This is variant number {version} of 5; make it distinct from other variants.

Original question:
{question}

Original answer:
{answer}

Respond in exactly this format:

## Question
<the rewritten question>

## Answer
<the answer to the rewritten question>`

// BuildRewritePrompt renders the template with the given content. A single
// replacement pass keeps placeholder-like text inside the question or answer
// from being substituted again.
func BuildRewritePrompt(template, question, answer string, version int) string {
	if template == "" {
		template = DefaultRewriteTemplate
	}
	return strings.NewReplacer(
		"{question}", question,
		"{answer}", answer,
		"{version}", strconv.Itoa(version),
	).Replace(template)
}

// ParseRewriteResponse splits a model response into question and answer
// sections. Sections are introduced by "##" headings; matching is
// case-insensitive on the heading word. ok is false when no question
// section could be found, in which case callers fall back to the raw
// response.
func ParseRewriteResponse(response string) (question, answer string, ok bool) {
	for _, section := range strings.Split(response, "##") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		heading, body, found := strings.Cut(section, "\n")
		if !found {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(heading)) {
		case "question":
			question = strings.TrimSpace(body)
		case "answer":
			answer = strings.TrimSpace(body)
		}
	}
	return question, answer, question != ""
}

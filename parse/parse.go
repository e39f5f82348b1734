// Package parse extracts structured post candidates from raw model output.
// Model output is hostile input: fences may be mislabeled, JSON may carry
// raw control characters inside string values, and some replies fall back
// to labeled plain text. Extraction degrades stage by stage and never
// returns an error.
package parse

import (
	"encoding/json"
	"regexp"
	"strings"

	"postcrafter/post"
)

// Result holds whatever candidates could be recovered. Both fields nil
// means extraction failed entirely; one candidate is a valid partial
// outcome.
type Result struct {
	PostA *post.Candidate
	PostB *post.Candidate
}

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	anyFenceRe  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
	braceSpanRe = regexp.MustCompile(`(?s)\{.*\}`)
	textValueRe = regexp.MustCompile(`(?s)("text"\s*:\s*")(.*?)("\s*[,}])`)

	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
)

// ExtractPosts recovers post candidates from a raw model reply.
func ExtractPosts(raw string) Result {
	if payload, ok := extractJSONPayload(raw); ok {
		if result, ok := parsePayload(payload); ok {
			return result
		}
		// One repair attempt: escape raw control characters inside the
		// "text" string values, then reparse.
		if result, ok := parsePayload(repairTextValues(payload)); ok {
			return result
		}
	}
	return extractLabeled(raw)
}

// extractJSONPayload finds the most likely JSON span: a json-labeled fence,
// then any fence whose body starts like JSON, then the widest brace span.
func extractJSONPayload(raw string) (string, bool) {
	if m := jsonFenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	for _, m := range anyFenceRe.FindAllStringSubmatch(raw, -1) {
		body := strings.TrimSpace(m[1])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			return body, true
		}
	}
	if m := braceSpanRe.FindString(raw); m != "" {
		return m, true
	}
	return "", false
}

// repairTextValues escapes raw backslashes and control characters inside
// "text": "…" values. Backslashes first, so the escapes just added are not
// doubled.
func repairTextValues(payload string) string {
	return textValueRe.ReplaceAllStringFunc(payload, func(match string) string {
		parts := textValueRe.FindStringSubmatch(match)
		value := parts[2]
		value = strings.ReplaceAll(value, `\`, `\\`)
		value = strings.ReplaceAll(value, "\n", `\n`)
		value = strings.ReplaceAll(value, "\r", `\r`)
		value = strings.ReplaceAll(value, "\t", `\t`)
		return parts[1] + value + parts[3]
	})
}

type rawCandidate struct {
	Text string `json:"text"`
}

type rawPosts struct {
	PostA json.RawMessage `json:"post_a"`
	PostB json.RawMessage `json:"post_b"`
}

func parsePayload(payload string) (Result, bool) {
	var posts rawPosts
	if err := json.Unmarshal([]byte(payload), &posts); err != nil {
		return Result{}, false
	}

	result := Result{
		PostA: candidateFrom(posts.PostA),
		PostB: candidateFrom(posts.PostB),
	}
	if result.PostA == nil && result.PostB == nil {
		return Result{}, false
	}
	return result, true
}

// candidateFrom accepts either an object with a "text" field or a bare
// JSON string.
func candidateFrom(raw json.RawMessage) *post.Candidate {
	if len(raw) == 0 {
		return nil
	}

	var obj rawCandidate
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
		return newCleanCandidate(obj.Text)
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil && plain != "" {
		return newCleanCandidate(plain)
	}
	return nil
}

func newCleanCandidate(text string) *post.Candidate {
	cleaned := StripMarkdown(strings.TrimSpace(text))
	if cleaned == "" {
		return nil
	}
	return post.NewCandidate(cleaned)
}

// StripMarkdown removes emphasis markers the model sometimes adds despite
// instructions. Bold before italic, so ** pairs are not half-consumed.
func StripMarkdown(text string) string {
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	return text
}

// extractLabeled handles the legacy plain-text layout where candidates
// follow [案A] and [案B] labels. Each section runs to the next bracketed
// label or the end of the reply.
func extractLabeled(raw string) Result {
	return Result{
		PostA: labeledCandidate(raw, "[案A]", "[案B]"),
		PostB: labeledCandidate(raw, "[案B]", ""),
	}
}

func labeledCandidate(raw, label, sibling string) *post.Candidate {
	start := strings.Index(raw, label)
	if start < 0 {
		return nil
	}
	section := raw[start+len(label):]

	end := len(section)
	if sibling != "" {
		if i := strings.Index(section, sibling); i >= 0 && i < end {
			end = i
		}
	}
	if i := strings.Index(section, "["); i >= 0 && i < end {
		end = i
	}

	return newCleanCandidate(section[:end])
}

// Package post defines the post-candidate data model shared by the
// structured-output parser and the conversation controller.
package post

import "unicode/utf8"

// MaxPostLength is the platform limit a candidate is validated against.
// The remote length checker may substitute a weighted count that differs
// from the raw rune count; when available the weighted value wins.
const MaxPostLength = 280

// Candidate is a single post draft. Immutable once created.
type Candidate struct {
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	IsValid        bool   `json:"is_valid"`
}

// NewCandidate builds a candidate from cleaned text using the raw rune count.
func NewCandidate(text string) *Candidate {
	count := utf8.RuneCountInString(text)
	return &Candidate{
		Text:           text,
		CharacterCount: count,
		IsValid:        count <= MaxPostLength,
	}
}

// NewCandidateWeighted builds a candidate using a remote weighted length.
func NewCandidateWeighted(text string, weightedLength int, isValid bool) *Candidate {
	return &Candidate{
		Text:           text,
		CharacterCount: weightedLength,
		IsValid:        isValid,
	}
}

// Metadata describes how a generation run went.
type Metadata struct {
	Model        string `json:"model"`
	TurnsUsed    int    `json:"turns_used"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// GenerationResult is the terminal outcome of one generation or refinement
// conversation. Either both candidates, one candidate, or none may be
// populated on success; Err is set only for hard LLM failures. Callers must
// check candidates independently of Err.
type GenerationResult struct {
	PostA    *Candidate `json:"post_a"`
	PostB    *Candidate `json:"post_b"`
	Metadata Metadata   `json:"metadata"`
	Err      string     `json:"error,omitempty"`
}

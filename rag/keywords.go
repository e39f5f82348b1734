package rag

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// ExtractKeywords pulls search terms out of a free-form topic. Tagged nouns
// and adjectives are preferred; when tagging yields nothing (short or
// non-English topics) every token longer than one rune is kept. Order is
// preserved and duplicates are dropped.
func ExtractKeywords(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" || max <= 0 {
		return nil
	}

	doc, err := prose.NewDocument(text)
	if err != nil {
		return fallbackKeywords(text, max)
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, tok := range doc.Tokens() {
		if !strings.HasPrefix(tok.Tag, "NN") && !strings.HasPrefix(tok.Tag, "JJ") {
			continue
		}
		kw := strings.ToLower(tok.Text)
		if len([]rune(kw)) < 2 || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == max {
			return keywords
		}
	}

	if len(keywords) == 0 {
		return fallbackKeywords(text, max)
	}
	return keywords
}

func fallbackKeywords(text string, max int) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '　' || r == ',' || r == '、' || r == '。' || r == '\n' || r == '\t'
	}) {
		kw := strings.ToLower(strings.TrimSpace(field))
		if len([]rune(kw)) < 2 || seen[kw] {
			continue
		}
		seen[kw] = true
		keywords = append(keywords, kw)
		if len(keywords) == max {
			break
		}
	}
	return keywords
}

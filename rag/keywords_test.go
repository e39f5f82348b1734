package rag

import (
	"strings"
	"testing"
)

func TestExtractKeywordsEnglish(t *testing.T) {
	got := ExtractKeywords("new market research campaign for spring", 3)
	if len(got) == 0 {
		t.Fatal("expected keywords from an English topic")
	}
	if len(got) > 3 {
		t.Errorf("got %d keywords, want at most 3", len(got))
	}
	for _, kw := range got {
		if kw != strings.ToLower(kw) {
			t.Errorf("keyword %q not lowercased", kw)
		}
	}
}

func TestExtractKeywordsJapaneseFallback(t *testing.T) {
	got := ExtractKeywords("新商品 キャンペーン 発売", 5)
	want := []string{"新商品", "キャンペーン", "発売"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyword[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExtractKeywordsEdgeCases(t *testing.T) {
	if got := ExtractKeywords("", 3); got != nil {
		t.Errorf("empty topic = %v, want nil", got)
	}
	if got := ExtractKeywords("topic", 0); got != nil {
		t.Errorf("zero max = %v, want nil", got)
	}
	got := ExtractKeywords("spring spring spring", 5)
	if len(got) > 1 {
		t.Errorf("duplicates not collapsed: %v", got)
	}
}

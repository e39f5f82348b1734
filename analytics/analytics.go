// Package analytics turns raw performance records into the natural-language
// context block that generation prompts consume. The output is opaque text;
// nothing downstream parses it.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"postcrafter/retrieval"
)

const (
	topPerformerCount = 3
	themeExampleCount = 2
	dailyTrendDays    = 30
	snippetLength     = 60
)

// Accessor key lists for the metric fields across known record layouts.
var (
	engagementKeys     = []string{"エンゲージメント率", "engagement_rate", "eng_rate"}
	impressionKeys     = []string{"インプレッション数", "インプレッション", "impressions"}
	likeKeys           = []string{"いいね数", "likes"}
	dailyPostCountKeys = []string{"投稿数", "post_count"}
)

type postSource interface {
	PostRecords(ctx context.Context, limit int) ([]retrieval.Record, error)
	DailyStats(ctx context.Context, limit int) ([]retrieval.Record, error)
}

// Service assembles performance summaries from the analytics store.
type Service struct {
	source     postSource
	fetchLimit int
	logger     *zap.Logger
}

func NewService(source postSource, fetchLimit int, logger *zap.Logger) *Service {
	return &Service{source: source, fetchLimit: fetchLimit, logger: logger}
}

// scoredPost is an analytics record with its parsed engagement rate.
type scoredPost struct {
	text string
	rate float64
}

// PromptContext builds the formatted performance context for a theme. Each
// section degrades independently: missing or unparsable records simply drop
// their section rather than failing the whole summary.
func (s *Service) PromptContext(ctx context.Context, theme string) (string, error) {
	records, err := s.source.PostRecords(ctx, s.fetchLimit)
	if err != nil {
		return "", err
	}

	posts := parsePosts(records)

	var sections []string
	if sec := topPerformersSection(posts); sec != "" {
		sections = append(sections, sec)
	}
	if sec := contentPatternsSection(posts); sec != "" {
		sections = append(sections, sec)
	}

	daily, err := s.source.DailyStats(ctx, dailyTrendDays)
	if err != nil {
		s.logger.Warn("Failed to fetch daily stats for performance context", zap.Error(err))
	} else if sec := dailyTrendSection(daily); sec != "" {
		sections = append(sections, sec)
	}

	if theme != "" {
		if sec := themeExamplesSection(posts, theme); sec != "" {
			sections = append(sections, sec)
		}
	}

	if len(sections) == 0 {
		return "", nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func parsePosts(records []retrieval.Record) []scoredPost {
	posts := make([]scoredPost, 0, len(records))
	for _, r := range records {
		text := retrieval.TextOf(r)
		if text == "" {
			continue
		}
		rate, ok := parseRate(retrieval.Resolve(r, engagementKeys))
		if !ok {
			rate = 0
		}
		posts = append(posts, scoredPost{text: text, rate: rate})
	}
	return posts
}

func topPerformersSection(posts []scoredPost) string {
	if len(posts) == 0 {
		return ""
	}

	ranked := make([]scoredPost, len(posts))
	copy(ranked, posts)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].rate > ranked[j].rate })
	if len(ranked) > topPerformerCount {
		ranked = ranked[:topPerformerCount]
	}

	var b strings.Builder
	b.WriteString("高パフォーマンス投稿:")
	for i, p := range ranked {
		fmt.Fprintf(&b, "\n%d. (エンゲージメント率 %.2f%%) %s", i+1, p.rate, snippet(p.text))
	}
	return b.String()
}

func contentPatternsSection(posts []scoredPost) string {
	if len(posts) == 0 {
		return ""
	}

	var totalLen, withURL, withTag int
	for _, p := range posts {
		totalLen += utf8.RuneCountInString(p.text)
		if strings.Contains(p.text, "http") {
			withURL++
		}
		if strings.Contains(p.text, "#") {
			withTag++
		}
	}
	n := len(posts)
	return fmt.Sprintf("投稿傾向: 平均文字数 %d、URL付き %.0f%%、ハッシュタグ付き %.0f%%",
		totalLen/n, 100*float64(withURL)/float64(n), 100*float64(withTag)/float64(n))
}

func dailyTrendSection(daily []retrieval.Record) string {
	if len(daily) == 0 {
		return ""
	}

	var impressions, likes, postDays float64
	var counted int
	for _, r := range daily {
		if v, ok := parseNumber(retrieval.Resolve(r, impressionKeys)); ok {
			impressions += v
			counted++
		}
		if v, ok := parseNumber(retrieval.Resolve(r, likeKeys)); ok {
			likes += v
		}
		if v, ok := parseNumber(retrieval.Resolve(r, dailyPostCountKeys)); ok && v > 0 {
			postDays++
		}
	}
	if counted == 0 {
		return ""
	}
	return fmt.Sprintf("直近%d日の傾向: 平均インプレッション %.0f、平均いいね %.1f、投稿日数 %.0f日",
		len(daily), impressions/float64(counted), likes/float64(counted), postDays)
}

func themeExamplesSection(posts []scoredPost, theme string) string {
	var matched []scoredPost
	for _, p := range posts {
		if strings.Contains(p.text, theme) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return ""
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].rate > matched[j].rate })
	if len(matched) > themeExampleCount {
		matched = matched[:themeExampleCount]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "テーマ「%s」の好反応例:", theme)
	for i, p := range matched {
		fmt.Fprintf(&b, "\n%d. %s", i+1, snippet(p.text))
	}
	return b.String()
}

// parseRate accepts "3.2" or "3.2%" style values, taken as a percentage.
func parseRate(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseNumber(raw string) (float64, bool) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func snippet(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "…"
}

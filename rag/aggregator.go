// Package rag aggregates retrieval context for post generation: knowledge
// records, similar historical posts, and an analytics summary, fetched
// concurrently with per-source failure isolation.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"postcrafter/config"
	"postcrafter/embedding"
	"postcrafter/retrieval"
)

type knowledgeSource interface {
	SearchByURL(ctx context.Context, url string, topK int) ([]retrieval.Item, error)
	SearchByKeywords(ctx context.Context, keywords []string, topK int) ([]retrieval.Item, error)
}

type historySource interface {
	RecentPosts(ctx context.Context, limit int) ([]retrieval.Record, error)
}

type similarityRanker interface {
	Rank(ctx context.Context, query string, candidates []string, topK int) []embedding.Ranked
}

type analyticsSummarizer interface {
	PromptContext(ctx context.Context, theme string) (string, error)
}

// Request names the inputs that drive context aggregation. Empty fields
// skip their corresponding retrieval paths.
type Request struct {
	URL         string
	Topic       string
	Anniversary string
}

// ScoredPost is a historical post with its similarity score to the request.
type ScoredPost struct {
	Text  string
	Score float64
}

// Bundle is the aggregated context handed to prompt assembly. Any field may
// be empty when its source failed or the request did not exercise it.
type Bundle struct {
	KnowledgeItems   []retrieval.Item
	SimilarPosts     []ScoredPost
	AnalyticsSummary string
	RenderedSummary  string
}

// Aggregator fans out to the retrieval sources and merges their results.
type Aggregator struct {
	knowledge knowledgeSource
	history   historySource
	ranker    similarityRanker
	analytics analyticsSummarizer
	logger    *zap.Logger

	perURLCap       int
	totalCap        int
	keywordTopK     int
	similarTopK     int
	anniversaryTopK int
	historyLimit    int
	minPostTextLen  int
	sourceTimeout   time.Duration
}

func NewAggregator(knowledge knowledgeSource, history historySource, ranker similarityRanker,
	analytics analyticsSummarizer, cfg *config.Config, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		knowledge:       knowledge,
		history:         history,
		ranker:          ranker,
		analytics:       analytics,
		logger:          logger,
		perURLCap:       cfg.KnowledgeResultsPerURL,
		totalCap:        cfg.KnowledgeTotalResults,
		keywordTopK:     cfg.KnowledgeKeywordTopK,
		similarTopK:     cfg.SimilarPostsTopK,
		anniversaryTopK: cfg.AnniversaryPostsTopK,
		historyLimit:    cfg.HistoryFetchLimit,
		minPostTextLen:  cfg.MinPostTextLength,
		sourceTimeout:   cfg.SourceQueryTimeout,
	}
}

// Aggregate runs the source queries concurrently and returns the merged
// bundle. A failed source logs a warning and leaves its field empty; no
// error ever escapes here.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) *Bundle {
	if a.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.sourceTimeout)
		defer cancel()
	}

	bundle := &Bundle{}
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		bundle.KnowledgeItems = a.collectKnowledge(ctx, req)
	}()

	var similar, anniversary []ScoredPost
	go func() {
		defer wg.Done()
		if req.Topic != "" {
			similar = a.collectSimilarPosts(ctx, req.Topic, a.similarTopK)
		}
	}()
	go func() {
		defer wg.Done()
		if req.Anniversary != "" {
			anniversary = a.collectSimilarPosts(ctx, req.Anniversary, a.anniversaryTopK)
		}
	}()
	go func() {
		defer wg.Done()
		if req.Topic != "" && a.analytics != nil {
			summary, err := a.analytics.PromptContext(ctx, req.Topic)
			if err != nil {
				a.logger.Warn("Failed to build analytics summary", zap.Error(err))
				return
			}
			bundle.AnalyticsSummary = summary
		}
	}()

	wg.Wait()

	// Anniversary results join the similar-posts list. History records have
	// no stable ids, so the merge deduplicates by literal text equality.
	bundle.SimilarPosts = mergePostsByText(similar, anniversary)
	bundle.RenderedSummary = renderSummary(bundle)
	return bundle
}

// collectKnowledge fans out over the comma-separated URL list, merges by id
// with first-seen-wins dedup, then folds in keyword matches for the topic.
// Truncation to the global cap happens only after the full merge, so a
// high-scoring item from a later URL is never lost to an earlier listing.
func (a *Aggregator) collectKnowledge(ctx context.Context, req Request) []retrieval.Item {
	seen := make(map[string]bool)
	var merged []retrieval.Item

	for _, rawURL := range strings.Split(req.URL, ",") {
		url := strings.TrimSpace(rawURL)
		if url == "" {
			continue
		}
		items, err := a.knowledge.SearchByURL(ctx, url, a.perURLCap)
		if err != nil {
			a.logger.Warn("Knowledge URL lookup failed",
				zap.String("url", url),
				zap.Error(err))
			continue
		}
		for _, item := range items {
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			merged = append(merged, item)
		}
	}

	if req.Topic != "" {
		keywords := ExtractKeywords(req.Topic, a.keywordTopK)
		if len(keywords) > 0 {
			items, err := a.knowledge.SearchByKeywords(ctx, keywords, a.keywordTopK)
			if err != nil {
				a.logger.Warn("Knowledge keyword search failed",
					zap.Strings("keywords", keywords),
					zap.Error(err))
			}
			for _, item := range items {
				if seen[item.ID] {
					continue
				}
				seen[item.ID] = true
				merged = append(merged, item)
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if len(merged) > a.totalCap {
		merged = merged[:a.totalCap]
	}
	return merged
}

// collectSimilarPosts ranks recent history against a query. Records whose
// resolved text is shorter than the minimum are metadata rows or fragments,
// not posts, and are dropped before ranking.
func (a *Aggregator) collectSimilarPosts(ctx context.Context, query string, topK int) []ScoredPost {
	records, err := a.history.RecentPosts(ctx, a.historyLimit)
	if err != nil {
		a.logger.Warn("Failed to fetch post history", zap.Error(err))
		return nil
	}

	var texts []string
	for _, record := range records {
		text := retrieval.TextOf(record)
		if utf8.RuneCountInString(text) < a.minPostTextLen {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil
	}

	ranked := a.ranker.Rank(ctx, query, texts, topK)
	posts := make([]ScoredPost, 0, len(ranked))
	for _, r := range ranked {
		posts = append(posts, ScoredPost{Text: r.Text, Score: r.Score})
	}
	return posts
}

func mergePostsByText(primary, extra []ScoredPost) []ScoredPost {
	if len(extra) == 0 {
		return primary
	}
	seen := make(map[string]bool, len(primary))
	for _, p := range primary {
		seen[p.Text] = true
	}
	merged := primary
	for _, p := range extra {
		if seen[p.Text] {
			continue
		}
		seen[p.Text] = true
		merged = append(merged, p)
	}
	return merged
}

// renderSummary produces the short human-readable digest of the bundle,
// up to three entries per section.
func renderSummary(bundle *Bundle) string {
	const sectionCap = 3
	var sections []string

	if len(bundle.KnowledgeItems) > 0 {
		var b strings.Builder
		b.WriteString("参考ナレッジ:")
		for i, item := range bundle.KnowledgeItems {
			if i == sectionCap {
				break
			}
			line := item.Title
			if line == "" {
				line = item.Description
			}
			fmt.Fprintf(&b, "\n- %s", line)
		}
		sections = append(sections, b.String())
	}

	if len(bundle.SimilarPosts) > 0 {
		var b strings.Builder
		b.WriteString("類似投稿:")
		for i, p := range bundle.SimilarPosts {
			if i == sectionCap {
				break
			}
			fmt.Fprintf(&b, "\n- (%.2f) %s", p.Score, p.Text)
		}
		sections = append(sections, b.String())
	}

	if bundle.AnalyticsSummary != "" {
		sections = append(sections, bundle.AnalyticsSummary)
	}

	return strings.Join(sections, "\n\n")
}

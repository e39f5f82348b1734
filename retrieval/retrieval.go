// Package retrieval holds the read-only adapters over the external content
// sources: the vector knowledge base, the historical-post store, and the
// analytics store. Adapters return raw, source-specific records; ranking and
// deduplication happen downstream in the aggregator.
package retrieval

// Kind identifies which source produced an item.
type Kind string

const (
	KindKnowledgeBase Kind = "knowledge_base"
	KindHistory       Kind = "history"
	KindAnalytics     Kind = "analytics"
)

// Item is one retrieved record. ID is unique per source and drives
// deduplication; Score drives ranking and is normalized to [0,1].
type Item struct {
	ID          string
	Score       float64
	Title       string
	Description string
	Content     string
	URL         string
	Metadata    map[string]string
	Source      Kind
}

// Record is a raw historical or analytics row. Field names vary across
// sources (sheet exports, analytics dumps), so records are plain maps and
// values are resolved through ordered accessor-key lists.
type Record map[string]string

// postTextKeys is the ordered list of field names a post text may live
// under, across the known record layouts. First non-empty wins.
var postTextKeys = []string{"最終投稿", "ツイート本文", "text", "投稿本文", "内容"}

// TextOf resolves the post text of a record across heterogeneous layouts.
func TextOf(r Record) string {
	return Resolve(r, postTextKeys)
}

// Resolve returns the first non-empty value among the given keys.
func Resolve(r Record, keys []string) string {
	for _, key := range keys {
		if v, ok := r[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

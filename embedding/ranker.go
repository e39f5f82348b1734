package embedding

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"
)

// similarityEpsilon guards the cosine denominator against zero vectors.
const similarityEpsilon = 1e-10

// Ranked pairs a candidate with its similarity score against the query.
// Index is the candidate's original position, preserved for tie-breaking.
type Ranked struct {
	Text  string
	Score float64
	Index int
}

// CosineSimilarity computes cosine similarity on L2-normalized vectors.
// Zero or mismatched vectors yield a near-zero score instead of NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + similarityEpsilon)
}

// Ranker orders candidate texts by semantic similarity to a query.
type Ranker struct {
	embedder Embedder
	logger   *zap.Logger
}

func NewRanker(embedder Embedder, logger *zap.Logger) *Ranker {
	return &Ranker{embedder: embedder, logger: logger}
}

// Rank embeds the query once, embeds all candidates in a batch, and returns
// up to topK results in descending score order. The sort is stable: tied
// scores keep the original candidate order. An embedding failure for a
// single candidate degrades to a zero vector, sinking that item naturally
// rather than aborting the batch.
func (r *Ranker) Rank(ctx context.Context, query string, candidates []string, topK int) []Ranked {
	if len(candidates) == 0 || topK <= 0 {
		return nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("Failed to embed ranking query, using zero vector",
			zap.String("query", query),
			zap.Error(err))
		queryVec = make([]float32, r.embedder.Dimensions())
	}

	candidateVecs, err := r.embedder.EmbedBatch(ctx, candidates)
	if err != nil || len(candidateVecs) != len(candidates) {
		r.logger.Warn("Failed to embed ranking candidates", zap.Error(err))
		return nil
	}

	ranked := make([]Ranked, len(candidates))
	for i, vec := range candidateVecs {
		ranked[i] = Ranked{
			Text:  candidates[i],
			Score: CosineSimilarity(queryVec, vec),
			Index: i,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

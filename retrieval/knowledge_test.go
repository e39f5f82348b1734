package retrieval

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"postcrafter/database"
	pcerrors "postcrafter/errors"
)

type fakeEmbedder struct {
	lastQuery string
	vec       []float32
	err       error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.lastQuery = text
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

type fakeStore struct {
	lastVec   []float32
	rows      []database.KnowledgeRow
	embedding []float32
	err       error
}

func (f *fakeStore) SearchKnowledge(ctx context.Context, queryVec []float32, topK int) ([]database.KnowledgeRow, error) {
	f.lastVec = queryVec
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > topK {
		return f.rows[:topK], nil
	}
	return f.rows, nil
}

func (f *fakeStore) SearchKnowledgeByKeywords(ctx context.Context, keywords []string, limit int) ([]database.KnowledgeRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rows, nil
}

func (f *fakeStore) FetchEmbedding(ctx context.Context, id string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

func TestSearchByURLUsesVectorSimilarity(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	store := &fakeStore{rows: []database.KnowledgeRow{
		{ID: "k1", Score: 0.92, Title: "新商品の発表", URL: "https://example.com/products"},
		{ID: "k2", Score: 0.71, Title: "キャンペーン情報", URL: "https://example.com/products/"},
	}}
	logger, _ := zap.NewDevelopment()
	kb := &KnowledgeBase{store: store, embedder: embedder, logger: logger}

	items, err := kb.SearchByURL(context.Background(), "  https://example.com/products  ", 5)
	if err != nil {
		t.Fatalf("SearchByURL returned error: %v", err)
	}

	if embedder.lastQuery != "https://example.com/products" {
		t.Errorf("expected trimmed URL to be embedded, got %q", embedder.lastQuery)
	}
	if len(store.lastVec) != 3 {
		t.Fatalf("expected the URL embedding to drive the search, got vector %v", store.lastVec)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	// Scores come from vector similarity, so URL variants surface with
	// distinct relevance instead of a uniform listing score.
	if items[0].Score != 0.92 || items[1].Score != 0.71 {
		t.Errorf("expected similarity scores 0.92 and 0.71, got %.2f and %.2f",
			items[0].Score, items[1].Score)
	}
	if items[0].Score == items[1].Score {
		t.Error("expected distinct scores across URL variants")
	}
}

func TestSearchByURLEmbedFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding endpoint down")}
	logger, _ := zap.NewDevelopment()
	kb := &KnowledgeBase{store: &fakeStore{}, embedder: embedder, logger: logger}

	items, err := kb.SearchByURL(context.Background(), "https://example.com", 3)
	if err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if !pcerrors.IsSourceUnavailable(err) {
		t.Errorf("expected source-unavailable category, got %v", err)
	}
	if items != nil {
		t.Errorf("expected no items on failure, got %v", items)
	}
}

func TestRelatedItemsExcludesSelf(t *testing.T) {
	store := &fakeStore{
		embedding: []float32{0.5, 0.5},
		rows: []database.KnowledgeRow{
			{ID: "k1", Score: 1.0},
			{ID: "k2", Score: 0.88},
			{ID: "k3", Score: 0.75},
		},
	}
	logger, _ := zap.NewDevelopment()
	kb := &KnowledgeBase{store: store, embedder: &fakeEmbedder{}, logger: logger}

	items, err := kb.RelatedItems(context.Background(), "k1", 2)
	if err != nil {
		t.Fatalf("RelatedItems returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	for _, item := range items {
		if item.ID == "k1" {
			t.Error("the queried record itself should be excluded")
		}
	}
}

package db

import (
	"context"
	"testing"

	pgvector "github.com/pgvector/pgvector-go"
)

func seedArticles(t *testing.T, pool *Pool, articles ...Article) []Article {
	t.Helper()
	if err := pool.BulkInsertArticles(context.Background(), articles); err != nil {
		t.Fatalf("insert articles: %v", err)
	}
	return articles
}

func TestBulkInsertArticlesAssignsIDsAndTitlesExist(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	titles, err := pool.TitlesExist(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(titles) != 0 {
		t.Fatalf("expected empty corpus, got %d titles", len(titles))
	}

	articles := seedArticles(t, pool,
		Article{ParentTopic: "bitcoin", Title: "T1", URL: "https://example.com/1"},
		Article{ParentTopic: "crypto", Title: "T2", URL: "https://example.com/2"},
	)
	if articles[0].ID == 0 || articles[1].ID == 0 {
		t.Fatalf("expected generated IDs, got %d and %d", articles[0].ID, articles[1].ID)
	}

	titles, err = pool.TitlesExist(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(titles) != 2 {
		t.Fatalf("expected 2 titles, got %d", len(titles))
	}
	if _, ok := titles["T1"]; !ok {
		t.Fatalf("expected T1 in corpus titles")
	}
}

func TestFeaturesRoundTripAndPendingArticles(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	articles := seedArticles(t, pool,
		Article{ParentTopic: "reuters", Title: "A", Maintext: "alpha"},
		Article{ParentTopic: "reuters", Title: "B", Maintext: "beta"},
	)

	pending, err := pool.ListArticlesWithoutFeatures(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending articles, got %d", len(pending))
	}

	err = pool.BulkInsertFeatures(ctx, []ArticleFeatures{{
		ArticleID:      articles[0].ID,
		TitleVector:    pgvector.NewVector([]float32{0.5, -1, 2}),
		NumNumericals:  1,
		NamedEntities:  []string{"_GPE_KABUL"},
		LemmatizedText: "taliban fighter",
	}})
	if err != nil {
		t.Fatalf("insert features: %v", err)
	}

	pending, err = pool.ListArticlesWithoutFeatures(ctx, 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "B" {
		t.Fatalf("unexpected pending articles: %+v", pending)
	}

	stored, err := pool.GetFeatures(ctx, articles[0].ID)
	if err != nil {
		t.Fatalf("get features: %v", err)
	}
	if got := stored.TitleVector.Slice(); len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected stored vector: %v", got)
	}
	if stored.NumNumericals != 1 {
		t.Fatalf("unexpected num_numericals: %d", stored.NumNumericals)
	}
	if len(stored.NamedEntities) != 1 || stored.NamedEntities[0] != "_GPE_KABUL" {
		t.Fatalf("unexpected entities: %v", stored.NamedEntities)
	}

	if _, err := pool.GetFeatures(ctx, articles[1].ID); !IsNoRows(err) {
		t.Fatalf("expected no rows for article without features, got %v", err)
	}
}

func TestListTitleVectorsIncludesSource(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	articles := seedArticles(t, pool,
		Article{ParentTopic: "t", Title: "first"},
		Article{ParentTopic: "t", Title: "second"},
		Article{ParentTopic: "t", Title: "third"},
	)
	features := make([]ArticleFeatures, 0, len(articles))
	for i, article := range articles {
		features = append(features, ArticleFeatures{
			ArticleID:     article.ID,
			TitleVector:   pgvector.NewVector([]float32{float32(i), 1}),
			NamedEntities: []string{},
		})
	}
	if err := pool.BulkInsertFeatures(ctx, features); err != nil {
		t.Fatalf("insert features: %v", err)
	}

	vectors, err := pool.ListTitleVectors(ctx, 1, articles[0].ID)
	if err != nil {
		t.Fatalf("list vectors: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected newest vector plus source, got %d", len(vectors))
	}
	if vectors[0].ArticleID != articles[0].ID || vectors[0].Title != "first" {
		t.Fatalf("expected source first in id order, got %+v", vectors[0])
	}
	if vectors[1].ArticleID != articles[2].ID {
		t.Fatalf("expected newest article second, got %+v", vectors[1])
	}
}

func TestCorpusStats(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	seedArticles(t, pool,
		Article{ParentTopic: "bitcoin", Title: "T1"},
		Article{ParentTopic: "bitcoin", Title: "T2"},
		Article{ParentTopic: "crypto", Title: "T3"},
	)

	stats, err := pool.CorpusStats(context.Background())
	if err != nil {
		t.Fatalf("corpus stats: %v", err)
	}
	if stats.Articles != 3 || stats.Features != 0 || stats.Topics != 2 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if len(stats.PerTopic) != 2 || stats.PerTopic[0].Topic != "bitcoin" || stats.PerTopic[0].Articles != 2 {
		t.Fatalf("unexpected per-topic counts: %+v", stats.PerTopic)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	if _, err := pool.GetArticle(context.Background(), 42); !IsNoRows(err) {
		t.Fatalf("expected no rows, got %v", err)
	}
}

func TestDeletingArticleRemovesItsFeatures(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	ctx := context.Background()

	articles := seedArticles(t, pool,
		Article{ParentTopic: "war", Title: "Kept", URL: "https://example.com/kept"},
		Article{ParentTopic: "war", Title: "Dropped", URL: "https://example.com/dropped"},
	)
	rows := make([]ArticleFeatures, 0, len(articles))
	for _, article := range articles {
		rows = append(rows, ArticleFeatures{
			ArticleID:     article.ID,
			TitleVector:   pgvector.NewVector([]float32{1, 0}),
			NamedEntities: []string{},
		})
	}
	if err := pool.BulkInsertFeatures(ctx, rows); err != nil {
		t.Fatalf("insert features: %v", err)
	}

	if err := pool.gdb.WithContext(ctx).Exec("DELETE FROM articles WHERE id = ?", articles[1].ID).Error; err != nil {
		t.Fatalf("delete article: %v", err)
	}

	if _, err := pool.GetFeatures(ctx, articles[1].ID); !IsNoRows(err) {
		t.Fatalf("expected features of deleted article to cascade, got %v", err)
	}
	if _, err := pool.GetFeatures(ctx, articles[0].ID); err != nil {
		t.Fatalf("expected features of kept article to remain, got %v", err)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"horse.fit/newsdigest/internal/config"
	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/features"
	"horse.fit/newsdigest/internal/globaltime"
	"horse.fit/newsdigest/internal/nlp"
	"horse.fit/newsdigest/internal/nlp/nlptest"
	"horse.fit/newsdigest/internal/reader"
	"horse.fit/newsdigest/internal/source"
)

func newTestPool(t *testing.T) *db.Pool {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	cfg := &config.Config{
		Environment: "test",
		LogLevel:    "silent",
		DatabaseURL: fmt.Sprintf("file:pipeline_%s?mode=memory&cache=shared", name),
		DBMinConns:  1,
		DBMaxConns:  1,
	}
	pool, err := db.NewPool(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(func() {
		_ = pool.Close()
	})
	return pool
}

type fakeProvider struct {
	results map[string][]source.Article
}

func (f fakeProvider) Name() string { return "fake" }

func (f fakeProvider) Search(_ context.Context, query source.Query) ([]source.Article, error) {
	return f.results[query.Topic], nil
}

type fakeFetcher struct {
	pages map[string]reader.Content
	fails map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (reader.Content, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.fails[url]; ok {
		return reader.Content{}, err
	}
	return f.pages[url], nil
}

func hit(title string) source.Article {
	return source.Article{Title: title, URL: "https://example.com/" + strings.ToLower(title), SourceName: "Example"}
}

func newExtractor(model nlp.Model) *features.Extractor {
	return features.NewExtractor(model, features.Options{Dimensions: 8})
}

func TestPullDedupsFetchesAndStoresPerTopic(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	if err := pool.BulkInsertArticles(context.Background(), []db.Article{{ParentTopic: "war", Title: "Known"}}); err != nil {
		t.Fatalf("seed article: %v", err)
	}

	provider := fakeProvider{results: map[string][]source.Article{
		"war":      {hit("Known"), hit("Alpha"), hit("Bravo")},
		"business": {hit("Alpha"), hit("Charlie"), hit("Delta"), hit("Echo")},
	}}
	fetcher := &fakeFetcher{
		pages: map[string]reader.Content{
			"https://example.com/alpha":   {Maintext: "KABUL on Sunday", SourceDomain: "example.com"},
			"https://example.com/charlie": {Maintext: "Markets rose 3 percent", Description: "markets"},
			"https://example.com/echo":    {Maintext: "bonjour tout le monde"},
		},
		fails: map[string]error{
			"https://example.com/bravo": reader.ErrEmptyContent,
			"https://example.com/delta": errors.New("connection reset"),
		},
	}
	english := func(text string) bool { return !strings.Contains(text, "bonjour") }

	svc := NewService(pool, Dependencies{Provider: provider, Fetcher: fetcher, Language: english}, zerolog.Nop())
	result, err := svc.Pull(context.Background(), PullOptions{Topics: []string{"war", "business"}})
	if err != nil {
		t.Fatalf("unexpected pull error: %v", err)
	}

	if result.RunID == "" {
		t.Fatalf("expected run id")
	}
	if result.Candidates != 7 || result.Unique != 5 {
		t.Fatalf("unexpected candidate counts: %+v", result)
	}
	if result.Fetched != 2 || result.EmptyContent != 1 || result.FetchFailed != 1 || result.LanguageSkipped != 1 {
		t.Fatalf("unexpected fetch counts: %+v", result)
	}
	if result.Inserted != 2 {
		t.Fatalf("expected 2 inserted, got %+v", result)
	}
	for _, url := range fetcher.calls {
		if url == "https://example.com/known" {
			t.Fatalf("did not expect a fetch for a stored title")
		}
	}

	titles, err := pool.TitlesExist(context.Background())
	if err != nil {
		t.Fatalf("titles exist: %v", err)
	}
	for _, want := range []string{"Known", "Alpha", "Charlie"} {
		if _, ok := titles[want]; !ok {
			t.Fatalf("expected stored title %q in %v", want, titles)
		}
	}
	if len(titles) != 3 {
		t.Fatalf("expected 3 stored titles, got %v", titles)
	}

	pending, err := pool.ListArticlesWithoutFeatures(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	var alpha db.Article
	for _, a := range pending {
		if a.Title == "Alpha" {
			alpha = a
		}
	}
	if alpha.ParentTopic != "war" || alpha.Source != "example.com" || alpha.URL != "https://example.com/alpha" {
		t.Fatalf("unexpected stored article: %+v", alpha)
	}

	again, err := svc.Pull(context.Background(), PullOptions{Topics: []string{"war", "business"}})
	if err != nil {
		t.Fatalf("unexpected second pull error: %v", err)
	}
	if again.Inserted != 0 || again.Unique != 3 {
		t.Fatalf("expected stored titles to be skipped on rerun, got %+v", again)
	}
}

func TestPullWithoutTopicsIsNoop(t *testing.T) {
	t.Parallel()

	svc := NewService(newTestPool(t), Dependencies{Provider: fakeProvider{}, Fetcher: &fakeFetcher{}}, zerolog.Nop())
	result, err := svc.Pull(context.Background(), PullOptions{Topics: []string{" "}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Topics != 0 || result.Inserted != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type recordingProvider struct {
	queries []source.Query
}

func (r *recordingProvider) Name() string { return "recording" }

func (r *recordingProvider) Search(_ context.Context, query source.Query) ([]source.Article, error) {
	r.queries = append(r.queries, query)
	return nil, nil
}

func TestPullDefaultsToToday(t *testing.T) {
	globaltime.SetMockTime(time.Date(2024, time.March, 9, 17, 45, 0, 0, time.FixedZone("EST", -5*3600)))
	t.Cleanup(globaltime.ResetTime)

	provider := &recordingProvider{}
	svc := NewService(newTestPool(t), Dependencies{Provider: provider, Fetcher: &fakeFetcher{}}, zerolog.Nop())
	if _, err := svc.Pull(context.Background(), PullOptions{Topics: []string{"markets"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(provider.queries) != 1 {
		t.Fatalf("expected one search, got %d", len(provider.queries))
	}
	want := time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC)
	got := provider.queries[0]
	if !got.From.Equal(want) || !got.To.Equal(want) {
		t.Fatalf("unexpected date range: %s..%s", got.From, got.To)
	}
}

func TestServiceRequiresPool(t *testing.T) {
	t.Parallel()

	var svc *Service
	if _, err := svc.Pull(context.Background(), PullOptions{}); err == nil {
		t.Fatalf("expected nil service error")
	}
	if _, err := NewService(nil, Dependencies{}, zerolog.Nop()).Extract(context.Background(), ExtractOptions{Limit: 1}); err == nil {
		t.Fatalf("expected missing pool error")
	}
}

func seedPending(t *testing.T, pool *db.Pool) []db.Article {
	t.Helper()

	articles := []db.Article{
		{ParentTopic: "war", Title: "Taliban take Kunduz", Maintext: "KABUL, Aug 8 (Reuters) - Taliban fighters overran Kunduz on Sunday"},
		{ParentTopic: "business", Title: "Markets rally", Maintext: "Stocks rose 3 percent"},
		{ParentTopic: "business", Title: "Quiet day"},
	}
	if err := pool.BulkInsertArticles(context.Background(), articles); err != nil {
		t.Fatalf("seed articles: %v", err)
	}
	return articles
}

func TestExtractStoresFeaturesInBatches(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	articles := seedPending(t, pool)
	model := nlptest.New(8, map[string]string{"KABUL": "GPE", "Reuters": "ORG"})

	svc := NewService(pool, Dependencies{Extractor: newExtractor(model)}, zerolog.Nop())
	result, err := svc.Extract(context.Background(), ExtractOptions{Limit: 10, BatchSize: 2})
	if err != nil {
		t.Fatalf("unexpected extract error: %v", err)
	}
	if result.Processed != 3 || result.Batches != 2 {
		t.Fatalf("unexpected extract result: %+v", result)
	}

	stored, err := pool.GetFeatures(context.Background(), articles[0].ID)
	if err != nil {
		t.Fatalf("get features: %v", err)
	}
	if stored.NumNumericals != 1 {
		t.Fatalf("expected 1 numeral, got %d", stored.NumNumericals)
	}
	if len(stored.TitleVector.Slice()) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(stored.TitleVector.Slice()))
	}
	entities := []string(stored.NamedEntities)
	if len(entities) != 2 || entities[0] != "_GPE_KABUL" || entities[1] != "_ORG_Reuters" {
		t.Fatalf("unexpected entities: %v", entities)
	}

	quiet, err := pool.GetFeatures(context.Background(), articles[2].ID)
	if err != nil {
		t.Fatalf("get features for empty article: %v", err)
	}
	if quiet.LemmatizedText != "" || len(quiet.NamedEntities) != 0 {
		t.Fatalf("expected empty body features, got %+v", quiet)
	}

	rerun, err := svc.Extract(context.Background(), ExtractOptions{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected rerun error: %v", err)
	}
	if rerun.Processed != 0 {
		t.Fatalf("expected nothing left to extract, got %+v", rerun)
	}
}

func TestExtractModelFailureStoresNothing(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	articles := seedPending(t, pool)
	model := nlptest.New(8, nil)
	model.Fail(nlp.ErrModelUnavailable)

	svc := NewService(pool, Dependencies{Extractor: newExtractor(model)}, zerolog.Nop())
	_, err := svc.Extract(context.Background(), ExtractOptions{Limit: 10})
	if !errors.Is(err, nlp.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable, got %v", err)
	}
	for _, article := range articles {
		if _, err := pool.GetFeatures(context.Background(), article.ID); !db.IsNoRows(err) {
			t.Fatalf("expected no features for article %d, got %v", article.ID, err)
		}
	}
}

func TestRecommendRanksByTitleVector(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	articles := []db.Article{
		{ParentTopic: "war", Title: "source"},
		{ParentTopic: "war", Title: "close"},
		{ParentTopic: "war", Title: "far"},
		{ParentTopic: "war", Title: "pending"},
	}
	if err := pool.BulkInsertArticles(context.Background(), articles); err != nil {
		t.Fatalf("seed articles: %v", err)
	}
	vectors := [][]float32{{1, 0, 0}, {0.9, 0.1, 0}, {0, 0, 1}}
	rows := make([]db.ArticleFeatures, 0, len(vectors))
	for i, vector := range vectors {
		rows = append(rows, db.ArticleFeatures{
			ArticleID:     articles[i].ID,
			TitleVector:   pgvector.NewVector(vector),
			NamedEntities: datatypes.JSONSlice[string]{},
		})
	}
	if err := pool.BulkInsertFeatures(context.Background(), rows); err != nil {
		t.Fatalf("seed features: %v", err)
	}

	svc := NewService(pool, Dependencies{}, zerolog.Nop())
	got, err := svc.Recommend(context.Background(), articles[0].ID, 5, 0)
	if err != nil {
		t.Fatalf("unexpected recommend error: %v", err)
	}
	if len(got) != 2 || got[0].Title != "close" || got[1].Title != "far" {
		t.Fatalf("unexpected recommendations: %+v", got)
	}
	if got[0].ArticleID != articles[1].ID || got[0].Score <= got[1].Score {
		t.Fatalf("unexpected ranking: %+v", got)
	}

	if _, err := svc.Recommend(context.Background(), articles[3].ID, 5, 0); !errors.Is(err, ErrFeaturesPending) {
		t.Fatalf("expected features pending, got %v", err)
	}
	if _, err := svc.Recommend(context.Background(), 9999, 5, 0); !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecommendSkipsVectorsOfOtherWidths(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t)
	articles := []db.Article{
		{ParentTopic: "markets", Title: "source"},
		{ParentTopic: "markets", Title: "old model"},
		{ParentTopic: "markets", Title: "same model"},
	}
	if err := pool.BulkInsertArticles(context.Background(), articles); err != nil {
		t.Fatalf("seed articles: %v", err)
	}
	vectors := [][]float32{{1, 0}, {1, 0, 0, 0}, {0.8, 0.2}}
	rows := make([]db.ArticleFeatures, 0, len(vectors))
	for i, vector := range vectors {
		rows = append(rows, db.ArticleFeatures{
			ArticleID:     articles[i].ID,
			TitleVector:   pgvector.NewVector(vector),
			NamedEntities: datatypes.JSONSlice[string]{},
		})
	}
	if err := pool.BulkInsertFeatures(context.Background(), rows); err != nil {
		t.Fatalf("seed features: %v", err)
	}

	svc := NewService(pool, Dependencies{}, zerolog.Nop())
	got, err := svc.Recommend(context.Background(), articles[0].ID, 5, 0)
	if err != nil {
		t.Fatalf("unexpected recommend error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "same model" {
		t.Fatalf("expected only same-width recommendations, got %+v", got)
	}

	got, err = svc.Recommend(context.Background(), articles[1].ID, 5, 0)
	if err != nil {
		t.Fatalf("unexpected recommend error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no recommendations for a lone width, got %+v", got)
	}
}

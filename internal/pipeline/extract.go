package pipeline

import (
	"context"
	"fmt"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"

	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/features"
)

const DefaultExtractBatchSize = 32

type ExtractOptions struct {
	Limit     int
	BatchSize int
}

type ExtractResult struct {
	Processed int
	Batches   int
}

// Extract builds feature rows for stored articles that have none. Each batch
// is written only after every article in it was extracted, so a model failure
// leaves no partial batch behind.
func (s *Service) Extract(ctx context.Context, options ExtractOptions) (ExtractResult, error) {
	if err := s.ready(); err != nil {
		return ExtractResult{}, err
	}
	if s.extractor == nil {
		return ExtractResult{}, fmt.Errorf("pipeline service has no feature extractor")
	}

	opts := normalizeExtractOptions(options)
	if opts.Limit <= 0 {
		return ExtractResult{}, nil
	}

	var result ExtractResult
	for result.Processed < opts.Limit {
		batchSize := min(opts.BatchSize, opts.Limit-result.Processed)

		articles, err := s.pool.ListArticlesWithoutFeatures(ctx, batchSize)
		if err != nil {
			return result, err
		}
		if len(articles) == 0 {
			break
		}

		inputs := make([]features.Input, 0, len(articles))
		for _, article := range articles {
			inputs = append(inputs, features.Input{Title: article.Title, Maintext: article.Maintext})
		}

		extracted, err := s.extractor.ExtractBatch(ctx, inputs)
		if err != nil {
			return result, fmt.Errorf("extract features for articles %d..%d: %w", articles[0].ID, articles[len(articles)-1].ID, err)
		}

		rows := make([]db.ArticleFeatures, 0, len(articles))
		for i, article := range articles {
			rows = append(rows, toFeatureRow(article.ID, extracted[i]))
		}
		if err := s.pool.BulkInsertFeatures(ctx, rows); err != nil {
			return result, err
		}

		result.Processed += len(rows)
		result.Batches++
		s.logger.Debug().Int("batch", result.Batches).Int("articles", len(rows)).Msg("feature batch stored")
	}

	s.logger.Info().Int("processed", result.Processed).Int("batches", result.Batches).Msg("extract completed")
	return result, nil
}

func normalizeExtractOptions(opts ExtractOptions) ExtractOptions {
	normalized := opts
	if normalized.Limit < 0 {
		normalized.Limit = 0
	}
	if normalized.BatchSize <= 0 {
		normalized.BatchSize = DefaultExtractBatchSize
	}
	if normalized.BatchSize > normalized.Limit && normalized.Limit > 0 {
		normalized.BatchSize = normalized.Limit
	}
	return normalized
}

func toFeatureRow(articleID int64, f features.Features) db.ArticleFeatures {
	entities := f.NamedEntities
	if entities == nil {
		entities = []string{}
	}
	return db.ArticleFeatures{
		ArticleID:      articleID,
		TitleVector:    pgvector.NewVector(f.TitleVector),
		NumNumericals:  f.NumNumericals,
		NamedEntities:  datatypes.JSONSlice[string](entities),
		LemmatizedText: f.LemmatizedText,
	}
}

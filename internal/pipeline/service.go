package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/features"
	"horse.fit/newsdigest/internal/reader"
	"horse.fit/newsdigest/internal/source"
)

// ContentFetcher resolves a search hit URL into the article body.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (reader.Content, error)
}

// LanguageFilter reports whether fetched text should be kept. A nil filter
// keeps everything.
type LanguageFilter func(text string) bool

type Dependencies struct {
	Provider  source.Provider
	Fetcher   ContentFetcher
	Extractor *features.Extractor
	Language  LanguageFilter
}

type Service struct {
	pool      *db.Pool
	provider  source.Provider
	fetcher   ContentFetcher
	extractor *features.Extractor
	language  LanguageFilter
	logger    zerolog.Logger
}

func NewService(pool *db.Pool, deps Dependencies, logger zerolog.Logger) *Service {
	return &Service{
		pool:      pool,
		provider:  deps.Provider,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		language:  deps.Language,
		logger:    logger,
	}
}

func (s *Service) ready() error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("pipeline service is not initialized")
	}
	return nil
}

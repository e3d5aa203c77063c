package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/dedup"
	"horse.fit/newsdigest/internal/globaltime"
	"horse.fit/newsdigest/internal/reader"
	"horse.fit/newsdigest/internal/source"
)

type PullOptions struct {
	Topics []string
	// From and To bound the search by whole days; zero values mean today.
	From time.Time
	To   time.Time
}

type PullResult struct {
	RunID           string
	Topics          int
	Candidates      int
	Unique          int
	Fetched         int
	FetchFailed     int
	EmptyContent    int
	LanguageSkipped int
	Inserted        int
}

// Pull searches every topic, drops titles already stored or repeated in this
// run, fetches the body of each survivor and stores the results one topic at
// a time. Search and store failures abort the run; fetch failures only skip
// the article.
func (s *Service) Pull(ctx context.Context, opts PullOptions) (PullResult, error) {
	if err := s.ready(); err != nil {
		return PullResult{}, err
	}
	if s.provider == nil {
		return PullResult{}, fmt.Errorf("pipeline service has no article provider")
	}
	if s.fetcher == nil {
		return PullResult{}, fmt.Errorf("pipeline service has no content fetcher")
	}

	result := PullResult{RunID: uuid.NewString()}
	topics := make([]string, 0, len(opts.Topics))
	for _, topic := range opts.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	result.Topics = len(topics)
	if len(topics) == 0 {
		return result, nil
	}

	from, to := opts.From, opts.To
	if from.IsZero() {
		from = globaltime.Today()
	}
	if to.IsZero() {
		to = globaltime.Today()
	}

	log := s.logger.With().Str("run_id", result.RunID).Str("provider", s.provider.Name()).Logger()

	known, err := s.pool.TitlesExist(ctx)
	if err != nil {
		return result, fmt.Errorf("load stored titles: %w", err)
	}

	candidates, err := source.Collect(ctx, s.provider, topics, from, to)
	if err != nil {
		return result, err
	}
	result.Candidates = len(candidates)

	unique, _ := dedup.Dedup(candidates, dedup.TitleSet(known))
	result.Unique = len(unique)

	batch := make([]db.Article, 0)
	currentTopic := ""
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.pool.BulkInsertArticles(ctx, batch); err != nil {
			return fmt.Errorf("store topic=%q: %w", currentTopic, err)
		}
		result.Inserted += len(batch)
		log.Info().Str("topic", currentTopic).Int("inserted", len(batch)).Msg("topic stored")
		batch = make([]db.Article, 0)
		return nil
	}

	for _, candidate := range unique {
		if candidate.Topic != currentTopic {
			if err := flush(); err != nil {
				return result, err
			}
			currentTopic = candidate.Topic
		}

		article, ok := s.fetchArticle(ctx, candidate, &result)
		if !ok {
			continue
		}
		batch = append(batch, article)
	}
	if err := flush(); err != nil {
		return result, err
	}

	log.Info().
		Int("topics", result.Topics).
		Int("candidates", result.Candidates).
		Int("unique", result.Unique).
		Int("fetched", result.Fetched).
		Int("fetch_failed", result.FetchFailed).
		Int("empty_content", result.EmptyContent).
		Int("language_skipped", result.LanguageSkipped).
		Int("inserted", result.Inserted).
		Msg("pull completed")

	return result, nil
}

func (s *Service) fetchArticle(ctx context.Context, candidate source.Candidate, result *PullResult) (db.Article, bool) {
	hit := candidate.Article
	content, err := s.fetcher.Fetch(ctx, hit.URL)
	if err != nil {
		if errors.Is(err, reader.ErrEmptyContent) {
			result.EmptyContent++
		} else {
			result.FetchFailed++
		}
		s.logger.Warn().Err(err).Str("topic", candidate.Topic).Str("url", hit.URL).Msg("skipping article: fetch failed")
		return db.Article{}, false
	}
	if strings.TrimSpace(content.Maintext) == "" {
		result.EmptyContent++
		s.logger.Warn().Str("topic", candidate.Topic).Str("url", hit.URL).Msg("skipping article: empty maintext")
		return db.Article{}, false
	}
	if s.language != nil && !s.language(content.Maintext) {
		result.LanguageSkipped++
		s.logger.Warn().Str("topic", candidate.Topic).Str("url", hit.URL).Msg("skipping article: language mismatch")
		return db.Article{}, false
	}
	result.Fetched++

	return db.Article{
		ParentTopic:     candidate.Topic,
		Source:          firstNonEmpty(content.SourceDomain, hit.SourceName),
		Title:           hit.Title,
		Description:     firstNonEmpty(content.Description, hit.Description),
		Maintext:        content.Maintext,
		PublicationDate: firstNonEmpty(content.PublicationDate, hit.PublishedAt),
		URL:             hit.URL,
	}, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdigest/internal/cli"
	"horse.fit/newsdigest/internal/config"
	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/features"
	"horse.fit/newsdigest/internal/langdetect"
	"horse.fit/newsdigest/internal/logging"
	"horse.fit/newsdigest/internal/nlp"
	"horse.fit/newsdigest/internal/pipeline"
	"horse.fit/newsdigest/internal/reader"
	"horse.fit/newsdigest/internal/source"
)

const dateLayout = "2006-01-02"

// environment is what every database-backed command sets up before it runs.
type environment struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func (e *environment) Close() {
	if e != nil && e.pool != nil {
		_ = e.pool.Close()
	}
}

// setup loads .env, config and logger, then opens the store. It prints its own
// diagnostics and returns a non-zero exit code on failure.
func setup(ctx context.Context, command string, envLoader *cli.EnvLoader) (*environment, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, 1
	}
	logger = logger.With().Str("command", command).Logger()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, 1
	}

	return &environment{cfg: cfg, logger: logger, pool: pool}, 0
}

func newProvider(cfg *config.Config) (source.Provider, error) {
	switch cfg.Source() {
	case config.SourceRSS:
		return source.NewRSSProvider(source.RSSOptions{
			SearchURL: cfg.RSSSearchURL,
			UserAgent: cfg.FetchUserAgent,
		})
	default:
		if strings.TrimSpace(cfg.NewsAPIKey) == "" {
			return nil, fmt.Errorf("NEWSAPI_KEY is required when ARTICLE_SOURCE=%s", config.SourceNewsAPI)
		}
		return source.NewNewsAPIProvider(source.NewsAPIOptions{
			Endpoint: cfg.NewsAPIEndpoint,
			APIKey:   cfg.NewsAPIKey,
			Language: cfg.ContentLanguage,
		})
	}
}

func newExtractor(cfg *config.Config) *features.Extractor {
	client := nlp.NewClient(nlp.ClientOptions{
		Endpoint:       cfg.NLPEndpoint,
		EmbedEndpoint:  cfg.NLPEmbedEndpoint,
		BatchSize:      cfg.NLPBatchSize,
		RequestTimeout: cfg.NLPRequestTimeout,
	})
	return features.NewExtractor(client, features.Options{Dimensions: cfg.EmbeddingDimensions})
}

func languageFilter(cfg *config.Config) pipeline.LanguageFilter {
	want := strings.TrimSpace(cfg.ContentLanguage)
	if want == "" {
		return nil
	}
	return func(text string) bool {
		return langdetect.Matches(text, want)
	}
}

// newService wires the collaborators a command needs. Pull needs a provider
// and fetcher, extract needs the model client.
func newService(env *environment, withPull, withExtract bool) (*pipeline.Service, error) {
	deps := pipeline.Dependencies{}
	if withPull {
		provider, err := newProvider(env.cfg)
		if err != nil {
			return nil, fmt.Errorf("build article provider: %w", err)
		}
		deps.Provider = provider
		deps.Fetcher = reader.NewFetcher(reader.FetchOptions{
			Timeout:   env.cfg.FetchTimeout,
			UserAgent: env.cfg.FetchUserAgent,
		})
		deps.Language = languageFilter(env.cfg)
	}
	if withExtract {
		deps.Extractor = newExtractor(env.cfg)
	}
	return pipeline.NewService(env.pool, deps, env.logger), nil
}

// parseDay parses a YYYY-MM-DD flag value; empty means the zero time.
func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return day, nil
}

// splitTopics reads a comma separated --topics value.
func splitTopics(raw string) []string {
	var topics []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			topics = append(topics, part)
		}
	}
	return topics
}

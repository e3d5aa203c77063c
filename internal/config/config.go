package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	SourceNewsAPI = "newsapi"
	SourceRSS     = "rss"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"sqlite:///NewsAPI_articles.db"`
	DBMinConns  int32  `envconfig:"ND_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"ND_DB_MAX_CONNS" default:"8"`

	ArticleSource   string `envconfig:"ARTICLE_SOURCE" default:"newsapi"`
	NewsAPIKey      string `envconfig:"NEWSAPI_KEY" default:""`
	NewsAPIEndpoint string `envconfig:"NEWSAPI_ENDPOINT" default:"https://newsapi.org/v2/everything"`
	RSSSearchURL    string `envconfig:"RSS_SEARCH_URL" default:"https://news.google.com/rss/search?q={topic}&hl=en-US&gl=US&ceid=US:en"`
	TopicsFile      string `envconfig:"TOPICS_FILE" default:"topics.txt"`
	ContentLanguage string `envconfig:"CONTENT_LANGUAGE" default:"en"`

	FetchTimeout   time.Duration `envconfig:"FETCH_TIMEOUT" default:"12s"`
	FetchUserAgent string        `envconfig:"FETCH_USER_AGENT" default:""`

	NLPEndpoint         string        `envconfig:"NLP_ENDPOINT" default:"http://127.0.0.1:8855"`
	NLPEmbedEndpoint    string        `envconfig:"NLP_EMBED_ENDPOINT" default:""`
	NLPBatchSize        int           `envconfig:"NLP_BATCH_SIZE" default:"16"`
	NLPRequestTimeout   time.Duration `envconfig:"NLP_REQUEST_TIMEOUT" default:"60s"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"300"`

	APIKeyHash string `envconfig:"API_KEY_HASH" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("ND_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("ND_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("ND_DB_MIN_CONNS (%d) cannot exceed ND_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch c.Source() {
	case SourceNewsAPI:
	case SourceRSS:
		if !strings.Contains(c.RSSSearchURL, "{topic}") {
			return fmt.Errorf("RSS_SEARCH_URL must contain a {topic} placeholder")
		}
	default:
		return fmt.Errorf("ARTICLE_SOURCE must be %q or %q", SourceNewsAPI, SourceRSS)
	}

	if c.NLPBatchSize < 1 {
		return fmt.Errorf("NLP_BATCH_SIZE must be >= 1")
	}
	if c.EmbeddingDimensions < 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 0")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be > 0")
	}
	return nil
}

// Source returns the normalized ARTICLE_SOURCE value.
func (c *Config) Source() string {
	if c == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(c.ArticleSource))
}

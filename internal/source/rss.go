package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultRSSSearchURL = "https://news.google.com/rss/search?q={topic}&hl=en-US&gl=US&ceid=US:en"
	DefaultRSSTimeout   = 20 * time.Second

	topicPlaceholder = "{topic}"
	maxFeedBytes     = 8 << 20
)

type RSSOptions struct {
	SearchURL  string
	UserAgent  string
	HTTPClient *http.Client
}

// RSSProvider searches a feed endpoint whose URL template carries a {topic}
// placeholder.
type RSSProvider struct {
	searchURL string
	userAgent string
	client    *http.Client
	parser    *gofeed.Parser
}

func NewRSSProvider(opts RSSOptions) (*RSSProvider, error) {
	searchURL := strings.TrimSpace(opts.SearchURL)
	if searchURL == "" {
		searchURL = DefaultRSSSearchURL
	}
	if !strings.Contains(searchURL, topicPlaceholder) {
		return nil, fmt.Errorf("rss search url must contain %s", topicPlaceholder)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultRSSTimeout}
	}
	return &RSSProvider{
		searchURL: searchURL,
		userAgent: strings.TrimSpace(opts.UserAgent),
		client:    client,
		parser:    gofeed.NewParser(),
	}, nil
}

func (p *RSSProvider) Name() string { return "rss" }

// Search returns feed items for the topic. Items with a publish date outside
// the whole UTC days [From, To] are dropped; undated items are kept.
func (p *RSSProvider) Search(ctx context.Context, query Query) ([]Article, error) {
	if p == nil {
		return nil, fmt.Errorf("rss provider is not initialized")
	}

	target := strings.ReplaceAll(p.searchURL, topicPlaceholder, url.QueryEscape(query.Topic))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build rss request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rss feed returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read rss feed: %w", err)
	}
	feed, err := p.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse rss feed: %w", err)
	}

	from, to := dayBounds(query.From, query.To)
	articles := make([]Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.Link) == "" {
			continue
		}
		published := ""
		if item.PublishedParsed != nil {
			at := item.PublishedParsed.UTC()
			if (!from.IsZero() && at.Before(from)) || (!to.IsZero() && !at.Before(to)) {
				continue
			}
			published = at.Format(time.RFC3339)
		}

		sourceName := feed.Title
		if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
			sourceName = item.Author.Name
		}
		articles = append(articles, Article{
			Title:       item.Title,
			URL:         strings.TrimSpace(item.Link),
			Description: strings.TrimSpace(item.Description),
			SourceName:  strings.TrimSpace(sourceName),
			PublishedAt: published,
		})
	}
	return articles, nil
}

// dayBounds widens a date range to [start of from's day, start of the day after to).
func dayBounds(from, to time.Time) (time.Time, time.Time) {
	var start, end time.Time
	if !from.IsZero() {
		f := from.UTC()
		start = time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	}
	if !to.IsZero() {
		t := to.UTC()
		end = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	}
	return start, end
}

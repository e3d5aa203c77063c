package source

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Article is one search hit returned by a provider for a topic.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	SourceName  string `json:"source_name,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Candidate is a search hit tagged with the topic that produced it.
type Candidate struct {
	Topic   string
	Article Article
}

type Query struct {
	Topic string
	From  time.Time
	To    time.Time
}

// Provider searches an article index for one topic and date range.
type Provider interface {
	Name() string
	Search(ctx context.Context, query Query) ([]Article, error)
}

// Collect runs one search per topic and returns candidates topic-major, in
// provider order within each topic. A failed search aborts the collection.
func Collect(ctx context.Context, provider Provider, topics []string, from, to time.Time) ([]Candidate, error) {
	if provider == nil {
		return nil, fmt.Errorf("article provider is nil")
	}

	var candidates []Candidate
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		articles, err := provider.Search(ctx, Query{Topic: topic, From: from, To: to})
		if err != nil {
			return nil, fmt.Errorf("%s search topic=%q: %w", provider.Name(), topic, err)
		}
		for _, article := range articles {
			candidates = append(candidates, Candidate{Topic: topic, Article: article})
		}
	}
	return candidates, nil
}

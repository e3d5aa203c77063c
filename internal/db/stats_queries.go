package db

import (
	"context"
	"fmt"
)

type TopicCount struct {
	Topic    string `json:"topic"`
	Articles int64  `json:"articles"`
}

type CorpusStats struct {
	Articles int64        `json:"articles"`
	Features int64        `json:"features"`
	Topics   int64        `json:"topics"`
	PerTopic []TopicCount `json:"per_topic"`
}

func (p *Pool) CorpusStats(ctx context.Context) (*CorpusStats, error) {
	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM articles),
	(SELECT COUNT(*) FROM articles_features),
	(SELECT COUNT(DISTINCT parent_topic) FROM articles)
`

	var stats CorpusStats
	if err := p.QueryRow(ctx, totalsQuery).Scan(&stats.Articles, &stats.Features, &stats.Topics); err != nil {
		return nil, fmt.Errorf("query corpus totals: %w", err)
	}

	const perTopicQuery = `
SELECT parent_topic, COUNT(*)
FROM articles
GROUP BY parent_topic
ORDER BY parent_topic
`

	rows, err := p.Query(ctx, perTopicQuery)
	if err != nil {
		return nil, fmt.Errorf("query per-topic counts: %w", err)
	}
	defer rows.Close()

	stats.PerTopic = make([]TopicCount, 0)
	for rows.Next() {
		var row TopicCount
		if err := rows.Scan(&row.Topic, &row.Articles); err != nil {
			return nil, fmt.Errorf("scan per-topic count: %w", err)
		}
		stats.PerTopic = append(stats.PerTopic, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate per-topic counts: %w", err)
	}
	return &stats, nil
}

package db

import (
	"context"
	"fmt"
	"sort"

	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// TitleVector is the slice of a feature row the recommender needs.
type TitleVector struct {
	ArticleID int64
	Title     string
	Vector    pgvector.Vector
}

// BulkInsertFeatures stores one batch of feature rows atomically.
func (p *Pool) BulkInsertFeatures(ctx context.Context, features []ArticleFeatures) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if len(features) == 0 {
		return nil
	}

	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Article").CreateInBatches(features, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("bulk insert %d article features: %w", len(features), err)
	}
	return nil
}

func (p *Pool) GetFeatures(ctx context.Context, articleID int64) (*ArticleFeatures, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	var features ArticleFeatures
	err := p.gdb.WithContext(ctx).Where("article_id = ?", articleID).Take(&features).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get features article_id=%d: %w", articleID, err)
	}
	return &features, nil
}

// ListTitleVectors returns up to limit of the most recent title vectors plus
// the vector of includeArticleID, ordered by article id ascending.
func (p *Pool) ListTitleVectors(ctx context.Context, limit int, includeArticleID int64) ([]TitleVector, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	base := func() *gorm.DB {
		return p.gdb.WithContext(ctx).
			Table("articles_features AS f").
			Select("f.article_id AS article_id, a.title AS title, f.title_vector AS vector").
			Joins("JOIN articles a ON a.id = f.article_id")
	}

	var recent []TitleVector
	if err := base().Order("f.article_id DESC").Limit(limit).Scan(&recent).Error; err != nil {
		return nil, fmt.Errorf("query title vectors: %w", err)
	}

	included := false
	for _, row := range recent {
		if row.ArticleID == includeArticleID {
			included = true
			break
		}
	}
	if !included && includeArticleID > 0 {
		var source []TitleVector
		if err := base().Where("f.article_id = ?", includeArticleID).Scan(&source).Error; err != nil {
			return nil, fmt.Errorf("query title vector article_id=%d: %w", includeArticleID, err)
		}
		recent = append(recent, source...)
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].ArticleID < recent[j].ArticleID
	})
	return recent, nil
}

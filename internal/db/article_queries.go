package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const insertBatchSize = 100

// TitlesExist loads every persisted article title in one query. A store whose
// articles table does not exist yet yields an empty set.
func (p *Pool) TitlesExist(ctx context.Context) (map[string]struct{}, error) {
	titles := make(map[string]struct{})
	if p == nil || p.gdb == nil {
		return titles, nil
	}

	gdb := p.gdb.WithContext(ctx)
	if !gdb.Migrator().HasTable(&Article{}) {
		return titles, nil
	}

	rows, err := gdb.Model(&Article{}).Select("title").Rows()
	if err != nil {
		return nil, fmt.Errorf("query article titles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan article title: %w", err)
		}
		titles[title] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article titles: %w", err)
	}
	return titles, nil
}

// BulkInsertArticles stores articles in one transaction and fills in their IDs.
func (p *Pool) BulkInsertArticles(ctx context.Context, articles []Article) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if len(articles) == 0 {
		return nil
	}

	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(articles, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("bulk insert %d articles: %w", len(articles), err)
	}
	return nil
}

// ListArticlesWithoutFeatures returns articles that have no feature row yet, oldest first.
func (p *Pool) ListArticlesWithoutFeatures(ctx context.Context, limit int) ([]Article, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	articles := make([]Article, 0, limit)
	err := p.gdb.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM articles_features f WHERE f.article_id = articles.id)").
		Order("id").
		Limit(limit).
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("query articles without features: %w", err)
	}
	return articles, nil
}

func (p *Pool) GetArticle(ctx context.Context, articleID int64) (*Article, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	var article Article
	err := p.gdb.WithContext(ctx).Where("id = ?", articleID).Take(&article).Error
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get article id=%d: %w", articleID, err)
	}
	return &article, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"

	"horse.fit/newsdigest/internal/db"
	"horse.fit/newsdigest/internal/recommend"
)

const DefaultRecommendWindow = 1000

var (
	ErrArticleNotFound = errors.New("article not found")
	ErrFeaturesPending = errors.New("article has no features yet")
)

type Recommendation struct {
	ArticleID int64   `json:"article_id"`
	Title     string  `json:"title"`
	Score     float64 `json:"score"`
}

// Recommend ranks the articles whose title vectors are closest to articleID,
// comparing against the newest window feature rows.
func (s *Service) Recommend(ctx context.Context, articleID int64, k, window int) ([]Recommendation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultRecommendWindow
	}

	if _, err := s.pool.GetArticle(ctx, articleID); err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: id=%d", ErrArticleNotFound, articleID)
		}
		return nil, err
	}

	rows, err := s.pool.ListTitleVectors(ctx, window, articleID)
	if err != nil {
		return nil, err
	}

	width := -1
	for _, row := range rows {
		if row.ArticleID == articleID {
			width = len(row.Vector.Slice())
			break
		}
	}
	if width < 0 {
		return nil, fmt.Errorf("%w: id=%d", ErrFeaturesPending, articleID)
	}

	// Vectors from a different embedding width cannot be compared with the source.
	sameWidth := make([]db.TitleVector, 0, len(rows))
	for _, row := range rows {
		if len(row.Vector.Slice()) == width {
			sameWidth = append(sameWidth, row)
		}
	}
	if skipped := len(rows) - len(sameWidth); skipped > 0 {
		s.logger.Debug().
			Int64("article_id", articleID).
			Int("width", width).
			Int("skipped", skipped).
			Msg("skipped title vectors with a different width")
	}
	rows = sameWidth

	sourceIndex := -1
	titles := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		titles[i] = row.Title
		vectors[i] = row.Vector.Slice()
		if row.ArticleID == articleID {
			sourceIndex = i
		}
	}

	matrix, err := recommend.CosineMatrix(vectors)
	if err != nil {
		return nil, fmt.Errorf("build similarity matrix: %w", err)
	}
	matches, err := recommend.Recommend(sourceIndex, titles, matrix, k)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(matches))
	for _, match := range matches {
		row := rows[match.Index]
		out = append(out, Recommendation{ArticleID: row.ArticleID, Title: row.Title, Score: match.Score})
	}
	return out, nil
}

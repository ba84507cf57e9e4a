package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vnnews-clustering/internal/model"
)

const articleBatchSize = 200

type ArticleRepository struct {
	db *gorm.DB
}

func NewArticleRepository(db *gorm.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// ListAll returns every article in insertion order.
func (r *ArticleRepository) ListAll(ctx context.Context) ([]model.Article, error) {
	var articles []model.Article
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&articles).Error; err != nil {
		return nil, fmt.Errorf("list articles failed: %w", err)
	}
	return articles, nil
}

// UpsertBatch inserts articles, overwriting rows that share a URL.
func (r *ArticleRepository) UpsertBatch(ctx context.Context, articles []model.Article) (int64, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "url"}},
			UpdateAll: true,
		}).
		CreateInBatches(&articles, articleBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert articles failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *ArticleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Article{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count articles failed: %w", err)
	}
	return count, nil
}

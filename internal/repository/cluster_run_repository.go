package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vnnews-clustering/internal/model"
)

type ClusterRunRepository struct {
	db *gorm.DB
}

func NewClusterRunRepository(db *gorm.DB) *ClusterRunRepository {
	return &ClusterRunRepository{db: db}
}

func (r *ClusterRunRepository) Create(ctx context.Context, run *model.ClusterRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("create cluster run failed: %w", err)
	}
	return nil
}

func (r *ClusterRunRepository) ListRecent(ctx context.Context, limit int) ([]model.ClusterRun, error) {
	var runs []model.ClusterRun
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list cluster runs failed: %w", err)
	}
	return runs, nil
}

// GetByGeneration returns nil, nil when no run carries the generation.
func (r *ClusterRunRepository) GetByGeneration(ctx context.Context, generation string) (*model.ClusterRun, error) {
	var run model.ClusterRun
	if err := r.db.WithContext(ctx).Where("generation = ?", generation).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cluster run failed: %w", err)
	}
	return &run, nil
}

package domain

import (
	"context"

	"gorm.io/gorm"
)

// Repository persists steps. There is no update or delete: steps only go away
// together with their product.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, step *Step) error
	ListByProduct(ctx context.Context, db *gorm.DB, productID string) ([]Step, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Step, error)
	CountByStage(ctx context.Context, db *gorm.DB) ([]StageCount, error)
	LatestForProduct(ctx context.Context, db *gorm.DB, productID string) (*Step, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}

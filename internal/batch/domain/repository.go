package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, batch *Batch) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Batch, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Batch, error)
	List(ctx context.Context, db *gorm.DB, offset, limit int) ([]Batch, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}

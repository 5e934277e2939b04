package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ListFilter struct {
	Query  string
	Stage  string
	Offset int
	Limit  int
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id string) error

	AddAuthorizedUser(ctx context.Context, db *gorm.DB, productID, actorID string, at time.Time) error
	IsAuthorizedUser(ctx context.Context, db *gorm.DB, productID, actorID string) (bool, error)
	ListAuthorizedUsers(ctx context.Context, db *gorm.DB, productID string) ([]string, error)
	ListForActor(ctx context.Context, db *gorm.DB, actorID string) ([]Product, error)

	ListInBatch(ctx context.Context, db *gorm.DB, batchID string) ([]Product, error)
	ListAssignable(ctx context.Context, db *gorm.DB, actorID string) ([]Product, error)
	AssignBatch(ctx context.Context, db *gorm.DB, productID, batchID string, position int64) error
	ClearBatch(ctx context.Context, db *gorm.DB, productID string) error
	MaxBatchPosition(ctx context.Context, db *gorm.DB, batchID string) (int64, error)
}

package repository

import (
	"context"

	"github.com/smallbiznis/tracechain/internal/batch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, batch *domain.Batch) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO batches (id, code, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		batch.ID,
		batch.Code,
		batch.Name,
		batch.Description,
		batch.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Batch, error) {
	return r.findOne(ctx, db, `SELECT id, code, name, description, created_at FROM batches WHERE id = ?`, id)
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Batch, error) {
	return r.findOne(ctx, db, `SELECT id, code, name, description, created_at FROM batches WHERE code = ?`, code)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg string) (*domain.Batch, error) {
	var b domain.Batch
	if err := db.WithContext(ctx).Raw(query, arg).Scan(&b).Error; err != nil {
		return nil, err
	}
	if b.ID == "" {
		return nil, nil
	}
	return &b, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Batch, error) {
	var items []domain.Batch
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, created_at
		 FROM batches
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit,
		offset,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	if err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM batches`).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

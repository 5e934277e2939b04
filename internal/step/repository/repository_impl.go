package repository

import (
	"context"

	"github.com/smallbiznis/tracechain/internal/step/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const stepColumns = `id, product_id, stage, location, latitude, longitude, document_ref,
	metadata, digest, sequence, tx_hash, created_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, step *domain.Step) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO supply_chain_steps (`+stepColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ID,
		step.ProductID,
		step.Stage,
		step.Location,
		step.Latitude,
		step.Longitude,
		step.DocumentRef,
		step.Metadata,
		step.Digest,
		step.Sequence,
		step.TxHash,
		step.CreatedAt,
	).Error
}

func (r *repo) ListByProduct(ctx context.Context, db *gorm.DB, productID string) ([]domain.Step, error) {
	var items []domain.Step
	err := db.WithContext(ctx).Raw(
		`SELECT `+stepColumns+`
		 FROM supply_chain_steps
		 WHERE product_id = ?
		 ORDER BY created_at ASC, id ASC`,
		productID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]domain.Step, error) {
	var items []domain.Step
	err := db.WithContext(ctx).Raw(
		`SELECT ` + stepColumns + `
		 FROM supply_chain_steps
		 ORDER BY product_id ASC, created_at ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByStage(ctx context.Context, db *gorm.DB) ([]domain.StageCount, error) {
	var rows []domain.StageCount
	err := db.WithContext(ctx).Raw(
		`SELECT stage, COUNT(*) AS count
		 FROM supply_chain_steps
		 GROUP BY stage`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) LatestForProduct(ctx context.Context, db *gorm.DB, productID string) (*domain.Step, error) {
	var s domain.Step
	err := db.WithContext(ctx).Raw(
		`SELECT `+stepColumns+`
		 FROM supply_chain_steps
		 WHERE product_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		productID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	if err := db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM supply_chain_steps`).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

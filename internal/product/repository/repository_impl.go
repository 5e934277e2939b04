package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/tracechain/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, name, sku, description, batch_id, batch_position, created_at`

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		product.ID,
		product.Name,
		product.SKU,
		product.Description,
		product.BatchID,
		product.BatchPosition,
		product.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+` FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Product, error) {
	var items []domain.Product
	stmt := applyFilter(db.WithContext(ctx).Model(&domain.Product{}), filter).
		Order("created_at DESC").
		Order("id DESC")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	var total int64
	if err := applyFilter(db.WithContext(ctx).Model(&domain.Product{}), filter).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyFilter(stmt *gorm.DB, filter domain.ListFilter) *gorm.DB {
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		stmt = stmt.Where(
			"LOWER(name) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(COALESCE(description, '')) LIKE ?",
			like, like, like,
		)
	}
	if stage := strings.TrimSpace(filter.Stage); stage != "" {
		stmt = stmt.Where(
			"EXISTS (SELECT 1 FROM supply_chain_steps s WHERE s.product_id = products.id AND s.stage = ?)",
			stage,
		)
	}
	return stmt
}

// Delete removes the product together with its steps and allow-list.
func (r *repo) Delete(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM supply_chain_steps WHERE product_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM product_authorized_users WHERE product_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM products WHERE id = ?`, id).Error
	})
}

func (r *repo) AddAuthorizedUser(ctx context.Context, db *gorm.DB, productID, actorID string, at time.Time) error {
	ok, err := r.IsAuthorizedUser(ctx, db, productID, actorID)
	if err != nil || ok {
		return err
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_authorized_users (product_id, actor_id, created_at) VALUES (?, ?, ?)`,
		productID,
		actorID,
		at,
	).Error
}

func (r *repo) IsAuthorizedUser(ctx context.Context, db *gorm.DB, productID, actorID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM product_authorized_users WHERE product_id = ? AND actor_id = ?`,
		productID,
		actorID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListAuthorizedUsers(ctx context.Context, db *gorm.DB, productID string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Raw(
		`SELECT actor_id FROM product_authorized_users WHERE product_id = ? ORDER BY created_at ASC, actor_id ASC`,
		productID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListForActor(ctx context.Context, db *gorm.DB, actorID string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.sku, p.description, p.batch_id, p.batch_position, p.created_at
		 FROM products p
		 JOIN product_authorized_users u ON u.product_id = p.id
		 WHERE u.actor_id = ?
		 ORDER BY p.name ASC, p.id ASC`,
		actorID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListInBatch(ctx context.Context, db *gorm.DB, batchID string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products
		 WHERE batch_id = ?
		 ORDER BY batch_position ASC, id ASC`,
		batchID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAssignable(ctx context.Context, db *gorm.DB, actorID string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT p.id, p.name, p.sku, p.description, p.batch_id, p.batch_position, p.created_at
		 FROM products p
		 JOIN product_authorized_users u ON u.product_id = p.id
		 WHERE u.actor_id = ? AND p.batch_id IS NULL
		 ORDER BY p.name ASC, p.id ASC`,
		actorID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// AssignBatch places the product at position in batchID. It returns
// domain.ErrAlreadyBatched when the product belongs to another batch.
func (r *repo) AssignBatch(ctx context.Context, db *gorm.DB, productID, batchID string, position int64) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE products SET batch_id = ?, batch_position = ?
		 WHERE id = ? AND (batch_id IS NULL OR batch_id = ?)`,
		batchID,
		position,
		productID,
		batchID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrAlreadyBatched
	}
	return nil
}

func (r *repo) ClearBatch(ctx context.Context, db *gorm.DB, productID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE products SET batch_id = NULL, batch_position = NULL WHERE id = ?`,
		productID,
	).Error
}

func (r *repo) MaxBatchPosition(ctx context.Context, db *gorm.DB, batchID string) (int64, error) {
	var pos int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(batch_position), 0) FROM products WHERE batch_id = ?`,
		batchID,
	).Scan(&pos).Error
	if err != nil {
		return 0, err
	}
	return pos, nil
}

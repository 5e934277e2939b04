package domain

import "time"

// Product is a tracked item. Membership in a batch is carried on the product
// itself so a product can belong to at most one batch.
type Product struct {
	ID            string    `json:"id" gorm:"primaryKey;type:text"`
	Name          string    `json:"name" gorm:"type:text;not null"`
	SKU           string    `json:"sku" gorm:"column:sku;type:text;not null;uniqueIndex"`
	Description   *string   `json:"description,omitempty" gorm:"type:text"`
	BatchID       *string   `json:"batch_id,omitempty" gorm:"type:text;index"`
	BatchPosition *int64    `json:"batch_position,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// AuthorizedUser is one entry of a product's write allow-list.
type AuthorizedUser struct {
	ProductID string    `gorm:"primaryKey;type:text"`
	ActorID   string    `gorm:"primaryKey;type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (AuthorizedUser) TableName() string { return "product_authorized_users" }

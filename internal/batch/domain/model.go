package domain

import "time"

// Batch groups products so one stage can be recorded for all of them at once.
type Batch struct {
	ID          string    `json:"id" gorm:"primaryKey;type:text"`
	Code        string    `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Name        string    `json:"name" gorm:"type:text;not null"`
	Description *string   `json:"description,omitempty" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null"`
}

func (Batch) TableName() string { return "batches" }

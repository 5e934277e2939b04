package domain

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tracechain/internal/stage"
	"golang.org/x/crypto/sha3"
	"gorm.io/datatypes"
)

// Step is one confirmed supply chain event. A row exists only after the ledger
// accepted the matching submission, so TxHash is always set.
type Step struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProductID   string            `json:"product_id" gorm:"type:text;not null;index:ix_steps_product_created,priority:1"`
	Stage       stage.Code        `json:"stage" gorm:"type:text;not null;index"`
	Location    string            `json:"location" gorm:"type:text;not null"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	DocumentRef *string           `json:"document_ref,omitempty" gorm:"type:text"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	Digest      string            `json:"digest" gorm:"type:text;not null"`
	Sequence    uint64            `json:"sequence" gorm:"not null"`
	TxHash      string            `json:"tx_hash" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;index:ix_steps_product_created,priority:2"`
}

func (Step) TableName() string { return "supply_chain_steps" }

// StageCount is the number of persisted steps at one stage.
type StageCount struct {
	Stage stage.Code `json:"stage"`
	Count int64      `json:"count"`
}

// Digest fingerprints the ledger payload of a step: product, stage, location
// and the sequence number it was submitted with.
func Digest(productID string, code stage.Code, location string, sequence uint64) string {
	h := sha3.New256()
	for _, part := range []string{productID, string(code), location} {
		var size [4]byte
		binary.BigEndian.PutUint32(size[:], uint32(len(part)))
		h.Write(size[:])
		h.Write([]byte(part))
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	h.Write(seq[:])
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the stored digest still matches the step contents.
func (s Step) Verify() bool {
	return s.Digest == Digest(s.ProductID, s.Stage, s.Location, s.Sequence)
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tracechain/internal/actor"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
)

// DefaultPageSize is the product listing page size.
const DefaultPageSize = 9

type Service interface {
	Create(ctx context.Context, by actor.Actor, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Trace(ctx context.Context, id string) (*TraceResponse, error)
	Verify(ctx context.Context, id string) (*VerifyResponse, error)
	Delete(ctx context.Context, by actor.Actor, id string) error
	AddAuthorizedUser(ctx context.Context, by actor.Actor, productID, actorID string) error
	ListForActor(ctx context.Context, by actor.Actor) ([]Response, error)
}

type CreateRequest struct {
	Name        string  `json:"name"`
	SKU         string  `json:"sku"`
	Description *string `json:"description"`
}

type ListRequest struct {
	pagination.Pagination
	Query string
	Stage string
}

type ListResponse struct {
	pagination.PageInfo
	Products []Response `json:"products"`
}

type Response struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SKU         string    `json:"sku"`
	Description *string   `json:"description,omitempty"`
	BatchID     *string   `json:"batch_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TraceResponse is the public tracking view: the product and its steps in
// recording order.
type TraceResponse struct {
	Product Response          `json:"product"`
	Steps   []stepdomain.Step `json:"steps"`
}

type StepVerification struct {
	StepID   string `json:"step_id"`
	TxHash   string `json:"tx_hash"`
	Sequence uint64 `json:"sequence"`
	Valid    bool   `json:"valid"`
}

type VerifyResponse struct {
	ProductID string             `json:"product_id"`
	Valid     bool               `json:"valid"`
	Steps     []StepVerification `json:"steps"`
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidSKU  = errors.New("invalid_sku")

	ErrAlreadyBatched = errors.New("product_already_batched")
)

func ToResponse(p Product) Response {
	return Response{
		ID:          p.ID,
		Name:        p.Name,
		SKU:         p.SKU,
		Description: p.Description,
		BatchID:     p.BatchID,
		CreatedAt:   p.CreatedAt,
	}
}

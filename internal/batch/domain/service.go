package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/tracechain/internal/actor"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
)

// DefaultPageSize is the batch listing page size.
const DefaultPageSize = 10

type Service interface {
	Create(ctx context.Context, by actor.Actor, req CreateRequest) (*DetailResponse, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Get(ctx context.Context, id string) (*DetailResponse, error)
	UpdateProducts(ctx context.Context, by actor.Actor, id string, productIDs []string) (*DetailResponse, error)
	ListAssignable(ctx context.Context, by actor.Actor) ([]productdomain.Response, error)
}

type CreateRequest struct {
	Name        string   `json:"name"`
	Code        string   `json:"code"`
	Description *string  `json:"description"`
	ProductIDs  []string `json:"product_ids"`
}

type ListRequest struct {
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Batches []Response `json:"batches"`
}

type Response struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DetailResponse carries the batch and its products in batch order.
type DetailResponse struct {
	Response
	Products []productdomain.Response `json:"products"`
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidCode = errors.New("invalid_code")
)

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/tracechain/internal/actor"
	"github.com/smallbiznis/tracechain/internal/batch/domain"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/permission"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Repo        domain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        domain.Repository
	productRepo productdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("batch.service"),
		clock:       p.Clock,
		repo:        p.Repo,
		productRepo: p.ProductRepo,
	}
}

// Create registers a batch and assigns the selected products in the given
// order. Every product must be writable by the caller and not yet batched.
func (s *Service) Create(ctx context.Context, by actor.Actor, req domain.CreateRequest) (*domain.DetailResponse, error) {
	if permission.HasRole(by.Roles, permission.RoleCustomer) {
		return nil, errs.Unauthorized(errs.ErrRoleForbidden)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 200 {
		return nil, errs.Invalid("name", domain.ErrInvalidName.Error())
	}
	rawCode := strings.TrimSpace(req.Code)
	if rawCode == "" {
		rawCode = name
	}
	code := slug.Make(rawCode)
	if code == "" || len(code) > 100 {
		return nil, errs.Invalid("code", domain.ErrInvalidCode.Error())
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &errs.ConflictError{Resource: "batch", Field: "code"}
	}

	assignable, err := s.assignableSet(ctx, by.ID)
	if err != nil {
		return nil, err
	}
	productIDs := dedupe(req.ProductIDs)
	for _, id := range productIDs {
		if _, ok := assignable[id]; !ok {
			return nil, errs.Invalid("product_ids", "not_assignable")
		}
	}

	b := &domain.Batch{
		ID:          ulid.Make().String(),
		Code:        code,
		Name:        name,
		Description: trimOptional(req.Description),
		CreatedAt:   s.clock.Now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, b); err != nil {
			return err
		}
		for i, id := range productIDs {
			if err := s.productRepo.AssignBatch(ctx, tx, id, b.ID, int64(i+1)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, &errs.ConflictError{Resource: "batch", Field: "code"}
		}
		return nil, batchConflict(err)
	}

	s.log.Info("batch created",
		zap.String("batch_id", b.ID),
		zap.String("code", b.Code),
		zap.Int("products", len(productIDs)),
	)
	return s.detail(ctx, b)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.New(req.Page, req.PageSize, domain.DefaultPageSize)
	total, err := s.repo.Count(ctx, s.db)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, page.Offset(), page.Limit())
	if err != nil {
		return domain.ListResponse{}, err
	}

	resp := domain.ListResponse{
		PageInfo: page.Info(total),
		Batches:  make([]domain.Response, 0, len(items)),
	}
	for _, item := range items {
		resp.Batches = append(resp.Batches, toResponse(item))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.DetailResponse, error) {
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, b)
}

// UpdateProducts makes productIDs the exact membership of the batch. Products
// that stay keep their position; new ones are appended in the given order.
func (s *Service) UpdateProducts(ctx context.Context, by actor.Actor, id string, productIDs []string) (*domain.DetailResponse, error) {
	if permission.HasRole(by.Roles, permission.RoleCustomer) {
		return nil, errs.Unauthorized(errs.ErrRoleForbidden)
	}
	b, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	current, err := s.productRepo.ListInBatch(ctx, s.db, b.ID)
	if err != nil {
		return nil, err
	}
	members := make(map[string]struct{}, len(current))
	for _, p := range current {
		members[p.ID] = struct{}{}
	}
	assignable, err := s.assignableSet(ctx, by.ID)
	if err != nil {
		return nil, err
	}

	selected := dedupe(productIDs)
	keep := make(map[string]struct{}, len(selected))
	var toAdd []string
	for _, pid := range selected {
		keep[pid] = struct{}{}
		if _, ok := members[pid]; ok {
			continue
		}
		if _, ok := assignable[pid]; !ok {
			return nil, errs.Invalid("product_ids", "not_assignable")
		}
		toAdd = append(toAdd, pid)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range current {
			if _, ok := keep[p.ID]; ok {
				continue
			}
			if err := s.productRepo.ClearBatch(ctx, tx, p.ID); err != nil {
				return err
			}
		}
		next, err := s.productRepo.MaxBatchPosition(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		for _, pid := range toAdd {
			next++
			if err := s.productRepo.AssignBatch(ctx, tx, pid, b.ID, next); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, batchConflict(err)
	}
	return s.detail(ctx, b)
}

// ListAssignable lists the products the caller may add to a batch.
func (s *Service) ListAssignable(ctx context.Context, by actor.Actor) ([]productdomain.Response, error) {
	items, err := s.productRepo.ListAssignable(ctx, s.db, by.ID)
	if err != nil {
		return nil, err
	}
	out := make([]productdomain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, productdomain.ToResponse(item))
	}
	return out, nil
}

func (s *Service) assignableSet(ctx context.Context, actorID string) (map[string]struct{}, error) {
	items, err := s.productRepo.ListAssignable(ctx, s.db, actorID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item.ID] = struct{}{}
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (*domain.Batch, error) {
	id = strings.TrimSpace(id)
	if _, err := ulid.ParseStrict(id); err != nil {
		return nil, errs.NotFound("batch", id)
	}
	b, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errs.NotFound("batch", id)
	}
	return b, nil
}

func (s *Service) detail(ctx context.Context, b *domain.Batch) (*domain.DetailResponse, error) {
	products, err := s.productRepo.ListInBatch(ctx, s.db, b.ID)
	if err != nil {
		return nil, err
	}
	resp := &domain.DetailResponse{
		Response: toResponse(*b),
		Products: make([]productdomain.Response, 0, len(products)),
	}
	for _, p := range products {
		resp.Products = append(resp.Products, productdomain.ToResponse(p))
	}
	return resp, nil
}

func toResponse(b domain.Batch) domain.Response {
	return domain.Response{
		ID:          b.ID,
		Code:        b.Code,
		Name:        b.Name,
		Description: b.Description,
		CreatedAt:   b.CreatedAt,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// batchConflict reports a product claimed by another batch after the
// assignable check as a conflict.
func batchConflict(err error) error {
	if errors.Is(err, productdomain.ErrAlreadyBatched) {
		return &errs.ConflictError{Resource: "product", Field: "batch"}
	}
	return err
}

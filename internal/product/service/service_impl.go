package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/tracechain/internal/actor"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/permission"
	"github.com/smallbiznis/tracechain/internal/product/domain"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	StepRepo stepdomain.Repository
	Engine   *permission.Engine
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	stepRepo stepdomain.Repository
	engine   *permission.Engine
	auditSvc auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("product.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		stepRepo: p.StepRepo,
		engine:   p.Engine,
		auditSvc: p.AuditSvc,
	}
}

// Create registers a product and puts its creator on the allow-list.
func (s *Service) Create(ctx context.Context, by actor.Actor, req domain.CreateRequest) (*domain.Response, error) {
	if permission.HasRole(by.Roles, permission.RoleCustomer) {
		return nil, errs.Unauthorized(errs.ErrRoleForbidden)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 200 {
		return nil, errs.Invalid("name", domain.ErrInvalidName.Error())
	}
	sku := strings.TrimSpace(req.SKU)
	if sku == "" || len(sku) > 100 {
		return nil, errs.Invalid("sku", domain.ErrInvalidSKU.Error())
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:          uuid.NewString(),
		Name:        name,
		SKU:         sku,
		Description: trimOptional(req.Description),
		CreatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, p); err != nil {
			return err
		}
		return s.repo.AddAuthorizedUser(ctx, tx, p.ID, by.ID, now)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, &errs.ConflictError{Resource: "product", Field: "sku"}
		}
		return nil, err
	}

	resp := domain.ToResponse(*p)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	page := pagination.New(req.Page, req.PageSize, domain.DefaultPageSize)
	filter := domain.ListFilter{
		Query:  strings.TrimSpace(req.Query),
		Stage:  strings.ToLower(strings.TrimSpace(req.Stage)),
		Offset: page.Offset(),
		Limit:  page.Limit(),
	}

	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}

	resp := domain.ListResponse{
		PageInfo: page.Info(total),
		Products: make([]domain.Response, 0, len(items)),
	}
	for _, item := range items {
		resp.Products = append(resp.Products, domain.ToResponse(item))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := domain.ToResponse(*p)
	return &resp, nil
}

// Trace returns the public tracking view of a product.
func (s *Service) Trace(ctx context.Context, id string) (*domain.TraceResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.stepRepo.ListByProduct(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	if steps == nil {
		steps = []stepdomain.Step{}
	}
	return &domain.TraceResponse{Product: domain.ToResponse(*p), Steps: steps}, nil
}

// Verify recomputes the digest of every recorded step.
func (s *Service) Verify(ctx context.Context, id string) (*domain.VerifyResponse, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := s.stepRepo.ListByProduct(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}

	resp := &domain.VerifyResponse{
		ProductID: p.ID,
		Valid:     true,
		Steps:     make([]domain.StepVerification, 0, len(steps)),
	}
	for _, st := range steps {
		valid := st.Verify()
		if !valid {
			resp.Valid = false
		}
		resp.Steps = append(resp.Steps, domain.StepVerification{
			StepID:   st.ID.String(),
			TxHash:   st.TxHash,
			Sequence: st.Sequence,
			Valid:    valid,
		})
	}
	return resp, nil
}

// Delete removes a product with its history. Only managers may delete.
func (s *Service) Delete(ctx context.Context, by actor.Actor, id string) error {
	if !permission.HasRole(by.Roles, permission.RoleManager) {
		return errs.Unauthorized(errs.ErrRoleForbidden)
	}
	p, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, s.db, p.ID); err != nil {
		return err
	}

	s.log.Info("product deleted", zap.String("product_id", p.ID), zap.String("actor_id", by.ID))
	if s.auditSvc != nil {
		err := s.auditSvc.AuditLog(ctx, by.ID, auditdomain.ActionProductDeleted, auditdomain.TargetProduct, p.ID,
			map[string]any{"sku": p.SKU})
		if err != nil {
			s.log.Warn("audit log",
				zap.String("action", auditdomain.ActionProductDeleted),
				zap.String("product_id", p.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// AddAuthorizedUser grants actorID write access. The caller must already be on
// the allow-list.
func (s *Service) AddAuthorizedUser(ctx context.Context, by actor.Actor, productID, actorID string) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return errs.Invalid("actor_id", "required")
	}
	p, err := s.find(ctx, productID)
	if err != nil {
		return err
	}
	ok, err := s.engine.CanWriteProduct(ctx, by.ID, p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.Unauthorized(errs.ErrProductAccess)
	}
	return s.repo.AddAuthorizedUser(ctx, s.db, p.ID, actorID, s.clock.Now())
}

func (s *Service) ListForActor(ctx context.Context, by actor.Actor) ([]domain.Response, error) {
	items, err := s.repo.ListForActor(ctx, s.db, by.ID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(items))
	for _, item := range items {
		out = append(out, domain.ToResponse(item))
	}
	return out, nil
}

func (s *Service) find(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, errs.NotFound("product", id)
	}
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errs.NotFound("product", id)
	}
	return p, nil
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

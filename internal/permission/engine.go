package permission

import (
	"context"
	"strings"

	"github.com/smallbiznis/tracechain/internal/actor"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	"github.com/smallbiznis/tracechain/internal/errs"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/internal/stage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Role names with behaviour beyond stage permissions.
const (
	RoleManager  = "manager"
	RoleCustomer = "customer"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Table       *Table
	Catalog     *stage.Catalog
	ProductRepo productdomain.Repository
	AuditSvc    auditdomain.Service `optional:"true"`
}

// Engine decides whether an actor may record a stage against a product.
type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	table       *Table
	catalog     *stage.Catalog
	productRepo productdomain.Repository
	auditSvc    auditdomain.Service
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("permission.engine"),
		table:       p.Table,
		catalog:     p.Catalog,
		productRepo: p.ProductRepo,
		auditSvc:    p.AuditSvc,
	}
}

// ResolveAvailableStages is the duplicate free union of the stages permitted
// to roles, in catalog order.
func (e *Engine) ResolveAvailableStages(roles []string) []stage.Code {
	seen := make(map[stage.Code]struct{})
	var out []stage.Code
	for _, role := range roles {
		for _, code := range e.table.PermittedStages(role) {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	e.catalog.Sort(out)
	return out
}

// AvailableStages resolves the stage choices offered to an actor.
func (e *Engine) AvailableStages(roles []string) []stage.Definition {
	codes := e.ResolveAvailableStages(roles)
	out := make([]stage.Definition, 0, len(codes))
	for _, code := range codes {
		out = append(out, stage.Definition{Code: code, Label: e.catalog.Label(code)})
	}
	return out
}

// IsAuthorized reports whether any of roles permits code.
func (e *Engine) IsAuthorized(roles []string, code stage.Code) bool {
	for _, role := range roles {
		ok, err := e.table.Allows(role, code)
		if err != nil {
			e.log.Error("enforce stage permission", zap.String("role", role), zap.Error(err))
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// CanWriteProduct reports whether actorID is on the product allow-list.
func (e *Engine) CanWriteProduct(ctx context.Context, actorID, productID string) (bool, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return false, nil
	}
	return e.productRepo.IsAuthorizedUser(ctx, e.db, productID, actorID)
}

// AuthorizeStep runs the product allow-list check and then the stage check,
// auditing the first denial.
func (e *Engine) AuthorizeStep(ctx context.Context, by actor.Actor, productID string, code stage.Code) error {
	ok, err := e.CanWriteProduct(ctx, by.ID, productID)
	if err != nil {
		return err
	}
	if !ok {
		e.auditDenied(ctx, by, auditdomain.TargetProduct, productID, errs.ErrProductAccess, code)
		return errs.Unauthorized(errs.ErrProductAccess)
	}
	return e.AuthorizeStage(ctx, by, auditdomain.TargetProduct, productID, code)
}

// AuthorizeStage checks only the role permission for code.
func (e *Engine) AuthorizeStage(ctx context.Context, by actor.Actor, targetType, targetID string, code stage.Code) error {
	if e.IsAuthorized(by.Roles, code) {
		return nil
	}
	e.auditDenied(ctx, by, targetType, targetID, errs.ErrStagePermission, code)
	return errs.Unauthorized(errs.ErrStagePermission)
}

// HasRole reports whether roles contains role, ignoring case.
func HasRole(roles []string, role string) bool {
	role = normalizeRole(role)
	for _, r := range roles {
		if normalizeRole(r) == role {
			return true
		}
	}
	return false
}

func (e *Engine) auditDenied(ctx context.Context, by actor.Actor, targetType, targetID string, reason error, code stage.Code) {
	e.log.Info("step write denied",
		zap.String("actor_id", by.ID),
		zap.String("target_type", targetType),
		zap.String("stage", string(code)),
		zap.String("reason", reason.Error()),
	)
	if e.auditSvc == nil {
		return
	}
	err := e.auditSvc.AuditLog(ctx, by.ID, auditdomain.ActionAuthorizationDenied, targetType, targetID, map[string]any{
		"stage":  string(code),
		"roles":  by.RoleString(),
		"reason": reason.Error(),
	})
	if err != nil {
		e.log.Warn("audit log",
			zap.String("action", auditdomain.ActionAuthorizationDenied),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}

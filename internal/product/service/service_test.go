package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tracechain/internal/actor"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/permission"
	"github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/internal/product/repository"
	"github.com/smallbiznis/tracechain/internal/stage"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	steprepo "github.com/smallbiznis/tracechain/internal/step/repository"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/smallbiznis/tracechain/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var (
	supplier = actor.Actor{ID: "alice", Roles: []string{"supplier"}}
	manager  = actor.Actor{ID: "mia", Roles: []string{"manager"}}
	customer = actor.Actor{ID: "cara", Roles: []string{"customer"}}
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	return newTestServiceWith(t, zap.NewNop(), nil)
}

func newTestServiceWith(t *testing.T, log *zap.Logger, auditSvc auditdomain.Service) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Product{}, &domain.AuthorizedUser{}, &stepdomain.Step{}))

	perms := config.DefaultPermissionConfig()
	catalog, err := stage.FromConfig(perms)
	require.NoError(t, err)
	table, err := permission.NewTable(perms, catalog)
	require.NoError(t, err)

	products := repository.Provide()
	engine := permission.NewEngine(permission.Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Table:       table,
		Catalog:     catalog,
		ProductRepo: products,
	})

	fake := clock.NewFakeClock(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:       conn,
		Log:      log,
		Clock:    fake,
		Repo:     products,
		StepRepo: steprepo.Provide(),
		Engine:   engine,
		AuditSvc: auditSvc,
	})
	return svc, conn, fake
}

func addStep(t *testing.T, conn *gorm.DB, id int64, productID string, code stage.Code, seq uint64, at time.Time) {
	t.Helper()
	st := stepdomain.Step{
		ProductID: productID,
		Stage:     code,
		Location:  "Somewhere",
		Sequence:  seq,
		TxHash:    fmt.Sprintf("0x%02d", id),
		CreatedAt: at,
	}
	st.ID = snowflake.ID(id)
	st.Digest = stepdomain.Digest(st.ProductID, st.Stage, st.Location, st.Sequence)
	require.NoError(t, steprepo.Provide().Create(context.Background(), conn, &st))
}

func TestCreateAddsCreatorToAllowList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "  Coffee ", SKU: " C-1 "})
	require.NoError(t, err)
	assert.Equal(t, "Coffee", resp.Name)
	assert.Equal(t, "C-1", resp.SKU)

	mine, err := svc.ListForActor(ctx, supplier)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, resp.ID, mine[0].ID)
}

func TestCreateRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, customer, domain.CreateRequest{Name: "Tea", SKU: "T-1"})
	assert.True(t, errs.IsAuthorization(err))

	_, err = svc.Create(ctx, supplier, domain.CreateRequest{Name: " ", SKU: "T-1"})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Create(ctx, supplier, domain.CreateRequest{Name: "Tea", SKU: ""})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Create(ctx, supplier, domain.CreateRequest{Name: "Tea", SKU: "T-1"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, supplier, domain.CreateRequest{Name: "Tea 2", SKU: "T-1"})
	assert.True(t, errs.IsConflict(err))
}

func TestListFiltersAndPages(t *testing.T) {
	svc, conn, fake := newTestService(t)
	ctx := context.Background()

	var ids []string
	for i := 1; i <= 3; i++ {
		resp, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: fmt.Sprintf("Beans %d", i), SKU: fmt.Sprintf("B-%d", i)})
		require.NoError(t, err)
		ids = append(ids, resp.ID)
		fake.Advance(time.Minute)
	}
	_, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "Cocoa", SKU: "K-1"})
	require.NoError(t, err)
	addStep(t, conn, 1, ids[0], "shipping", 0, fake.Now())

	page, err := svc.List(ctx, domain.ListRequest{Pagination: pagination.Pagination{Page: 1, PageSize: 2}, Query: "beans"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Products, 2)
	assert.Equal(t, ids[2], page.Products[0].ID)

	byStage, err := svc.List(ctx, domain.ListRequest{Stage: "Shipping"})
	require.NoError(t, err)
	require.Len(t, byStage.Products, 1)
	assert.Equal(t, ids[0], byStage.Products[0].ID)
}

func TestTraceAndVerify(t *testing.T) {
	svc, conn, fake := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "Coffee", SKU: "C-1"})
	require.NoError(t, err)

	trace, err := svc.Trace(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, trace.Steps)

	addStep(t, conn, 1, p.ID, "sourcing", 4, fake.Now())
	addStep(t, conn, 2, p.ID, "manufacturing", 5, fake.Now().Add(time.Hour))

	trace, err = svc.Trace(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, trace.Steps, 2)
	assert.Equal(t, stage.Code("sourcing"), trace.Steps[0].Stage)

	verify, err := svc.Verify(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, verify.Valid)

	require.NoError(t, conn.Exec(`UPDATE supply_chain_steps SET location = ? WHERE id = ?`, "Elsewhere", 2).Error)
	verify, err = svc.Verify(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, verify.Valid)
	assert.True(t, verify.Steps[0].Valid)
	assert.False(t, verify.Steps[1].Valid)
}

func TestGetUnknownProduct(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Get(context.Background(), "not-a-uuid")
	assert.True(t, errs.IsNotFound(err))

	_, err = svc.Get(context.Background(), "6f1c2a4e-8f0b-4d55-9d1a-3b8e7c1f0a22")
	assert.True(t, errs.IsNotFound(err))
}

func TestDeleteRequiresManager(t *testing.T) {
	svc, conn, fake := newTestService(t)
	ctx := context.Background()

	p, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "Coffee", SKU: "C-1"})
	require.NoError(t, err)
	addStep(t, conn, 1, p.ID, "sourcing", 0, fake.Now())

	err = svc.Delete(ctx, supplier, p.ID)
	assert.True(t, errs.IsAuthorization(err))

	require.NoError(t, svc.Delete(ctx, manager, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.True(t, errs.IsNotFound(err))

	n, err := steprepo.Provide().Count(ctx, conn)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingAudit struct{}

func (failingAudit) AuditLog(context.Context, string, string, string, string, map[string]any) error {
	return errors.New("audit store down")
}

func (failingAudit) List(context.Context, auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func TestDeleteLogsAuditFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	svc, _, _ := newTestServiceWith(t, zap.New(core), failingAudit{})
	ctx := context.Background()

	p, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "Coffee", SKU: "C-1"})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, manager, p.ID))

	entries := logs.FilterMessage("audit log").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, auditdomain.ActionProductDeleted, fields["action"])
	assert.Equal(t, p.ID, fields["product_id"])
	assert.Equal(t, "audit store down", fields["error"])
}

func TestAddAuthorizedUserRequiresAccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	bob := actor.Actor{ID: "bob", Roles: []string{"logistics"}}

	p, err := svc.Create(ctx, supplier, domain.CreateRequest{Name: "Coffee", SKU: "C-1"})
	require.NoError(t, err)

	err = svc.AddAuthorizedUser(ctx, bob, p.ID, "bob")
	assert.True(t, errs.IsAuthorization(err))

	require.NoError(t, svc.AddAuthorizedUser(ctx, supplier, p.ID, " bob "))
	require.NoError(t, svc.AddAuthorizedUser(ctx, supplier, p.ID, "bob"))

	mine, err := svc.ListForActor(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	err = svc.AddAuthorizedUser(ctx, supplier, p.ID, " ")
	assert.True(t, errs.IsValidation(err))
}

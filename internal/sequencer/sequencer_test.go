package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tracechain/internal/actor"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	batchdomain "github.com/smallbiznis/tracechain/internal/batch/domain"
	batchrepo "github.com/smallbiznis/tracechain/internal/batch/repository"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/events"
	"github.com/smallbiznis/tracechain/internal/ledger/memory"
	"github.com/smallbiznis/tracechain/internal/permission"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	productrepo "github.com/smallbiznis/tracechain/internal/product/repository"
	"github.com/smallbiznis/tracechain/internal/stage"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	steprepo "github.com/smallbiznis/tracechain/internal/step/repository"
	"github.com/smallbiznis/tracechain/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

var (
	supplier  = actor.Actor{ID: "alice", Roles: []string{"supplier"}}
	logistics = actor.Actor{ID: "lou", Roles: []string{"logistics"}}
	manager   = actor.Actor{ID: "mia", Roles: []string{"manager"}}
)

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
	meta    []map[string]any
}

func (a *recordingAudit) AuditLog(_ context.Context, _ string, action, _, _ string, metadata map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
	a.meta = append(a.meta, metadata)
	return nil
}

func (a *recordingAudit) List(context.Context, auditdomain.ListAuditLogRequest) ([]auditdomain.AuditLog, error) {
	return nil, nil
}

func (a *recordingAudit) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StepRecorded
	err    error
}

func (p *recordingPublisher) PublishStepRecorded(_ context.Context, event events.StepRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// failingStepRepo rejects every insert.
type failingStepRepo struct {
	stepdomain.Repository
	err error
}

func (r failingStepRepo) Create(context.Context, *gorm.DB, *stepdomain.Step) error {
	return r.err
}

type harness struct {
	seq       *Sequencer
	db        *gorm.DB
	ledger    *memory.Client
	clock     *clock.FakeClock
	audit     *recordingAudit
	publisher *recordingPublisher
	steps     stepdomain.Repository
	params    Params
}

type harnessOption func(*Params)

func withStepRepo(repo stepdomain.Repository) harnessOption {
	return func(p *Params) { p.StepRepo = repo }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&productdomain.Product{},
		&productdomain.AuthorizedUser{},
		&batchdomain.Batch{},
		&stepdomain.Step{},
	))

	perms := config.DefaultPermissionConfig()
	catalog, err := stage.FromConfig(perms)
	require.NoError(t, err)
	table, err := permission.NewTable(perms, catalog)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	auditSvc := &recordingAudit{}
	publisher := &recordingPublisher{}
	ledger := memory.New("0xAbC", 0)
	fake := clock.NewFakeClock(t0)
	products := productrepo.Provide()

	engine := permission.NewEngine(permission.Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Table:       table,
		Catalog:     catalog,
		ProductRepo: products,
	})

	p := Params{
		Config:      config.Config{Ledger: config.LedgerConfig{LockTTL: time.Minute}},
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       fake,
		GenID:       node,
		Catalog:     catalog,
		Engine:      engine,
		Ledger:      ledger,
		ProductRepo: products,
		BatchRepo:   batchrepo.Provide(),
		StepRepo:    steprepo.Provide(),
		Publisher:   publisher,
		AuditSvc:    auditSvc,
	}
	for _, opt := range opts {
		opt(&p)
	}

	return &harness{
		seq:       New(p),
		db:        conn,
		ledger:    ledger,
		clock:     fake,
		audit:     auditSvc,
		publisher: publisher,
		steps:     steprepo.Provide(),
		params:    p,
	}
}

func (h *harness) product(t *testing.T, id string, writers ...string) {
	t.Helper()
	require.NoError(t, h.db.Create(&productdomain.Product{
		ID:        id,
		Name:      "Product " + id,
		SKU:       "SKU-" + id,
		CreatedAt: t0,
	}).Error)
	for _, w := range writers {
		require.NoError(t, h.db.Create(&productdomain.AuthorizedUser{ProductID: id, ActorID: w, CreatedAt: t0}).Error)
	}
}

// batch creates a batch whose products are b-<n>-1 .. b-<n>-size, in order.
func (h *harness) batch(t *testing.T, id string, size int, writers ...string) []string {
	t.Helper()
	require.NoError(t, h.db.Create(&batchdomain.Batch{ID: id, Code: id, Name: id, CreatedAt: t0}).Error)

	ids := make([]string, 0, size)
	for i := 1; i <= size; i++ {
		pid := fmt.Sprintf("%s-%d", id, i)
		h.product(t, pid, writers...)
		pos := int64(i)
		batchID := id
		require.NoError(t, h.db.Model(&productdomain.Product{}).
			Where("id = ?", pid).
			Updates(map[string]any{"batch_id": batchID, "batch_position": pos}).Error)
		ids = append(ids, pid)
	}
	return ids
}

func (h *harness) stepCount(t *testing.T) int64 {
	t.Helper()
	n, err := h.steps.Count(context.Background(), h.db)
	require.NoError(t, err)
	return n
}

func TestRecordEventPersistsConfirmedStep(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", supplier.ID)
	h.ledger.Advance(41)

	lat, lng := 6.2, -75.5
	got, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1",
		Stage:     " Sourcing ",
		Location:  "  Medellín farm ",
		Latitude:  &lat,
		Longitude: &lng,
		Metadata:  map[string]any{"lot": "A7"},
	}, supplier)
	require.NoError(t, err)

	assert.Equal(t, stage.Code("sourcing"), got.Stage)
	assert.Equal(t, "Medellín farm", got.Location)
	assert.Equal(t, uint64(41), got.Sequence)
	assert.True(t, got.Verify())
	assert.True(t, t0.Equal(got.CreatedAt))

	subs := h.ledger.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, "p1", subs[0].SubjectID)
	assert.Equal(t, "Sourcing", subs[0].StageLabel)
	assert.Equal(t, "Medellín farm", subs[0].Location)

	stored, err := h.steps.ListByProduct(context.Background(), h.db, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, got.ID, stored[0].ID)
	assert.Equal(t, stage.Code("sourcing"), stored[0].Stage)
	assert.Equal(t, "Medellín farm", stored[0].Location)
	assert.Equal(t, got.TxHash, stored[0].TxHash)
	assert.NotEmpty(t, stored[0].TxHash)

	require.Len(t, h.publisher.events, 1)
	assert.Equal(t, "p1", h.publisher.events[0].ProductID)
	assert.Equal(t, uint64(41), h.publisher.events[0].Sequence)
}

func TestRecordEventWithoutProductAccessPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", "someone-else")

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, supplier)

	require.Error(t, err)
	assert.True(t, errs.IsAuthorization(err))
	assert.ErrorIs(t, err, errs.ErrProductAccess)
	assert.Zero(t, h.ledger.Calls())
	assert.Zero(t, h.stepCount(t))
}

func TestRecordEventWithoutStagePermissionPersistsNothing(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", supplier.ID)

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "shipping", Location: "Port",
	}, supplier)

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStagePermission)
	assert.Zero(t, h.ledger.Calls())
	assert.Zero(t, h.stepCount(t))
}

func TestRecordEventValidation(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", supplier.ID)

	f := func(v float64) *float64 { return &v }
	cases := []struct {
		name  string
		req   RecordRequest
		field string
	}{
		{"unknown stage", RecordRequest{Stage: "teleport", Location: "x"}, "stage"},
		{"empty location", RecordRequest{Stage: "sourcing", Location: "   "}, "location"},
		{"long location", RecordRequest{Stage: "sourcing", Location: strings.Repeat("a", 201)}, "location"},
		{"latitude only", RecordRequest{Stage: "sourcing", Location: "x", Latitude: f(1)}, "coordinates"},
		{"latitude range", RecordRequest{Stage: "sourcing", Location: "x", Latitude: f(90.5), Longitude: f(0)}, "latitude"},
		{"longitude range", RecordRequest{Stage: "sourcing", Location: "x", Latitude: f(0), Longitude: f(-181)}, "longitude"},
		{"latitude NaN", RecordRequest{Stage: "sourcing", Location: "x", Latitude: f(math.NaN()), Longitude: f(0)}, "latitude"},
		{"longitude infinite", RecordRequest{Stage: "sourcing", Location: "x", Latitude: f(0), Longitude: f(math.Inf(1))}, "longitude"},
		{"missing product", RecordRequest{Stage: "sourcing", Location: "x"}, "product_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.req.ProductID == "" && tc.field != "product_id" {
				tc.req.ProductID = "p1"
			}
			_, err := h.seq.RecordEvent(context.Background(), tc.req, supplier)
			var verr *errs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: strings.Repeat("é", 200),
	}, supplier)
	assert.NoError(t, err)

	_, err = h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "nope", Stage: "sourcing", Location: "x",
	}, supplier)
	assert.True(t, errs.IsNotFound(err))
}

func TestRecordEventLedgerFailureDiscardsSequence(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", supplier.ID)
	cause := errors.New("rpc unavailable")
	h.ledger.FailOn(1, cause)

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, supplier)

	var lerr *errs.LedgerSubmissionError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, 0, lerr.Succeeded)
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, h.stepCount(t))
	assert.True(t, h.audit.has(auditdomain.ActionLedgerSubmissionFailed))

	got, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, supplier)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Sequence)
}

func TestRecordEventPersistFailureReportsTx(t *testing.T) {
	cause := errors.New("disk full")
	h := newHarness(t, withStepRepo(failingStepRepo{Repository: steprepo.Provide(), err: cause}))
	h.product(t, "p1", supplier.ID)

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, supplier)

	var perr *errs.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
	require.Len(t, h.ledger.Submissions(), 1)
	assert.NotEmpty(t, perr.TxID)
	assert.True(t, h.audit.has(auditdomain.ActionStepPersistFailed))
	assert.Empty(t, h.publisher.events)
}

func TestRecordEventClampsTimestampToLatestStep(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", manager.ID)

	first, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, manager)
	require.NoError(t, err)

	h.clock.Set(t0.Add(-time.Hour))
	second, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "processing", Location: "Plant",
	}, manager)
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
	stored, err := h.steps.ListByProduct(context.Background(), h.db, "p1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, first.ID, stored[0].ID)
	assert.Equal(t, second.ID, stored[1].ID)
}

func TestRecordEventPublishFailureDoesNotFailStep(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker down")
	h.product(t, "p1", supplier.ID)

	_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
		ProductID: "p1", Stage: "sourcing", Location: "Farm",
	}, supplier)
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.stepCount(t))
}

func TestRecordEventSerialisesConcurrentWriters(t *testing.T) {
	h := newHarness(t)
	h.product(t, "p1", manager.ID)

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.seq.RecordEvent(context.Background(), RecordRequest{
				ProductID: "p1", Stage: "shipping", Location: fmt.Sprintf("Hub %d", i),
			}, manager)
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}
	subs := h.ledger.Submissions()
	require.Len(t, subs, writers)
	for i, sub := range subs {
		assert.Equal(t, uint64(i), sub.Sequence)
	}
}

func TestRecordBatchEventUsesConsecutiveSequences(t *testing.T) {
	for size := 1; size <= 5; size++ {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			h := newHarness(t)
			ids := h.batch(t, "b", size, logistics.ID)
			h.ledger.Advance(10)

			res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
				BatchID: "b", Stage: "shipping", Location: "Port",
			}, logistics)

			require.NoError(t, res.Error)
			assert.Equal(t, size, res.Succeeded)
			assert.Equal(t, size, res.Total)
			assert.Equal(t, size, res.Attempted)
			assert.Equal(t, uint64(10), res.FirstSequence)

			subs := h.ledger.Submissions()
			require.Len(t, subs, size)
			for i, sub := range subs {
				assert.Equal(t, ids[i], sub.SubjectID)
				if i > 0 {
					assert.Equal(t, subs[i-1].Sequence+1, sub.Sequence)
				}
			}
			assert.Equal(t, int64(size), h.stepCount(t))
		})
	}
}

func TestRecordBatchEventStopsAtFirstFailure(t *testing.T) {
	for k := 1; k <= 4; k++ {
		t.Run(fmt.Sprintf("fail_at_%d", k), func(t *testing.T) {
			h := newHarness(t)
			ids := h.batch(t, "b", 4, logistics.ID)
			h.ledger.FailOn(k, errors.New("nonce too low"))

			res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
				BatchID: "b", Stage: "delivery", Location: "Store",
			}, logistics)

			var lerr *errs.LedgerSubmissionError
			require.ErrorAs(t, res.Error, &lerr)
			assert.Equal(t, k-1, res.Succeeded)
			assert.Equal(t, k-1, lerr.Succeeded)
			assert.Equal(t, ids[k-1], lerr.SubjectID)
			assert.Equal(t, k, res.Attempted)
			assert.Equal(t, k, h.ledger.Calls())
			assert.Equal(t, int64(k-1), h.stepCount(t))

			for _, pid := range ids[k-1:] {
				stored, err := h.steps.ListByProduct(context.Background(), h.db, pid)
				require.NoError(t, err)
				assert.Empty(t, stored)
			}
		})
	}
}

func TestRecordBatchEventThreeProductsFailingOnThird(t *testing.T) {
	h := newHarness(t)
	h.batch(t, "b", 3, manager.ID)
	h.ledger.FailOn(3, errors.New("reverted"))

	res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
		BatchID: "b", Stage: "packing", Location: "Warehouse",
	}, manager)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 3, res.Total)
	assert.True(t, errs.IsLedger(res.Error))
	assert.Equal(t, int64(2), h.stepCount(t))
	assert.Equal(t, "2 of 3 products updated, 1 failed.", res.Message())
	assert.True(t, h.audit.has(auditdomain.ActionLedgerSubmissionFailed))
	assert.False(t, h.audit.has(auditdomain.ActionBatchStepRecorded))
}

func TestRecordBatchEventRoleDenialIsFatal(t *testing.T) {
	h := newHarness(t)
	h.batch(t, "b", 3, supplier.ID)

	res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
		BatchID: "b", Stage: "shipping", Location: "Port",
	}, supplier)

	assert.True(t, errs.IsAuthorization(res.Error))
	assert.Zero(t, res.Succeeded)
	assert.Zero(t, res.Attempted)
	assert.Zero(t, h.ledger.Calls())
	assert.Zero(t, h.stepCount(t))
}

func TestRecordBatchEventSkipsProductsOutsideAllowList(t *testing.T) {
	h := newHarness(t)
	ids := h.batch(t, "b", 3, logistics.ID)
	require.NoError(t, h.db.Where("product_id = ? AND actor_id = ?", ids[1], logistics.ID).
		Delete(&productdomain.AuthorizedUser{}).Error)

	res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
		BatchID: "b", Stage: "shipping", Location: "Port",
	}, logistics)

	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "Update successfully added to 2 of 3 products. 1 skipped: not authorized.", res.Message())

	subs := h.ledger.Submissions()
	require.Len(t, subs, 2)
	assert.Equal(t, ids[0], subs[0].SubjectID)
	assert.Equal(t, ids[2], subs[1].SubjectID)
	assert.Equal(t, subs[0].Sequence+1, subs[1].Sequence)
	assert.True(t, h.audit.has(auditdomain.ActionBatchStepRecorded))
}

func TestRecordBatchEventUnknownBatch(t *testing.T) {
	h := newHarness(t)

	res := h.seq.RecordBatchEvent(context.Background(), BatchRequest{
		BatchID: "missing", Stage: "shipping", Location: "Port",
	}, logistics)
	assert.True(t, errs.IsNotFound(res.Error))

	res = h.seq.RecordBatchEvent(context.Background(), BatchRequest{
		BatchID: "missing", Stage: "shipping", Location: "",
	}, logistics)
	assert.True(t, errs.IsValidation(res.Error))
}

func TestBatchResultMessage(t *testing.T) {
	assert.Equal(t, "Update successfully added to 3 of 3 products.", BatchResult{Succeeded: 3, Total: 3}.Message())
	assert.Equal(t, "Update successfully added to 0 of 0 products.", BatchResult{}.Message())

	failed := BatchResult{Succeeded: 1, Total: 5, Skipped: 1, Error: errors.New("x")}
	assert.Equal(t, 3, failed.Failed())
	assert.Equal(t, "1 of 5 products updated, 3 failed. 1 skipped: not authorized.", failed.Message())

	allSkipped := BatchResult{Total: 3, Skipped: 3}
	assert.Equal(t, "Update successfully added to 0 of 3 products. 3 skipped: not authorized.", allSkipped.Message())
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "sequencer:account:0xabc", LockKey(" 0xAbC "))
}

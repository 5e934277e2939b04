// Package sequencer writes supply chain events to the ledger and the record
// store. It owns the nonce sequence of the signing account: every operation
// reads the next sequence once under the account lock and increments it
// locally for each attempted submission.
package sequencer

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tracechain/internal/actor"
	auditdomain "github.com/smallbiznis/tracechain/internal/audit/domain"
	batchdomain "github.com/smallbiznis/tracechain/internal/batch/domain"
	"github.com/smallbiznis/tracechain/internal/clock"
	"github.com/smallbiznis/tracechain/internal/config"
	"github.com/smallbiznis/tracechain/internal/errs"
	"github.com/smallbiznis/tracechain/internal/events"
	ledgerdomain "github.com/smallbiznis/tracechain/internal/ledger/domain"
	"github.com/smallbiznis/tracechain/internal/lock"
	"github.com/smallbiznis/tracechain/internal/observability/logger"
	"github.com/smallbiznis/tracechain/internal/observability/metrics"
	"github.com/smallbiznis/tracechain/internal/observability/tracing"
	"github.com/smallbiznis/tracechain/internal/permission"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/internal/stage"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	modeSingle = "single"
	modeBatch  = "batch"
)

type Params struct {
	fx.In

	Config      config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Catalog     *stage.Catalog
	Engine      *permission.Engine
	Ledger      ledgerdomain.Client
	ProductRepo productdomain.Repository
	BatchRepo   batchdomain.Repository
	StepRepo    stepdomain.Repository

	Locker     *lock.Locker              `optional:"true"`
	Publisher  events.Publisher          `optional:"true"`
	AuditSvc   auditdomain.Service       `optional:"true"`
	Metrics    *metrics.Metrics          `optional:"true"`
	SeqMetrics *metrics.SequencerMetrics `optional:"true"`
}

type Sequencer struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	catalog     *stage.Catalog
	engine      *permission.Engine
	ledger      ledgerdomain.Client
	productRepo productdomain.Repository
	batchRepo   batchdomain.Repository
	stepRepo    stepdomain.Repository
	locks       *accountLocks
	publisher   events.Publisher
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
	seqMetrics  *metrics.SequencerMetrics
	tracer      trace.Tracer
}

func New(p Params) *Sequencer {
	log := p.Log.Named("sequencer")
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	return &Sequencer{
		db:          p.DB,
		log:         log,
		clock:       p.Clock,
		genID:       p.GenID,
		catalog:     p.Catalog,
		engine:      p.Engine,
		ledger:      p.Ledger,
		productRepo: p.ProductRepo,
		batchRepo:   p.BatchRepo,
		stepRepo:    p.StepRepo,
		locks:       newAccountLocks(p.Locker, p.Config.Ledger.LockTTL, log),
		publisher:   publisher,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		seqMetrics:  p.SeqMetrics,
		tracer:      otel.Tracer("tracechain/sequencer"),
	}
}

// RecordEvent submits one update for a single product and persists it once
// the ledger confirmed it. Nothing is persisted when authorization or the
// ledger fails.
func (s *Sequencer) RecordEvent(ctx context.Context, req RecordRequest, by actor.Actor) (*stepdomain.Step, error) {
	ctx, span := s.tracer.Start(ctx, "sequencer.RecordEvent")
	defer span.End()

	step, err := s.recordEvent(ctx, req, by)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, tracing.SafeError(err).Error())
	}
	return step, err
}

func (s *Sequencer) recordEvent(ctx context.Context, req RecordRequest, by actor.Actor) (*stepdomain.Step, error) {
	in, err := req.input(s.catalog)
	if err != nil {
		return nil, err
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return nil, errs.Invalid("product_id", "required")
	}

	product, err := s.productRepo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, errs.NotFound("product", productID)
	}

	if err := s.engine.AuthorizeStep(ctx, by, product.ID, in.code); err != nil {
		s.metrics.RecordLedgerSubmission(ctx, metrics.OutcomeDenied)
		return nil, err
	}

	held, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer held.release(ctx)

	sequence, err := s.ledger.NextSequence(ctx)
	if err != nil {
		return nil, s.ledgerFailure(ctx, by, auditdomain.TargetProduct, product.ID, 0, 0, err)
	}
	if err := held.renew(ctx); err != nil {
		return nil, err
	}

	receipt, err := s.submit(ctx, product.ID, in, sequence)
	if err != nil {
		return nil, s.ledgerFailure(ctx, by, auditdomain.TargetProduct, product.ID, sequence, 0, err)
	}

	step, err := s.persist(ctx, by, product, in, sequence, receipt)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStep(ctx, string(in.code), modeSingle)
	return step, nil
}

// RecordBatchEvent submits the update for every product of a batch in batch
// order, consuming consecutive sequence numbers. The first ledger failure or
// a lost writer lock stops the batch; products after it are never attempted.
// Products the actor may not write are skipped. Errors are reported in
// BatchResult.Error.
func (s *Sequencer) RecordBatchEvent(ctx context.Context, req BatchRequest, by actor.Actor) BatchResult {
	ctx, span := s.tracer.Start(ctx, "sequencer.RecordBatchEvent")
	defer span.End()

	result := s.recordBatch(ctx, req, by)

	span.SetAttributes(
		attribute.Int("batch.total", result.Total),
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Int("batch.skipped", result.Skipped),
	)
	outcome := metrics.OutcomeSuccess
	switch {
	case errs.IsAuthorization(result.Error):
		outcome = metrics.OutcomeDenied
	case result.Error != nil && result.Succeeded > 0:
		outcome = metrics.OutcomePartial
	case result.Error != nil:
		outcome = metrics.OutcomeFailure
	}
	if result.Error != nil {
		span.RecordError(tracing.SafeError(result.Error))
		span.SetStatus(codes.Error, tracing.SafeError(result.Error).Error())
	}
	s.metrics.RecordBatchRun(ctx, outcome)
	s.seqMetrics.AddBatchItems(metrics.BatchItemSucceeded, result.Succeeded)
	s.seqMetrics.AddBatchItems(metrics.BatchItemSkipped, result.Skipped)
	if result.Error != nil {
		s.seqMetrics.AddBatchItems(metrics.BatchItemFailed, result.Failed())
	}
	return result
}

func (s *Sequencer) recordBatch(ctx context.Context, req BatchRequest, by actor.Actor) BatchResult {
	in, err := req.input(s.catalog)
	if err != nil {
		return BatchResult{Error: err}
	}
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		return BatchResult{Error: errs.Invalid("batch_id", "required")}
	}

	batch, err := s.batchRepo.FindByID(ctx, s.db, batchID)
	if err != nil {
		return BatchResult{Error: err}
	}
	if batch == nil {
		return BatchResult{Error: errs.NotFound("batch", batchID)}
	}

	if err := s.engine.AuthorizeStage(ctx, by, auditdomain.TargetBatch, batch.ID, in.code); err != nil {
		return BatchResult{Error: err}
	}

	products, err := s.productRepo.ListInBatch(ctx, s.db, batch.ID)
	if err != nil {
		return BatchResult{Error: err}
	}

	result := BatchResult{Total: len(products)}
	eligible := make([]productdomain.Product, 0, len(products))
	for _, p := range products {
		ok, err := s.engine.CanWriteProduct(ctx, by.ID, p.ID)
		if err != nil {
			result.Error = err
			return result
		}
		if !ok {
			result.Skipped++
			continue
		}
		eligible = append(eligible, p)
	}
	if result.Skipped > 0 {
		s.log.Info("batch products skipped",
			zap.String("batch_id", batch.ID),
			zap.Int("skipped", result.Skipped),
		)
	}
	if len(eligible) == 0 {
		return result
	}

	held, err := s.lock(ctx)
	if err != nil {
		result.Error = err
		return result
	}
	defer held.release(ctx)

	sequence, err := s.ledger.NextSequence(ctx)
	if err != nil {
		result.Error = s.ledgerFailure(ctx, by, auditdomain.TargetBatch, batch.ID, 0, 0, err)
		return result
	}
	result.FirstSequence = sequence

	for i := range eligible {
		product := &eligible[i]
		// each submission can block until its receipt arrives
		if err := held.renew(ctx); err != nil {
			result.Error = err
			return result
		}
		result.Attempted++

		receipt, err := s.submit(ctx, product.ID, in, sequence)
		if err != nil {
			result.Error = s.ledgerFailure(ctx, by, auditdomain.TargetProduct, product.ID, sequence, result.Succeeded, err)
			return result
		}
		if _, err := s.persist(ctx, by, product, in, sequence, receipt); err != nil {
			result.Error = err
			return result
		}
		s.metrics.RecordStep(ctx, string(in.code), modeBatch)
		result.Succeeded++
		sequence++
	}

	s.audit(ctx, by.ID, auditdomain.ActionBatchStepRecorded, auditdomain.TargetBatch, batch.ID, map[string]any{
		"stage":          string(in.code),
		"succeeded":      result.Succeeded,
		"total":          result.Total,
		"skipped":        result.Skipped,
		"first_sequence": result.FirstSequence,
	})
	return result
}

func (s *Sequencer) lock(ctx context.Context) (*lease, error) {
	start := time.Now()
	held, err := s.locks.acquire(ctx, s.ledger.Account())
	s.seqMetrics.ObserveLockWait(time.Since(start))
	if err != nil {
		if errors.Is(err, errs.ErrSequencerBusy) {
			s.log.Warn("writer lock held elsewhere", zap.String("account", s.ledger.Account()))
		}
		return nil, err
	}
	return held, nil
}

func (s *Sequencer) submit(ctx context.Context, productID string, in stepInput, sequence uint64) (ledgerdomain.Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.submit", trace.WithAttributes(
		attribute.String("stage", string(in.code)),
		attribute.Int64("sequence", int64(sequence)),
	))
	defer span.End()

	start := time.Now()
	receipt, err := s.ledger.Submit(ctx, ledgerdomain.Submission{
		SubjectID:  productID,
		StageLabel: s.catalog.Label(in.code),
		Location:   in.location,
		Sequence:   sequence,
	})
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger submission failed")
		s.seqMetrics.ObserveSubmit(metrics.OutcomeFailure, elapsed)
		s.metrics.RecordLedgerSubmission(ctx, metrics.OutcomeFailure)
		return ledgerdomain.Receipt{}, err
	}

	span.SetAttributes(attribute.Int64("block_number", int64(receipt.BlockNumber)))
	s.seqMetrics.ObserveSubmit(metrics.OutcomeSuccess, elapsed)
	s.seqMetrics.SetLastSequence(s.ledger.Account(), sequence)
	s.metrics.RecordLedgerSubmission(ctx, metrics.OutcomeSuccess)
	return receipt, nil
}

// persist stores a confirmed step. Its timestamp never precedes the latest
// step of the same product.
func (s *Sequencer) persist(ctx context.Context, by actor.Actor, product *productdomain.Product, in stepInput, sequence uint64, receipt ledgerdomain.Receipt) (*stepdomain.Step, error) {
	log := logger.WithProduct(logger.WithContext(ctx, s.log), product.ID)

	createdAt := s.clock.Now().UTC()
	latest, err := s.stepRepo.LatestForProduct(ctx, s.db, product.ID)
	if err != nil {
		return nil, s.persistFailure(ctx, log, by, product.ID, sequence, receipt, err)
	}
	if latest != nil && latest.CreatedAt.After(createdAt) {
		createdAt = latest.CreatedAt
	}

	step := &stepdomain.Step{
		ID:          s.genID.Generate(),
		ProductID:   product.ID,
		Stage:       in.code,
		Location:    in.location,
		Latitude:    in.latitude,
		Longitude:   in.longitude,
		DocumentRef: in.documentRef,
		Digest:      stepdomain.Digest(product.ID, in.code, in.location, sequence),
		Sequence:    sequence,
		TxHash:      receipt.TxID,
		CreatedAt:   createdAt,
	}
	if len(in.metadata) > 0 {
		step.Metadata = datatypes.JSONMap(in.metadata)
	}

	if err := s.stepRepo.Create(ctx, s.db, step); err != nil {
		return nil, s.persistFailure(ctx, log, by, product.ID, sequence, receipt, err)
	}

	log.Info("step recorded",
		zap.String("stage", string(step.Stage)),
		zap.Uint64("sequence", sequence),
		zap.String("tx_hash", receipt.TxID),
	)

	event := events.StepRecorded{
		StepID:     step.ID.String(),
		ProductID:  product.ID,
		Stage:      string(step.Stage),
		StageLabel: s.catalog.Label(step.Stage),
		Location:   step.Location,
		Sequence:   sequence,
		TxHash:     step.TxHash,
		Digest:     step.Digest,
		ActorID:    by.ID,
		RecordedAt: step.CreatedAt,
	}
	if product.BatchID != nil {
		event.BatchID = *product.BatchID
	}
	if err := s.publisher.PublishStepRecorded(ctx, event); err != nil {
		log.Warn("publish step event", zap.Error(err))
	}
	return step, nil
}

func (s *Sequencer) ledgerFailure(ctx context.Context, by actor.Actor, targetType, subjectID string, sequence uint64, succeeded int, cause error) error {
	logger.WithContext(ctx, s.log).Error("ledger submission failed",
		zap.String("subject_id", subjectID),
		zap.String("account", s.ledger.Account()),
		zap.Uint64("sequence", sequence),
		zap.Int("succeeded", succeeded),
		zap.Error(cause),
	)
	s.audit(ctx, by.ID, auditdomain.ActionLedgerSubmissionFailed, targetType, subjectID, map[string]any{
		"sequence":  strconv.FormatUint(sequence, 10),
		"succeeded": succeeded,
		"error":     cause.Error(),
	})
	return &errs.LedgerSubmissionError{
		Cause:     cause,
		SubjectID: subjectID,
		Sequence:  sequence,
		Succeeded: succeeded,
	}
}

func (s *Sequencer) persistFailure(ctx context.Context, log *zap.Logger, by actor.Actor, productID string, sequence uint64, receipt ledgerdomain.Receipt, cause error) error {
	log.Error("ledger update confirmed but step not persisted",
		zap.Uint64("sequence", sequence),
		zap.String("tx_hash", receipt.TxID),
		zap.Error(cause),
	)
	s.audit(ctx, by.ID, auditdomain.ActionStepPersistFailed, auditdomain.TargetProduct, productID, map[string]any{
		"tx_hash":  receipt.TxID,
		"sequence": strconv.FormatUint(sequence, 10),
	})
	return &errs.PersistenceError{TxID: receipt.TxID, Cause: cause}
}

func (s *Sequencer) audit(ctx context.Context, actorID, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLog(ctx, actorID, action, targetType, targetID, metadata); err != nil {
		s.log.Warn("audit log", zap.String("action", action), zap.Error(err))
	}
}

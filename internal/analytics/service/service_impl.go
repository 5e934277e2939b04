package service

import (
	"context"
	"math"
	"time"

	"github.com/smallbiznis/tracechain/internal/analytics/domain"
	productdomain "github.com/smallbiznis/tracechain/internal/product/domain"
	"github.com/smallbiznis/tracechain/internal/stage"
	stepdomain "github.com/smallbiznis/tracechain/internal/step/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const day = 24 * time.Hour

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Catalog     *stage.Catalog
	StepRepo    stepdomain.Repository
	ProductRepo productdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	catalog     *stage.Catalog
	stepRepo    stepdomain.Repository
	productRepo productdomain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("analytics.service"),
		catalog:     p.Catalog,
		stepRepo:    p.StepRepo,
		productRepo: p.ProductRepo,
	}
}

func (s *Service) StageActivityCounts(ctx context.Context) ([]domain.StageCount, error) {
	rows, err := s.stepRepo.CountByStage(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return s.stageCounts(rows), nil
}

func (s *Service) AverageDwellTimePerStage(ctx context.Context) ([]domain.StageDwell, error) {
	steps, err := s.stepRepo.ListAll(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return s.dwell(steps), nil
}

func (s *Service) SlowestStage(ctx context.Context) (stage.Code, float64, error) {
	dwell, err := s.AverageDwellTimePerStage(ctx)
	if err != nil {
		return domain.NoStage, 0, err
	}
	code, days := slowest(dwell)
	return code, days, nil
}

// Summary gathers the dashboard figures. Day values are rounded to two
// decimals.
func (s *Service) Summary(ctx context.Context) (*domain.Summary, error) {
	counts, err := s.StageActivityCounts(ctx)
	if err != nil {
		return nil, err
	}
	dwell, err := s.AverageDwellTimePerStage(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.productRepo.Count(ctx, s.db, productdomain.ListFilter{})
	if err != nil {
		return nil, err
	}
	updates, err := s.stepRepo.Count(ctx, s.db)
	if err != nil {
		return nil, err
	}

	code, days := slowest(dwell)
	label := string(domain.NoStage)
	if code != domain.NoStage {
		label = s.catalog.Label(code)
	}

	rounded := make([]domain.StageDwell, len(dwell))
	for i, d := range dwell {
		d.AverageDays = round2(d.AverageDays)
		rounded[i] = d
	}

	return &domain.Summary{
		StageCounts:       counts,
		Dwell:             rounded,
		TotalProducts:     products,
		TotalUpdates:      updates,
		SlowestStage:      code,
		SlowestStageLabel: label,
		SlowestStageDays:  round2(days),
	}, nil
}

func (s *Service) stageCounts(rows []stepdomain.StageCount) []domain.StageCount {
	byStage := make(map[stage.Code]int64, len(rows))
	for _, row := range rows {
		byStage[row.Stage] += row.Count
	}

	out := make([]domain.StageCount, 0, len(byStage))
	for _, code := range s.catalog.Codes() {
		if n := byStage[code]; n > 0 {
			out = append(out, domain.StageCount{Stage: code, Label: s.catalog.Label(code), Count: n})
			delete(byStage, code)
		}
	}
	// stages dropped from the catalog after steps were recorded
	for _, row := range rows {
		if n, ok := byStage[row.Stage]; ok && n > 0 {
			out = append(out, domain.StageCount{Stage: row.Stage, Label: string(row.Stage), Count: n})
			delete(byStage, row.Stage)
		}
	}
	return out
}

// dwell attributes the gap between two consecutive steps of a product to the
// earlier step's stage. steps must be grouped by product and ordered by
// created_at, id within each product.
func (s *Service) dwell(steps []stepdomain.Step) []domain.StageDwell {
	total := make(map[stage.Code]time.Duration)
	observed := make(map[stage.Code]int)
	var order []stage.Code

	for i := 1; i < len(steps); i++ {
		prev, cur := steps[i-1], steps[i]
		if prev.ProductID != cur.ProductID {
			continue
		}
		if _, ok := observed[prev.Stage]; !ok {
			order = append(order, prev.Stage)
		}
		total[prev.Stage] += cur.CreatedAt.Sub(prev.CreatedAt)
		observed[prev.Stage]++
	}

	s.catalog.Sort(order)
	out := make([]domain.StageDwell, 0, len(order))
	for _, code := range order {
		n := observed[code]
		out = append(out, domain.StageDwell{
			Stage:        code,
			Label:        s.catalog.Label(code),
			AverageDays:  total[code].Hours() / day.Hours() / float64(n),
			Observations: n,
		})
	}
	return out
}

// slowest returns the stage with the highest average. dwell is in catalog
// order, so a tie goes to the stage that comes first in the catalog.
func slowest(dwell []domain.StageDwell) (stage.Code, float64) {
	code, best := domain.NoStage, 0.0
	for i, d := range dwell {
		if i == 0 || d.AverageDays > best {
			code, best = d.Stage, d.AverageDays
		}
	}
	return code, best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

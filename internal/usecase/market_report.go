package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	"EMSpark/internal/domain/service"
	"EMSpark/internal/services/analytics"
	"EMSpark/internal/services/query"
	"EMSpark/internal/services/report"
	"EMSpark/pkg/logger"
)

var (
	// ErrUnresolvedQuery means neither the rules nor the fallback produced a spec.
	ErrUnresolvedQuery = errors.New("query could not be understood")
	// ErrSpanTooLarge rejects date ranges longer than the configured limit.
	ErrSpanTooLarge = errors.New("requested period is too long")
)

// Report outcomes, used for metrics and audit events.
const (
	OutcomeOK         = "ok"
	OutcomeUnresolved = "unresolved"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

const publishTimeout = 5 * time.Second

// ReportConfig tunes MarketReport.
type ReportConfig struct {
	Markets       []models.Market
	Timeout       time.Duration
	Derivatives   bool
	MaxSpanDays   int
	AutoAddGDAM   bool
	MaxListedRows int
	// Parallel bounds concurrent store fetches.
	Parallel int
}

// MarketReport answers one question with a multi-market report.
type MarketReport struct {
	resolver service.QueryResolver
	prices   domrepo.PriceStore
	derivs   domrepo.DerivativeStore
	events   domrepo.EventPublisher
	renderer service.ReportRenderer
	metrics  domrepo.Metrics
	l        *logger.Logger
	cfg      ReportConfig
	now      func() time.Time
}

// NewMarketReport wires the use case. derivs, events and metrics may be nil.
func NewMarketReport(
	resolver service.QueryResolver,
	prices domrepo.PriceStore,
	derivs domrepo.DerivativeStore,
	events domrepo.EventPublisher,
	renderer service.ReportRenderer,
	metrics domrepo.Metrics,
	l *logger.Logger,
	cfg ReportConfig,
) *MarketReport {
	if l == nil {
		l = logger.NewNop()
	}
	if len(cfg.Markets) == 0 {
		cfg.Markets = models.AllMarkets
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 6
	}
	return &MarketReport{
		resolver: resolver,
		prices:   prices,
		derivs:   derivs,
		events:   events,
		renderer: renderer,
		metrics:  metrics,
		l:        l,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Build resolves text and assembles the report data.
func (uc *MarketReport) Build(ctx context.Context, text string) (*models.Report, error) {
	rep, err := uc.build(ctx, text)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

// build returns the partially filled report alongside any error so that
// callers can still describe what was resolved.
func (uc *MarketReport) build(ctx context.Context, text string) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	specs, src := uc.resolver.Resolve(ctx, text)
	rep := &models.Report{Query: text, Specs: specs, Source: string(src), GeneratedAt: uc.now()}
	if len(specs) == 0 {
		return rep, ErrUnresolvedQuery
	}
	for _, s := range specs {
		if uc.cfg.MaxSpanDays > 0 && s.Days() > uc.cfg.MaxSpanDays {
			return rep, fmt.Errorf("%w: %d days (max %d)", ErrSpanTooLarge, s.Days(), uc.cfg.MaxSpanDays)
		}
	}

	first := specs[0]
	rep.PrimaryMarket = first.Market()
	rep.Year = first.Start().Year
	rep.DateLabel = report.DateLabel(specs)
	rep.TimeLabel = report.TimeLabel(first, len(specs))
	rep.ExclusionLabels = first.Exclusion().Describe()

	markets := uc.marketsFor(rep.PrimaryMarket)
	current, previous, err := uc.fetchAll(ctx, rep.PrimaryMarket, markets, specs)
	if err != nil {
		return rep, err
	}

	for i, m := range markets {
		cmp := models.MarketComparison{
			Market:   m,
			Current:  analytics.Summarize(m, first.Granularity(), first.Stat(), current[i], uc.cfg.MaxListedRows),
			Previous: analytics.Summarize(m, first.Granularity(), first.Stat(), previous[i], 0),
		}
		cmp.YoYChange = analytics.YoYChange(cmp.Current, cmp.Previous)
		rep.Markets = append(rep.Markets, cmp)
	}
	rep.RenewableMixPct, rep.TotalVolumeGWh = analytics.RenewableMix(rep.Markets)

	uc.attachDerivatives(ctx, rep, first.Start())
	return rep, nil
}

// marketsFor orders the primary market first, then the configured ones.
func (uc *MarketReport) marketsFor(primary models.Market) []models.Market {
	out := []models.Market{primary}
	seen := map[models.Market]bool{primary: true}
	for _, m := range uc.cfg.Markets {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	if uc.cfg.AutoAddGDAM && !seen[models.MarketGDAM] {
		out = append(out, models.MarketGDAM)
	}
	return out
}

// fetchAll loads the current and prior-year rows of every market. Only a
// failure on the primary market's current period is fatal; other failures
// leave that slot empty.
func (uc *MarketReport) fetchAll(ctx context.Context, primary models.Market, markets []models.Market, specs []models.QuerySpec) ([][]models.PriceRow, [][]models.PriceRow, error) {
	type job struct {
		market int
		prior  bool
		spec   models.QuerySpec
	}
	var jobs []job
	for i, m := range markets {
		for _, s := range specs {
			ms := s
			if m != s.Market() {
				ms = s.WithMarket(m).AutoAdded()
			}
			jobs = append(jobs, job{market: i, spec: ms})
			if prev, ok := query.ShiftYears(ms, -1); ok {
				jobs = append(jobs, job{market: i, prior: true, spec: prev})
			}
		}
	}

	results := make([][]models.PriceRow, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.cfg.Parallel)
	for idx, j := range jobs {
		idx, j := idx, j
		g.Go(func() error {
			rows, err := uc.fetch(gctx, j.spec)
			if err == nil {
				results[idx] = analytics.FilterRows(j.spec, rows)
				return nil
			}
			if markets[j.market] == primary && !j.prior {
				return fmt.Errorf("fetch %s: %w", j.spec, err)
			}
			uc.l.Warn("Partial fetch failed",
				logger.Spec(j.spec),
				logger.Bool("prior_year", j.prior),
				logger.Error(err),
			)
			uc.recordError("fetch")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		uc.recordError("fetch")
		return nil, nil, err
	}

	current := make([][]models.PriceRow, len(markets))
	previous := make([][]models.PriceRow, len(markets))
	for idx, j := range jobs {
		if j.prior {
			previous[j.market] = append(previous[j.market], results[idx]...)
		} else {
			current[j.market] = append(current[j.market], results[idx]...)
		}
	}
	return current, previous, nil
}

func (uc *MarketReport) fetch(ctx context.Context, spec models.QuerySpec) ([]models.PriceRow, error) {
	start := time.Now()
	rows, err := uc.prices.Fetch(ctx, domrepo.FetchRequestFor(spec))
	if uc.metrics != nil {
		uc.metrics.RecordFetch(uc.prices.Name(), string(spec.Granularity()), len(rows), time.Since(start), err)
	}
	return rows, err
}

func (uc *MarketReport) attachDerivatives(ctx context.Context, rep *models.Report, day models.Date) {
	if !uc.cfg.Derivatives || uc.derivs == nil {
		return
	}
	quotes, traded, err := uc.derivs.Latest(ctx, day)
	if err != nil {
		uc.l.Warn("Derivative lookup failed", logger.String("date", day.String()), logger.Error(err))
		uc.recordError("derivatives")
		return
	}
	if len(quotes) == 0 {
		return
	}
	rep.Derivatives = quotes
	rep.DerivativeDate = &traded
}

// Answer builds, renders and audits one report request.
func (uc *MarketReport) Answer(ctx context.Context, req models.ReportRequest) (models.ReportResponse, error) {
	start := time.Now()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Format == "" {
		req.Format = report.FormatMarkdown
	}
	resp := models.ReportResponse{ID: req.ID, Format: req.Format}

	rep, err := uc.build(ctx, req.Query)
	if err == nil {
		if req.Format == report.FormatJSON {
			resp.Report = rep
		} else {
			resp.Body, err = uc.renderer.Render(rep, req.Format)
		}
	}
	outcome := outcomeOf(err)
	if err != nil {
		resp.Error = err.Error()
	}
	elapsed := time.Since(start)
	resp.Duration = elapsed.Milliseconds()

	if uc.metrics != nil {
		uc.metrics.RecordReport(outcome, elapsed)
	}
	uc.publishEvent(ctx, models.QueryEvent{
		ID:         req.ID,
		Query:      req.Query,
		Source:     rep.Source,
		Outcome:    outcome,
		SpecCount:  len(rep.Specs),
		DurationMS: resp.Duration,
		At:         uc.now().UnixMilli(),
	})

	if err != nil {
		uc.l.Info("Report not built",
			logger.String("id", req.ID),
			logger.String("outcome", outcome),
			logger.Error(err),
		)
		return resp, err
	}
	uc.l.Info("Report built",
		logger.String("id", req.ID),
		logger.Source(rep.Source),
		logger.Int("specs", len(rep.Specs)),
		logger.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (uc *MarketReport) publishEvent(ctx context.Context, ev models.QueryEvent) {
	if uc.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := uc.events.PublishEvent(ctx, ev); err != nil {
		uc.l.Warn("Query event not published", logger.String("id", ev.ID), logger.Error(err))
		uc.recordError("publish")
	}
}

func (uc *MarketReport) recordError(kind string) {
	if uc.metrics != nil {
		uc.metrics.RecordError(kind)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrUnresolvedQuery):
		return OutcomeUnresolved
	case errors.Is(err, ErrSpanTooLarge):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	pkgch "EMSpark/pkg/clickhouse"
	applogger "EMSpark/pkg/logger"
)

// CHPriceStore reads spot and futures prices from ClickHouse tables.
type CHPriceStore struct {
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHPriceStore(ch *pkgch.Client, l *applogger.Logger) *CHPriceStore {
	return &CHPriceStore{ch: ch, l: orNop(l)}
}

func (s *CHPriceStore) Name() string { return "clickhouse" }

func tableForGranularity(g models.Granularity) (string, error) {
	switch g {
	case models.GranularityHour:
		return "spot_prices_hourly", nil
	case models.GranularityQuarter:
		return "spot_prices_quarter", nil
	default:
		return "", fmt.Errorf("unsupported granularity: %q", g)
	}
}

func (s *CHPriceStore) Fetch(ctx context.Context, req domrepo.FetchRequest) ([]models.PriceRow, error) {
	name, err := tableForGranularity(req.Granularity)
	if err != nil {
		return nil, err
	}
	table := s.ch.Table(name)
	lo, hi := req.Bounds()
	const qtpl = `
        SELECT delivery_date, bucket, price_avg, scheduled_mw, purchase_bid_mw, sell_bid_mw, mcv_mw
        FROM %s
        WHERE market = ? AND delivery_date >= ? AND delivery_date <= ? AND bucket >= ? AND bucket <= ?
        ORDER BY delivery_date ASC, bucket ASC
    `
	rows, err := s.ch.DB().QueryContext(ctx, fmt.Sprintf(qtpl, table),
		string(req.Market), req.Start.Time(), req.End.Time(), lo, hi)
	if err != nil {
		s.l.Error("clickhouse fetch query error",
			applogger.String("table", table),
			applogger.Market(req.Market),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch %s %s: %w", req.Market, req.Granularity, err)
	}
	defer rows.Close()

	out := make([]models.PriceRow, 0, 256)
	for rows.Next() {
		var (
			day    time.Time
			bucket int64
			r      = models.PriceRow{Granularity: req.Granularity, DurationMin: req.Granularity.BucketMinutes()}
		)
		if err := rows.Scan(&day, &bucket, &r.PriceAvg, &r.ScheduledMW, &r.PurchaseBidMW, &r.SellBidMW, &r.MCVMW); err != nil {
			s.l.Error("clickhouse fetch scan error",
				applogger.String("table", table),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan price row: %w", err)
		}
		r.DeliveryDate = models.DateOf(day)
		r.Bucket = int(bucket)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// Latest returns the closes of the most recent trading day inside the
// lookback window ending at onOrBefore.
func (s *CHPriceStore) Latest(ctx context.Context, onOrBefore models.Date) ([]models.DerivativeQuote, models.Date, error) {
	if onOrBefore.Before(models.DerivativeMarketStart) {
		return nil, models.Date{}, nil
	}
	floor := onOrBefore.AddDays(-derivativeLookbackDays)
	if floor.Before(models.DerivativeMarketStart) {
		floor = models.DerivativeMarketStart
	}
	table := s.ch.Table("derivative_close")
	const qtpl = `
        SELECT trading_date, exchange, commodity, contract_month, close_price
        FROM %[1]s
        WHERE trading_date = (
            SELECT max(trading_date) FROM %[1]s WHERE trading_date >= ? AND trading_date <= ?
        )
        ORDER BY exchange ASC, contract_month ASC
    `
	rows, err := s.ch.DB().QueryContext(ctx, fmt.Sprintf(qtpl, table), floor.Time(), onOrBefore.Time())
	if err != nil {
		return nil, models.Date{}, fmt.Errorf("derivatives: %w", err)
	}
	defer rows.Close()

	var out []models.DerivativeQuote
	for rows.Next() {
		var (
			traded, contract time.Time
			exchange, comm   sql.NullString
			q                models.DerivativeQuote
		)
		if err := rows.Scan(&traded, &exchange, &comm, &contract, &q.ClosePrice); err != nil {
			return nil, models.Date{}, fmt.Errorf("scan derivative: %w", err)
		}
		q.TradingDate = models.DateOf(traded)
		q.ContractMonth = models.DateOf(contract)
		q.Exchange = exchange.String
		q.Commodity = comm.String
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Date{}, fmt.Errorf("rows: %w", err)
	}
	if len(out) == 0 {
		return nil, models.Date{}, nil
	}
	return out, out[0].TradingDate, nil
}

func (s *CHPriceStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHPriceStore) Close() error {
	return s.ch.Close()
}

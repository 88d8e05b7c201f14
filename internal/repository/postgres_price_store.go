package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	applogger "EMSpark/pkg/logger"
	"EMSpark/pkg/postgres"
)

const (
	hourlyRPC     = "SELECT * FROM public.rpc_get_hourly_prices_range($1, $2, $3, $4, $5)"
	quarterRPC    = "SELECT * FROM public.rpc_get_quarter_prices_range($1, $2, $3, $4, $5)"
	derivativeRPC = "SELECT * FROM public.rpc_deriv_daily_with_fallback($1, $2)"

	// derivativeLookbackDays bounds the search for the last trading day.
	derivativeLookbackDays = 14
)

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PostgresPriceStore reads spot and futures prices through the warehouse RPCs.
type PostgresPriceStore struct {
	q     pgQuerier
	close func()
	l     *applogger.Logger
}

// NewPostgresPriceStore wraps an open pool. The store owns the pool.
func NewPostgresPriceStore(pool *postgres.Pool, l *applogger.Logger) *PostgresPriceStore {
	return &PostgresPriceStore{q: pool, close: pool.Close, l: orNop(l)}
}

func (s *PostgresPriceStore) Name() string { return "postgres" }

func (s *PostgresPriceStore) Fetch(ctx context.Context, req domrepo.FetchRequest) ([]models.PriceRow, error) {
	query := hourlyRPC
	if req.Granularity == models.GranularityQuarter {
		query = quarterRPC
	}
	var from, to any
	if req.BucketFrom > 0 || req.BucketTo > 0 {
		lo, hi := req.Bounds()
		from, to = lo, hi
	}

	rows, err := s.q.Query(ctx, query, string(req.Market), req.Start.Time(), req.End.Time(), from, to)
	if err != nil {
		s.l.Error("postgres fetch query error",
			applogger.Market(req.Market),
			applogger.String("granularity", string(req.Granularity)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("fetch %s %s: %w", req.Market, req.Granularity, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s rows: %w", req.Granularity, err)
	}

	out := make([]models.PriceRow, 0, len(maps))
	for _, cols := range maps {
		row, err := rowFromColumns(cols, req.Granularity)
		if err != nil {
			s.l.Warn("skipping malformed price row",
				applogger.Market(req.Market),
				applogger.Error(err),
			)
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Latest walks back from onOrBefore until a day with quotes is found.
func (s *PostgresPriceStore) Latest(ctx context.Context, onOrBefore models.Date) ([]models.DerivativeQuote, models.Date, error) {
	for back := 0; back <= derivativeLookbackDays; back++ {
		day := onOrBefore.AddDays(-back)
		if day.Before(models.DerivativeMarketStart) {
			return nil, models.Date{}, nil
		}
		rows, err := s.q.Query(ctx, derivativeRPC, nil, day.Time())
		if err != nil {
			return nil, models.Date{}, fmt.Errorf("derivatives for %s: %w", day, err)
		}
		maps, err := pgx.CollectRows(rows, pgx.RowToMap)
		if err != nil {
			return nil, models.Date{}, fmt.Errorf("collect derivatives: %w", err)
		}
		if len(maps) == 0 {
			continue
		}
		quotes := make([]models.DerivativeQuote, 0, len(maps))
		for _, cols := range maps {
			quotes = append(quotes, quoteFromColumns(cols, day))
		}
		return quotes, quotes[0].TradingDate, nil
	}
	return nil, models.Date{}, nil
}

func (s *PostgresPriceStore) Health(ctx context.Context) error {
	return s.q.Ping(ctx)
}

func (s *PostgresPriceStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

// Column names differ between the hourly and quarter RPCs and across
// warehouse versions; every alias is resolved here and nowhere else.
var (
	bucketColumns   = []string{"block_index", "slot_index", "hour_block", "block", "slot"}
	priceColumns    = []string{"price_avg_rs_per_mwh", "price_rs_per_mwh", "price_avg", "price"}
	scheduledCols   = []string{"scheduled_mw_sum", "scheduled_mw"}
	purchaseBidCols = []string{"purchase_bid_avg_mw", "purchase_bid_mw"}
	sellBidCols     = []string{"sell_bid_avg_mw", "sell_bid_mw"}
	mcvColumns      = []string{"mcv_sum_mw", "mcv_mw"}
)

// rowFromColumns maps one RPC result row onto a PriceRow. Missing numeric
// columns read as zero; a missing date or bucket is an error.
func rowFromColumns(cols map[string]any, g models.Granularity) (models.PriceRow, error) {
	day, ok := asDate(cols["delivery_date"])
	if !ok {
		return models.PriceRow{}, fmt.Errorf("delivery_date missing or invalid: %v", cols["delivery_date"])
	}
	v, _ := firstOf(cols, bucketColumns...)
	bucket, ok := asInt(v)
	if !ok || bucket < 1 || bucket > g.MaxBucket() {
		return models.PriceRow{}, fmt.Errorf("bucket index missing or out of range: %v", v)
	}
	num := func(names []string) float64 {
		v, _ := firstOf(cols, names...)
		return asFloat(v)
	}
	return models.PriceRow{
		DeliveryDate:  day,
		Granularity:   g,
		Bucket:        bucket,
		PriceAvg:      num(priceColumns),
		ScheduledMW:   num(scheduledCols),
		PurchaseBidMW: num(purchaseBidCols),
		SellBidMW:     num(sellBidCols),
		MCVMW:         num(mcvColumns),
		DurationMin:   g.BucketMinutes(),
	}, nil
}

func quoteFromColumns(cols map[string]any, queried models.Date) models.DerivativeQuote {
	q := models.DerivativeQuote{TradingDate: queried}
	if d, ok := asDate(cols["trading_date"]); ok {
		q.TradingDate = d
	}
	if d, ok := asDate(cols["contract_month"]); ok {
		q.ContractMonth = d
	}
	q.Exchange = asString(cols["exchange"])
	q.Commodity = asString(cols["commodity"])
	v, _ := firstOf(cols, "close_price_rs_per_mwh", "close_price")
	q.ClosePrice = asFloat(v)
	return q
}

func firstOf(cols map[string]any, names ...string) (any, bool) {
	for _, n := range names {
		if v, ok := cols[n]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case int:
		return float64(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return 0
		}
		return f.Float64
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float64:
		return int(x), x == float64(int(x))
	case pgtype.Numeric:
		i, err := x.Int64Value()
		if err != nil || !i.Valid {
			return 0, false
		}
		return int(i.Int64), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		return i, err == nil
	}
	return 0, false
}

func asDate(v any) (models.Date, bool) {
	switch x := v.(type) {
	case time.Time:
		return models.DateOf(x), true
	case models.Date:
		return x, true
	case string:
		if len(x) >= 10 {
			d, err := models.ParseDate(x[:10])
			return d, err == nil
		}
	}
	return models.Date{}, false
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func orNop(l *applogger.Logger) *applogger.Logger {
	if l == nil {
		return applogger.NewNop()
	}
	return l
}

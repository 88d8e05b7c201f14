package repository

import (
	"context"
	"fmt"
	"time"

	"EMSpark/internal/domain/models"
)

// FetchRequest selects one market's rows for a date range and an
// inclusive bucket window. Zero bucket bounds mean the whole day.
type FetchRequest struct {
	Market      models.Market
	Granularity models.Granularity
	Start       models.Date
	End         models.Date
	BucketFrom  int
	BucketTo    int
}

// FetchRequestFor derives the request that covers a spec. Rows outside the
// spec's bucket set still have to be filtered by the caller when the set
// has gaps.
func FetchRequestFor(spec models.QuerySpec) FetchRequest {
	lo, hi := spec.BucketBounds()
	return FetchRequest{
		Market:      spec.Market(),
		Granularity: spec.Granularity(),
		Start:       spec.Start(),
		End:         spec.End(),
		BucketFrom:  lo,
		BucketTo:    hi,
	}
}

// Bounds returns the bucket window with zero values expanded.
func (r FetchRequest) Bounds() (int, int) {
	lo, hi := r.BucketFrom, r.BucketTo
	if lo <= 0 {
		lo = 1
	}
	if hi <= 0 || hi > r.Granularity.MaxBucket() {
		hi = r.Granularity.MaxBucket()
	}
	return lo, hi
}

// Key is a stable identity for caching.
func (r FetchRequest) Key() string {
	lo, hi := r.Bounds()
	return fmt.Sprintf("%s:%s:%s:%s:%d-%d", r.Market, r.Granularity, r.Start, r.End, lo, hi)
}

// PriceStore reads spot-market rows. Implementations return typed rows
// only; column naming differences are resolved inside the adapter.
type PriceStore interface {
	Name() string
	Fetch(ctx context.Context, req FetchRequest) ([]models.PriceRow, error)
	Health(ctx context.Context) error
	Close() error
}

// DerivativeStore reads futures closes. Latest returns the quotes of the
// most recent trading day on or before the given date, and that day.
type DerivativeStore interface {
	Latest(ctx context.Context, onOrBefore models.Date) ([]models.DerivativeQuote, models.Date, error)
}

// EventPublisher emits audit events and finished reports.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.QueryEvent) error
	PublishReport(ctx context.Context, resp models.ReportResponse) error
	Close() error
}

// Metrics is the observability surface the use cases and stores need.
type Metrics interface {
	RecordFetch(backend, granularity string, rows int, d time.Duration, err error)
	RecordCache(hit bool)
	RecordReport(outcome string, d time.Duration)
	RecordMessageSent(topic string)
	RecordError(kind string)
}

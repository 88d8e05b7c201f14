package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	"EMSpark/pkg/cache"
	applogger "EMSpark/pkg/logger"
)

type cacheRecorder interface {
	RecordCache(hit bool)
}

// CachedPriceStore serves repeated fetches from cache.Service. Ranges that
// end before today are immutable and kept for HistoricalTTL; anything
// touching today or later expires after RecentTTL.
type CachedPriceStore struct {
	next          domrepo.PriceStore
	cache         cache.Service
	group         singleflight.Group
	historicalTTL time.Duration
	recentTTL     time.Duration
	today         func() models.Date
	metrics       cacheRecorder
	l             *applogger.Logger
}

// CachedStoreOption tunes a CachedPriceStore.
type CachedStoreOption func(*CachedPriceStore)

// WithTTLs overrides the historical and recent expirations.
func WithTTLs(historical, recent time.Duration) CachedStoreOption {
	return func(s *CachedPriceStore) {
		s.historicalTTL = historical
		s.recentTTL = recent
	}
}

// WithToday sets the clock used to classify a range as historical.
func WithToday(today func() models.Date) CachedStoreOption {
	return func(s *CachedPriceStore) { s.today = today }
}

// WithCacheMetrics records hits and misses.
func WithCacheMetrics(m cacheRecorder) CachedStoreOption {
	return func(s *CachedPriceStore) { s.metrics = m }
}

func NewCachedPriceStore(next domrepo.PriceStore, c cache.Service, l *applogger.Logger, opts ...CachedStoreOption) *CachedPriceStore {
	s := &CachedPriceStore{
		next:          next,
		cache:         c,
		historicalTTL: 24 * time.Hour,
		recentTTL:     5 * time.Minute,
		today:         func() models.Date { return models.DateOf(time.Now()) },
		l:             orNop(l),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedPriceStore) Name() string { return s.next.Name() }

func (s *CachedPriceStore) Fetch(ctx context.Context, req domrepo.FetchRequest) ([]models.PriceRow, error) {
	key := "prices:" + s.next.Name() + ":" + req.Key()

	var rows []models.PriceRow
	err := s.cache.Get(ctx, key, &rows)
	switch {
	case err == nil:
		s.record(true)
		return rows, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.l.Warn("price cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	s.record(false)

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		rows, err := s.next.Fetch(ctx, req)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, rows, s.ttlFor(req)); err != nil {
			s.l.Warn("price cache write failed", applogger.String("key", key), applogger.Error(err))
		}
		return rows, nil
	})
	if err != nil {
		return nil, fmt.Errorf("cached fetch: %w", err)
	}
	return v.([]models.PriceRow), nil
}

func (s *CachedPriceStore) ttlFor(req domrepo.FetchRequest) time.Duration {
	if req.End.Before(s.today()) {
		return s.historicalTTL
	}
	return s.recentTTL
}

func (s *CachedPriceStore) record(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCache(hit)
	}
}

func (s *CachedPriceStore) Health(ctx context.Context) error { return s.next.Health(ctx) }

func (s *CachedPriceStore) Close() error { return s.next.Close() }

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
	domrepo "EMSpark/internal/domain/repository"
	pkgch "EMSpark/pkg/clickhouse"
)

func newMockCHStore(t *testing.T) (*CHPriceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCHPriceStore(pkgch.NewFromDB(db, "emspark"), nil), mock
}

func TestCHFetchQuarterRows(t *testing.T) {
	s, mock := newMockCHStore(t)
	d := day(2024, time.October, 12)

	mock.ExpectQuery(`FROM emspark\.spot_prices_quarter`).
		WithArgs("GDAM", d.Time(), d.Time(), int64(20), int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"delivery_date", "bucket", "price_avg", "scheduled_mw", "purchase_bid_mw", "sell_bid_mw", "mcv_mw"}).
			AddRow(d.Time(), int64(20), 3100.0, 500.0, 700.0, 650.0, 480.0).
			AddRow(d.Time(), int64(21), 3150.0, 510.0, 705.0, 655.0, 490.0))

	rows, err := s.Fetch(context.Background(), domrepo.FetchRequest{
		Market: models.MarketGDAM, Granularity: models.GranularityQuarter,
		Start: d, End: d, BucketFrom: 20, BucketTo: 50,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 21, rows[1].Bucket)
	assert.Equal(t, d, rows[1].DeliveryDate)
	assert.Equal(t, 15, rows[1].DurationMin)
	assert.Equal(t, 490.0, rows[1].MCVMW)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHFetchFullDayHourly(t *testing.T) {
	s, mock := newMockCHStore(t)
	d := day(2025, time.November, 19)

	mock.ExpectQuery(`FROM emspark\.spot_prices_hourly`).
		WithArgs("DAM", d.Time(), d.Time(), int64(1), int64(24)).
		WillReturnRows(sqlmock.NewRows([]string{"delivery_date", "bucket", "price_avg", "scheduled_mw", "purchase_bid_mw", "sell_bid_mw", "mcv_mw"}))

	rows, err := s.Fetch(context.Background(), domrepo.FetchRequest{
		Market: models.MarketDAM, Granularity: models.GranularityHour, Start: d, End: d,
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHLatestDerivatives(t *testing.T) {
	s, mock := newMockCHStore(t)
	asked := day(2025, time.July, 5)
	traded := day(2025, time.July, 4)

	mock.ExpectQuery(`FROM emspark\.derivative_close`).
		WithArgs(models.DerivativeMarketStart.Time(), asked.Time()).
		WillReturnRows(sqlmock.NewRows([]string{"trading_date", "exchange", "commodity", "contract_month", "close_price"}).
			AddRow(traded.Time(), "NSE", "ELECMBL", day(2025, time.August, 1).Time(), 3890.0))

	quotes, actual, err := s.Latest(context.Background(), asked)
	require.NoError(t, err)
	assert.Equal(t, traded, actual)
	require.Len(t, quotes, 1)
	assert.Equal(t, "NSE", quotes[0].Exchange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHLatestBeforeMarketStart(t *testing.T) {
	s, mock := newMockCHStore(t)
	quotes, actual, err := s.Latest(context.Background(), day(2025, time.January, 10))
	require.NoError(t, err)
	assert.Nil(t, quotes)
	assert.True(t, actual.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableForGranularity(t *testing.T) {
	_, err := tableForGranularity("weekly")
	assert.Error(t, err)
}

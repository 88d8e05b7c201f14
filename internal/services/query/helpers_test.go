package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
)

var ist = time.FixedZone("IST", 5*3600+1800)

// Wednesday 19 Nov 2025, 10:00 IST.
func fixedNow() time.Time { return time.Date(2025, time.November, 19, 10, 0, 0, 0, ist) }

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return NewParser(Config{
		DefaultMarket:  models.MarketDAM,
		DefaultStat:    models.StatTWAP,
		EnabledMarkets: models.AllMarkets,
		Location:       ist,
	}, WithClock(fixedNow))
}

func d(t *testing.T, s string) models.Date {
	t.Helper()
	v, err := models.ParseDate(s)
	require.NoError(t, err)
	return v
}

func p(t *testing.T, start, end string) Period {
	t.Helper()
	return Period{Start: d(t, start), End: d(t, end)}
}

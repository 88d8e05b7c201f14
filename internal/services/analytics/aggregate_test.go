package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
)

func hourRow(d models.Date, block int, price, mcv float64) models.PriceRow {
	return models.PriceRow{DeliveryDate: d, Granularity: models.GranularityHour, Bucket: block, PriceAvg: price, MCVMW: mcv, DurationMin: 60}
}

func TestFilterRowsAppliesBucketsDatesAndExclusion(t *testing.T) {
	mon := models.NewDate(2025, time.November, 17)
	sun := models.NewDate(2025, time.November, 16)
	ex := models.NewExclusion([]int{6}, nil, nil, "excluding sunday")
	spec, err := models.NewQuerySpec(models.MarketDAM, sun, mon, models.GranularityHour, []int{7, 8}, models.StatTWAP, ex)
	require.NoError(t, err)

	rows := []models.PriceRow{
		hourRow(sun, 7, 1, 1),
		hourRow(mon, 7, 2, 1),
		hourRow(mon, 9, 3, 1),
		hourRow(mon.AddDays(1), 8, 4, 1),
		{DeliveryDate: mon, Granularity: models.GranularityQuarter, Bucket: 7},
	}
	got := FilterRows(spec, rows)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].PriceAvg)
}

func TestSummarizeHourly(t *testing.T) {
	d := models.NewDate(2025, time.November, 14)
	rows := []models.PriceRow{
		{DeliveryDate: d, Granularity: models.GranularityHour, Bucket: 7, PriceAvg: 3000, MCVMW: 4000, PurchaseBidMW: 100, SellBidMW: 50},
		{DeliveryDate: d, Granularity: models.GranularityHour, Bucket: 8, PriceAvg: 5000, MCVMW: 12000, PurchaseBidMW: 300, SellBidMW: 150},
	}
	s := Summarize(models.MarketRTM, models.GranularityHour, models.StatTWAP, rows, 0)

	assert.InDelta(t, 4.0, s.TWAP, 1e-9)
	// volumes 1000 and 3000 MWh
	assert.InDelta(t, (3000*1000.0+5000*3000.0)/4000/1000, s.VWAP, 1e-9)
	assert.InDelta(t, 3.0, s.MinPrice, 1e-9)
	assert.InDelta(t, 5.0, s.MaxPrice, 1e-9)
	assert.InDelta(t, 4.0, s.VolumeGWh, 1e-9)
	assert.InDelta(t, 200.0, s.PurchaseBidAvg, 1e-9)
	assert.InDelta(t, 100.0, s.SellBidAvg, 1e-9)
	assert.Equal(t, 2, s.RowCount)
	assert.Nil(t, s.Rows)
	require.Len(t, s.Daily, 1)
	assert.Equal(t, 2, s.Segments.OffPeak.Count)
}

func TestSummarizeQuarterVolumeAndList(t *testing.T) {
	d := models.NewDate(2024, time.October, 12)
	var rows []models.PriceRow
	for slot := 50; slot >= 20; slot-- {
		rows = append(rows, models.PriceRow{DeliveryDate: d, Granularity: models.GranularityQuarter, Bucket: slot, PriceAvg: 2000, MCVMW: 400, DurationMin: 15})
	}
	s := Summarize(models.MarketGDAM, models.GranularityQuarter, models.StatList, rows, 5)

	assert.InDelta(t, 31*400*0.25/1000, s.VolumeGWh, 1e-9)
	require.Len(t, s.Rows, 5)
	assert.Equal(t, 20, s.Rows[0].Bucket, "rows are listed in delivery order")
	assert.Equal(t, 50, rows[len(rows)-1-30].Bucket, "input untouched")
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(models.MarketDAM, models.GranularityHour, models.StatTWAP, nil, 0)
	assert.Zero(t, s.TWAP)
	assert.Zero(t, s.MinPrice)
	assert.Equal(t, models.MarketDAM, s.Market)
}

func TestSegmentsAndDaily(t *testing.T) {
	d1 := models.NewDate(2025, time.May, 1)
	d2 := d1.AddDays(1)
	rows := []models.PriceRow{
		hourRow(d2, 12, 2000, 4000),
		hourRow(d1, 12, 4000, 4000),
		hourRow(d1, 20, 10000, 4000),
		hourRow(d1, 24, 3000, 4000),
		// slot 37 is hour block 10
		{DeliveryDate: d1, Granularity: models.GranularityQuarter, Bucket: 37, PriceAvg: 3000, MCVMW: 4000},
	}
	seg := SplitSegments(rows)
	assert.Equal(t, 3, seg.Solar.Count)
	assert.InDelta(t, 3.0, seg.Solar.TWAP, 1e-9)
	assert.InDelta(t, 3.0, seg.Solar.VolumeGWh, 1e-9)
	assert.Equal(t, 1, seg.Peak.Count)
	assert.Equal(t, 1, seg.OffPeak.Count)

	daily := DailyAverages(rows)
	require.Len(t, daily, 2)
	assert.Equal(t, d1, daily[0].Date)
	assert.InDelta(t, 5.0, daily[0].TWAP, 1e-9)
	assert.InDelta(t, 2.0, daily[1].TWAP, 1e-9)
}

func TestYoYAndRenewableMix(t *testing.T) {
	cur := models.MarketSummary{TWAP: 5.5}
	assert.InDelta(t, 10.0, YoYChange(cur, models.MarketSummary{TWAP: 5}), 1e-9)
	assert.Zero(t, YoYChange(cur, models.MarketSummary{}))

	mix, total := RenewableMix([]models.MarketComparison{
		{Market: models.MarketDAM, Current: models.MarketSummary{VolumeGWh: 60}},
		{Market: models.MarketGDAM, Current: models.MarketSummary{VolumeGWh: 15}},
		{Market: models.MarketRTM, Current: models.MarketSummary{VolumeGWh: 25}},
	})
	assert.InDelta(t, 15.0, mix, 1e-9)
	assert.InDelta(t, 100.0, total, 1e-9)
}

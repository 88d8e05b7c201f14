package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
)

func TestBuildCartesianPeriodMajor(t *testing.T) {
	periods := []Period{p(t, "2025-11-01", "2025-11-01"), p(t, "2024-11-01", "2024-11-01")}
	groups := []TimeBucketGroup{hourGroup(7, 8), slotGroup(models.BucketRange(25, 32))}
	ex := models.NewExclusion([]int{6}, nil, nil, "sunday")

	specs := Build(models.MarketRTM, models.StatVWAP, periods, groups, ex)
	require.Len(t, specs, 4)

	assert.Equal(t, d(t, "2025-11-01"), specs[0].Start())
	assert.Equal(t, models.GranularityHour, specs[0].Granularity())
	assert.Equal(t, d(t, "2025-11-01"), specs[1].Start())
	assert.Equal(t, models.GranularityQuarter, specs[1].Granularity())
	assert.Equal(t, d(t, "2024-11-01"), specs[2].Start())
	for _, s := range specs {
		assert.Equal(t, models.MarketRTM, s.Market())
		assert.Equal(t, models.StatVWAP, s.Stat())
		assert.Same(t, ex, s.Exclusion())
	}
}

func TestBuildDefaultsToFullDay(t *testing.T) {
	specs := Build(models.MarketDAM, models.StatTWAP, []Period{p(t, "2025-11-19", "2025-11-19")}, nil, nil)
	require.Len(t, specs, 1)
	assert.Equal(t, models.FullDayHours(), specs[0].Hours())
	assert.Nil(t, specs[0].Slots())
}

func TestDedupe(t *testing.T) {
	per := p(t, "2025-11-19", "2025-11-19")
	sun := models.NewExclusion([]int{6}, nil, nil, "sunday")
	sat := models.NewExclusion([]int{5}, nil, nil, "saturday")

	specs := append(
		Build(models.MarketDAM, models.StatTWAP, []Period{per, per}, nil, sun),
		Build(models.MarketDAM, models.StatTWAP, []Period{per}, nil, sat)...,
	)
	specs = append(specs, Build(models.MarketGDAM, models.StatTWAP, []Period{per}, nil, nil)...)

	once := Dedupe(specs)
	require.Len(t, once, 2)
	assert.Same(t, sun, once[0].Exclusion(), "first occurrence wins")
	assert.Equal(t, models.MarketGDAM, once[1].Market())

	assert.Equal(t, once, Dedupe(once))
	assert.Empty(t, Dedupe(nil))
}

func TestShiftYears(t *testing.T) {
	build := func(start, end string) models.QuerySpec {
		spec, err := models.NewQuerySpec(models.MarketDAM, d(t, start), d(t, end),
			models.GranularityQuarter, models.BucketRange(25, 32), models.StatTWAP, nil)
		require.NoError(t, err)
		return spec
	}

	t.Run("plain", func(t *testing.T) {
		orig := build("2025-11-01", "2025-11-15")
		got, ok := ShiftYears(orig, -1)
		require.True(t, ok)
		assert.Equal(t, d(t, "2024-11-01"), got.Start())
		assert.Equal(t, d(t, "2024-11-15"), got.End())
		assert.Equal(t, orig.Slots(), got.Slots())
		assert.Equal(t, orig.Granularity(), got.Granularity())
		assert.Equal(t, d(t, "2025-11-01"), orig.Start(), "input untouched")
	})

	t.Run("round trip", func(t *testing.T) {
		orig := build("2023-03-01", "2023-12-31")
		there, ok := ShiftYears(orig, 1)
		require.True(t, ok)
		back, ok := ShiftYears(there, -1)
		require.True(t, ok)
		assert.Equal(t, orig.Key(), back.Key())
	})

	t.Run("leap day clamps", func(t *testing.T) {
		orig := build("2024-02-29", "2024-02-29")
		got, ok := ShiftYears(orig, 1)
		require.True(t, ok)
		assert.Equal(t, d(t, "2025-02-28"), got.Start())

		back, ok := ShiftYears(got, -1)
		require.True(t, ok)
		assert.Equal(t, d(t, "2024-02-28"), back.Start())

		leap, ok := ShiftYears(orig, 4)
		require.True(t, ok)
		assert.Equal(t, d(t, "2028-02-29"), leap.Start())
	})

	t.Run("out of range", func(t *testing.T) {
		orig := build("2025-01-01", "2025-01-31")
		_, ok := ShiftYears(orig, -2025)
		assert.False(t, ok)
		_, ok = ShiftYears(orig, 8000)
		assert.False(t, ok)
	})
}

package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
	"EMSpark/pkg/logger"
)

func TestParseScenarios(t *testing.T) {
	parser := newTestParser(t)

	t.Run("dam today", func(t *testing.T) {
		specs := parser.Parse("DAM today")
		require.Len(t, specs, 1)
		s := specs[0]
		assert.Equal(t, models.MarketDAM, s.Market())
		assert.Equal(t, d(t, "2025-11-19"), s.Start())
		assert.Equal(t, d(t, "2025-11-19"), s.End())
		assert.Equal(t, models.GranularityHour, s.Granularity())
		assert.Equal(t, models.BucketRange(1, 24), s.Hours())
		assert.Equal(t, models.StatTWAP, s.Stat())
		assert.Nil(t, s.Exclusion())
	})

	t.Run("rtm hours on a date", func(t *testing.T) {
		specs := parser.Parse("RTM 6-8 hrs for 14 Nov 2025")
		require.Len(t, specs, 1)
		s := specs[0]
		assert.Equal(t, models.MarketRTM, s.Market())
		assert.Equal(t, d(t, "2025-11-14"), s.Start())
		assert.Equal(t, d(t, "2025-11-14"), s.End())
		assert.Equal(t, models.GranularityHour, s.Granularity())
		assert.Equal(t, []int{7, 8}, s.Hours())
	})

	t.Run("gdam slots", func(t *testing.T) {
		specs := parser.Parse("GDAM 20-50 slots on 12 Oct 2024")
		require.Len(t, specs, 1)
		s := specs[0]
		assert.Equal(t, models.MarketGDAM, s.Market())
		assert.Equal(t, d(t, "2024-10-12"), s.Start())
		assert.Equal(t, models.GranularityQuarter, s.Granularity())
		assert.Equal(t, models.BucketRange(20, 50), s.Slots())
		assert.Nil(t, s.Hours())
	})

	t.Run("multi year months", func(t *testing.T) {
		specs := parser.Parse("Compare Nov 2022, 2023, 2024")
		require.Len(t, specs, 3)
		for i, year := range []int{2022, 2023, 2024} {
			assert.Equal(t, models.MonthStart(year, time.November), specs[i].Start())
			assert.Equal(t, models.MonthEnd(year, time.November), specs[i].End())
			assert.Equal(t, models.FullDayHours(), specs[i].Hours())
		}
	})

	t.Run("exclusion", func(t *testing.T) {
		specs := parser.Parse("DAM for this week excluding Sunday")
		require.Len(t, specs, 1)
		ex := specs[0].Exclusion()
		require.NotNil(t, ex)
		assert.Equal(t, []int{6}, ex.Weekdays())
		assert.True(t, ex.ShouldExclude(d(t, "2025-11-16")))
		assert.True(t, ex.ShouldExclude(d(t, "2025-11-23")))
		for day := d(t, "2025-11-17"); !day.After(d(t, "2025-11-22")); day = day.AddDays(1) {
			assert.False(t, ex.ShouldExclude(day), day.String())
		}
	})

	t.Run("exclusion after for", func(t *testing.T) {
		specs := parser.Parse("DAM this week except for sunday")
		require.Len(t, specs, 1)
		ex := specs[0].Exclusion()
		require.NotNil(t, ex)
		assert.Equal(t, []int{6}, ex.Weekdays())
	})

	t.Run("reversed bare range", func(t *testing.T) {
		specs := parser.Parse("DAM 8-6 yesterday")
		require.Len(t, specs, 1)
		assert.Equal(t, d(t, "2025-11-18"), specs[0].Start())
		assert.Equal(t, []int{7, 8}, specs[0].Hours())
	})

	t.Run("gibberish", func(t *testing.T) {
		assert.Empty(t, parser.Parse("gibberish xyz"))
	})
}

func TestParseClockRangeWithoutUnitKeepsBothGranularities(t *testing.T) {
	specs := newTestParser(t).Parse("dam 06:00 to 08:00 yesterday")
	require.Len(t, specs, 2)
	assert.Equal(t, []int{7, 8}, specs[0].Hours())
	assert.Equal(t, models.BucketRange(25, 32), specs[1].Slots())
}

func TestParseFallsBackToSingleRange(t *testing.T) {
	specs := newTestParser(t).Parse("rtm 2025-10 vwap")
	require.Len(t, specs, 1)
	assert.Equal(t, d(t, "2025-10-01"), specs[0].Start())
	assert.Equal(t, d(t, "2025-10-31"), specs[0].End())
	assert.Equal(t, models.StatVWAP, specs[0].Stat())
}

func TestParseDisabledMarketUsesDefault(t *testing.T) {
	parser := NewParser(Config{
		DefaultMarket:  models.MarketDAM,
		EnabledMarkets: []models.Market{models.MarketDAM, models.MarketGDAM},
		Location:       ist,
	}, WithClock(fixedNow))

	specs := parser.Parse("rtm today")
	require.Len(t, specs, 1)
	assert.Equal(t, models.MarketDAM, specs[0].Market())

	specs = parser.ParseForMarket("rtm today", models.MarketRTM)
	require.Len(t, specs, 1)
	assert.Equal(t, models.MarketRTM, specs[0].Market())
}

func TestParseProperties(t *testing.T) {
	parser := newTestParser(t)
	inputs := []string{
		"DAM today",
		"RTM 6-8 hrs for 14 Nov 2025",
		"GDAM 20-50 slots on 12 Oct 2024",
		"Compare Nov 2022, 2023, 2024",
		"DAM for this week excluding Sunday",
		"gdam 06:00-08:00 between 1 nov and 5 nov 2025",
		"rtm solar hours last 7 days except weekends",
		"14 nov 2023, 2024 and 2025 6-8 and 12-14 hrs",
		"gibberish xyz",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			first := parser.Parse(in)
			second := parser.Parse(in)
			assert.Equal(t, first, second, "deterministic")
			assert.Equal(t, Dedupe(first), first, "already deduplicated")

			for _, s := range first {
				assert.False(t, s.End().Before(s.Start()))
				switch s.Granularity() {
				case models.GranularityHour:
					assert.NotEmpty(t, s.Hours())
					assert.Nil(t, s.Slots())
				case models.GranularityQuarter:
					assert.NotEmpty(t, s.Slots())
					assert.Nil(t, s.Hours())
				default:
					t.Fatalf("unexpected granularity %q", s.Granularity())
				}
				buckets := s.Buckets()
				assert.IsIncreasing(t, buckets)
			}
		})
	}
}

type fakeFallback struct {
	specs []models.QuerySpec
	err   error
	calls int
	today models.Date
}

func (f *fakeFallback) Classify(_ context.Context, _ string, today models.Date) ([]models.QuerySpec, error) {
	f.calls++
	f.today = today
	return f.specs, f.err
}

type fakeParseMetrics struct {
	sources   []string
	fallbacks []bool
}

func (m *fakeParseMetrics) RecordParse(source string, _ int) { m.sources = append(m.sources, source) }
func (m *fakeParseMetrics) RecordFallback(ok bool, _ time.Duration) {
	m.fallbacks = append(m.fallbacks, ok)
}

func TestResolver(t *testing.T) {
	parser := newTestParser(t)
	llmSpec, err := models.NewQuerySpec(models.MarketGDAM, d(t, "2025-11-01"), d(t, "2025-11-07"),
		models.GranularityHour, models.FullDayHours(), models.StatTWAP, nil)
	require.NoError(t, err)

	t.Run("rules win", func(t *testing.T) {
		fb := &fakeFallback{specs: []models.QuerySpec{llmSpec}}
		m := &fakeParseMetrics{}
		r := NewResolver(parser, fb, m, logger.NewNop())

		specs, src := r.Resolve(context.Background(), "dam today")
		assert.Equal(t, SourceRules, src)
		assert.Len(t, specs, 1)
		assert.Zero(t, fb.calls)
		assert.Equal(t, []string{"rules"}, m.sources)
	})

	t.Run("fallback on empty", func(t *testing.T) {
		fb := &fakeFallback{specs: []models.QuerySpec{llmSpec, llmSpec}}
		m := &fakeParseMetrics{}
		r := NewResolver(parser, fb, m, logger.NewNop())

		specs, src := r.Resolve(context.Background(), "how did green power do around diwali")
		assert.Equal(t, SourceFallback, src)
		assert.Equal(t, []models.QuerySpec{llmSpec}, specs)
		assert.Equal(t, 1, fb.calls)
		assert.Equal(t, d(t, "2025-11-19"), fb.today)
		assert.Equal(t, []bool{true}, m.fallbacks)
	})

	t.Run("fallback error degrades", func(t *testing.T) {
		fb := &fakeFallback{err: errors.New("upstream 500")}
		m := &fakeParseMetrics{}
		r := NewResolver(parser, fb, m, logger.NewNop())

		specs, src := r.Resolve(context.Background(), "gibberish xyz")
		assert.Equal(t, SourceNone, src)
		assert.Empty(t, specs)
		assert.Equal(t, []bool{false}, m.fallbacks)
		assert.Equal(t, []string{"none"}, m.sources)
	})

	t.Run("no fallback", func(t *testing.T) {
		r := NewResolver(parser, nil, nil, nil)
		specs, src := r.Resolve(context.Background(), "gibberish xyz")
		assert.Equal(t, SourceNone, src)
		assert.Empty(t, specs)
	})
}

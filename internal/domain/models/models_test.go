package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(y int, m time.Month, day int) Date { return NewDate(y, m, day) }

func TestNewQuerySpecNormalizes(t *testing.T) {
	s, err := NewQuerySpec(MarketRTM, d(2025, 11, 14), d(2025, 11, 14), GranularityHour, []int{8, 7, 8}, StatTWAP, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, s.Hours())
	assert.Nil(t, s.Slots())
	assert.Equal(t, 1, s.Days())
	lo, hi := s.BucketBounds()
	assert.Equal(t, 7, lo)
	assert.Equal(t, 8, hi)
	assert.True(t, s.HasBucket(8))
	assert.False(t, s.HasBucket(9))
}

func TestNewQuerySpecRejects(t *testing.T) {
	day := d(2025, 1, 10)
	tests := map[string]func() error{
		"market": func() error {
			_, err := NewQuerySpec("IEX", day, day, GranularityHour, FullDayHours(), StatTWAP, nil)
			return err
		},
		"reversed": func() error {
			_, err := NewQuerySpec(MarketDAM, day, day.AddDays(-1), GranularityHour, FullDayHours(), StatTWAP, nil)
			return err
		},
		"hour range": func() error {
			_, err := NewQuerySpec(MarketDAM, day, day, GranularityHour, []int{25}, StatTWAP, nil)
			return err
		},
		"slot range": func() error {
			_, err := NewQuerySpec(MarketDAM, day, day, GranularityQuarter, []int{0, 5}, StatTWAP, nil)
			return err
		},
		"empty": func() error {
			_, err := NewQuerySpec(MarketDAM, day, day, GranularityQuarter, nil, StatTWAP, nil)
			return err
		},
		"stat": func() error {
			_, err := NewQuerySpec(MarketDAM, day, day, GranularityHour, FullDayHours(), "median", nil)
			return err
		},
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, fn(), ErrInvalidSpec)
		})
	}
}

func TestQuerySpecDerivationsDoNotMutate(t *testing.T) {
	orig, err := NewQuerySpec(MarketDAM, d(2024, 11, 1), d(2024, 11, 30), GranularityQuarter, BucketRange(20, 50), StatVWAP, nil)
	require.NoError(t, err)

	moved, err := orig.WithDates(d(2023, 11, 1), d(2023, 11, 30))
	require.NoError(t, err)
	green := orig.WithMarket(MarketGDAM).AutoAdded()

	assert.Equal(t, d(2024, 11, 1), orig.Start())
	assert.Equal(t, d(2023, 11, 1), moved.Start())
	assert.Equal(t, MarketDAM, orig.Market())
	assert.False(t, orig.IsAutoAdded())
	assert.Equal(t, MarketGDAM, green.Market())
	assert.True(t, green.IsAutoAdded())

	_, err = orig.WithDates(d(2024, 2, 1), d(2024, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidSpec)

	hours := orig.Buckets()
	hours[0] = 99
	assert.Equal(t, 20, orig.Buckets()[0])
}

func TestQuerySpecKeyIgnoresExclusion(t *testing.T) {
	day := d(2025, 11, 17)
	ex := NewExclusion([]int{6}, nil, nil, "sunday")
	a, _ := NewQuerySpec(MarketDAM, day, day.AddDays(6), GranularityHour, FullDayHours(), StatTWAP, ex)
	b, _ := NewQuerySpec(MarketDAM, day, day.AddDays(6), GranularityHour, FullDayHours(), StatTWAP, nil)
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Key(), a.AutoAdded().Key())
	assert.NotEqual(t, a.Key(), a.WithMarket(MarketRTM).Key())
}

func TestQuerySpecJSON(t *testing.T) {
	ex := NewExclusion([]int{5, 6}, []Date{d(2025, 12, 25)}, nil, "weekends and 25 dec")
	s, err := NewQuerySpec(MarketGDAM, d(2025, 12, 1), d(2025, 12, 31), GranularityQuarter, BucketRange(1, 4), StatList, ex)
	require.NoError(t, err)

	b, err := json.Marshal(s.AutoAdded())
	require.NoError(t, err)
	assert.Contains(t, string(b), `"start_date":"2025-12-01"`)
	assert.Contains(t, string(b), `"slots":[1,2,3,4]`)
	assert.NotContains(t, string(b), `"hours"`)

	var back QuerySpec
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, s.Key(), back.Key())
	assert.True(t, back.IsAutoAdded())
	assert.Equal(t, []int{5, 6}, back.Exclusion().Weekdays())
	assert.True(t, back.Exclusion().ShouldExclude(d(2025, 12, 25)))

	bad := []byte(`{"market":"DAM","start_date":"2025-01-02","end_date":"2025-01-01","granularity":"hour","hours":[1],"stat":"twap"}`)
	assert.ErrorIs(t, json.Unmarshal(bad, &back), ErrInvalidSpec)
}

func TestExclusion(t *testing.T) {
	assert.Nil(t, NewExclusion(nil, nil, []int{13}, "smarch"))

	var none *Exclusion
	assert.False(t, none.ShouldExclude(d(2025, 1, 5)))
	assert.Nil(t, none.Describe())

	sun := NewExclusion([]int{6}, nil, nil, "sunday")
	assert.True(t, sun.ShouldExclude(d(2025, 11, 16)))
	assert.False(t, sun.ShouldExclude(d(2025, 11, 17)))

	feb := NewExclusion(nil, nil, []int{2}, "feb")
	assert.True(t, feb.ShouldExclude(d(2024, 2, 29)))
}

func TestExclusionDescribe(t *testing.T) {
	tests := []struct {
		name string
		ex   *Exclusion
		want []string
	}{
		{"weekends", NewExclusion([]int{6, 5}, nil, nil, ""), []string{"Weekends"}},
		{"weekdays", NewExclusion([]int{0, 1, 2, 3, 4}, nil, nil, ""), []string{"Weekdays"}},
		{"named days", NewExclusion([]int{0, 6}, nil, nil, ""), []string{"Mon", "Sun"}},
		{"months", NewExclusion(nil, nil, []int{12, 2}, ""), []string{"Feb", "Dec"}},
		{"dates capped", NewExclusion(nil, []Date{
			d(2025, 1, 4), d(2025, 1, 1), d(2025, 1, 3), d(2025, 1, 2), d(2025, 1, 5),
		}, nil, ""), []string{"01 Jan", "02 Jan", "03 Jan", "+2 more"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ex.Describe())
		})
	}
}

func TestDateHelpers(t *testing.T) {
	assert.Equal(t, d(2024, 3, 1), d(2024, 2, 29).AddDays(1))
	assert.Equal(t, d(2025, 3, 1), NewDate(2025, 2, 29))
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2100, time.February))
	assert.True(t, IsLeap(2000))
	assert.False(t, IsLeap(1900))
	assert.Equal(t, d(2024, 4, 30), MonthEnd(2024, time.April))
	assert.Equal(t, 0, d(2025, 11, 17).Weekday())
	assert.Equal(t, -1, d(2025, 1, 1).Compare(d(2025, 1, 2)))
	assert.True(t, d(2025, 2, 1).After(d(2025, 1, 31)))

	got, err := ParseDate("2025-10-31")
	require.NoError(t, err)
	assert.Equal(t, "2025-10-31", got.String())
	_, err = ParseDate("31/10/2025")
	assert.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	m, ok := ParseMarket(" gdam ")
	assert.True(t, ok)
	assert.Equal(t, MarketGDAM, m)
	_, ok = ParseMarket("IEX")
	assert.False(t, ok)

	assert.Equal(t, 96, GranularityQuarter.MaxBucket())
	assert.Equal(t, 24, GranularityHour.MaxBucket())
	assert.False(t, Granularity("minute").Valid())
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EMSpark/internal/domain/models"
)

func TestParseExclusion(t *testing.T) {
	parser := newTestParser(t)

	tests := []struct {
		name     string
		text     string
		weekdays []int
		months   []int
		dates    []string
		labels   []string
	}{
		{"single weekday", "dam for this week excluding sunday", []int{6}, nil, nil, []string{"Sun"}},
		{"plural weekdays", "skip mondays, fridays", []int{0, 4}, nil, nil, []string{"Mon", "Fri"}},
		{"abbreviations", "excluding tues and thurs", []int{1, 3}, nil, nil, []string{"Tue", "Thu"}},
		{"weekends", "last month without weekends", []int{5, 6}, nil, nil, []string{"Weekends"}},
		{"sat and sun", "except sat and sun", []int{5, 6}, nil, nil, []string{"Weekends"}},
		{"weekdays", "excluding working days", []int{0, 1, 2, 3, 4}, nil, nil, []string{"Weekdays"}},
		{"date with year", "excluding 25 dec 2025", nil, nil, []string{"2025-12-25"}, []string{"25 Dec"}},
		{"date takes current year", "exclude 25th dec", nil, nil, []string{"2025-12-25"}, []string{"25 Dec"}},
		{"month and date", "excluding feb and 25 dec", nil, []int{2}, []string{"2025-12-25"}, []string{"Feb", "25 Dec"}},
		{"many dates", "excluding 1 dec, 2 dec, 3 dec, 4 dec 2025", nil, nil,
			[]string{"2025-12-01", "2025-12-02", "2025-12-03", "2025-12-04"},
			[]string{"01 Dec", "02 Dec", "03 Dec", "+1 more"}},
		{"clause stops at period", "dam excluding sundays for last month", []int{6}, nil, nil, []string{"Sun"}},
		{"connector after keyword", "dam this week except for sunday", []int{6}, nil, nil, []string{"Sun"}},
		{"connector before date", "dam last month except on 25 oct", nil, nil, []string{"2025-10-25"}, []string{"25 Oct"}},
		{"two-letter abbreviations", "except su and mo", []int{0, 6}, nil, nil, []string{"Mon", "Sun"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := parser.ParseExclusion(Normalize(tt.text))
			require.NotNil(t, ex)
			if tt.weekdays == nil {
				assert.Empty(t, ex.Weekdays())
			} else {
				assert.Equal(t, tt.weekdays, ex.Weekdays())
			}
			if tt.months == nil {
				assert.Empty(t, ex.Months())
			} else {
				assert.Equal(t, tt.months, ex.Months())
			}
			var dates []models.Date
			for _, s := range tt.dates {
				dates = append(dates, d(t, s))
			}
			if dates == nil {
				assert.Empty(t, ex.Dates())
			} else {
				assert.Equal(t, dates, ex.Dates())
			}
			assert.Equal(t, tt.labels, ex.Describe())
		})
	}
}

func TestParseExclusionNil(t *testing.T) {
	parser := newTestParser(t)
	for _, text := range []string{
		"dam today",
		"dam today excluding",
		"dam today except nothing useful",
		"excluding 31 feb",
	} {
		assert.Nil(t, parser.ParseExclusion(text), text)
	}
}

func TestExclusionShouldExclude(t *testing.T) {
	parser := newTestParser(t)
	ex := parser.ParseExclusion("dam for this week excluding sunday")
	require.NotNil(t, ex)

	start := d(t, "2025-11-10")
	for i := 0; i < 14; i++ {
		day := start.AddDays(i)
		assert.Equal(t, day.Weekday() == 6, ex.ShouldExclude(day), day.String())
	}

	var none *models.Exclusion
	assert.False(t, none.ShouldExclude(start))
}

func TestStripExclusionKeepsOffsets(t *testing.T) {
	in := "dam excluding sundays for last month"
	out := stripExclusion(in)
	assert.Len(t, out, len(in))
	assert.Equal(t, "dam", out[:3])
	assert.Contains(t, out, "for last month")
	assert.NotContains(t, out, "sundays")
}

package query

import (
	"time"

	"EMSpark/internal/domain/models"
)

// ShiftYears moves both ends of the spec by whole years. Feb 29 becomes
// Feb 28 in a non-leap target year. ok is false when the target year
// falls outside 1..9999.
func ShiftYears(spec models.QuerySpec, years int) (models.QuerySpec, bool) {
	start, ok := shiftDate(spec.Start(), years)
	if !ok {
		return models.QuerySpec{}, false
	}
	end, ok := shiftDate(spec.End(), years)
	if !ok {
		return models.QuerySpec{}, false
	}
	shifted, err := spec.WithDates(start, end)
	if err != nil {
		return models.QuerySpec{}, false
	}
	return shifted, true
}

func shiftDate(d models.Date, years int) (models.Date, bool) {
	y := d.Year + years
	if y < 1 || y > 9999 {
		return models.Date{}, false
	}
	day := d.Day
	if d.Month == time.February && day == 29 && !models.IsLeap(y) {
		day = 28
	}
	return models.NewDate(y, d.Month, day), true
}

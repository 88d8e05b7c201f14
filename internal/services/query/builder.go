package query

import "EMSpark/internal/domain/models"

// Build crosses every period with every time group, period-major. With no
// groups the full day is selected at hour granularity. Combinations that
// fail validation are skipped.
func Build(market models.Market, stat models.Stat, periods []Period, groups []TimeBucketGroup, ex *models.Exclusion) []models.QuerySpec {
	if len(groups) == 0 {
		groups = []TimeBucketGroup{{Granularity: models.GranularityHour, Buckets: models.FullDayHours()}}
	}
	specs := make([]models.QuerySpec, 0, len(periods)*len(groups))
	for _, p := range periods {
		for _, g := range groups {
			spec, err := models.NewQuerySpec(market, p.Start, p.End, g.Granularity, g.Buckets, stat, ex)
			if err != nil {
				continue
			}
			specs = append(specs, spec)
		}
	}
	return specs
}

// Dedupe keeps the first spec for every Key, preserving order.
func Dedupe(specs []models.QuerySpec) []models.QuerySpec {
	seen := make(map[string]struct{}, len(specs))
	out := make([]models.QuerySpec, 0, len(specs))
	for _, s := range specs {
		k := s.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

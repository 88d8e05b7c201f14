// Package analytics computes price and volume statistics over spot rows.
// Prices arrive in Rs/MWh and are reported in Rs/kWh.
package analytics

import (
	"math"
	"sort"

	"EMSpark/internal/domain/models"
)

// Time-of-day bands by hour block.
const (
	solarFirst = 9
	solarLast  = 18
	peakFirst  = 19
	peakLast   = 23
)

// FilterRows keeps the rows a spec actually selects: inside its date range,
// inside its bucket set and not removed by its exclusion.
func FilterRows(spec models.QuerySpec, rows []models.PriceRow) []models.PriceRow {
	ex := spec.Exclusion()
	out := make([]models.PriceRow, 0, len(rows))
	for _, r := range rows {
		if r.Granularity != spec.Granularity() {
			continue
		}
		if r.DeliveryDate.Before(spec.Start()) || r.DeliveryDate.After(spec.End()) {
			continue
		}
		if !spec.HasBucket(r.Bucket) || ex.ShouldExclude(r.DeliveryDate) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Summarize aggregates rows of one market. Rows are listed only for the
// list statistic, and at most maxRows of them (0 means no cap).
func Summarize(market models.Market, g models.Granularity, stat models.Stat, rows []models.PriceRow, maxRows int) models.MarketSummary {
	s := models.MarketSummary{Market: market, Granularity: g, RowCount: len(rows)}
	if len(rows) == 0 {
		return s
	}

	var priceSum, weighted, volMWh, buySum, sellSum float64
	s.MinPrice, s.MaxPrice = math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		priceSum += r.PriceAvg
		v := r.VolumeMWh()
		volMWh += v
		weighted += r.PriceAvg * v
		buySum += r.PurchaseBidMW
		sellSum += r.SellBidMW
		s.MinPrice = math.Min(s.MinPrice, r.PriceAvg)
		s.MaxPrice = math.Max(s.MaxPrice, r.PriceAvg)
	}
	n := float64(len(rows))
	s.TWAP = priceSum / n / 1000
	s.VWAP = s.TWAP
	if volMWh > 0 {
		s.VWAP = weighted / volMWh / 1000
	}
	s.MinPrice /= 1000
	s.MaxPrice /= 1000
	s.VolumeGWh = volMWh / 1000
	s.PurchaseBidAvg = buySum / n
	s.SellBidAvg = sellSum / n
	s.Daily = DailyAverages(rows)
	s.Segments = SplitSegments(rows)

	if stat == models.StatList {
		listed := make([]models.PriceRow, len(rows))
		copy(listed, rows)
		sort.SliceStable(listed, func(i, j int) bool {
			if c := listed[i].DeliveryDate.Compare(listed[j].DeliveryDate); c != 0 {
				return c < 0
			}
			return listed[i].Bucket < listed[j].Bucket
		})
		if maxRows > 0 && len(listed) > maxRows {
			listed = listed[:maxRows]
		}
		s.Rows = listed
	}
	return s
}

// DailyAverages returns the time-weighted price per delivery day, oldest first.
func DailyAverages(rows []models.PriceRow) []models.DailyAvg {
	type acc struct {
		sum float64
		n   int
	}
	byDay := make(map[models.Date]*acc)
	for _, r := range rows {
		a, ok := byDay[r.DeliveryDate]
		if !ok {
			a = &acc{}
			byDay[r.DeliveryDate] = a
		}
		a.sum += r.PriceAvg
		a.n++
	}
	out := make([]models.DailyAvg, 0, len(byDay))
	for d, a := range byDay {
		out = append(out, models.DailyAvg{Date: d, TWAP: a.sum / float64(a.n) / 1000})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// SplitSegments buckets rows into solar (blocks 9-18), evening peak
// (19-23) and off-peak (everything else) by hour block.
func SplitSegments(rows []models.PriceRow) models.Segments {
	var solar, peak, off segmentAcc
	for _, r := range rows {
		switch b := r.HourBlock(); {
		case b >= solarFirst && b <= solarLast:
			solar.add(r)
		case b >= peakFirst && b <= peakLast:
			peak.add(r)
		default:
			off.add(r)
		}
	}
	return models.Segments{Solar: solar.segment(), Peak: peak.segment(), OffPeak: off.segment()}
}

type segmentAcc struct {
	price, vol float64
	n          int
}

func (a *segmentAcc) add(r models.PriceRow) {
	a.price += r.PriceAvg
	a.vol += r.VolumeMWh()
	a.n++
}

func (a segmentAcc) segment() models.Segment {
	if a.n == 0 {
		return models.Segment{}
	}
	return models.Segment{TWAP: a.price / float64(a.n) / 1000, VolumeGWh: a.vol / 1000, Count: a.n}
}

// YoYChange is the percentage change of the current TWAP over the prior
// one, or 0 when there is no prior price.
func YoYChange(current, previous models.MarketSummary) float64 {
	if previous.TWAP <= 0 {
		return 0
	}
	return (current.TWAP - previous.TWAP) / previous.TWAP * 100
}

// RenewableMix is GDAM's share of the total cleared volume in percent.
func RenewableMix(markets []models.MarketComparison) (mixPct, totalGWh float64) {
	var green float64
	for _, m := range markets {
		totalGWh += m.Current.VolumeGWh
		if m.Market == models.MarketGDAM {
			green += m.Current.VolumeGWh
		}
	}
	if totalGWh > 0 {
		mixPct = green / totalGWh * 100
	}
	return mixPct, totalGWh
}

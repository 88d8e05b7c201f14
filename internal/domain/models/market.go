package models

import "strings"

// Market is a spot-market segment code.
type Market string

const (
	MarketDAM  Market = "DAM"
	MarketGDAM Market = "GDAM"
	MarketRTM  Market = "RTM"
)

// AllMarkets lists the spot markets in report order.
var AllMarkets = []Market{MarketDAM, MarketGDAM, MarketRTM}

// ParseMarket accepts any case; ok is false for unknown codes.
func ParseMarket(s string) (Market, bool) {
	m := Market(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case MarketDAM, MarketGDAM, MarketRTM:
		return m, true
	}
	return "", false
}

// Granularity selects hour blocks or quarter-hour slots.
type Granularity string

const (
	GranularityHour    Granularity = "hour"
	GranularityQuarter Granularity = "quarter"
)

// MaxBucket is the highest bucket index for the granularity.
func (g Granularity) MaxBucket() int {
	if g == GranularityQuarter {
		return 96
	}
	return 24
}

// BucketMinutes is the delivery duration of one bucket.
func (g Granularity) BucketMinutes() int {
	if g == GranularityQuarter {
		return 15
	}
	return 60
}

func (g Granularity) Valid() bool {
	return g == GranularityHour || g == GranularityQuarter
}

// Stat is the requested aggregation mode.
type Stat string

const (
	StatTWAP     Stat = "twap"
	StatVWAP     Stat = "vwap"
	StatList     Stat = "list"
	StatDailyAvg Stat = "daily_avg"
)

// ParseStat accepts any case; ok is false for unknown modes.
func ParseStat(s string) (Stat, bool) {
	st := Stat(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatTWAP, StatVWAP, StatList, StatDailyAvg:
		return st, true
	}
	return "", false
}

package models

import "time"

// MarketSummary aggregates the rows of one market over a set of specs.
type MarketSummary struct {
	Market         Market      `json:"market"`
	TWAP           float64     `json:"twap"` // Rs/kWh
	VWAP           float64     `json:"vwap"` // Rs/kWh
	MinPrice       float64     `json:"min_price"`
	MaxPrice       float64     `json:"max_price"`
	VolumeGWh      float64     `json:"volume_gwh"`
	PurchaseBidAvg float64     `json:"purchase_bid_avg_mw"`
	SellBidAvg     float64     `json:"sell_bid_avg_mw"`
	RowCount       int         `json:"row_count"`
	Daily          []DailyAvg  `json:"daily,omitempty"`
	Segments       Segments    `json:"segments"`
	Rows           []PriceRow  `json:"rows,omitempty"`
	Granularity    Granularity `json:"granularity"`
}

// DailyAvg is the time-weighted price of one delivery day.
type DailyAvg struct {
	Date Date    `json:"date"`
	TWAP float64 `json:"twap"`
}

// Segment summarizes a time-of-day band.
type Segment struct {
	TWAP      float64 `json:"twap"`
	VolumeGWh float64 `json:"volume_gwh"`
	Count     int     `json:"count"`
}

// Segments splits a summary into solar, evening peak and the rest.
type Segments struct {
	Solar   Segment `json:"solar"`
	Peak    Segment `json:"peak"`
	OffPeak Segment `json:"off_peak"`
}

// MarketComparison pairs a market's current and prior-year summaries.
type MarketComparison struct {
	Market    Market        `json:"market"`
	Current   MarketSummary `json:"current"`
	Previous  MarketSummary `json:"previous"`
	YoYChange float64       `json:"yoy_change_pct"`
}

// Report is the full answer to one natural-language question.
type Report struct {
	Query           string             `json:"query"`
	Specs           []QuerySpec        `json:"specs"`
	PrimaryMarket   Market             `json:"primary_market"`
	DateLabel       string             `json:"date_label"`
	TimeLabel       string             `json:"time_label"`
	ExclusionLabels []string           `json:"exclusion_labels,omitempty"`
	Year            int                `json:"year"`
	Markets         []MarketComparison `json:"markets"`
	RenewableMixPct float64            `json:"renewable_mix_pct"`
	TotalVolumeGWh  float64            `json:"total_volume_gwh"`
	Derivatives     []DerivativeQuote  `json:"derivatives,omitempty"`
	DerivativeDate  *Date              `json:"derivative_date,omitempty"`
	Source          string             `json:"source"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

// Primary returns the comparison entry of the primary market.
func (r *Report) Primary() MarketComparison {
	for _, m := range r.Markets {
		if m.Market == r.PrimaryMarket {
			return m
		}
	}
	return MarketComparison{Market: r.PrimaryMarket}
}

package models

import "time"

// DerivativeMarketStart is the first trading day of the electricity futures
// market. Nothing is looked up before it.
var DerivativeMarketStart = NewDate(2025, time.July, 1)

// PriceRow is one delivery bucket as returned by a price store.
// Hourly rows carry MCV as the sum of their four quarter-hour values.
type PriceRow struct {
	DeliveryDate  Date        `json:"delivery_date"`
	Granularity   Granularity `json:"granularity"`
	Bucket        int         `json:"bucket"`
	PriceAvg      float64     `json:"price_avg"` // Rs/MWh
	ScheduledMW   float64     `json:"scheduled_mw"`
	PurchaseBidMW float64     `json:"purchase_bid_mw"`
	SellBidMW     float64     `json:"sell_bid_mw"`
	MCVMW         float64     `json:"mcv_mw"`
	DurationMin   int         `json:"duration_min"`
}

// HourBlock maps the row onto its 1..24 hour block.
func (r PriceRow) HourBlock() int {
	if r.Granularity == GranularityQuarter {
		return (r.Bucket-1)/4 + 1
	}
	return r.Bucket
}

// VolumeMWh converts the cleared volume to energy for the bucket.
func (r PriceRow) VolumeMWh() float64 {
	if r.Granularity == GranularityQuarter {
		return r.MCVMW * 0.25
	}
	return r.MCVMW / 4.0
}

// DerivativeQuote is one daily close of an electricity futures contract.
type DerivativeQuote struct {
	TradingDate   Date    `json:"trading_date"`
	Exchange      string  `json:"exchange"`
	Commodity     string  `json:"commodity"`
	ContractMonth Date    `json:"contract_month"`
	ClosePrice    float64 `json:"close_price"` // Rs/MWh
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"EMSpark/internal/domain/models"
)

func TestClassifyMarket(t *testing.T) {
	tests := []struct {
		text string
		want models.Market
	}{
		{"dam today", models.MarketDAM},
		{"gdam yesterday", models.MarketGDAM},
		{"green day ahead last week", models.MarketGDAM},
		{"green market prices", models.MarketGDAM},
		{"rtm 6-8 hrs", models.MarketRTM},
		{"real-time prices", models.MarketRTM},
		{"prices today", models.MarketDAM},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMarket(tt.text, models.MarketDAM))
		})
	}
	assert.Equal(t, models.MarketRTM, ClassifyMarket("prices today", models.MarketRTM))
}

func TestMentionedMarkets(t *testing.T) {
	tests := []struct {
		text string
		want []models.Market
	}{
		{"compare dam and gdam for last week", []models.Market{models.MarketDAM, models.MarketGDAM}},
		{"green day ahead vs rtm", []models.Market{models.MarketGDAM, models.MarketRTM}},
		{"rtm, dam and rtm again", []models.Market{models.MarketRTM, models.MarketDAM}},
		{"prices today", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, MentionedMarkets(tt.text))
		})
	}
}

func TestClassifyStat(t *testing.T) {
	tests := []struct {
		text string
		want models.Stat
	}{
		{"dam vwap today", models.StatVWAP},
		{"weighted average price", models.StatVWAP},
		{"daily average for last week", models.StatDailyAvg},
		{"show table for yesterday", models.StatList},
		{"detailed rows", models.StatList},
		{"average price", models.StatTWAP},
		{"mean rtm price", models.StatTWAP},
		{"dam today", models.StatList},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStat(tt.text, models.StatList))
		})
	}
}

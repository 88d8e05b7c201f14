package query

import (
	"regexp"
	"sort"

	"EMSpark/internal/domain/models"
)

var (
	reGDAM = regexp.MustCompile(`\bgdam\b|\bgreen\s+(?:day[- ]?ahead|market|dam)\b|\bg-dam\b`)
	reRTM  = regexp.MustCompile(`\brtm\b|\breal[- ]?time\b`)
	reDAM  = regexp.MustCompile(`\bdam\b|\bday[- ]?ahead\b|\biex\b`)

	reStatVWAP  = regexp.MustCompile(`\bvwap\b|\bweighted\b`)
	reStatDaily = regexp.MustCompile(`\bdaily\s+(?:avg|average|averages|mean)\b|\bday[- ]?wise\b`)
	reStatList  = regexp.MustCompile(`\b(?:list|table|rows|detailed|breakdown)\b`)
	reStatTWAP  = regexp.MustCompile(`\b(?:avg|average|mean|twap)\b`)
)

// ClassifyMarket picks one market: GDAM, then RTM, else def.
func ClassifyMarket(text string, def models.Market) models.Market {
	switch {
	case reGDAM.MatchString(text):
		return models.MarketGDAM
	case reRTM.MatchString(text):
		return models.MarketRTM
	}
	return def
}

// MentionedMarkets lists every market named in the text, in order of first
// mention. "green day ahead" counts as GDAM only.
func MentionedMarkets(text string) []models.Market {
	type hit struct {
		at     int
		market models.Market
	}
	var (
		hits  []hit
		taken claims
	)
	for _, c := range []struct {
		re     *regexp.Regexp
		market models.Market
	}{
		{reGDAM, models.MarketGDAM},
		{reRTM, models.MarketRTM},
		{reDAM, models.MarketDAM},
	} {
		for _, loc := range c.re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if !taken.free(s) {
				continue
			}
			taken = append(taken, s)
			hits = append(hits, hit{at: loc[0], market: c.market})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	seen := make(map[models.Market]bool, len(hits))
	var out []models.Market
	for _, h := range hits {
		if !seen[h.market] {
			seen[h.market] = true
			out = append(out, h.market)
		}
	}
	return out
}

// ClassifyStat applies the first matching statistic rule, else def.
func ClassifyStat(text string, def models.Stat) models.Stat {
	switch {
	case reStatVWAP.MatchString(text):
		return models.StatVWAP
	case reStatDaily.MatchString(text):
		return models.StatDailyAvg
	case reStatList.MatchString(text):
		return models.StatList
	case reStatTWAP.MatchString(text):
		return models.StatTWAP
	}
	return def
}

package query

import (
	"regexp"

	"EMSpark/internal/domain/models"
)

// TimeBucketGroup is one sub-day selection at a single granularity.
type TimeBucketGroup struct {
	Granularity models.Granularity
	Buckets     []int
}

const rangeTo = `\s*(?:to|till|until|-)\s*`

var (
	reClockRange = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?` + rangeTo + `(\d{1,2})(?::(\d{2}))?\s*(am|pm)?(?:\s*(?:hours|hour|hrs|hr))?`)
	reHourRange  = regexp.MustCompile(`\b(\d{1,2})` + rangeTo + `(\d{1,2})\s*(?:hours|hour|hrs|hr|h)\b`)
	reHourPrefix = regexp.MustCompile(`\b(?:hours|hour|hrs|hr)\s+(\d{1,2})` + rangeTo + `(\d{1,2})\b`)
	reSlotRange  = regexp.MustCompile(`\b(\d{1,2})` + rangeTo + `(\d{1,2})\s*(?:blocks?|slots?|quarters?)\b`)
	reSlotPrefix = regexp.MustCompile(`\b(?:blocks?|slots?|quarters?)\s+(\d{1,2})` + rangeTo + `(\d{1,2})\b`)
	rePlainRange = regexp.MustCompile(`\b(\d{1,2})` + rangeTo + `(\d{1,2})\b`)

	reQuarterWord = regexp.MustCompile(`\b(?:blocks?|slots?|quarters?|quarter-hour|15 ?min(?:ute)?s?)\b`)
	reHourWord    = regexp.MustCompile(`\b(?:hours?|hrs?|hourly)\b`)
)

// namedWindow is a fixed set of hour blocks users refer to by name.
type namedWindow struct {
	re    *regexp.Regexp
	hours []int
}

var namedWindows = []namedWindow{
	{regexp.MustCompile(`\bnon[- ]?solar(?:\s+(?:hours|hrs|window))?\b`), append(models.BucketRange(1, 8), models.BucketRange(19, 24)...)},
	{regexp.MustCompile(`\bsolar\s+(?:hours|hrs|window|time)\b`), models.BucketRange(9, 18)},
	{regexp.MustCompile(`\boff[- ]?peak(?:\s+(?:hours|hrs|window))?\b`), append(models.BucketRange(1, 8), 24)},
	{regexp.MustCompile(`\b(?:evening\s+peak|peak\s+(?:hours|hrs|window))\b`), models.BucketRange(19, 23)},
}

// BareSmallRangeAsHours is the policy for a plain "N to M" with no unit:
// when both ends are at most 24 and no block/slot/quarter keyword appears
// anywhere in the query, the range is read as clock hours; otherwise it is
// a direct slot index range.
const BareSmallRangeAsHours = true

// ParseTimeGroups extracts the sub-day selection. It returns at most one
// group per granularity, buckets sorted ascending, and nil when the text
// names no time window.
func ParseTimeGroups(text string) []TimeBucketGroup {
	text = maskDates(stripExclusion(text))
	preferQuarter := reQuarterWord.MatchString(text)
	preferHour := reHourWord.MatchString(text)

	var (
		taken   claims
		hours   []int
		slots   []int
		claimed = func(s span) bool {
			if !taken.free(s) {
				return true
			}
			taken = append(taken, s)
			return false
		}
	)

	for _, m := range findAll(reClockRange, text) {
		hasClock := m.group(2) != "" || m.group(3) != "" || m.group(5) != "" || m.group(6) != ""
		if !hasClock {
			continue
		}
		start, end, ok := clockWindow(m)
		if !ok || claimed(m.span) {
			continue
		}
		hours = append(hours, models.BucketRange(clamp(ceilDiv(start, 60)+1, 1, 24), clamp(ceilDiv(end, 60), 1, 24))...)
		slots = append(slots, models.BucketRange(clamp((start+14)/15+1, 1, 96), clamp(end/15, 1, 96))...)
	}

	for _, re := range []*regexp.Regexp{reHourRange, reHourPrefix} {
		for _, m := range findAll(re, text) {
			if claimed(m.span) {
				continue
			}
			hours = append(hours, hourBlocks(m.int(1), m.int(2))...)
		}
	}
	for _, re := range []*regexp.Regexp{reSlotRange, reSlotPrefix} {
		for _, m := range findAll(re, text) {
			if claimed(m.span) {
				continue
			}
			slots = append(slots, slotIndices(m.int(1), m.int(2))...)
		}
	}

	for _, m := range findAll(rePlainRange, text) {
		if !taken.free(m.span) {
			continue
		}
		a, b := m.int(1), m.int(2)
		if b < a {
			a, b = b, a
		}
		switch {
		case BareSmallRangeAsHours && a <= 24 && b <= 24 && !preferQuarter:
			if blocks := hourBlocks(a, b); len(blocks) > 0 {
				taken = append(taken, m.span)
				hours = append(hours, blocks...)
			}
		case a >= 1 && b >= 1 && a <= 96 && b <= 96:
			taken = append(taken, m.span)
			slots = append(slots, slotIndices(a, b)...)
		}
	}

	for _, w := range namedWindows {
		for _, m := range findAll(w.re, text) {
			if claimed(m.span) {
				continue
			}
			hours = append(hours, w.hours...)
		}
	}

	var groups []TimeBucketGroup
	if len(hours) > 0 {
		groups = append(groups, TimeBucketGroup{Granularity: models.GranularityHour, Buckets: models.NormalizeBuckets(hours)})
	}
	if len(slots) > 0 {
		groups = append(groups, TimeBucketGroup{Granularity: models.GranularityQuarter, Buckets: models.NormalizeBuckets(slots)})
	}
	if len(groups) < 2 {
		return groups
	}
	switch {
	case preferQuarter:
		return groups[1:]
	case preferHour:
		return groups[:1]
	}
	return groups
}

// clockWindow converts a clock range match to minutes of day. A bare
// start inherits the end's am/pm when that keeps the window ordered.
func clockWindow(m submatch) (int, int, bool) {
	h1, h2 := m.int(1), m.int(4)
	min1, min2 := m.int(2), m.int(5)
	mer1, mer2 := m.group(3), m.group(6)
	if min1 > 59 || min2 > 59 {
		return 0, 0, false
	}
	if mer1 == "" && mer2 != "" {
		if inherited, ok := to24(h1, mer2); ok && inherited*60+min1 < mustTo24(h2, mer2)*60+min2 {
			mer1 = mer2
		}
	}
	a, ok1 := to24(h1, mer1)
	b, ok2 := to24(h2, mer2)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	start, end := a*60+min1, b*60+min2
	if end == 0 && start > 0 {
		end = 24 * 60
	}
	if start > 24*60 || end > 24*60 || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func to24(h int, meridiem string) (int, bool) {
	switch meridiem {
	case "am":
		if h < 1 || h > 12 {
			return 0, false
		}
		return h % 12, true
	case "pm":
		if h < 1 || h > 12 {
			return 0, false
		}
		return h%12 + 12, true
	}
	return h, h <= 24
}

func mustTo24(h int, meridiem string) int {
	v, _ := to24(h, meridiem)
	return v
}

// hourBlocks maps the clock window [h1:00, h2:00) to blocks h1+1..h2.
func hourBlocks(h1, h2 int) []int {
	h1, h2 = clamp(h1, 0, 23), clamp(h2, 0, 24)
	return models.BucketRange(h1+1, h2)
}

func slotIndices(a, b int) []int {
	if b < a {
		a, b = b, a
	}
	return models.BucketRange(clamp(a, 1, 96), clamp(b, 1, 96))
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

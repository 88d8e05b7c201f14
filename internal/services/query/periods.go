package query

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"EMSpark/internal/domain/models"
)

// Period is an inclusive calendar range.
type Period struct {
	Start models.Date `json:"start"`
	End   models.Date `json:"end"`
}

func newPeriod(a, b models.Date) Period {
	if b.Before(a) {
		a, b = b, a
	}
	return Period{Start: a, End: b}
}

func monthPeriod(year int, m time.Month) Period {
	return Period{Start: models.MonthStart(year, m), End: models.MonthEnd(year, m)}
}

type periodMatch struct {
	span
	period Period
	// explicit day-level matches suppress broad relative phrases
	explicit bool
	broad    bool
}

// dayItem is a single-day anchor that may still be joined into a range.
type dayItem struct {
	span
	year     int // 0 when the text gave no year
	month    time.Month
	day      int
	explicit bool
}

type relativeRule struct {
	re    *regexp.Regexp
	broad bool
	// resolve receives today and the submatches
	resolve func(today models.Date, sm []string) (Period, bool)
}

var (
	reRangeJoin   = regexp.MustCompile(`^(?:to|till|until|through|upto|up to|-|and|vs|versus)$`)
	reBetween     = regexp.MustCompile(`\bbetween\s*$`)
	reOpenBefore  = regexp.MustCompile(`\b(?:since|from|after)\s*$`)
	reOpenAfter   = regexp.MustCompile(`^\s*(?:onwards|onward|till date|to date|till now|till today|until today|to today|to now)\b`)
	reBareYear    = regexp.MustCompile(`\b(?:in|for|year|during|of)\s+(\d{4})\b`)
	reBareMonth   = regexp.MustCompile(`\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)
	reDayRelative = regexp.MustCompile(`\b(day before yesterday|day after tomorrow|yesterday|today|tomorrow|tmrw|yday)\b`)
)

var dayRelativeOffset = map[string]int{
	"day before yesterday": -2,
	"yesterday":            -1,
	"yday":                 -1,
	"today":                0,
	"tomorrow":             1,
	"tmrw":                 1,
	"day after tomorrow":   2,
}

var relativeRules = []relativeRule{
	{
		re:    regexp.MustCompile(`\b(?:last|past|previous)\s+(\d{1,3})\s+(days?|weeks?|months?)\b`),
		broad: true,
		resolve: func(today models.Date, sm []string) (Period, bool) {
			n := atoi(sm[1])
			if n <= 0 {
				return Period{}, false
			}
			switch {
			case strings.HasPrefix(sm[2], "day"):
				return Period{Start: today.AddDays(-(n - 1)), End: today}, true
			case strings.HasPrefix(sm[2], "week"):
				return Period{Start: today.AddDays(-(7*n - 1)), End: today}, true
			default:
				start := models.DateOf(today.Time().AddDate(0, -n, 1))
				return Period{Start: start, End: today}, true
			}
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:this|current)\s+week\b|\bweek to date\b|\bwtd\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			return Period{Start: today.AddDays(-today.Weekday()), End: today}, true
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:last|previous|past)\s+week\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			monday := today.AddDays(-today.Weekday() - 7)
			return Period{Start: monday, End: monday.AddDays(6)}, true
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:this|current)\s+month\b|\bmonth to date\b|\bmtd\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			return Period{Start: models.MonthStart(today.Year, today.Month), End: today}, true
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:last|previous|past)\s+month\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			prev := models.DateOf(time.Date(today.Year, today.Month-1, 1, 0, 0, 0, 0, time.UTC))
			return monthPeriod(prev.Year, prev.Month), true
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:this|current)\s+year\b|\byear to date\b|\bytd\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			return Period{Start: models.NewDate(today.Year, time.January, 1), End: today}, true
		},
	},
	{
		re:    regexp.MustCompile(`\b(?:last|previous|past)\s+year\b`),
		broad: true,
		resolve: func(today models.Date, _ []string) (Period, bool) {
			y := today.Year - 1
			return Period{Start: models.NewDate(y, time.January, 1), End: models.NewDate(y, time.December, 31)}, true
		},
	},
}

// ParsePeriods extracts every calendar period named in the text, ordered
// by position. The exclusion clause is not scanned. An
// empty result means the dates could not be resolved.
func (p *Parser) ParsePeriods(text string) []Period {
	text = stripExclusion(text)
	today := p.today()

	var (
		taken   claims
		matches []periodMatch
	)
	add := func(s span, per Period, explicit, broad bool) {
		taken = append(taken, s)
		matches = append(matches, periodMatch{span: s, period: per, explicit: explicit, broad: broad})
	}

	// Day ranges inside one month.
	for _, m := range findAll(reDayRangeDMY, text) {
		mon, _ := monthOf(m.group(3))
		if per, ok := dayRange(m.int(4), mon, m.int(1), m.int(2)); ok && taken.free(m.span) {
			add(m.span, per, true, false)
		}
	}
	for _, m := range findAll(reDayRangeMDY, text) {
		mon, _ := monthOf(m.group(1))
		if per, ok := dayRange(m.int(4), mon, m.int(2), m.int(3)); ok && taken.free(m.span) {
			add(m.span, per, true, false)
		}
	}

	// Same day and month across several years.
	for _, m := range findAll(reDayYearList, text) {
		if !taken.free(m.span) {
			continue
		}
		mon, _ := monthOf(m.group(2))
		day := m.int(1)
		years := append([]int{m.int(3)}, listYears(m.group(4))...)
		var pers []Period
		for _, y := range years {
			if models.ValidDate(y, mon, day) {
				d := models.NewDate(y, mon, day)
				pers = append(pers, Period{Start: d, End: d})
			}
		}
		if len(pers) == 0 {
			continue
		}
		taken = append(taken, m.span)
		for i, per := range pers {
			// keep list order stable by nudging the sort position
			matches = append(matches, periodMatch{span: span{m.start + i, m.end}, period: per, explicit: true})
		}
	}

	// Single days, joined into ranges where a connector sits between them.
	items, rejected := p.dayItems(text, taken)
	taken = append(taken, rejected...)
	for _, pm := range joinDayItems(text, items, today) {
		add(pm.span, pm.period, pm.explicit, false)
	}

	// Month lists and single months with a year.
	for _, m := range findAll(reMonthYearList, text) {
		if !taken.free(m.span) {
			continue
		}
		mon, _ := monthOf(m.group(1))
		years := append([]int{m.int(2)}, listYears(m.group(3))...)
		taken = append(taken, m.span)
		for i, y := range years {
			matches = append(matches, periodMatch{span: span{m.start + i, m.end}, period: monthPeriod(y, mon), explicit: true})
		}
	}
	for _, m := range findAll(reMonthYear, text) {
		mon, _ := monthOf(m.group(1))
		if taken.free(m.span) {
			add(m.span, monthPeriod(m.int(2), mon), true, false)
		}
	}

	// Relative phrases.
	for _, rule := range relativeRules {
		for _, m := range findAll(rule.re, text) {
			if !taken.free(m.span) {
				continue
			}
			if per, ok := rule.resolve(today, m.groups); ok {
				add(m.span, per, false, rule.broad)
			}
		}
	}
	for _, m := range findAll(reBareMonth, text) {
		if !taken.free(m.span) {
			continue
		}
		mon, _ := monthOf(m.group(1))
		add(m.span, recentMonth(today, mon), false, true)
	}
	for _, m := range findAll(reBareYear, text) {
		if !taken.free(m.span) {
			continue
		}
		y := m.int(1)
		end := models.NewDate(y, time.December, 31)
		if y == today.Year {
			end = today
		}
		if y > today.Year || y < 1 {
			continue
		}
		add(m.span, Period{Start: models.NewDate(y, time.January, 1), End: end}, false, true)
	}

	hasExplicit := false
	for _, m := range matches {
		if m.explicit {
			hasExplicit = true
			break
		}
	}
	out := matches[:0]
	for _, m := range matches {
		if hasExplicit && m.broad {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })

	periods := make([]Period, 0, len(out))
	for _, m := range out {
		periods = append(periods, m.period)
	}
	return periods
}

// dayItems collects explicit and relative single-day anchors not yet
// claimed. Impossible dates are returned separately so that no broader
// pattern reinterprets their text.
func (p *Parser) dayItems(text string, taken claims) ([]dayItem, claims) {
	var (
		items    []dayItem
		rejected claims
	)
	local := append(claims(nil), taken...)
	push := func(it dayItem) {
		if !local.free(it.span) {
			return
		}
		local = append(local, it.span)
		year := it.year
		if year == 0 {
			year = 2024 // any leap year accepts 29 feb
		}
		if !models.ValidDate(year, it.month, it.day) {
			rejected = append(rejected, it.span)
			return
		}
		items = append(items, it)
	}

	for _, m := range findAll(reDMY, text) {
		mon, _ := monthOf(m.group(2))
		push(dayItem{span: m.span, year: m.int(3), month: mon, day: m.int(1), explicit: true})
	}
	for _, m := range findAll(reMDY, text) {
		mon, _ := monthOf(m.group(1))
		push(dayItem{span: m.span, year: m.int(3), month: mon, day: m.int(2), explicit: true})
	}
	for _, m := range findAll(reISO, text) {
		push(dayItem{span: m.span, year: m.int(1), month: time.Month(m.int(2)), day: m.int(3), explicit: true})
	}
	for _, m := range findAll(reNumericDMY, text) {
		push(dayItem{span: m.span, year: m.int(3), month: time.Month(m.int(2)), day: m.int(1), explicit: true})
	}
	for _, m := range findAll(reDM, text) {
		mon, _ := monthOf(m.group(2))
		push(dayItem{span: m.span, month: mon, day: m.int(1), explicit: true})
	}
	for _, m := range findAll(reMD, text) {
		if m.group(1) == "may" {
			// "may 5" is too often plain English
			continue
		}
		mon, _ := monthOf(m.group(1))
		push(dayItem{span: m.span, month: mon, day: m.int(2), explicit: true})
	}
	today := p.today()
	for _, m := range findAll(reDayRelative, text) {
		d := today.AddDays(dayRelativeOffset[m.group(1)])
		push(dayItem{span: m.span, year: d.Year, month: d.Month, day: d.Day})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].start < items[j].start })
	return items, rejected
}

// joinDayItems pairs neighbouring anchors separated by a range connector
// and resolves open-ended "since X" / "X onwards" forms.
func joinDayItems(text string, items []dayItem, today models.Date) []periodMatch {
	var out []periodMatch
	for i := 0; i < len(items); i++ {
		a := items[i]
		if i+1 < len(items) {
			b := items[i+1]
			sep := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text[a.end:b.start]), ","))
			joinable := reRangeJoin.MatchString(sep)
			if sep == "and" || sep == "vs" || sep == "versus" {
				joinable = reBetween.MatchString(text[:a.start])
			}
			if joinable {
				da, db := resolvePair(a, b, today)
				out = append(out, periodMatch{
					span:     span{a.start, b.end},
					period:   newPeriod(da, db),
					explicit: a.explicit || b.explicit,
				})
				i++
				continue
			}
		}
		d := resolveDay(a, 0, today)
		per := Period{Start: d, End: d}
		s := a.span
		if a.explicit && d.Before(today) {
			if reOpenBefore.MatchString(text[:a.start]) {
				per = Period{Start: d, End: today}
			} else if loc := reOpenAfter.FindStringIndex(text[a.end:]); loc != nil {
				per = Period{Start: d, End: today}
				s.end = a.end + loc[1]
			}
		}
		out = append(out, periodMatch{span: s, period: per, explicit: a.explicit})
	}
	return out
}

func resolvePair(a, b dayItem, today models.Date) (models.Date, models.Date) {
	switch {
	case a.year == 0 && b.year != 0:
		return resolveDay(a, b.year, today), resolveDay(b, 0, today)
	case b.year == 0 && a.year != 0:
		return resolveDay(a, 0, today), resolveDay(b, a.year, today)
	}
	return resolveDay(a, 0, today), resolveDay(b, 0, today)
}

// resolveDay fills a missing year from hint, or picks the most recent
// occurrence that is not more than one day ahead of today.
func resolveDay(it dayItem, hint int, today models.Date) models.Date {
	y := it.year
	if y == 0 {
		y = hint
	}
	if y == 0 {
		y = today.Year
		if !models.ValidDate(y, it.month, it.day) || models.NewDate(y, it.month, it.day).After(today.AddDays(1)) {
			y--
		}
		for !models.ValidDate(y, it.month, it.day) {
			y-- // Feb 29 walks back to the previous leap year
		}
	}
	if !models.ValidDate(y, it.month, it.day) {
		return models.MonthEnd(y, it.month)
	}
	return models.NewDate(y, it.month, it.day)
}

// recentMonth is the latest occurrence of month m that has started by today.
func recentMonth(today models.Date, m time.Month) Period {
	if m == today.Month {
		return Period{Start: models.MonthStart(today.Year, m), End: today}
	}
	y := today.Year
	if m > today.Month {
		y--
	}
	return monthPeriod(y, m)
}

func dayRange(year int, m time.Month, d1, d2 int) (Period, bool) {
	if !models.ValidDate(year, m, d1) || !models.ValidDate(year, m, d2) {
		return Period{}, false
	}
	return newPeriod(models.NewDate(year, m, d1), models.NewDate(year, m, d2)), true
}

func listYears(s string) []int {
	var out []int
	for _, y := range reListYear.FindAllString(s, -1) {
		out = append(out, atoi(y))
	}
	return out
}

var (
	reSinceLoose   = regexp.MustCompile(`\b(?:since|from|after)\s+(\d{4})[-/](\d{1,2})\b`)
	reYearMonth    = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})\b`)
	reMonthYearNum = regexp.MustCompile(`\b(\d{1,2})[-/](\d{4})\b`)
	reCompactDate  = regexp.MustCompile(`\b(\d{4})(\d{2})(\d{2})\b`)
)

// ParseSingleRange is the narrow fallback used when ParsePeriods finds
// nothing. It understands numeric month references ("2025-10", "10/2025"),
// compact dates ("20251031") and "since 2025-10". ok is false when none is found.
func (p *Parser) ParseSingleRange(text string) (models.Date, models.Date, bool) {
	text = stripExclusion(text)
	today := p.today()

	if m := reSinceLoose.FindStringSubmatch(text); m != nil {
		y, mon := atoi(m[1]), time.Month(atoi(m[2]))
		if models.ValidDate(y, mon, 1) {
			start := models.MonthStart(y, mon)
			if !start.After(today) {
				return start, today, true
			}
		}
	}

	var days []models.Date
	for _, m := range reCompactDate.FindAllStringSubmatch(text, -1) {
		y, mon, d := atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3])
		if models.ValidDate(y, mon, d) {
			days = append(days, models.NewDate(y, mon, d))
		}
	}
	switch len(days) {
	case 0:
	case 1:
		return days[0], days[0], true
	default:
		per := newPeriod(days[0], days[len(days)-1])
		return per.Start, per.End, true
	}

	if m := reYearMonth.FindStringSubmatch(text); m != nil {
		y, mon := atoi(m[1]), time.Month(atoi(m[2]))
		if models.ValidDate(y, mon, 1) {
			return models.MonthStart(y, mon), models.MonthEnd(y, mon), true
		}
	}
	if m := reMonthYearNum.FindStringSubmatch(text); m != nil {
		mon, y := time.Month(atoi(m[1])), atoi(m[2])
		if models.ValidDate(y, mon, 1) {
			return models.MonthStart(y, mon), models.MonthEnd(y, mon), true
		}
	}
	return models.Date{}, models.Date{}, false
}

// submatch is one regexp hit with its capture groups.
type submatch struct {
	span
	groups []string
}

func (m submatch) group(i int) string { return m.groups[i] }
func (m submatch) int(i int) int      { return atoi(m.groups[i]) }

func findAll(re *regexp.Regexp, text string) []submatch {
	var out []submatch
	for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
		groups := make([]string, len(idx)/2)
		for g := range groups {
			if idx[2*g] >= 0 {
				groups[g] = text[idx[2*g]:idx[2*g+1]]
			}
		}
		out = append(out, submatch{span: span{idx[0], idx[1]}, groups: groups})
	}
	return out
}

package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	monthAlt = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	dayAlt   = `(\d{1,2})(?:st|nd|rd|th)?`
	yearAlt  = `(\d{4})`
	rangeSep = `\s*(?:to|till|until|through|-)\s*`
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var (
	// 1-15 nov 2025, 1st to 15th of november, 2025
	reDayRangeDMY = regexp.MustCompile(`\b` + dayAlt + rangeSep + dayAlt + `\s+(?:of\s+)?` + monthAlt + `,?\s*` + yearAlt + `\b`)
	// nov 1-15 2025, november 1 to 15, 2025
	reDayRangeMDY = regexp.MustCompile(`\b` + monthAlt + `\s+` + dayAlt + rangeSep + dayAlt + `(?:,\s*|\s+)` + yearAlt + `\b`)
	// 14 nov 2023, 2024 and 2025
	reDayYearList = regexp.MustCompile(`\b` + dayAlt + `\s+(?:of\s+)?` + monthAlt + `,?\s*` + yearAlt + `((?:\s*(?:,|and|&|vs|versus)\s*\d{4}\b)+)`)
	// 31 oct 2025, 31st of october, 2025
	reDMY = regexp.MustCompile(`\b` + dayAlt + `\s+(?:of\s+)?` + monthAlt + `,?\s*` + yearAlt + `\b`)
	// oct 31 2025, october 31st, 2025
	reMDY = regexp.MustCompile(`\b` + monthAlt + `\s+` + dayAlt + `\b(?:,\s*|\s+)` + yearAlt + `\b`)
	// 2025-10-31
	reISO = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	// 31/10/2025, 31-10-2025, 31.10.2025 (day first)
	reNumericDMY = regexp.MustCompile(`\b(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\b`)
	// 14 nov, nov 14 (year resolved later)
	reDM = regexp.MustCompile(`\b` + dayAlt + `\s+(?:of\s+)?` + monthAlt + `\b`)
	reMD = regexp.MustCompile(`\b` + monthAlt + `\s+` + dayAlt + `\b`)
	// nov 2022, 2023 and 2024
	reMonthYearList = regexp.MustCompile(`\b` + monthAlt + `,?\s+` + yearAlt + `((?:\s*(?:,|and|&|vs|versus)\s*\d{4}\b)+)`)
	// nov 2024
	reMonthYear = regexp.MustCompile(`\b` + monthAlt + `,?\s+` + yearAlt + `\b`)
	reListYear  = regexp.MustCompile(`\d{4}`)
)

// monthOf maps any accepted month spelling to its number.
func monthOf(s string) (time.Month, bool) {
	if len(s) < 3 {
		return 0, false
	}
	m, ok := monthByPrefix[s[:3]]
	return m, ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// maskDates blanks every explicit date expression while keeping offsets
// stable, so numeric range scanners never read a date as a bucket range.
func maskDates(text string) string {
	for _, re := range []*regexp.Regexp{
		reDayRangeDMY, reDayRangeMDY, reDayYearList, reMonthYearList,
		reDMY, reMDY, reISO, reNumericDMY, reMonthYear, reDM, reMD,
	} {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			return strings.Repeat(" ", len(m))
		})
	}
	return text
}

// span is a half-open byte range of the scanned text.
type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

type claims []span

func (c claims) free(s span) bool {
	for _, o := range c {
		if o.overlaps(s) {
			return false
		}
	}
	return true
}

package query

import (
	"regexp"
	"strings"

	"EMSpark/internal/domain/models"
)

var (
	reExclusionKeyword = regexp.MustCompile(`\b(?:excluding|except|without|skip|ignore|not including|excludes?)\b`)
	// a clause runs until the query goes back to describing the period
	reClauseEnd = regexp.MustCompile(`\b(?:for|during|from|between|over|since)\s+(?:the\s+)?(?:today|yesterday|tomorrow|this|last|past|previous|prev|current|next|week|month|year|fy|\d|` + monthAlt + `)`)
	// except for sunday, excluding during weekends
	reClauseLead = regexp.MustCompile(`^\s*(?:for|during|on)\b`)

	reExclDate    = regexp.MustCompile(`\b` + dayAlt + `\s+(?:of\s+)?` + monthAlt + `(?:,?\s*` + yearAlt + `)?\b`)
	reExclMonth   = regexp.MustCompile(`\b` + monthAlt + `\b`)
	reWeekendWord = regexp.MustCompile(`\bweekends?\b|\bsat(?:urday)?s?\s+(?:and|&)\s+sun(?:day)?s?\b`)
	reWeekdayWord = regexp.MustCompile(`\bweekdays?\b|\bworking\s+days?\b|\bbusiness\s+days?\b`)
)

var weekdayByName = map[string]int{
	"monday": 0, "mon": 0, "mo": 0,
	"tuesday": 1, "tue": 1, "tues": 1, "tu": 1,
	"wednesday": 2, "wed": 2, "we": 2,
	"thursday": 3, "thu": 3, "thur": 3, "thurs": 3, "th": 3,
	"friday": 4, "fri": 4, "fr": 4,
	"saturday": 5, "sat": 5, "sa": 5,
	"sunday": 6, "sun": 6, "su": 6,
}

// exclusionBounds locates the exclusion clause: from the end of the first
// keyword to the next period connector or the end of the text.
func exclusionBounds(text string) (kw span, clause span, ok bool) {
	loc := reExclusionKeyword.FindStringIndex(text)
	if loc == nil {
		return span{}, span{}, false
	}
	start := loc[1]
	if lead := reClauseLead.FindStringIndex(text[start:]); lead != nil {
		start += lead[1]
	}
	end := len(text)
	if e := reClauseEnd.FindStringIndex(text[start:]); e != nil {
		end = start + e[0]
	}
	return span{loc[0], loc[1]}, span{loc[1], end}, true
}

// stripExclusion blanks the keyword and its clause, keeping byte offsets.
func stripExclusion(text string) string {
	kw, clause, ok := exclusionBounds(text)
	if !ok {
		return text
	}
	return text[:kw.start] + strings.Repeat(" ", clause.end-kw.start) + text[clause.end:]
}

// ParseExclusion builds the day filter named after an exclusion keyword.
// It returns nil when there is no keyword or the clause names nothing it
// recognises. Dates without a year take the current year.
func (p *Parser) ParseExclusion(text string) *models.Exclusion {
	_, cl, ok := exclusionBounds(text)
	if !ok {
		return nil
	}
	clause := text[cl.start:cl.end]
	year := p.today().Year

	var (
		dates    []models.Date
		months   []int
		weekdays []int
		used     claims
	)
	for _, m := range findAll(reExclDate, clause) {
		used = append(used, m.span)
		mon, _ := monthOf(m.group(2))
		y := year
		if m.group(3) != "" {
			y = m.int(3)
		}
		if models.ValidDate(y, mon, m.int(1)) {
			dates = append(dates, models.NewDate(y, mon, m.int(1)))
		}
	}
	for _, m := range findAll(reExclMonth, clause) {
		if !used.free(m.span) {
			continue
		}
		used = append(used, m.span)
		mon, _ := monthOf(m.group(1))
		months = append(months, int(mon))
	}
	for _, m := range findAll(reWeekendWord, clause) {
		used = append(used, m.span)
		weekdays = append(weekdays, 5, 6)
	}
	for _, m := range findAll(reWeekdayWord, clause) {
		used = append(used, m.span)
		weekdays = append(weekdays, 0, 1, 2, 3, 4)
	}

	// Whatever is left is read word by word against the weekday table.
	rest := []byte(clause)
	for _, s := range used {
		for i := s.start; i < s.end; i++ {
			rest[i] = ' '
		}
	}
	for _, tok := range strings.Fields(strings.ReplaceAll(string(rest), ",", " ")) {
		if wd, ok := weekdayByName[tok]; ok {
			weekdays = append(weekdays, wd)
			continue
		}
		if wd, ok := weekdayByName[strings.TrimSuffix(tok, "s")]; ok {
			weekdays = append(weekdays, wd)
		}
	}

	return models.NewExclusion(weekdays, dates, months, strings.TrimSpace(clause))
}

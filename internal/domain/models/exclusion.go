package models

import (
	"fmt"
	"sort"
)

var (
	weekdayShort = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	monthShort   = [13]string{"", "Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

const maxDescribedDates = 3

// Exclusion is a read-only day filter built from one query's trailing clause.
// A single instance is shared by every QuerySpec derived from that query.
type Exclusion struct {
	weekdays map[int]struct{}
	dates    map[Date]struct{}
	months   map[int]struct{}
	clause   string
}

// NewExclusion returns nil when no criterion is given. Out-of-range ordinals are dropped.
func NewExclusion(weekdays []int, dates []Date, months []int, clause string) *Exclusion {
	e := &Exclusion{
		weekdays: make(map[int]struct{}),
		dates:    make(map[Date]struct{}),
		months:   make(map[int]struct{}),
		clause:   clause,
	}
	for _, w := range weekdays {
		if w >= 0 && w <= 6 {
			e.weekdays[w] = struct{}{}
		}
	}
	for _, d := range dates {
		if !d.IsZero() {
			e.dates[d] = struct{}{}
		}
	}
	for _, m := range months {
		if m >= 1 && m <= 12 {
			e.months[m] = struct{}{}
		}
	}
	if len(e.weekdays) == 0 && len(e.dates) == 0 && len(e.months) == 0 {
		return nil
	}
	return e
}

// ShouldExclude is true when the day matches any excluded date, month or weekday.
func (e *Exclusion) ShouldExclude(d Date) bool {
	if e == nil {
		return false
	}
	if _, ok := e.dates[d]; ok {
		return true
	}
	if _, ok := e.months[int(d.Month)]; ok {
		return true
	}
	_, ok := e.weekdays[d.Weekday()]
	return ok
}

// Weekdays returns the excluded Monday=0 ordinals, ascending.
func (e *Exclusion) Weekdays() []int {
	if e == nil {
		return nil
	}
	return sortedKeys(e.weekdays)
}

// Months returns the excluded month numbers, ascending.
func (e *Exclusion) Months() []int {
	if e == nil {
		return nil
	}
	return sortedKeys(e.months)
}

// Dates returns the excluded days, ascending.
func (e *Exclusion) Dates() []Date {
	if e == nil {
		return nil
	}
	out := make([]Date, 0, len(e.dates))
	for d := range e.dates {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Clause is the raw text that followed the exclusion keyword.
func (e *Exclusion) Clause() string {
	if e == nil {
		return ""
	}
	return e.clause
}

// Describe renders short human labels, e.g. ["Weekends", "Feb", "25 Dec"].
func (e *Exclusion) Describe() []string {
	if e == nil {
		return nil
	}
	var labels []string

	days := e.Weekdays()
	switch {
	case equalInts(days, []int{5, 6}):
		labels = append(labels, "Weekends")
	case equalInts(days, []int{0, 1, 2, 3, 4}):
		labels = append(labels, "Weekdays")
	default:
		for _, d := range days {
			labels = append(labels, weekdayShort[d])
		}
	}

	for _, m := range e.Months() {
		labels = append(labels, monthShort[m])
	}

	dates := e.Dates()
	for i, d := range dates {
		if i == maxDescribedDates {
			labels = append(labels, fmt.Sprintf("+%d more", len(dates)-maxDescribedDates))
			break
		}
		labels = append(labels, d.Format("02 Jan"))
	}
	return labels
}

type exclusionJSON struct {
	Weekdays []int    `json:"excluded_weekdays,omitempty"`
	Dates    []Date   `json:"excluded_dates,omitempty"`
	Months   []int    `json:"excluded_months,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

func (e *Exclusion) toJSON() *exclusionJSON {
	if e == nil {
		return nil
	}
	return &exclusionJSON{
		Weekdays: e.Weekdays(),
		Dates:    e.Dates(),
		Months:   e.Months(),
		Labels:   e.Describe(),
	}
}

func (j *exclusionJSON) toExclusion() *Exclusion {
	if j == nil {
		return nil
	}
	return NewExclusion(j.Weekdays, j.Dates, j.Months, "")
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

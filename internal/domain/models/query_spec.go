package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSpec is wrapped by every QuerySpec invariant violation.
var ErrInvalidSpec = errors.New("invalid query spec")

// QuerySpec is one fully resolved, immutable data request.
// Use NewQuerySpec to build one and the With* methods to derive variants.
type QuerySpec struct {
	market      Market
	start       Date
	end         Date
	granularity Granularity
	buckets     []int
	stat        Stat
	exclusion   *Exclusion
	autoAdded   bool
}

// NewQuerySpec validates and normalizes the inputs. Buckets are copied,
// sorted and de-duplicated; they must fit the granularity's index range.
func NewQuerySpec(market Market, start, end Date, g Granularity, buckets []int, stat Stat, ex *Exclusion) (QuerySpec, error) {
	if _, ok := ParseMarket(string(market)); !ok {
		return QuerySpec{}, fmt.Errorf("%w: unknown market %q", ErrInvalidSpec, market)
	}
	if _, ok := ParseStat(string(stat)); !ok {
		return QuerySpec{}, fmt.Errorf("%w: unknown stat %q", ErrInvalidSpec, stat)
	}
	if !g.Valid() {
		return QuerySpec{}, fmt.Errorf("%w: unknown granularity %q", ErrInvalidSpec, g)
	}
	if start.IsZero() || end.IsZero() {
		return QuerySpec{}, fmt.Errorf("%w: missing date", ErrInvalidSpec)
	}
	if end.Before(start) {
		return QuerySpec{}, fmt.Errorf("%w: start %s after end %s", ErrInvalidSpec, start, end)
	}
	norm := NormalizeBuckets(buckets)
	if len(norm) == 0 {
		return QuerySpec{}, fmt.Errorf("%w: empty %s bucket set", ErrInvalidSpec, g)
	}
	if norm[0] < 1 || norm[len(norm)-1] > g.MaxBucket() {
		return QuerySpec{}, fmt.Errorf("%w: %s buckets must lie in [1,%d]", ErrInvalidSpec, g, g.MaxBucket())
	}
	return QuerySpec{
		market:      market,
		start:       start,
		end:         end,
		granularity: g,
		buckets:     norm,
		stat:        stat,
		exclusion:   ex,
	}, nil
}

// FullDayHours is the default selection: hour blocks 1..24.
func FullDayHours() []int { return BucketRange(1, 24) }

// BucketRange returns lo..hi inclusive, or nil when hi < lo.
func BucketRange(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// NormalizeBuckets returns a sorted copy without duplicates.
func NormalizeBuckets(in []int) []int {
	if len(in) == 0 {
		return nil
	}
	cp := append([]int(nil), in...)
	sort.Ints(cp)
	out := cp[:1]
	for _, v := range cp[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

func (s QuerySpec) Market() Market           { return s.market }
func (s QuerySpec) Start() Date              { return s.start }
func (s QuerySpec) End() Date                { return s.end }
func (s QuerySpec) Granularity() Granularity { return s.granularity }
func (s QuerySpec) Stat() Stat               { return s.stat }
func (s QuerySpec) Exclusion() *Exclusion    { return s.exclusion }
func (s QuerySpec) IsAutoAdded() bool        { return s.autoAdded }

// Hours returns a copy of the hour blocks, or nil for quarter specs.
func (s QuerySpec) Hours() []int {
	if s.granularity != GranularityHour {
		return nil
	}
	return append([]int(nil), s.buckets...)
}

// Slots returns a copy of the quarter slots, or nil for hour specs.
func (s QuerySpec) Slots() []int {
	if s.granularity != GranularityQuarter {
		return nil
	}
	return append([]int(nil), s.buckets...)
}

// Buckets returns a copy of whichever bucket set is populated.
func (s QuerySpec) Buckets() []int {
	return append([]int(nil), s.buckets...)
}

// BucketBounds returns the lowest and highest selected bucket.
func (s QuerySpec) BucketBounds() (int, int) {
	if len(s.buckets) == 0 {
		return 0, 0
	}
	return s.buckets[0], s.buckets[len(s.buckets)-1]
}

// HasBucket reports whether idx is selected.
func (s QuerySpec) HasBucket(idx int) bool {
	i := sort.SearchInts(s.buckets, idx)
	return i < len(s.buckets) && s.buckets[i] == idx
}

// Days is the inclusive length of the date range.
func (s QuerySpec) Days() int {
	return int(s.end.Time().Sub(s.start.Time()).Hours()/24) + 1
}

// WithDates returns a copy covering a new date range.
func (s QuerySpec) WithDates(start, end Date) (QuerySpec, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return QuerySpec{}, fmt.Errorf("%w: bad range %s..%s", ErrInvalidSpec, start, end)
	}
	out := s
	out.buckets = s.Buckets()
	out.start, out.end = start, end
	return out, nil
}

// WithMarket returns a copy targeting another market.
func (s QuerySpec) WithMarket(m Market) QuerySpec {
	out := s
	out.buckets = s.Buckets()
	out.market = m
	return out
}

// AutoAdded returns a copy flagged as synthesized by the system.
func (s QuerySpec) AutoAdded() QuerySpec {
	out := s
	out.buckets = s.Buckets()
	out.autoAdded = true
	return out
}

// Key identifies structurally identical specs. Exclusion and the
// auto-added flag are not part of it.
func (s QuerySpec) Key() string {
	var b strings.Builder
	b.WriteString(string(s.market))
	b.WriteByte('|')
	b.WriteString(s.start.String())
	b.WriteByte('|')
	b.WriteString(s.end.String())
	b.WriteByte('|')
	b.WriteString(string(s.granularity))
	b.WriteByte('|')
	for i, v := range s.buckets {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte('|')
	b.WriteString(string(s.stat))
	return b.String()
}

func (s QuerySpec) String() string {
	lo, hi := s.BucketBounds()
	return fmt.Sprintf("%s %s..%s %s[%d..%d,n=%d] %s",
		s.market, s.start, s.end, s.granularity, lo, hi, len(s.buckets), s.stat)
}

type querySpecJSON struct {
	Market      Market         `json:"market"`
	StartDate   Date           `json:"start_date"`
	EndDate     Date           `json:"end_date"`
	Granularity Granularity    `json:"granularity"`
	Hours       []int          `json:"hours,omitempty"`
	Slots       []int          `json:"slots,omitempty"`
	Stat        Stat           `json:"stat"`
	Exclusion   *exclusionJSON `json:"exclusion,omitempty"`
	AutoAdded   bool           `json:"auto_added,omitempty"`
}

func (s QuerySpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(querySpecJSON{
		Market:      s.market,
		StartDate:   s.start,
		EndDate:     s.end,
		Granularity: s.granularity,
		Hours:       s.Hours(),
		Slots:       s.Slots(),
		Stat:        s.stat,
		Exclusion:   s.exclusion.toJSON(),
		AutoAdded:   s.autoAdded,
	})
}

func (s *QuerySpec) UnmarshalJSON(b []byte) error {
	var raw querySpecJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	buckets := raw.Hours
	if raw.Granularity == GranularityQuarter {
		buckets = raw.Slots
	}
	spec, err := NewQuerySpec(raw.Market, raw.StartDate, raw.EndDate, raw.Granularity, buckets, raw.Stat, raw.Exclusion.toExclusion())
	if err != nil {
		return err
	}
	spec.autoAdded = raw.AutoAdded
	*s = spec
	return nil
}

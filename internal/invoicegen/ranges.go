package invoicegen

import (
	"sort"
	"time"
)

// dateRange is a half open service period [start, end).
type dateRange struct {
	start time.Time
	end   time.Time
}

func (r dateRange) empty() bool {
	return !r.end.After(r.start)
}

func (r dateRange) equal(o dateRange) bool {
	return r.start.Equal(o.start) && r.end.Equal(o.end)
}

func (r dateRange) overlaps(o dateRange) bool {
	return r.start.Before(o.end) && o.start.Before(r.end)
}

func (r dateRange) contains(o dateRange) bool {
	return !o.start.Before(r.start) && !o.end.After(r.end)
}

// normalize sorts ranges and merges the ones touching or overlapping.
func normalize(ranges []dateRange) []dateRange {
	var in []dateRange
	for _, r := range ranges {
		if !r.empty() {
			in = append(in, r)
		}
	}
	sort.Slice(in, func(i, j int) bool {
		return in[i].start.Before(in[j].start)
	})

	var out []dateRange
	for _, r := range in {
		if n := len(out); n > 0 && !r.start.After(out[n-1].end) {
			if r.end.After(out[n-1].end) {
				out[n-1].end = r.end
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// subtract returns the parts of ranges not covered by cuts.
func subtract(ranges, cuts []dateRange) []dateRange {
	out := normalize(ranges)
	for _, c := range normalize(cuts) {
		var next []dateRange
		for _, r := range out {
			if !r.overlaps(c) {
				next = append(next, r)
				continue
			}
			if r.start.Before(c.start) {
				next = append(next, dateRange{start: r.start, end: c.start})
			}
			if c.end.Before(r.end) {
				next = append(next, dateRange{start: c.end, end: r.end})
			}
		}
		out = next
	}
	return out
}

func sameRanges(a, b []dateRange) bool {
	a, b = normalize(a), normalize(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

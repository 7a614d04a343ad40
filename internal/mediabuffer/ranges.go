package mediabuffer

import (
	"fmt"
	"strings"
)

// TimeRange is a half-open interval [Start, End) in seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TimeRanges is an ordered set of disjoint, non-adjacent ranges.
type TimeRanges []TimeRange

// Len returns the number of ranges.
func (r TimeRanges) Len() int { return len(r) }

// End returns the end of the last range, or 0 when empty.
func (r TimeRanges) End() float64 {
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1].End
}

// Total returns the summed length of all ranges.
func (r TimeRanges) Total() float64 {
	var sum float64
	for _, tr := range r {
		sum += tr.End - tr.Start
	}
	return sum
}

// Contains reports whether t falls inside one of the ranges.
func (r TimeRanges) Contains(t float64) bool {
	for _, tr := range r {
		if t >= tr.Start && t < tr.End {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no memory with r.
func (r TimeRanges) Clone() TimeRanges {
	if r == nil {
		return nil
	}
	out := make(TimeRanges, len(r))
	copy(out, r)
	return out
}

// Add returns the union of r and [start, end). Empty inputs are ignored.
func (r TimeRanges) Add(start, end float64) TimeRanges {
	if end <= start {
		return r.Clone()
	}
	out := make(TimeRanges, 0, len(r)+1)
	i := 0
	for ; i < len(r) && r[i].End < start; i++ {
		out = append(out, r[i])
	}
	merged := TimeRange{Start: start, End: end}
	for ; i < len(r) && r[i].Start <= end; i++ {
		merged.Start = min(merged.Start, r[i].Start)
		merged.End = max(merged.End, r[i].End)
	}
	out = append(out, merged)
	return append(out, r[i:]...)
}

// Remove returns r minus [start, end).
func (r TimeRanges) Remove(start, end float64) TimeRanges {
	if end <= start {
		return r.Clone()
	}
	out := make(TimeRanges, 0, len(r)+1)
	for _, tr := range r {
		if tr.End <= start || tr.Start >= end {
			out = append(out, tr)
			continue
		}
		if tr.Start < start {
			out = append(out, TimeRange{Start: tr.Start, End: start})
		}
		if tr.End > end {
			out = append(out, TimeRange{Start: end, End: tr.End})
		}
	}
	return out
}

func (r TimeRanges) String() string {
	parts := make([]string, len(r))
	for i, tr := range r {
		parts[i] = fmt.Sprintf("[%g,%g)", tr.Start, tr.End)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

package recurrence

// Range matches every Step-th integer starting at Start.
//
// With Step == 1 both ends are inclusive. With Step > 1 only grid values
// strictly below End match, so End itself is excluded even when the grid
// lands on it. Existing schedules depend on this asymmetry.
type Range struct {
	Start int
	End   int
	Step  int
}

// NewRange returns a Range, substituting the defaults 0, 60 and 1 for zero
// start, end and step.
func NewRange(start, end, step int) Range {
	if end == 0 {
		end = 60
	}
	if step == 0 {
		step = 1
	}
	return Range{Start: start, End: end, Step: step}
}

// Contains reports whether v lies on the range.
func (r Range) Contains(v int) bool {
	step := r.Step
	if step <= 0 {
		step = 1
	}
	if step == 1 {
		return v >= r.Start && v <= r.End
	}
	if v < r.Start || v >= r.End {
		return false
	}
	return (v-r.Start)%step == 0
}

func (r Range) match(v int) bool { return r.Contains(v) }

// Ranges carry no calendar bound check.
func (r Range) valid(lo, hi int) bool { return true }

func (r Range) ceiling() (int, bool) { return r.End, true }

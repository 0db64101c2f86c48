package streaming

import (
	"fmt"
	"sort"
)

// BufferState tracks what the active session has handed to the sink.
// appended only grows, and every append must start exactly at appended.
type BufferState struct {
	appended int64
	ranges   []TimeRange
	position float64
}

// Appended returns the number of bytes accepted by the sink so far.
func (b *BufferState) Appended() int64 {
	return b.appended
}

// checkAppend validates that an append starting at offset keeps the byte
// stream contiguous.
func (b *BufferState) checkAppend(offset int64) error {
	if offset != b.appended {
		return fmt.Errorf("%w: got offset %d, expected %d", ErrInvalidAppendOrder, offset, b.appended)
	}
	return nil
}

// commitAppend records n bytes accepted at offset.
func (b *BufferState) commitAppend(offset int64, n int) error {
	if err := b.checkAppend(offset); err != nil {
		return err
	}
	b.appended += int64(n)
	return nil
}

// observe refreshes the time view from the sink.
func (b *BufferState) observe(ranges []TimeRange, position float64) {
	b.ranges = normalizeRanges(ranges)
	b.position = position
}

// contains reports whether t lies inside a buffered range. Both edges count
// as buffered.
func (b *BufferState) contains(t float64) bool {
	return rangesContain(b.ranges, t)
}

// ahead returns buffered seconds past the playback position.
func (b *BufferState) ahead() float64 {
	return bufferedAhead(b.ranges, b.position)
}

// end returns the end of the last buffered range.
func (b *BufferState) end() float64 {
	if len(b.ranges) == 0 {
		return 0
	}
	return b.ranges[len(b.ranges)-1].End
}

func rangesContain(ranges []TimeRange, t float64) bool {
	for _, r := range ranges {
		if t >= r.Start && t <= r.End {
			return true
		}
	}
	return false
}

func bufferedAhead(ranges []TimeRange, pos float64) float64 {
	for _, r := range ranges {
		if pos >= r.Start && pos <= r.End {
			return r.End - pos
		}
	}
	return 0
}

// normalizeRanges sorts ranges and merges overlapping or touching spans,
// dropping empty ones.
func normalizeRanges(in []TimeRange) []TimeRange {
	if len(in) == 0 {
		return nil
	}
	rs := make([]TimeRange, 0, len(in))
	for _, r := range in {
		if r.End > r.Start {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	out := rs[:0]
	for _, r := range rs {
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			if r.End > out[n-1].End {
				out[n-1].End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

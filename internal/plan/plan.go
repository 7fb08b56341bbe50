// Package plan splits a resource of known size into batches, and each batch
// into the byte-range segments fetched concurrently for it.
//
// Planning is pure: the same inputs always produce the same plan, so a batch
// sequence can be restarted by simply calling PlanBatches again.
package plan

import (
	"fmt"
	"iter"
)

// Batch is a contiguous slice of the resource processed as one unit.
type Batch struct {
	Index int
	Start int64
	Size  int64
	Final bool
}

// End returns the inclusive offset of the last byte in the batch.
func (b Batch) End() int64 {
	return b.Start + b.Size - 1
}

// Segment is a sub-range of a batch fetched by exactly one task. Start and
// End are absolute, inclusive offsets into the resource.
type Segment struct {
	Batch     int
	Index     int
	Start     int64
	End       int64
	OpenEnded bool // request as "bytes=Start-"
}

func (s Segment) Size() int64 {
	return s.End - s.Start + 1
}

func (s Segment) RangeHeader() string {
	if s.OpenEnded {
		return fmt.Sprintf("bytes=%d-", s.Start)
	}
	return fmt.Sprintf("bytes=%d-%d", s.Start, s.End)
}

// CountBatches returns how many batches PlanBatches yields for total and split.
func CountBatches(total, split int64) int {
	if total <= 0 || split <= 0 {
		return 0
	}
	n := total / split
	if total%split != 0 {
		n++
	}
	return int(n)
}

// PlanBatches lazily yields total/split full batches followed by one smaller
// batch holding the remainder, if any. Nothing is yielded for an empty
// resource or a non-positive split.
func PlanBatches(total, split int64) iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		if total <= 0 || split <= 0 {
			return
		}
		full := total / split
		remainder := total - full*split
		count := CountBatches(total, split)
		for i := int64(0); i < full; i++ {
			b := Batch{
				Index: int(i),
				Start: i * split,
				Size:  split,
				Final: int(i) == count-1,
			}
			if !yield(b) {
				return
			}
		}
		if remainder > 0 {
			yield(Batch{
				Index: int(full),
				Start: full * split,
				Size:  remainder,
				Final: true,
			})
		}
	}
}

// FanOut is the number of segments a batch of size is split into: the
// requested connections, clamped so that no segment is empty.
func FanOut(size int64, connections int) int {
	if size <= 0 || connections <= 0 {
		return 0
	}
	if int64(connections) > size {
		return int(size)
	}
	return connections
}

// PlanSegments splits b into FanOut(b.Size, connections) segments of
// b.Size/n bytes each, the last one absorbing the division remainder. The
// last segment of the final batch is open-ended.
func PlanSegments(b Batch, connections int) []Segment {
	n := FanOut(b.Size, connections)
	if n == 0 {
		return nil
	}
	step := b.Size / int64(n)
	segments := make([]Segment, n)
	for i := range n {
		rel := int64(i) * step
		relEnd := rel + step - 1
		if i == n-1 {
			relEnd = b.Size - 1
		}
		segments[i] = Segment{
			Batch: b.Index,
			Index: i,
			Start: b.Start + rel,
			End:   b.Start + relEnd,
		}
	}
	segments[n-1].OpenEnded = b.Final
	return segments
}

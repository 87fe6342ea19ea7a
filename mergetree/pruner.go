package mergetree

import (
	"stratadb/catalog"
)

// markRangesFromPKRange walks a part's sparse index and returns the
// coalesced cover of every mark the key condition may accept.
//
// The descent keeps a stack of disjoint candidate ranges with the
// leftmost on top. Each popped range is tested against the condition
// using its boundary index tuples; a surviving range either lands in
// the output (length one) or is split into coarse sub-ranges pushed
// right-to-left, so the output is produced in ascending order and gap
// coalescing only ever looks at the last output entry.
func (e *SelectExecutor) markRangesFromPKRange(part *catalog.Part, condition *KeyCondition) catalog.MarkRanges {
	var res catalog.MarkRanges

	marksCount := part.MarksCount
	if marksCount == 0 {
		return res
	}

	if condition.AlwaysTrue() {
		res = append(res, catalog.MarkRange{Begin: 0, End: marksCount})
		return res
	}

	rangesStack := []catalog.MarkRange{{Begin: 0, End: marksCount}}
	for len(rangesStack) > 0 {
		rng := rangesStack[len(rangesStack)-1]
		rangesStack = rangesStack[:len(rangesStack)-1]

		var mayBeTrue bool
		if rng.End == marksCount {
			mayBeTrue = condition.MayBeTrueAfter(part.IndexTuple(rng.Begin))
		} else {
			mayBeTrue = condition.MayBeTrueInRange(part.IndexTuple(rng.Begin), part.IndexTuple(rng.End))
		}

		if !mayBeTrue {
			continue
		}

		if rng.End == rng.Begin+1 {
			// A useful gap between adjacent marks: extend the last range
			// or start a new one.
			if len(res) == 0 || rng.Begin-res[len(res)-1].End > e.minMarksForSeek {
				res = append(res, rng)
			} else {
				res[len(res)-1].End = rng.End
			}
		} else {
			// Split the range and push the pieces right-to-left.
			step := (rng.End - rng.Begin - 1) / e.settings.CoarseIndexGranularity
			step++
			end := rng.End
			for ; end > rng.Begin+step; end -= step {
				rangesStack = append(rangesStack, catalog.MarkRange{Begin: end - step, End: end})
			}
			rangesStack = append(rangesStack, catalog.MarkRange{Begin: rng.Begin, End: end})
		}
	}

	return res
}

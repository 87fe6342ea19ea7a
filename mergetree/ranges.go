package mergetree

import (
	"stratadb/catalog"
)

// RangesInDataPart pairs a part with the pruned mark ranges to read
// from it.
type RangesInDataPart struct {
	Part   *catalog.Part
	Ranges catalog.MarkRanges
}

// RangesInDataParts is the planner's per-part read set.
type RangesInDataParts []RangesInDataPart

// SumMarks counts the marks selected across all parts.
func (parts RangesInDataParts) SumMarks() int {
	sum := 0
	for _, p := range parts {
		sum += catalog.MarksInRanges(p.Ranges)
	}
	return sum
}

// SumRanges counts the ranges selected across all parts.
func (parts RangesInDataParts) SumRanges() int {
	sum := 0
	for _, p := range parts {
		sum += len(p.Ranges)
	}
	return sum
}

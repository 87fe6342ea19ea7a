package mergetree

import (
	"fmt"
	"math/rand"

	"stratadb/catalog"
	"stratadb/columnar"
	"stratadb/core"
)

// spreadMarkRangesAmongStreams packs the pruned mark ranges into at
// most `threads` worker streams of roughly equal mark counts.
//
// Parts are shuffled (deterministically, from the query seed) and then
// consumed from the back of the list. Each worker takes whole parts
// while they fit and otherwise peels a prefix of marks off the last
// part, honoring two thresholds: a worker touching a part reads at
// least minMarksForConcurrentRead marks from it, and a part is never
// left with a residual smaller than that.
func (e *SelectExecutor) spreadMarkRangesAmongStreams(
	parts RangesInDataParts,
	threads int,
	columnNames []string,
	maxBlockSize int,
	useUncompressedCache bool,
	prewhereActions *core.ExpressionActions,
	prewhereColumn string,
	seed uint64,
) ([]core.BlockStream, error) {
	// Shuffle the parts to defeat adversarial ordering of equally-sized
	// parts.
	rng := rand.New(rand.NewSource(int64(seed)))
	rng.Shuffle(len(parts), func(i, j int) {
		parts[i], parts[j] = parts[j], parts[i]
	})

	// Count marks per part, with each part's ranges listed right-to-left
	// so the leftmost range can be popped from the back.
	sumMarksInParts := make([]int, len(parts))
	sumMarks := 0
	for i := range parts {
		parts[i].Ranges.Reverse()
		sumMarksInParts[i] = catalog.MarksInRanges(parts[i].Ranges)
		sumMarks += sumMarksInParts[i]
	}

	if sumMarks > e.maxMarksToUseCache {
		useUncompressedCache = false
	}

	var res []core.BlockStream

	if sumMarks == 0 {
		return res, nil
	}

	minMarksPerStream := (sumMarks-1)/threads + 1

	for i := 0; i < threads && len(parts) > 0; i++ {
		needMarks := minMarksPerStream
		var streams []core.BlockStream

		for needMarks > 0 && len(parts) > 0 {
			partIdx := len(parts) - 1
			part := &parts[partIdx]
			marksInPart := sumMarksInParts[partIdx]

			// Do not take too few marks from a part.
			if marksInPart >= e.minMarksForConcurrentRead && needMarks < e.minMarksForConcurrentRead {
				needMarks = e.minMarksForConcurrentRead
			}

			// Do not leave too few marks in a part.
			if marksInPart > needMarks && marksInPart-needMarks < e.minMarksForConcurrentRead {
				needMarks = marksInPart
			}

			if marksInPart <= needMarks {
				// Take the whole part; restore the range order first.
				part.Ranges.Reverse()

				streams = append(streams, e.newReader(columnar.ReaderOptions{
					Path:            part.Part.Path,
					MaxBlockSize:    maxBlockSize,
					Columns:         columnNames,
					Part:            part.Part,
					Ranges:          part.Ranges,
					Granularity:     e.settings.IndexGranularity,
					Cache:           e.streamCache(useUncompressedCache),
					PrewhereActions: prewhereActions,
					PrewhereColumn:  prewhereColumn,
				}))
				needMarks -= marksInPart
				parts = parts[:partIdx]
				sumMarksInParts = sumMarksInParts[:partIdx]
				continue
			}

			// Peel exactly needMarks off the back of the part.
			var rangesToGet catalog.MarkRanges
			for needMarks > 0 {
				if len(part.Ranges) == 0 {
					return nil, fmt.Errorf("%w: unexpected end of ranges while spreading marks among streams", ErrLogicalError)
				}
				rngIdx := len(part.Ranges) - 1
				r := &part.Ranges[rngIdx]
				marksInRange := r.Marks()

				marksToGet := marksInRange
				if needMarks < marksToGet {
					marksToGet = needMarks
				}
				rangesToGet = append(rangesToGet, catalog.MarkRange{Begin: r.Begin, End: r.Begin + marksToGet})
				r.Begin += marksToGet
				marksInPart -= marksToGet
				needMarks -= marksToGet
				if r.Begin == r.End {
					part.Ranges = part.Ranges[:rngIdx]
				}
			}
			sumMarksInParts[partIdx] = marksInPart

			streams = append(streams, e.newReader(columnar.ReaderOptions{
				Path:            part.Part.Path,
				MaxBlockSize:    maxBlockSize,
				Columns:         columnNames,
				Part:            part.Part,
				Ranges:          rangesToGet,
				Granularity:     e.settings.IndexGranularity,
				Cache:           e.streamCache(useUncompressedCache),
				PrewhereActions: prewhereActions,
				PrewhereColumn:  prewhereColumn,
			}))
		}

		if len(streams) == 1 {
			res = append(res, streams[0])
		} else if len(streams) > 1 {
			res = append(res, core.NewConcatStream(streams))
		}
	}

	if len(parts) > 0 {
		closeStreams(res)
		return nil, fmt.Errorf("%w: couldn't spread marks among streams", ErrLogicalError)
	}

	return res, nil
}

// spreadMarkRangesAmongStreamsFinal opens one stream per part over all
// its pruned ranges, reconstructs the primary-key tuple on each, and
// fans the streams into a collapsing merge. A single surviving stream
// needs no collapsing and only filters rows with positive sign.
func (e *SelectExecutor) spreadMarkRangesAmongStreamsFinal(
	parts RangesInDataParts,
	columnNames []string,
	maxBlockSize int,
	useUncompressedCache bool,
	prewhereActions *core.ExpressionActions,
	prewhereColumn string,
) ([]core.BlockStream, error) {
	sumMarks := parts.SumMarks()
	if sumMarks > e.maxMarksToUseCache {
		useUncompressedCache = false
	}

	signFilter := core.NewEqualsActions(e.table.SignColumn, int64(1))

	var toCollapse []core.BlockStream
	for i := range parts {
		part := &parts[i]

		source := e.newReader(columnar.ReaderOptions{
			Path:            part.Part.Path,
			MaxBlockSize:    maxBlockSize,
			Columns:         columnNames,
			Part:            part.Part,
			Ranges:          part.Ranges,
			Granularity:     e.settings.IndexGranularity,
			Cache:           e.streamCache(useUncompressedCache),
			PrewhereActions: prewhereActions,
			PrewhereColumn:  prewhereColumn,
		})

		toCollapse = append(toCollapse, core.NewExpressionStream(source, core.NewProjectionActions(e.table.PrimaryKey)))
	}

	var res []core.BlockStream
	if len(toCollapse) == 1 {
		filtered := core.NewFilterStream(core.NewExpressionStream(toCollapse[0], signFilter), signFilter.OutputColumn())
		res = append(res, filtered)
	} else if len(toCollapse) > 1 {
		res = append(res, core.NewCollapsingFinalStream(toCollapse, e.table.SortDescription(), e.table.SignColumn, maxBlockSize))
	}
	return res, nil
}

func (e *SelectExecutor) streamCache(useUncompressedCache bool) *core.UncompressedCache {
	if !useUncompressedCache {
		return nil
	}
	return e.cache
}

func closeStreams(streams []core.BlockStream) {
	for _, s := range streams {
		_ = s.Close()
	}
}

package mergetree

import (
	"fmt"

	"stratadb/catalog"
	"stratadb/core"
)

// samplingPlan is the outcome of translating a SAMPLE clause: the key
// condition has been tightened with `sampling_col <= limit`, and worker
// streams get wrapped with the same predicate as a row filter.
type samplingPlan struct {
	limit         uint64
	filterActions *core.ExpressionActions
	filterColumn  string
}

// buildSamplingPlan resolves a sample clause against the pruned part
// set. An absolute row count is converted to a fraction using a
// preliminary index scan with the un-sampled key condition; the
// fraction is then mapped onto the sampling column's unsigned domain.
// The key condition is tightened in place.
func (e *SelectExecutor) buildSamplingPlan(
	sample *core.SampleClause,
	keyCondition *KeyCondition,
	parts []*catalog.Part,
) (*samplingPlan, error) {
	tracer := core.GetTracer()

	var size float64
	if sample.IsFraction {
		size = sample.Fraction
	} else if sample.Rows > 0 {
		// Find out how many rows we would read without sampling.
		tracer.Debug(core.TraceComponentSampling, "Preliminary index scan with condition: "+keyCondition.String())
		totalMarks := 0
		for _, part := range parts {
			ranges := e.markRangesFromPKRange(part, keyCondition)
			totalMarks += catalog.MarksInRanges(ranges)
		}
		// Every granule counted as full; the bias only affects the
		// chosen fraction.
		totalCount := totalMarks * e.settings.IndexGranularity

		size = 1
		if totalCount > 0 {
			size = float64(sample.Rows) / float64(totalCount)
			if size > 1 {
				size = 1
			}
		}
		tracer.Debug(core.TraceComponentSampling, fmt.Sprintf("Selected relative sample size: %v", size))
	}

	if size <= 0 {
		return nil, fmt.Errorf("%w: sample size must be positive", ErrArgumentOutOfBound)
	}
	if size > 1 {
		size = 1
	}

	if e.table.SamplingColumn == "" {
		return nil, fmt.Errorf("%w: table %s has no sampling column", ErrUnsupportedSamplingColumn, e.table.Name)
	}
	columnType, ok := e.table.ColumnType(e.table.SamplingColumn)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, e.table.SamplingColumn)
	}
	if !columnType.IsUnsignedInteger() {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedSamplingColumn, e.table.SamplingColumn, columnType)
	}

	samplingColumnMax := columnType.MaxUnsigned()
	limit := samplingColumnMax
	if size < 1 {
		// Double-precision product, truncated. For the 64-bit width the
		// product can round up to the full domain; acceptable for
		// sampling.
		if product := size * float64(samplingColumnMax); product < float64(samplingColumnMax) {
			limit = uint64(product)
		}
	}

	// Tighten the key condition so the repeated index scan prunes more.
	if !keyCondition.AddCondition(e.table.SamplingColumn, RightBounded(limit, true)) {
		return nil, fmt.Errorf("%w: %s", ErrSamplingColumnNotInKey, e.table.SamplingColumn)
	}

	// Row-level filter: sampling_col <= limit.
	filter := core.NewLessOrEqualsActions(e.table.SamplingColumn, limit)

	return &samplingPlan{
		limit:         limit,
		filterActions: filter,
		filterColumn:  filter.OutputColumn(),
	}, nil
}

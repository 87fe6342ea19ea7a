package mergetree

import (
	"fmt"
	"hash/fnv"
	"sort"

	"stratadb/catalog"
	"stratadb/columnar"
	"stratadb/core"
)

// ReaderFactory builds a block stream over one part. The default opens
// the columnar block reader; tests substitute lightweight streams.
type ReaderFactory func(opts columnar.ReaderOptions) core.BlockStream

// SelectExecutor plans reads for one table: it decides which parts to
// open, which mark ranges of each to read, and how to spread the work
// across worker streams. The planner itself is single-threaded and
// performs no I/O; parallelism is the shape of its output.
type SelectExecutor struct {
	table   *Table
	catalog *catalog.Catalog
	cache   *core.UncompressedCache

	settings TableSettings

	// Mark-denominated thresholds derived from the row-denominated
	// settings at construction.
	minMarksForSeek           int
	minMarksForConcurrentRead int
	maxMarksToUseCache        int

	newReader ReaderFactory
}

// NewSelectExecutor creates a read planner over a table and its part
// catalog. cache may be nil when the deployment has no block cache.
func NewSelectExecutor(table *Table, cat *catalog.Catalog, cache *core.UncompressedCache) *SelectExecutor {
	g := table.Settings.IndexGranularity
	e := &SelectExecutor{
		table:                     table,
		catalog:                   cat,
		cache:                     cache,
		settings:                  table.Settings,
		minMarksForSeek:           ceilDiv(table.Settings.MinRowsForSeek, g),
		minMarksForConcurrentRead: ceilDiv(table.Settings.MinRowsForConcurrentRead, g),
		maxMarksToUseCache:        ceilDiv(table.Settings.MaxRowsToUseCache, g),
	}
	e.newReader = func(opts columnar.ReaderOptions) core.BlockStream {
		return columnar.NewBlockReader(opts)
	}
	return e
}

// Read plans a query and returns at most `threads` block streams.
// processedStage is set to StageFetchColumns: the streams deliver raw
// columns and all further processing happens upstream.
func (e *SelectExecutor) Read(
	columnNames []string,
	query *core.ParsedQuery,
	settings QuerySettings,
	processedStage *ProcessingStage,
	maxBlockSize int,
	threads int,
) ([]core.BlockStream, error) {
	tracer := core.GetTracer()

	if err := e.table.CheckColumns(columnNames); err != nil {
		return nil, err
	}
	*processedStage = StageFetchColumns

	if threads <= 0 {
		threads = 1
	}

	keyCondition := NewKeyCondition(query.Where, e.table.PrimaryKey)
	dateCondition := NewKeyCondition(query.Where, []string{e.table.DateColumn})

	snapshot := e.catalog.GetDataParts()
	defer snapshot.Release()

	// Select the parts in which data satisfying the date condition may
	// exist.
	parts := prunePartsByDate(snapshot.Parts, dateCondition)

	columnsToRead := uniqueSorted(columnNames)

	// Sampling.
	var sampling *samplingPlan
	if query.Sample != nil {
		var err error
		sampling, err = e.buildSamplingPlan(query.Sample, keyCondition, parts)
		if err != nil {
			return nil, err
		}
		columnsToRead = uniqueSorted(append(columnsToRead, sampling.filterActions.RequiredColumns()...))
	}

	tracer.Debug(core.TraceComponentPlanner, "Key condition: "+keyCondition.String())
	tracer.Debug(core.TraceComponentPlanner, "Date condition: "+dateCondition.String())

	// PREWHERE.
	var prewhereActions *core.ExpressionActions
	var prewhereColumn string
	if query.Prewhere != nil {
		prewhereActions = core.NewConditionActions(query.Prewhere)
		prewhereColumn = prewhereActions.OutputColumn()
	}

	// Find what range to read from each part.
	var partsWithRanges RangesInDataParts
	for _, part := range parts {
		ranges := e.markRangesFromPKRange(part, keyCondition)
		if len(ranges) > 0 {
			partsWithRanges = append(partsWithRanges, RangesInDataPart{Part: part, Ranges: ranges})
		}
	}

	tracer.Debug(core.TraceComponentPlanner, fmt.Sprintf(
		"Selected %d parts by date, %d parts by key, %d marks to read from %d ranges",
		len(parts), len(partsWithRanges), partsWithRanges.SumMarks(), partsWithRanges.SumRanges()))

	// Readers retain their part; the snapshot reference can drop once
	// the streams are built.
	var res []core.BlockStream
	var err error
	if query.Final {
		if e.table.SignColumn == "" {
			return nil, fmt.Errorf("table %s does not support FINAL: no sign column", e.table.Name)
		}
		// Add columns needed to reconstruct the primary key and the
		// sign.
		columnsToRead = uniqueSorted(append(append(columnsToRead, e.table.PrimaryKey...), e.table.SignColumn))

		res, err = e.spreadMarkRangesAmongStreamsFinal(
			partsWithRanges, columnsToRead, maxBlockSize,
			settings.UseUncompressedCache, prewhereActions, prewhereColumn)
	} else {
		res, err = e.spreadMarkRangesAmongStreams(
			partsWithRanges, threads, columnsToRead, maxBlockSize,
			settings.UseUncompressedCache, prewhereActions, prewhereColumn,
			querySeed(query))
	}
	if err != nil {
		return nil, err
	}

	if sampling != nil {
		for i, stream := range res {
			res[i] = core.NewFilterStream(
				core.NewExpressionStream(stream, sampling.filterActions),
				sampling.filterColumn)
		}
	}

	return res, nil
}

// querySeed derives the deterministic part-shuffle seed from the query
// text, keeping plans reproducible.
func querySeed(query *core.ParsedQuery) uint64 {
	h := fnv.New64a()
	h.Write([]byte(query.RawSQL))
	h.Write([]byte(query.TableName))
	return h.Sum64()
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// uniqueSorted copies, sorts and deduplicates a column name list.
func uniqueSorted(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	sort.Strings(out)
	dst := out[:0]
	for i, name := range out {
		if i == 0 || name != out[i-1] {
			dst = append(dst, name)
		}
	}
	return dst
}

package mergetree

// TableSettings are read once at table-handle creation.
type TableSettings struct {
	// IndexGranularity is the number of rows per granule.
	IndexGranularity int
	// MinRowsForSeek: gaps between pruned ranges of at most this many
	// rows (rounded up to whole marks) are coalesced instead of seeking.
	MinRowsForSeek int
	// MinRowsForConcurrentRead: a worker stream reads at least this many
	// rows from a part it touches.
	MinRowsForConcurrentRead int
	// MaxRowsToUseCache: queries reading more rows than this bypass the
	// uncompressed block cache.
	MaxRowsToUseCache int
	// CoarseIndexGranularity is the split fan-out of the index descent.
	CoarseIndexGranularity int
}

// DefaultTableSettings mirror the defaults of the storage engine.
func DefaultTableSettings() TableSettings {
	return TableSettings{
		IndexGranularity:         8192,
		MinRowsForSeek:           5 * 8192,
		MinRowsForConcurrentRead: 20 * 8192,
		MaxRowsToUseCache:        1024 * 1024,
		CoarseIndexGranularity:   8,
	}
}

// QuerySettings are per-query options recognized by Read.
type QuerySettings struct {
	// UseUncompressedCache requests the granule block cache. It is
	// force-disabled when the query reads more marks than the table's
	// cache threshold.
	UseUncompressedCache bool
}

// ProcessingStage reports how far the storage layer processed a query.
type ProcessingStage int

const (
	// StageFetchColumns: the storage returns raw column blocks; all
	// further processing happens upstream.
	StageFetchColumns ProcessingStage = iota
)

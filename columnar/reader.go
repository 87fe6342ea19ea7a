package columnar

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/parquet-go/parquet-go"
	"howett.net/ranger"

	"stratadb/catalog"
	"stratadb/core"
)

// DataFileName is the column data file within a part directory.
const DataFileName = "data.parquet"

// ReaderOptions configure a block reader over one part.
type ReaderOptions struct {
	// Path is the part directory: a local path or an http(s) URL.
	Path string
	// MaxBlockSize bounds the rows per emitted block.
	MaxBlockSize int
	// Columns is the projection, in emission order.
	Columns []string
	Part    *catalog.Part
	Ranges  catalog.MarkRanges
	// Granularity is the rows-per-granule constant of the table.
	Granularity int
	// Cache is the uncompressed granule cache; nil disables caching.
	Cache *core.UncompressedCache
	// PrewhereActions, when set, filter rows inside the reader before
	// blocks are emitted; PrewhereColumn names the filter result.
	PrewhereActions *core.ExpressionActions
	PrewhereColumn  string
}

// BlockReader streams blocks of projected columns for the mark ranges
// of one part. Opening the data file is deferred to the first Next
// call; the reader holds a part reference from construction to Close.
type BlockReader struct {
	opts ReaderOptions

	file    *parquet.File
	rows    *parquet.Reader
	closer  io.Closer
	deletes *roaring.Bitmap
	opened  bool

	rangeIdx int
	mark     int

	pending    *core.Block
	pendingPos int

	closeOnce sync.Once
}

// NewBlockReader creates a lazy block stream over one part.
func NewBlockReader(opts ReaderOptions) *BlockReader {
	if opts.MaxBlockSize <= 0 {
		opts.MaxBlockSize = 65536
	}
	opts.Part.Retain()
	r := &BlockReader{opts: opts}
	if len(opts.Ranges) > 0 {
		r.mark = opts.Ranges[0].Begin
	}
	return r
}

func (r *BlockReader) open() error {
	if r.opened {
		return nil
	}

	tracer := core.GetTracer()
	dataPath := joinPartPath(r.opts.Path, DataFileName)

	if isHTTPURL(r.opts.Path) {
		parsedURL, err := url.Parse(dataPath)
		if err != nil {
			return fmt.Errorf("failed to parse part URL: %w", err)
		}
		httpRanger := &ranger.HTTPRanger{URL: parsedURL}
		reader, err := ranger.NewReader(httpRanger)
		if err != nil {
			return fmt.Errorf("failed to create HTTP reader: %w", err)
		}
		length, err := reader.Length()
		if err != nil {
			return fmt.Errorf("failed to get HTTP content length: %w", err)
		}
		file, err := parquet.OpenFile(reader, length)
		if err != nil {
			return fmt.Errorf("failed to open remote part data: %w", err)
		}
		r.file = file
	} else {
		f, err := os.Open(dataPath)
		if err != nil {
			return fmt.Errorf("failed to open part data: %w", err)
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to stat part data: %w", err)
		}
		file, err := parquet.OpenFile(f, stat.Size())
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to open part data: %w", err)
		}
		r.file = file
		r.closer = f

		deletes, err := ReadDeletes(r.opts.Path)
		if err != nil {
			f.Close()
			return err
		}
		r.deletes = deletes
	}

	r.rows = parquet.NewReader(r.file)
	r.opened = true

	tracer.Debug(core.TraceComponentReader, "Opened part data", core.TraceContext(
		"part", r.opts.Part.Name,
		"ranges", len(r.opts.Ranges),
		"columns", len(r.opts.Columns)))
	return nil
}

// Next returns the next block, or (nil, nil) when the ranges are
// exhausted.
func (r *BlockReader) Next() (*core.Block, error) {
	for {
		if r.pending != nil {
			block := r.slicePending()
			if block != nil {
				return block, nil
			}
		}

		granule, err := r.nextGranule()
		if err != nil {
			return nil, err
		}
		if granule == nil {
			return nil, nil
		}
		if granule.NumRows() == 0 {
			continue
		}
		r.pending = granule
		r.pendingPos = 0
	}
}

// slicePending cuts up to MaxBlockSize rows off the pending granule.
func (r *BlockReader) slicePending() *core.Block {
	total := r.pending.NumRows()
	if r.pendingPos >= total {
		r.pending = nil
		return nil
	}
	end := r.pendingPos + r.opts.MaxBlockSize
	if end > total {
		end = total
	}
	out := core.NewBlock(nil)
	for _, col := range r.pending.Columns {
		out.Columns = append(out.Columns, core.Column{Name: col.Name, Data: col.Data[r.pendingPos:end]})
	}
	r.pendingPos = end
	return out
}

// nextGranule reads the rows of the next mark, consulting the cache
// and applying deletes and PREWHERE.
func (r *BlockReader) nextGranule() (*core.Block, error) {
	for {
		if r.rangeIdx >= len(r.opts.Ranges) {
			return nil, nil
		}
		rng := r.opts.Ranges[r.rangeIdx]
		if r.mark >= rng.End {
			r.rangeIdx++
			if r.rangeIdx < len(r.opts.Ranges) {
				r.mark = r.opts.Ranges[r.rangeIdx].Begin
			}
			continue
		}

		mark := r.mark
		r.mark++

		block, err := r.readGranule(mark)
		if err != nil {
			return nil, err
		}
		if block == nil {
			continue
		}

		if r.opts.PrewhereActions != nil {
			// The block may be shared with the cache.
			block = block.ShallowCopy()
			if err := r.opts.PrewhereActions.Execute(block); err != nil {
				return nil, err
			}
			keep, err := block.ColumnData(r.opts.PrewhereColumn)
			if err != nil {
				return nil, err
			}
			filter := make([]core.Value, len(keep))
			copy(filter, keep)
			if err := block.FilterRows(filter); err != nil {
				return nil, err
			}
			block.RemoveColumn(r.opts.PrewhereColumn)
		}
		return block, nil
	}
}

// readGranule decodes the rows of one mark, going through the cache
// when one is attached.
func (r *BlockReader) readGranule(mark int) (*core.Block, error) {
	cacheKey := ""
	if r.opts.Cache != nil {
		cacheKey = core.GranuleKey(r.opts.Part.Name+"/"+strings.Join(r.opts.Columns, ","), mark)
		if block, ok := r.opts.Cache.Get(cacheKey); ok {
			return block, nil
		}
	}

	if err := r.open(); err != nil {
		return nil, err
	}

	rowBegin := int64(mark) * int64(r.opts.Granularity)
	rowEnd := rowBegin + int64(r.opts.Granularity)
	if total := int64(r.opts.Part.RowCount); rowEnd > total {
		rowEnd = total
	}
	if rowBegin >= rowEnd {
		return nil, nil
	}

	if err := r.rows.SeekToRow(rowBegin); err != nil {
		return nil, fmt.Errorf("failed to seek to row %d: %w", rowBegin, err)
	}

	n := int(rowEnd - rowBegin)
	raw := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		rowData := make(map[string]any)
		if err := r.rows.Read(&rowData); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read row %d: %w", int(rowBegin)+i, err)
		}
		raw = append(raw, rowData)
	}

	block := core.NewBlock(r.opts.Columns)
	for i, rowData := range raw {
		if r.deletes != nil && r.deletes.Contains(uint32(rowBegin)+uint32(i)) {
			continue
		}
		for ci, name := range r.opts.Columns {
			v, ok := rowData[name]
			if !ok {
				return nil, fmt.Errorf("column %q missing from part %s", name, r.opts.Part.Name)
			}
			block.Columns[ci].Data = append(block.Columns[ci].Data, normalizeValue(v))
		}
	}

	if r.opts.Cache != nil {
		r.opts.Cache.Put(cacheKey, block)
	}
	return block, nil
}

// Close releases the data file and the part reference.
func (r *BlockReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.rows != nil {
			err = r.rows.Close()
		}
		if r.closer != nil {
			if cerr := r.closer.Close(); err == nil {
				err = cerr
			}
		}
		r.opts.Part.Release()
	})
	return err
}

// normalizeValue maps parquet-decoded values onto the planner's value
// model.
func normalizeValue(v any) core.Value {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint32:
		return uint64(x)
	case uint:
		return uint64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	default:
		return x
	}
}

func isHTTPURL(path string) bool {
	u, err := url.Parse(path)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func joinPartPath(base, name string) string {
	if isHTTPURL(base) {
		return strings.TrimRight(base, "/") + "/" + name
	}
	return filepath.Join(base, name)
}

package columnar

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/parquet-go/parquet-go"

	"stratadb/catalog"
	"stratadb/core"
)

// ColumnSpec declares one column of a part being written.
type ColumnSpec struct {
	Name string
	Type core.ValueType
}

// PartSpec describes a part to materialize on disk. Rows must already
// be sorted by the key columns; the sparse index is cut from them every
// Granularity rows.
type PartSpec struct {
	Name        string
	Dir         string
	LeftDate    uint64
	RightDate   uint64
	KeyColumns  []string
	Granularity int
	Columns     []ColumnSpec
	// Rows is row-major data, one value per column per row.
	Rows [][]core.Value
	// DeletedRows are absolute row numbers masked out at read time.
	DeletedRows []uint32
}

// WritePart materializes a part directory (data.parquet, primary.idx
// and optionally deletes.bitmap) and returns its catalog entry.
func WritePart(spec PartSpec) (*catalog.Part, error) {
	if spec.Granularity <= 0 {
		return nil, fmt.Errorf("part %s: granularity must be positive", spec.Name)
	}
	if err := os.MkdirAll(spec.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create part directory: %w", err)
	}

	colIndex := make(map[string]int, len(spec.Columns))
	group := parquet.Group{}
	for i, col := range spec.Columns {
		colIndex[col.Name] = i
		group[col.Name] = leafNode(col.Type)
	}
	schema := parquet.NewSchema(spec.Name, group)

	f, err := os.Create(filepath.Join(spec.Dir, DataFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to create part data: %w", err)
	}
	writer := parquet.NewWriter(f, schema)
	for _, row := range spec.Rows {
		rowData := make(map[string]any, len(spec.Columns))
		for i, col := range spec.Columns {
			rowData[col.Name] = writableValue(col.Type, row[i])
		}
		if err := writer.Write(rowData); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to finish part data: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	// Cut the sparse index: the key tuple of the first row of every
	// granule.
	keySize := len(spec.KeyColumns)
	marksCount := (len(spec.Rows) + spec.Granularity - 1) / spec.Granularity
	index := make([]core.Value, 0, marksCount*keySize)
	for mark := 0; mark < marksCount; mark++ {
		row := spec.Rows[mark*spec.Granularity]
		for _, keyCol := range spec.KeyColumns {
			ci, ok := colIndex[keyCol]
			if !ok {
				return nil, fmt.Errorf("key column %q not among part columns", keyCol)
			}
			index = append(index, row[ci])
		}
	}
	if err := catalog.WriteIndex(spec.Dir, keySize, index); err != nil {
		return nil, err
	}

	if len(spec.DeletedRows) > 0 {
		bitmap := roaring.BitmapOf(spec.DeletedRows...)
		if err := WriteDeletes(spec.Dir, bitmap); err != nil {
			return nil, err
		}
	}

	return &catalog.Part{
		Name:       spec.Name,
		Path:       spec.Dir,
		LeftDate:   spec.LeftDate,
		RightDate:  spec.RightDate,
		RowCount:   uint64(len(spec.Rows)),
		KeySize:    keySize,
		MarksCount: marksCount,
		Index:      index,
	}, nil
}

// LoadPart reads a part directory written by WritePart back into a
// catalog entry.
func LoadPart(name, dir string, leftDate, rightDate uint64) (*catalog.Part, error) {
	keySize, index, err := catalog.ReadIndex(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, DataFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open part data: %w", err)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	file, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open part data: %w", err)
	}

	part := &catalog.Part{
		Name:       name,
		Path:       dir,
		LeftDate:   leftDate,
		RightDate:  rightDate,
		RowCount:   uint64(file.NumRows()),
		KeySize:    keySize,
		MarksCount: len(index) / keySize,
		Index:      index,
	}
	if err := part.Validate(); err != nil {
		return nil, err
	}
	return part, nil
}

func leafNode(t core.ValueType) parquet.Node {
	switch t {
	case core.TypeUInt8, core.TypeUInt16, core.TypeUInt32:
		return parquet.Uint(32)
	case core.TypeUInt64, core.TypeDate:
		return parquet.Uint(64)
	case core.TypeInt64:
		return parquet.Int(64)
	case core.TypeFloat64:
		return parquet.Leaf(parquet.DoubleType)
	default:
		return parquet.String()
	}
}

// writableValue coerces a planner value onto the concrete type the
// parquet schema expects.
func writableValue(t core.ValueType, v core.Value) any {
	switch t {
	case core.TypeUInt8, core.TypeUInt16, core.TypeUInt32:
		u, _ := core.AsUInt64(v)
		return uint32(u)
	case core.TypeUInt64, core.TypeDate:
		u, _ := core.AsUInt64(v)
		return u
	case core.TypeInt64:
		switch x := v.(type) {
		case int64:
			return x
		default:
			u, _ := core.AsUInt64(v)
			return int64(u)
		}
	case core.TypeFloat64:
		f, _ := core.AsFloat64(v)
		return f
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
}

package core

import "fmt"

// Column is a named column of values within a block.
type Column struct {
	Name string
	Data []Value
}

// Block is a batch of rows represented column-wise. All columns have the
// same length. Blocks are the unit flowing between the reader and the
// stream combinators.
type Block struct {
	Columns []Column
}

// NewBlock creates an empty block with the given column names.
func NewBlock(names []string) *Block {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name}
	}
	return &Block{Columns: cols}
}

// NumRows returns the number of rows in the block.
func (b *Block) NumRows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return len(b.Columns[0].Data)
}

// NumColumns returns the number of columns in the block.
func (b *Block) NumColumns() int {
	return len(b.Columns)
}

// ColumnIndex returns the position of a named column, or -1.
func (b *Block) ColumnIndex(name string) int {
	for i := range b.Columns {
		if b.Columns[i].Name == name {
			return i
		}
	}
	return -1
}

// ColumnData returns the data of a named column.
func (b *Block) ColumnData(name string) ([]Value, error) {
	if i := b.ColumnIndex(name); i >= 0 {
		return b.Columns[i].Data, nil
	}
	return nil, fmt.Errorf("column %q not found in block", name)
}

// AppendColumn adds a column to the block. The data length must match
// the block's row count when the block is non-empty.
func (b *Block) AppendColumn(name string, data []Value) error {
	if len(b.Columns) > 0 && len(data) != b.NumRows() {
		return fmt.Errorf("column %q length %d does not match block rows %d", name, len(data), b.NumRows())
	}
	b.Columns = append(b.Columns, Column{Name: name, Data: data})
	return nil
}

// RemoveColumn drops a named column if present.
func (b *Block) RemoveColumn(name string) {
	for i := range b.Columns {
		if b.Columns[i].Name == name {
			b.Columns = append(b.Columns[:i], b.Columns[i+1:]...)
			return
		}
	}
}

// FilterRows keeps only the rows at which keep is non-zero. keep must
// have the block's row count.
func (b *Block) FilterRows(keep []Value) error {
	if len(keep) != b.NumRows() {
		return fmt.Errorf("filter length %d does not match block rows %d", len(keep), b.NumRows())
	}
	// Fresh slices: emitted blocks may share backing arrays with cached
	// granules.
	for ci := range b.Columns {
		src := b.Columns[ci].Data
		dst := make([]Value, 0, len(src))
		for ri, v := range keep {
			u, _ := AsUInt64(v)
			if u != 0 {
				dst = append(dst, src[ri])
			}
		}
		b.Columns[ci].Data = dst
	}
	return nil
}

// ShallowCopy returns a new block header over the same column data.
// Mutating the copy's column set leaves the original intact; FilterRows
// on the copy allocates fresh data.
func (b *Block) ShallowCopy() *Block {
	cols := make([]Column, len(b.Columns))
	copy(cols, b.Columns)
	return &Block{Columns: cols}
}

// BlockStream is a lazy stream of blocks. Next returns (nil, nil) after
// the last block. Close releases underlying resources and is safe to
// call more than once.
type BlockStream interface {
	Next() (*Block, error)
	Close() error
}

package core

import (
	"container/heap"
	"fmt"
)

// BlocksStream serves a fixed slice of blocks. Used by tests and as the
// trivial stream.
type BlocksStream struct {
	blocks []*Block
	pos    int
}

// NewBlocksStream creates a stream over pre-built blocks.
func NewBlocksStream(blocks ...*Block) *BlocksStream {
	return &BlocksStream{blocks: blocks}
}

func (s *BlocksStream) Next() (*Block, error) {
	if s.pos >= len(s.blocks) {
		return nil, nil
	}
	b := s.blocks[s.pos]
	s.pos++
	return b, nil
}

func (s *BlocksStream) Close() error { return nil }

// ConcatStream reads its inputs one after another.
type ConcatStream struct {
	streams []BlockStream
	current int
}

// NewConcatStream concatenates several streams into one.
func NewConcatStream(streams []BlockStream) *ConcatStream {
	return &ConcatStream{streams: streams}
}

func (s *ConcatStream) Next() (*Block, error) {
	for s.current < len(s.streams) {
		block, err := s.streams[s.current].Next()
		if err != nil {
			return nil, err
		}
		if block != nil {
			return block, nil
		}
		s.current++
	}
	return nil, nil
}

func (s *ConcatStream) Close() error {
	var first error
	for _, in := range s.streams {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ExpressionStream applies expression actions to every block.
type ExpressionStream struct {
	input   BlockStream
	actions *ExpressionActions
}

// NewExpressionStream wraps a stream with an expression program.
func NewExpressionStream(input BlockStream, actions *ExpressionActions) *ExpressionStream {
	return &ExpressionStream{input: input, actions: actions}
}

func (s *ExpressionStream) Next() (*Block, error) {
	block, err := s.input.Next()
	if err != nil || block == nil {
		return nil, err
	}
	if err := s.actions.Execute(block); err != nil {
		return nil, err
	}
	return block, nil
}

func (s *ExpressionStream) Close() error { return s.input.Close() }

// FilterStream drops rows at which the filter column is zero and removes
// the filter column from the emitted blocks. Blocks that filter to empty
// are skipped.
type FilterStream struct {
	input  BlockStream
	column string
}

// NewFilterStream wraps a stream with a filter on a UInt8 column.
func NewFilterStream(input BlockStream, column string) *FilterStream {
	return &FilterStream{input: input, column: column}
}

func (s *FilterStream) Next() (*Block, error) {
	for {
		block, err := s.input.Next()
		if err != nil || block == nil {
			return nil, err
		}
		keep, err := block.ColumnData(s.column)
		if err != nil {
			return nil, err
		}
		filter := make([]Value, len(keep))
		copy(filter, keep)
		if err := block.FilterRows(filter); err != nil {
			return nil, err
		}
		block.RemoveColumn(s.column)
		if block.NumRows() > 0 {
			return block, nil
		}
	}
}

func (s *FilterStream) Close() error { return s.input.Close() }

// SortColumnDescription names one column of a sort order.
type SortColumnDescription struct {
	Column    string
	Direction int // 1 ascending, -1 descending
}

// SortDescription is an ordered list of sort columns.
type SortDescription []SortColumnDescription

// CollapsingFinalStream merges several streams sorted by the same sort
// description and collapses pairs of rows that share a full sort key and
// carry opposite signs. A surviving row is one whose sign was not
// cancelled within its key group; for each group the stream emits the
// last positive row when positives outnumber negatives, nothing when
// they balance, and the first negative row otherwise.
type CollapsingFinalStream struct {
	inputs      []BlockStream
	sortDesc    SortDescription
	signColumn  string
	maxRows     int
	queue       mergeHeap
	names       []string
	initialized bool
	done        bool

	// Pending collapse group carried across Next calls.
	groupKey      []Value
	lastPositive  []Value
	firstNegative []Value
	positives     int
	negatives     int
}

// NewCollapsingFinalStream builds the collapsing merge over sorted
// inputs. maxRows bounds the size of emitted blocks.
func NewCollapsingFinalStream(inputs []BlockStream, sortDesc SortDescription, signColumn string, maxRows int) *CollapsingFinalStream {
	if maxRows <= 0 {
		maxRows = 65536
	}
	return &CollapsingFinalStream{
		inputs:     inputs,
		sortDesc:   sortDesc,
		signColumn: signColumn,
		maxRows:    maxRows,
	}
}

type mergeCursor struct {
	stream BlockStream
	block  *Block
	row    int
	// Position of the input among the merged streams; ties on the sort
	// key resolve in input order so later streams supersede earlier
	// ones.
	order int
	// Resolved positions of the sort columns and the sign column within
	// the current block.
	sortIdx []int
	signIdx int
}

func (c *mergeCursor) advance() (bool, error) {
	c.row++
	if c.block != nil && c.row < c.block.NumRows() {
		return true, nil
	}
	return c.fetch()
}

func (c *mergeCursor) fetch() (bool, error) {
	for {
		block, err := c.stream.Next()
		if err != nil {
			return false, err
		}
		if block == nil {
			c.block = nil
			return false, nil
		}
		if block.NumRows() == 0 {
			continue
		}
		c.block = block
		c.row = 0
		return true, nil
	}
}

func (c *mergeCursor) resolve(sortDesc SortDescription, signColumn string) error {
	c.sortIdx = make([]int, len(sortDesc))
	for i, sc := range sortDesc {
		idx := c.block.ColumnIndex(sc.Column)
		if idx < 0 {
			return fmt.Errorf("sort column %q missing from merged block", sc.Column)
		}
		c.sortIdx[i] = idx
	}
	c.signIdx = c.block.ColumnIndex(signColumn)
	if c.signIdx < 0 {
		return fmt.Errorf("sign column %q missing from merged block", signColumn)
	}
	return nil
}

func (c *mergeCursor) key() []Value {
	key := make([]Value, len(c.sortIdx))
	for i, idx := range c.sortIdx {
		key[i] = c.block.Columns[idx].Data[c.row]
	}
	return key
}

func (c *mergeCursor) sign() int64 {
	v := c.block.Columns[c.signIdx].Data[c.row]
	if i, ok := v.(int64); ok {
		return i
	}
	if u, ok := AsUInt64(v); ok {
		return int64(u)
	}
	return 0
}

type mergeHeap struct {
	cursors  []*mergeCursor
	sortDesc SortDescription
}

func (h *mergeHeap) Len() int { return len(h.cursors) }

func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	for k, sc := range h.sortDesc {
		cmp := CompareValues(a.block.Columns[a.sortIdx[k]].Data[a.row], b.block.Columns[b.sortIdx[k]].Data[b.row])
		if cmp != 0 {
			if sc.Direction < 0 {
				return cmp > 0
			}
			return cmp < 0
		}
	}
	return a.order < b.order
}

func (h *mergeHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *mergeHeap) Push(x interface{}) { h.cursors = append(h.cursors, x.(*mergeCursor)) }

func (h *mergeHeap) Pop() interface{} {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	h.cursors = old[:n-1]
	return c
}

func (s *CollapsingFinalStream) init() error {
	s.queue.sortDesc = s.sortDesc
	for i, in := range s.inputs {
		cur := &mergeCursor{stream: in, order: i}
		ok, err := cur.fetch()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := cur.resolve(s.sortDesc, s.signColumn); err != nil {
			return err
		}
		s.queue.cursors = append(s.queue.cursors, cur)
	}
	heap.Init(&s.queue)
	if len(s.queue.cursors) > 0 {
		for _, col := range s.queue.cursors[0].block.Columns {
			s.names = append(s.names, col.Name)
		}
	}
	s.initialized = true
	return nil
}

func (s *CollapsingFinalStream) Next() (*Block, error) {
	if s.done {
		return nil, nil
	}
	if !s.initialized {
		if err := s.init(); err != nil {
			return nil, err
		}
	}
	if s.queue.Len() == 0 && s.groupKey == nil {
		s.done = true
		return nil, nil
	}

	out := NewBlock(s.names)

	flush := func() {
		switch {
		case s.positives > s.negatives:
			appendRowValues(out, s.lastPositive)
		case s.negatives > s.positives:
			appendRowValues(out, s.firstNegative)
		}
		s.groupKey = nil
		s.lastPositive = nil
		s.firstNegative = nil
		s.positives, s.negatives = 0, 0
	}

	for s.queue.Len() > 0 && out.NumRows() < s.maxRows {
		cur := s.queue.cursors[0]
		key := cur.key()

		if s.groupKey != nil && compareTuples(key, s.groupKey) != 0 {
			flush()
			if out.NumRows() >= s.maxRows {
				break
			}
		}
		if s.groupKey == nil {
			s.groupKey = key
		}

		row := rowValuesByName(cur.block, cur.row, s.names)
		if cur.sign() >= 0 {
			s.positives++
			s.lastPositive = row
		} else {
			s.negatives++
			if s.firstNegative == nil {
				s.firstNegative = row
			}
		}

		ok, err := cur.advance()
		if err != nil {
			return nil, err
		}
		if ok {
			if cur.row == 0 {
				// New block, column layout may differ.
				if err := cur.resolve(s.sortDesc, s.signColumn); err != nil {
					return nil, err
				}
			}
			heap.Fix(&s.queue, 0)
		} else {
			heap.Pop(&s.queue)
		}
	}

	if s.queue.Len() == 0 {
		flush()
		s.done = true
	}
	if out.NumRows() == 0 && s.done {
		return nil, nil
	}
	return out, nil
}

func (s *CollapsingFinalStream) Close() error {
	var first error
	for _, in := range s.inputs {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func rowValuesByName(block *Block, row int, names []string) []Value {
	vals := make([]Value, len(names))
	for i, name := range names {
		if idx := block.ColumnIndex(name); idx >= 0 {
			vals[i] = block.Columns[idx].Data[row]
		}
	}
	return vals
}

func appendRowValues(block *Block, vals []Value) {
	if vals == nil {
		return
	}
	for i := range block.Columns {
		block.Columns[i].Data = append(block.Columns[i].Data, vals[i])
	}
}

func compareTuples(a, b []Value) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if cmp := CompareValues(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

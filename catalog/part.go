package catalog

import (
	"errors"
	"fmt"
	"sync/atomic"

	"stratadb/core"
)

// Errors
var (
	ErrCorruptIndex = errors.New("sparse index length is not a multiple of key size")
	ErrBadDateRange = errors.New("part left date exceeds right date")
)

// Part is an immutable, fully-sorted, date-partitioned chunk of rows.
// The sparse index holds one primary-key tuple per granule, flat, read
// by stride KeySize. Parts are shared between the catalog and any live
// query streams; Retain/Release track the observers.
type Part struct {
	Name      string
	Path      string // part directory; local path or http(s) URL
	LeftDate  uint64 // inclusive, days
	RightDate uint64 // inclusive, days
	RowCount  uint64

	KeySize    int
	MarksCount int
	Index      []core.Value // MarksCount × KeySize, non-decreasing tuples

	refs int64
}

// Validate checks the part invariants.
func (p *Part) Validate() error {
	if p.LeftDate > p.RightDate {
		return fmt.Errorf("%w: part %s [%d, %d]", ErrBadDateRange, p.Name, p.LeftDate, p.RightDate)
	}
	if p.KeySize <= 0 {
		return fmt.Errorf("part %s has key size %d", p.Name, p.KeySize)
	}
	if len(p.Index)%p.KeySize != 0 {
		return fmt.Errorf("%w: part %s, %d values, key size %d", ErrCorruptIndex, p.Name, len(p.Index), p.KeySize)
	}
	if len(p.Index)/p.KeySize != p.MarksCount {
		return fmt.Errorf("%w: part %s, %d tuples, %d marks", ErrCorruptIndex, p.Name, len(p.Index)/p.KeySize, p.MarksCount)
	}
	if p.RowCount > 0 && p.MarksCount < 1 {
		return fmt.Errorf("part %s has %d rows but no marks", p.Name, p.RowCount)
	}
	return nil
}

// IndexTuple returns the key tuple at a mark, as a subslice of the flat
// index.
func (p *Part) IndexTuple(mark int) []core.Value {
	begin := mark * p.KeySize
	return p.Index[begin : begin+p.KeySize]
}

// Retain registers one more observer of the part.
func (p *Part) Retain() {
	atomic.AddInt64(&p.refs, 1)
}

// Release drops one observer.
func (p *Part) Release() {
	atomic.AddInt64(&p.refs, -1)
}

// RefCount returns the current observer count.
func (p *Part) RefCount() int64 {
	return atomic.LoadInt64(&p.refs)
}

func (p *Part) String() string {
	return fmt.Sprintf("Part{%s, dates=[%d,%d], rows=%d, marks=%d}", p.Name, p.LeftDate, p.RightDate, p.RowCount, p.MarksCount)
}

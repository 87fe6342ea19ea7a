package mergetree

import (
	"fmt"

	"stratadb/core"
)

// ColumnDefinition is one column of a table schema.
type ColumnDefinition struct {
	Name string
	Type core.ValueType
}

// Table describes one date-partitioned, primary-key-sorted table.
type Table struct {
	Name    string
	Columns []ColumnDefinition
	// PrimaryKey is the ordered list of key columns; the sparse index
	// holds one tuple of these per granule.
	PrimaryKey []string
	// DateColumn is the designated partitioning date column.
	DateColumn string
	// SamplingColumn is the unsigned integer key column SAMPLE queries
	// cut on. Empty when the table does not support sampling.
	SamplingColumn string
	// SignColumn is the collapsing sign column used by FINAL queries.
	SignColumn string

	Settings TableSettings
}

// ColumnType returns the declared type of a column.
func (t *Table) ColumnType(name string) (core.ValueType, bool) {
	for _, col := range t.Columns {
		if col.Name == name {
			return col.Type, true
		}
	}
	return 0, false
}

// HasColumn reports whether the schema declares the column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnType(name)
	return ok
}

// CheckColumns validates a projection against the schema.
func (t *Table) CheckColumns(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: empty column list", ErrUnknownColumn)
	}
	for _, name := range names {
		if !t.HasColumn(name) {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
	}
	return nil
}

// SortDescription returns the table's primary-key sort order.
func (t *Table) SortDescription() core.SortDescription {
	desc := make(core.SortDescription, len(t.PrimaryKey))
	for i, col := range t.PrimaryKey {
		desc[i] = core.SortColumnDescription{Column: col, Direction: 1}
	}
	return desc
}

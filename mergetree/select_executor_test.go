package mergetree

import (
	"errors"
	"path/filepath"
	"testing"

	"stratadb/catalog"
	"stratadb/columnar"
	"stratadb/core"
)

// visitsTable is the schema used by the end-to-end planner tests.
func visitsTable() *Table {
	return &Table{
		Name: "visits",
		Columns: []ColumnDefinition{
			{Name: "id", Type: core.TypeUInt64},
			{Name: "date", Type: core.TypeDate},
			{Name: "visits", Type: core.TypeUInt64},
			{Name: "sign", Type: core.TypeInt64},
		},
		PrimaryKey: []string{"id"},
		DateColumn: "date",
		SignColumn: "sign",
		Settings: TableSettings{
			IndexGranularity:         4,
			MinRowsForSeek:           0,
			MinRowsForConcurrentRead: 4,
			MaxRowsToUseCache:        1 << 20,
			CoarseIndexGranularity:   2,
		},
	}
}

var visitsColumns = []columnar.ColumnSpec{
	{Name: "id", Type: core.TypeUInt64},
	{Name: "date", Type: core.TypeDate},
	{Name: "visits", Type: core.TypeUInt64},
	{Name: "sign", Type: core.TypeInt64},
}

// writeVisitsPart materializes a part with ids [firstID, firstID+rows)
// and a fixed date range.
func writeVisitsPart(t *testing.T, dir, name string, firstID, rows int, leftDate, rightDate uint64) *catalog.Part {
	t.Helper()
	data := make([][]core.Value, rows)
	for i := 0; i < rows; i++ {
		id := uint64(firstID + i)
		data[i] = []core.Value{id, leftDate + uint64(i)%(rightDate-leftDate+1), id * 10, int64(1)}
	}
	part, err := columnar.WritePart(columnar.PartSpec{
		Name:        name,
		Dir:         filepath.Join(dir, name),
		LeftDate:    leftDate,
		RightDate:   rightDate,
		KeyColumns:  []string{"id"},
		Granularity: 4,
		Columns:     visitsColumns,
		Rows:        data,
	})
	if err != nil {
		t.Fatal(err)
	}
	return part
}

// drainStreams reads every stream to completion and returns the values
// of one column across all of them.
func drainStreams(t *testing.T, streams []core.BlockStream, column string) []uint64 {
	t.Helper()
	var out []uint64
	for _, stream := range streams {
		for {
			block, err := stream.Next()
			if err != nil {
				t.Fatal(err)
			}
			if block == nil {
				break
			}
			data, err := block.ColumnData(column)
			if err != nil {
				t.Fatal(err)
			}
			for _, v := range data {
				u, ok := core.AsUInt64(v)
				if !ok {
					t.Fatalf("non-integer value %v in column %s", v, column)
				}
				out = append(out, u)
			}
		}
		if err := stream.Close(); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func newVisitsExecutor(t *testing.T, parts ...*catalog.Part) (*SelectExecutor, *catalog.Catalog) {
	t.Helper()
	cat := catalog.NewCatalog()
	for _, part := range parts {
		if err := cat.AddPart(part); err != nil {
			t.Fatal(err)
		}
	}
	return NewSelectExecutor(visitsTable(), cat, nil), cat
}

func TestReadAllRows(t *testing.T) {
	dir := t.TempDir()
	jan := writeVisitsPart(t, dir, "jan", 0, 16, 100, 130)
	feb := writeVisitsPart(t, dir, "feb", 16, 16, 131, 158)
	e, _ := newVisitsExecutor(t, jan, feb)

	query := &core.ParsedQuery{Type: core.SELECT, TableName: "visits", Columns: []string{"id"}}
	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 2)
	if err != nil {
		t.Fatal(err)
	}
	if stage != StageFetchColumns {
		t.Errorf("stage = %v, want StageFetchColumns", stage)
	}
	if len(streams) > 2 {
		t.Errorf("%d streams exceed thread count", len(streams))
	}

	ids := drainStreams(t, streams, "id")
	if len(ids) != 32 {
		t.Fatalf("read %d rows, want 32", len(ids))
	}
	seen := make(map[uint64]bool)
	for _, id := range ids {
		if seen[id] {
			t.Errorf("id %d read twice", id)
		}
		seen[id] = true
	}
}

func TestReadKeyPruning(t *testing.T) {
	dir := t.TempDir()
	jan := writeVisitsPart(t, dir, "jan", 0, 16, 100, 130)
	feb := writeVisitsPart(t, dir, "feb", 16, 16, 131, 158)
	e, _ := newVisitsExecutor(t, jan, feb)

	parser := core.NewSQLParser()
	query, err := parser.Parse("SELECT id FROM visits WHERE id >= 24")
	if err != nil {
		t.Fatal(err)
	}

	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 2)
	if err != nil {
		t.Fatal(err)
	}
	ids := drainStreams(t, streams, "id")

	// Granule-aligned superset containing every id >= 24.
	for want := uint64(24); want < 32; want++ {
		found := false
		for _, id := range ids {
			if id == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("id %d missing from pruned read", want)
		}
	}
	// Granules [0,4], [4,8] and [8,12] of jan are provably below 24;
	// jan's last granule survives because its upper bound is open-ended.
	for _, id := range ids {
		if id < 12 {
			t.Errorf("id %d should have been pruned", id)
		}
	}
}

func TestReadDatePruning(t *testing.T) {
	dir := t.TempDir()
	jan := writeVisitsPart(t, dir, "jan", 0, 16, 100, 130)
	feb := writeVisitsPart(t, dir, "feb", 16, 16, 131, 158)
	e, _ := newVisitsExecutor(t, jan, feb)

	parser := core.NewSQLParser()
	query, err := parser.Parse("SELECT id FROM visits WHERE date <= 120")
	if err != nil {
		t.Fatal(err)
	}

	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 2)
	if err != nil {
		t.Fatal(err)
	}
	ids := drainStreams(t, streams, "id")

	// The date condition prunes feb entirely; jan survives whole since
	// the date column is not part of the key.
	if len(ids) != 16 {
		t.Fatalf("read %d rows, want 16 (jan only)", len(ids))
	}
	for _, id := range ids {
		if id >= 16 {
			t.Errorf("id %d belongs to the pruned feb part", id)
		}
	}
}

func TestReadEmptyCatalog(t *testing.T) {
	e, _ := newVisitsExecutor(t)

	query := &core.ParsedQuery{Type: core.SELECT, TableName: "visits", Columns: []string{"id"}}
	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 0 {
		t.Errorf("expected no streams, got %d", len(streams))
	}
}

func TestReadUnknownColumn(t *testing.T) {
	e, _ := newVisitsExecutor(t)

	query := &core.ParsedQuery{Type: core.SELECT, TableName: "visits", Columns: []string{"nope"}}
	var stage ProcessingStage
	_, err := e.Read([]string{"nope"}, query, QuerySettings{}, &stage, 1024, 1)
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("got %v, want ErrUnknownColumn", err)
	}
}

func TestReadPrewhere(t *testing.T) {
	dir := t.TempDir()
	jan := writeVisitsPart(t, dir, "jan", 0, 16, 100, 130)
	e, _ := newVisitsExecutor(t, jan)

	query := &core.ParsedQuery{
		Type:      core.SELECT,
		TableName: "visits",
		Columns:   []string{"id", "visits"},
		Prewhere:  &core.WhereCondition{Column: "visits", Operator: ">=", Value: int64(100)},
	}
	var stage ProcessingStage
	streams, err := e.Read([]string{"id", "visits"}, query, QuerySettings{}, &stage, 1024, 1)
	if err != nil {
		t.Fatal(err)
	}
	ids := drainStreams(t, streams, "id")

	// visits = id*10, so the filter keeps ids >= 10.
	if len(ids) != 6 {
		t.Fatalf("read %d rows, want 6", len(ids))
	}
	for _, id := range ids {
		if id < 10 {
			t.Errorf("id %d should have been dropped by PREWHERE", id)
		}
	}
}

func TestReadFinalCollapsing(t *testing.T) {
	dir := t.TempDir()

	rows1 := [][]core.Value{
		{uint64(1), uint64(100), uint64(10), int64(1)},
		{uint64(2), uint64(101), uint64(20), int64(1)},
		{uint64(3), uint64(102), uint64(30), int64(1)},
		{uint64(4), uint64(103), uint64(40), int64(1)},
	}
	part1, err := columnar.WritePart(columnar.PartSpec{
		Name: "base", Dir: filepath.Join(dir, "base"),
		LeftDate: 100, RightDate: 110,
		KeyColumns: []string{"id"}, Granularity: 4,
		Columns: visitsColumns, Rows: rows1,
	})
	if err != nil {
		t.Fatal(err)
	}

	// A later part cancels id 2 and adds id 5.
	rows2 := [][]core.Value{
		{uint64(2), uint64(101), uint64(20), int64(-1)},
		{uint64(5), uint64(104), uint64(50), int64(1)},
	}
	part2, err := columnar.WritePart(columnar.PartSpec{
		Name: "delta", Dir: filepath.Join(dir, "delta"),
		LeftDate: 100, RightDate: 110,
		KeyColumns: []string{"id"}, Granularity: 4,
		Columns: visitsColumns, Rows: rows2,
	})
	if err != nil {
		t.Fatal(err)
	}

	e, _ := newVisitsExecutor(t, part1, part2)

	query := &core.ParsedQuery{Type: core.SELECT, TableName: "visits", Columns: []string{"id"}, Final: true}
	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(streams) != 1 {
		t.Fatalf("FINAL must produce one stream, got %d", len(streams))
	}

	ids := drainStreams(t, streams, "id")
	want := map[uint64]bool{1: true, 3: true, 4: true, 5: true}
	if len(ids) != len(want) {
		t.Fatalf("collapsed to %v, want ids 1,3,4,5", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %d after collapse", id)
		}
	}
}

func TestReadFinalSinglePart(t *testing.T) {
	dir := t.TempDir()

	rows := [][]core.Value{
		{uint64(1), uint64(100), uint64(10), int64(1)},
		{uint64(2), uint64(101), uint64(20), int64(-1)},
		{uint64(3), uint64(102), uint64(30), int64(1)},
	}
	part, err := columnar.WritePart(columnar.PartSpec{
		Name: "only", Dir: filepath.Join(dir, "only"),
		LeftDate: 100, RightDate: 110,
		KeyColumns: []string{"id"}, Granularity: 4,
		Columns: visitsColumns, Rows: rows,
	})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := newVisitsExecutor(t, part)

	query := &core.ParsedQuery{Type: core.SELECT, TableName: "visits", Columns: []string{"id"}, Final: true}
	var stage ProcessingStage
	streams, err := e.Read([]string{"id"}, query, QuerySettings{}, &stage, 1024, 4)
	if err != nil {
		t.Fatal(err)
	}

	// One part: no collapsing, just a positive-sign filter.
	ids := drainStreams(t, streams, "id")
	want := map[uint64]bool{1: true, 3: true}
	if len(ids) != len(want) {
		t.Fatalf("got ids %v, want 1 and 3", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %d", id)
		}
	}
}

func TestReadSampling(t *testing.T) {
	dir := t.TempDir()

	// Key on the sampling column itself: 32 rows, hash = i*8.
	table := &Table{
		Name: "hits",
		Columns: []ColumnDefinition{
			{Name: "hash", Type: core.TypeUInt8},
			{Name: "date", Type: core.TypeDate},
		},
		PrimaryKey:     []string{"hash"},
		DateColumn:     "date",
		SamplingColumn: "hash",
		Settings: TableSettings{
			IndexGranularity:         4,
			MinRowsForSeek:           0,
			MinRowsForConcurrentRead: 4,
			MaxRowsToUseCache:        1 << 20,
			CoarseIndexGranularity:   2,
		},
	}
	rows := make([][]core.Value, 32)
	for i := range rows {
		rows[i] = []core.Value{uint64(i * 8), uint64(100 + i)}
	}
	part, err := columnar.WritePart(columnar.PartSpec{
		Name: "p1", Dir: filepath.Join(dir, "p1"),
		LeftDate: 100, RightDate: 131,
		KeyColumns: []string{"hash"}, Granularity: 4,
		Columns: []columnar.ColumnSpec{
			{Name: "hash", Type: core.TypeUInt8},
			{Name: "date", Type: core.TypeDate},
		},
		Rows: rows,
	})
	if err != nil {
		t.Fatal(err)
	}

	cat := catalog.NewCatalog()
	if err := cat.AddPart(part); err != nil {
		t.Fatal(err)
	}
	e := NewSelectExecutor(table, cat, nil)

	parser := core.NewSQLParser()
	query, err := parser.Parse("SELECT hash FROM hits TABLESAMPLE BERNOULLI (50)")
	if err != nil {
		t.Fatal(err)
	}
	if query.Sample == nil || !query.Sample.IsFraction {
		t.Fatalf("expected fractional sample clause, got %+v", query.Sample)
	}

	var stage ProcessingStage
	streams, err := e.Read([]string{"hash"}, query, QuerySettings{}, &stage, 1024, 2)
	if err != nil {
		t.Fatal(err)
	}
	hashes := drainStreams(t, streams, "hash")

	// limit = floor(0.5 * 255) = 127: rows with hash 0..120 survive.
	if len(hashes) != 16 {
		t.Fatalf("sampled %d rows, want 16", len(hashes))
	}
	for _, h := range hashes {
		if h > 127 {
			t.Errorf("hash %d exceeds the sampling limit", h)
		}
	}
}

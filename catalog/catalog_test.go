package catalog

import (
	"errors"
	"testing"

	"stratadb/core"
)

func testPart(name string, left, right uint64, keys ...uint64) *Part {
	index := make([]core.Value, len(keys))
	for i, k := range keys {
		index[i] = k
	}
	return &Part{
		Name:       name,
		LeftDate:   left,
		RightDate:  right,
		RowCount:   uint64(len(keys)),
		KeySize:    1,
		MarksCount: len(keys),
		Index:      index,
	}
}

func TestPartValidate(t *testing.T) {
	if err := testPart("ok", 10, 20, 1, 2, 3).Validate(); err != nil {
		t.Errorf("valid part rejected: %v", err)
	}

	bad := testPart("dates", 20, 10, 1)
	if err := bad.Validate(); !errors.Is(err, ErrBadDateRange) {
		t.Errorf("got %v, want ErrBadDateRange", err)
	}

	corrupt := testPart("corrupt", 1, 2, 1, 2)
	corrupt.MarksCount = 3
	if err := corrupt.Validate(); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("got %v, want ErrCorruptIndex", err)
	}

	multi := testPart("stride", 1, 2, 1, 2, 3)
	multi.KeySize = 2
	if err := multi.Validate(); !errors.Is(err, ErrCorruptIndex) {
		t.Errorf("index not divisible by key size: got %v", err)
	}
}

func TestPartIndexTuple(t *testing.T) {
	part := &Part{
		Name:       "p",
		KeySize:    2,
		MarksCount: 2,
		Index:      []core.Value{uint64(1), uint64(2), uint64(3), uint64(4)},
	}
	tuple := part.IndexTuple(1)
	if len(tuple) != 2 || tuple[0] != uint64(3) || tuple[1] != uint64(4) {
		t.Errorf("tuple = %v", tuple)
	}
}

func TestCatalogSnapshotIsolation(t *testing.T) {
	cat := NewCatalog()
	a := testPart("a", 1, 2, 1)
	b := testPart("b", 3, 4, 1)
	if err := cat.AddPart(a); err != nil {
		t.Fatal(err)
	}
	if err := cat.AddPart(b); err != nil {
		t.Fatal(err)
	}

	snap := cat.GetDataParts()
	if len(snap.Parts) != 2 {
		t.Fatalf("snapshot has %d parts", len(snap.Parts))
	}

	// Later catalog mutations do not affect the snapshot.
	cat.RemovePart("a")
	if cat.PartCount() != 1 {
		t.Errorf("catalog still holds %d parts", cat.PartCount())
	}
	if len(snap.Parts) != 2 {
		t.Error("snapshot must be immune to catalog mutation")
	}

	// The removed part stays referenced until the snapshot releases it.
	if a.RefCount() == 0 {
		t.Error("part removed from catalog must stay alive for the snapshot")
	}
	snap.Release()
	if a.RefCount() != 0 {
		t.Errorf("released part still has %d refs", a.RefCount())
	}

	// Double release is a no-op.
	snap.Release()
	if a.RefCount() != 0 {
		t.Error("double release must not underflow")
	}
}

func TestCatalogDuplicatePart(t *testing.T) {
	cat := NewCatalog()
	if err := cat.AddPart(testPart("a", 1, 2, 1)); err != nil {
		t.Fatal(err)
	}
	if err := cat.AddPart(testPart("a", 1, 2, 1)); err == nil {
		t.Error("duplicate part registration must fail")
	}
}

func TestCatalogSnapshotSorted(t *testing.T) {
	cat := NewCatalog()
	for _, name := range []string{"c", "a", "b"} {
		if err := cat.AddPart(testPart(name, 1, 2, 1)); err != nil {
			t.Fatal(err)
		}
	}
	snap := cat.GetDataParts()
	defer snap.Release()
	for i, want := range []string{"a", "b", "c"} {
		if snap.Parts[i].Name != want {
			t.Errorf("snapshot[%d] = %s, want %s", i, snap.Parts[i].Name, want)
		}
	}
}

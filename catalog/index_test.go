package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"stratadb/core"
)

func TestIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()

	index := []core.Value{
		uint64(1), "alpha",
		uint64(200), "beta",
		uint64(4000000000000), "gamma",
	}
	if err := WriteIndex(dir, 2, index); err != nil {
		t.Fatal(err)
	}

	keySize, got, err := ReadIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	if keySize != 2 {
		t.Errorf("keySize = %d, want 2", keySize)
	}
	if len(got) != len(index) {
		t.Fatalf("read %d values, want %d", len(got), len(index))
	}
	for i := range index {
		if core.CompareValues(got[i], index[i]) != 0 {
			t.Errorf("value %d: got %v, want %v", i, got[i], index[i])
		}
	}
}

func TestIndexSignedAndFloat(t *testing.T) {
	dir := t.TempDir()

	index := []core.Value{int64(-5), float64(2.25), int64(17), float64(-0.5)}
	if err := WriteIndex(dir, 2, index); err != nil {
		t.Fatal(err)
	}
	_, got, err := ReadIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != int64(-5) || got[1] != float64(2.25) || got[2] != int64(17) || got[3] != float64(-0.5) {
		t.Errorf("got %v", got)
	}
}

func TestIndexRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFileName), []byte("not snappy"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := ReadIndex(dir); err == nil {
		t.Error("garbage index file must fail to load")
	}
}

func TestIndexMissingFile(t *testing.T) {
	if _, _, err := ReadIndex(t.TempDir()); err == nil {
		t.Error("missing index file must fail to load")
	}
}

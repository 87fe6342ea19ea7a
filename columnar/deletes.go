package columnar

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
)

// DeletesFileName is the optional per-part row deletion bitmap.
const DeletesFileName = "deletes.bitmap"

// WriteDeletes stores a deletion bitmap in the part directory.
func WriteDeletes(dir string, bitmap *roaring.Bitmap) error {
	buf := new(bytes.Buffer)
	if _, err := bitmap.WriteTo(buf); err != nil {
		return fmt.Errorf("failed to serialize deletion bitmap: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, DeletesFileName), buf.Bytes(), 0644)
}

// ReadDeletes loads the deletion bitmap of a part. A part without one
// returns nil.
func ReadDeletes(dir string) (*roaring.Bitmap, error) {
	data, err := os.ReadFile(filepath.Join(dir, DeletesFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read deletion bitmap: %w", err)
	}
	bitmap := roaring.New()
	if err := bitmap.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to deserialize deletion bitmap: %w", err)
	}
	return bitmap, nil
}

package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/snappy"

	"stratadb/core"
)

// IndexFileName is the sparse primary index file within a part directory.
const IndexFileName = "primary.idx"

const indexMagic = 0x53545249 // "STRI"

// Errors
var (
	ErrInvalidIndexMagic = errors.New("invalid index file magic")
	ErrInvalidIndexValue = errors.New("invalid value tag in index file")
)

// Value tags in the index encoding
const (
	tagUInt64 byte = iota + 1
	tagInt64
	tagFloat64
	tagString
)

// WriteIndex serializes a flat sparse index to the part directory,
// snappy-compressed.
func WriteIndex(dir string, keySize int, index []core.Value) error {
	var buf bytes.Buffer

	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], indexMagic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(keySize))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(index)))
	buf.Write(header)

	scratch := make([]byte, binary.MaxVarintLen64)
	for _, v := range index {
		switch x := v.(type) {
		case uint8:
			writeUint(&buf, scratch, uint64(x))
		case uint16:
			writeUint(&buf, scratch, uint64(x))
		case uint32:
			writeUint(&buf, scratch, uint64(x))
		case uint64:
			writeUint(&buf, scratch, x)
		case int64:
			buf.WriteByte(tagInt64)
			binary.LittleEndian.PutUint64(scratch[:8], uint64(x))
			buf.Write(scratch[:8])
		case float64:
			buf.WriteByte(tagFloat64)
			binary.LittleEndian.PutUint64(scratch[:8], math.Float64bits(x))
			buf.Write(scratch[:8])
		case string:
			buf.WriteByte(tagString)
			n := binary.PutUvarint(scratch, uint64(len(x)))
			buf.Write(scratch[:n])
			buf.WriteString(x)
		default:
			return fmt.Errorf("unsupported index value type %T", v)
		}
	}

	compressed := snappy.Encode(nil, buf.Bytes())
	return os.WriteFile(filepath.Join(dir, IndexFileName), compressed, 0644)
}

// ReadIndex loads a sparse index written by WriteIndex. It returns the
// key size and the flat value array.
func ReadIndex(dir string) (int, []core.Value, error) {
	compressed, err := os.ReadFile(filepath.Join(dir, IndexFileName))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read index file: %w", err)
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to decompress index file: %w", err)
	}
	if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != indexMagic {
		return 0, nil, ErrInvalidIndexMagic
	}
	keySize := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	index := make([]core.Value, 0, count)
	pos := 12
	for i := 0; i < count; i++ {
		if pos >= len(data) {
			return 0, nil, fmt.Errorf("truncated index file at value %d", i)
		}
		tag := data[pos]
		pos++
		switch tag {
		case tagUInt64:
			u, n := binary.Uvarint(data[pos:])
			if n <= 0 {
				return 0, nil, fmt.Errorf("truncated varint at value %d", i)
			}
			pos += n
			index = append(index, u)
		case tagInt64:
			if pos+8 > len(data) {
				return 0, nil, fmt.Errorf("truncated index file at value %d", i)
			}
			index = append(index, int64(binary.LittleEndian.Uint64(data[pos:pos+8])))
			pos += 8
		case tagFloat64:
			if pos+8 > len(data) {
				return 0, nil, fmt.Errorf("truncated index file at value %d", i)
			}
			index = append(index, math.Float64frombits(binary.LittleEndian.Uint64(data[pos:pos+8])))
			pos += 8
		case tagString:
			l, n := binary.Uvarint(data[pos:])
			if n <= 0 || pos+n+int(l) > len(data) {
				return 0, nil, fmt.Errorf("truncated string at value %d", i)
			}
			pos += n
			index = append(index, string(data[pos:pos+int(l)]))
			pos += int(l)
		default:
			return 0, nil, fmt.Errorf("%w: tag %d", ErrInvalidIndexValue, tag)
		}
	}
	return keySize, index, nil
}

func writeUint(buf *bytes.Buffer, scratch []byte, v uint64) {
	buf.WriteByte(tagUInt64)
	n := binary.PutUvarint(scratch, v)
	buf.Write(scratch[:n])
}

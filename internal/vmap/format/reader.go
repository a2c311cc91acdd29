package format

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/l1jgo/vmap/internal/geom"
)

// Reader decodes little-endian fields. The first short read is remembered
// and every later read returns zero, so callers check Err once per record.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrCorrupt, n, r.off, len(r.data)-r.off)
		return false
	}
	return true
}

// Err returns the first decoding error.
func (r *Reader) Err() error {
	return r.err
}

// ReadUint32 reads 4 bytes as little-endian uint32.
func (r *Reader) ReadUint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *Reader) ReadInt32() int32 {
	return int32(r.ReadUint32())
}

func (r *Reader) ReadFloat32() float32 {
	return math.Float32frombits(r.ReadUint32())
}

func (r *Reader) ReadVec3() geom.Vec3 {
	return geom.Vec3{r.ReadFloat32(), r.ReadFloat32(), r.ReadFloat32()}
}

// ReadBytes reads n raw bytes without copying.
func (r *Reader) ReadBytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadString reads a uint32 length followed by that many bytes.
func (r *Reader) ReadString() string {
	n := r.ReadUint32()
	if n > uint32(r.Remaining()) {
		r.need(int(n))
		return ""
	}
	return string(r.ReadBytes(int(n)))
}

// ReadCount reads a uint32 element count and rejects counts that could not
// fit in the rest of the input given elemSize bytes per element.
func (r *Reader) ReadCount(elemSize int) int {
	n := r.ReadUint32()
	if r.err != nil {
		return 0
	}
	if elemSize > 0 && uint64(n)*uint64(elemSize) > uint64(r.Remaining()) {
		r.err = fmt.Errorf("%w: count %d exceeds remaining %d bytes", ErrCorrupt, n, r.Remaining())
		return 0
	}
	return int(n)
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// ReadHeader checks the magic and version that open every file.
func (r *Reader) ReadHeader(magic string, version uint32) error {
	got := r.ReadBytes(len(magic))
	v := r.ReadUint32()
	if r.err != nil {
		return r.err
	}
	if string(got) != magic {
		return fmt.Errorf("%w: bad magic %q, want %q", ErrCorrupt, got, magic)
	}
	if v != version {
		return fmt.Errorf("%w: version %d, want %d", ErrVersionMismatch, v, version)
	}
	return nil
}

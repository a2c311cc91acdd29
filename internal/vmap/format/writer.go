package format

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/l1jgo/vmap/internal/geom"
)

// Writer builds a file image. All multi-byte writes are little-endian.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteVec3(v geom.Vec3) {
	w.WriteFloat32(v[0])
	w.WriteFloat32(v[1])
	w.WriteFloat32(v[2])
}

// WriteString writes a uint32 length prefix and the raw bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUint32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteHeader(magic string, version uint32) {
	w.WriteBytes([]byte(magic))
	w.WriteUint32(version)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

// WriteFile stores the image at path.
func (w *Writer) WriteFile(path string) error {
	return os.WriteFile(path, w.buf, 0o644)
}

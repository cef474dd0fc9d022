package mp4

import "encoding/binary"

// Writer is a bump cursor over a pre-sized buffer. Box Marshal methods
// advance it field by field in the order ISO/IEC 14496-12 lays the box out,
// rather than threading a raw position pointer through each call.
type Writer struct {
	buf []byte
	pos int
}

// NewWriter wraps buf, starting at pos.
func NewWriter(buf []byte, pos int) Writer {
	return Writer{buf: buf, pos: pos}
}

// Pos returns the writer's current offset into buf.
func (w *Writer) Pos() int {
	return w.pos
}

// Bytes copies p into the buffer and advances past it.
func (w *Writer) Bytes(p []byte) {
	w.pos += copy(w.buf[w.pos:], p)
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf[w.pos] = b
	w.pos++
}

// Uint16 writes r big-endian.
func (w *Writer) Uint16(r uint16) {
	binary.BigEndian.PutUint16(w.buf[w.pos:], r)
	w.pos += 2
}

// Uint32 writes r big-endian.
func (w *Writer) Uint32(r uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:], r)
	w.pos += 4
}

// Uint64 writes r big-endian.
func (w *Writer) Uint64(r uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:], r)
	w.pos += 8
}

// CString writes str followed by a terminating NUL.
func (w *Writer) CString(str string) {
	w.Bytes([]byte(str))
	w.Byte(0x00)
}

// Nested runs a (buf []byte, pos *int) style Marshal method — the interface
// every ImmutableBox and embedded sub-structure exposes — against the
// writer's own buffer, then folds its advanced position back in. This lets
// composite boxes mix their own field writes with calls into an embedded
// FullBox, SampleEntry or similar without tracking two cursors by hand.
func (w *Writer) Nested(fn func(buf []byte, pos *int)) {
	p := w.pos
	fn(w.buf, &p)
	w.pos = p
}

// Package buffer implements a read/write cursor over a fixed-size byte
// region, used by the wire codec to parse and serialize SOCKS5 messages
// without repeated slice reallocation.
//
// A Buffer does not perform I/O itself: callers read exactly as many bytes
// from the socket as they intend to parse, Append them, then Read/Peek them
// back out. Bounds violations are programmer error and panic.
package buffer

import "fmt"

// Buffer is a cursor over a caller-supplied contiguous byte region.
type Buffer struct {
	data   []byte
	rIndex int
	wIndex int
}

// New allocates a Buffer with the given capacity, empty (reader and writer
// both at zero).
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Wrap builds a Buffer over an existing slice, with the writer index at
// len(b) (as if the whole slice had already been Appended) and the reader
// index at zero.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b, wIndex: len(b)}
}

// Len returns the number of unread bytes (writer index minus reader index).
func (b *Buffer) Len() int { return b.wIndex - b.rIndex }

// Cap returns the total capacity of the underlying region.
func (b *Buffer) Cap() int { return len(b.data) }

// WriterIndex returns the current write cursor position.
func (b *Buffer) WriterIndex() int { return b.wIndex }

// ReaderIndex returns the current read cursor position.
func (b *Buffer) ReaderIndex() int { return b.rIndex }

// Bytes returns the unread portion of the buffer as a slice aliasing the
// underlying storage. Callers must not retain it past the buffer's reuse.
func (b *Buffer) Bytes() []byte { return b.data[b.rIndex:b.wIndex] }

// WritableSlice returns the unwritten tail of the underlying region, sized n,
// for callers that want to read directly from a socket into the buffer
// before advancing the writer with Grow.
func (b *Buffer) WritableSlice(n int) []byte {
	if b.wIndex+n > len(b.data) {
		panic(fmt.Sprintf("buffer: WritableSlice(%d) exceeds capacity %d at writer %d", n, len(b.data), b.wIndex))
	}
	return b.data[b.wIndex : b.wIndex+n]
}

// Grow advances the writer index by n, as if n bytes had just been written
// into the slice returned by WritableSlice.
func (b *Buffer) Grow(n int) {
	if b.wIndex+n > len(b.data) {
		panic(fmt.Sprintf("buffer: Grow(%d) exceeds capacity %d at writer %d", n, len(b.data), b.wIndex))
	}
	b.wIndex += n
}

// Append copies p into the buffer and advances the writer index by len(p).
func (b *Buffer) Append(p []byte) {
	copy(b.WritableSlice(len(p)), p)
	b.Grow(len(p))
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(v byte) {
	b.Append([]byte{v})
}

// AppendUint16 appends v in network byte order.
func (b *Buffer) AppendUint16(v uint16) {
	b.Append([]byte{byte(v >> 8), byte(v)})
}

// Read copies n unread bytes out, advancing the reader index by n.
func (b *Buffer) Read(n int) []byte {
	if b.rIndex+n > b.wIndex {
		panic(fmt.Sprintf("buffer: Read(%d) exceeds unread length %d", n, b.Len()))
	}
	out := make([]byte, n)
	copy(out, b.data[b.rIndex:b.rIndex+n])
	b.rIndex += n
	return out
}

// ReadByte reads and consumes a single byte.
func (b *Buffer) ReadByte() byte {
	return b.Read(1)[0]
}

// ReadUint16 reads and consumes a network-byte-order uint16.
func (b *Buffer) ReadUint16() uint16 {
	p := b.Read(2)
	return uint16(p[0])<<8 | uint16(p[1])
}

// Peek returns n unread bytes without advancing the reader index.
func (b *Buffer) Peek(n int) []byte {
	if b.rIndex+n > b.wIndex {
		panic(fmt.Sprintf("buffer: Peek(%d) exceeds unread length %d", n, b.Len()))
	}
	out := make([]byte, n)
	copy(out, b.data[b.rIndex:b.rIndex+n])
	return out
}

// Seek advances the reader index by n without copying anything out.
func (b *Buffer) Seek(n int) {
	if b.rIndex+n > b.wIndex {
		panic(fmt.Sprintf("buffer: Seek(%d) exceeds unread length %d", n, b.Len()))
	}
	b.rIndex += n
}

// SeekToBegin rewinds the reader index to zero, allowing the buffer's
// contents to be re-parsed from the start.
func (b *Buffer) SeekToBegin() {
	b.rIndex = 0
}

// ReadFromEnd sets the reader index to writerIndex-n, reads n bytes from
// there, and leaves the reader index at writerIndex-n. It serves
// lookahead-style parsing of a length-prefixed trailing field once the
// whole message is already in the buffer; the wire codec's stream parsers
// read such fields (domain LEN, PLEN) with io.ReadFull and do not call it.
func (b *Buffer) ReadFromEnd(n int) []byte {
	if n > b.wIndex {
		panic(fmt.Sprintf("buffer: ReadFromEnd(%d) exceeds writer index %d", n, b.wIndex))
	}
	b.rIndex = b.wIndex - n
	out := make([]byte, n)
	copy(out, b.data[b.rIndex:b.wIndex])
	return out
}

// Reset rewinds both reader and writer indices to zero, allowing the
// underlying storage to be reused for a new message.
func (b *Buffer) Reset() {
	b.rIndex = 0
	b.wIndex = 0
}

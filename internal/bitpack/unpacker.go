// internal/bitpack/unpacker.go
package bitpack

// Unpacker reads values written by Packer.
type Unpacker struct {
	src []byte
	pos uint // bit offset
}

func NewUnpacker(src []byte) *Unpacker {
	return &Unpacker{src: src}
}

// Next reads width bits. ok is false if the stream is exhausted.
func (u *Unpacker) Next(width uint) (v uint64, ok bool) {
	if width == 0 || width > 64 {
		return 0, false
	}
	if u.pos+width > uint(len(u.src))*8 {
		return 0, false
	}

	for i := uint(0); i < width; i++ {
		b := u.src[(u.pos+i)/8]
		bit := (b >> (7 - (u.pos+i)%8)) & 1
		v = v<<1 | uint64(bit)
	}
	u.pos += width
	return v, true
}

// Remaining is the number of unread bits, padding included.
func (u *Unpacker) Remaining() uint {
	return uint(len(u.src))*8 - u.pos
}

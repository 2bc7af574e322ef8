// internal/bitpack/packer.go
package bitpack

// Packer writes variable-width values into a byte stream, most significant bit first.
//
// Preconditions (not checked):
//   - width is in 1..16 for sample data (up to 56 is accepted by the accumulator)
//   - fewer than 64 bits are ever pending between flushes
//
// The zero value is ready to use.
type Packer struct {
	acc  uint64
	bits uint
}

// Push appends the low width bits of v to the stream.
// Every completed byte is appended to dst; the grown slice is returned.
func (p *Packer) Push(dst []byte, v uint64, width uint) []byte {
	if width == 0 {
		return dst
	}
	if width < 64 {
		v &= (uint64(1) << width) - 1
	}

	p.acc = p.acc<<width | v
	p.bits += width

	for p.bits >= 8 {
		p.bits -= 8
		dst = append(dst, byte(p.acc>>p.bits))
	}

	// drop consumed bits so the accumulator never overflows
	p.acc &= (uint64(1) << p.bits) - 1
	return dst
}

// Flush emits a pending partial byte, left-justified and zero-padded, then resets.
func (p *Packer) Flush(dst []byte) []byte {
	if p.bits > 0 {
		dst = append(dst, byte(p.acc<<(8-p.bits)))
	}
	p.Reset()
	return dst
}

// Pending reports the number of bits not yet emitted.
func (p *Packer) Pending() uint { return p.bits }

// Reset discards pending bits.
func (p *Packer) Reset() {
	p.acc = 0
	p.bits = 0
}

// Pack is a one-shot helper: every value is packed at the same width and the stream flushed.
func Pack(values []uint16, width uint) []byte {
	var p Packer
	out := make([]byte, 0, (len(values)*int(width)+7)/8)
	for _, v := range values {
		out = p.Push(out, uint64(v), width)
	}
	return p.Flush(out)
}

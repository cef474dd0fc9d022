package mp4

// Esds is the MPEG-4 ES Descriptor box (ISO/IEC 14496-1), carrying the
// AudioSpecificConfig an AAC decoder needs alongside the mp4a sample entry.
type Esds struct {
	FullBox
	ESID   uint16
	Config []byte // AudioSpecificConfig bytes (DecSpecificInfoTag payload)
}

// Type returns the BoxType.
func (*Esds) Type() BoxType {
	return [4]byte{'e', 's', 'd', 's'}
}

// Size returns the marshaled size in bytes.
func (b *Esds) Size() int {
	return b.FullBox.Size() + 37 + len(b.Config)
}

// Marshal box to buffer.
func (b *Esds) Marshal(buf []byte, pos *int) {
	w := NewWriter(buf, *pos)
	w.Nested(b.FullBox.Marshal)

	decSpecificInfoTagSize := byte(len(b.Config))

	w.Bytes([]byte{
		ESDescrTag,
		0x80, 0x80, 0x80,
		32 + decSpecificInfoTagSize, // Size.
		byte(b.ESID >> 8), byte(b.ESID),
		0, // Flags.
	})

	w.Bytes([]byte{
		DecoderConfigDescrTag,
		0x80, 0x80, 0x80,
		18 + decSpecificInfoTagSize, // Size.

		0x40,    // Object type indicator (MPEG-4 Audio).
		0x15,    // StreamType and upStream.
		0, 0, 0, // BufferSizeDB.
		0, 1, 0xf7, 0x39, // MaxBitrate.
		0, 1, 0xf7, 0x39, // AverageBitrate.
	})

	w.Bytes([]byte{
		DecSpecificInfoTag,
		0x80, 0x80, 0x80,
		decSpecificInfoTagSize, // Size.
	})
	w.Bytes(b.Config)

	w.Bytes([]byte{
		SLConfigDescrTag,
		0x80, 0x80, 0x80,
		1, // Size.
		2, // Flags.
	})
	*pos = w.Pos()
}

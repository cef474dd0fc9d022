package h264

import "github.com/icza/bitio"

func readGolombUnsigned(br *bitio.Reader) (uint32, error) {
	leadingZeroBits := uint32(0)
	for {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if b != 0 {
			break
		}
		leadingZeroBits++
	}

	codeNum := uint32(0)
	for n := leadingZeroBits; n > 0; n-- {
		b, err := br.ReadBits(1)
		if err != nil {
			return 0, err
		}
		codeNum |= uint32(b) << (n - 1)
	}
	codeNum = (1 << leadingZeroBits) - 1 + codeNum
	return codeNum, nil
}

func readGolombSigned(br *bitio.Reader) (int32, error) {
	v, err := readGolombUnsigned(br)
	if err != nil {
		return 0, err
	}
	vi := int32(v)
	if (vi & 0x01) != 0 {
		return (vi + 1) / 2, nil
	}
	return -vi / 2, nil
}

func readFlag(br *bitio.Reader) (bool, error) {
	tmp, err := br.ReadBits(1)
	if err != nil {
		return false, err
	}
	return tmp == 1, nil
}

// skipScalingList mirrors the bit-layout of a scaling_list() entry without
// retaining the values; the core only needs correct bit alignment past it.
func skipScalingList(br *bitio.Reader, size int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < size; j++ {
		if nextScale != 0 {
			deltaScale, err := readGolombSigned(br)
			if err != nil {
				return err
			}
			nextScale = (lastScale + deltaScale + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}

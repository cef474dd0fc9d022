package h264

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// Errors returned by SPS.Unmarshal.
var (
	ErrSPSTooShort  = errors.New("h264: SPS buffer too short")
	ErrSPSWrongType = errors.New("h264: not an SPS NAL unit")
)

// hrdParams is the subset of hrd_parameters() the pic_timing SEI needs to
// size its cpb_removal_delay/dpb_output_delay fields.
type hrdParams struct {
	cpbRemovalDelayLengthMinus1 uint8
	dpbOutputDelayLengthMinus1  uint8
	timeOffsetLength            uint8
}

func (h *hrdParams) unmarshal(br *bitio.Reader) error {
	cpbCntMinus1, err := readGolombUnsigned(br)
	if err != nil {
		return err
	}
	if _, err := br.ReadBits(4); err != nil { // bit_rate_scale
		return err
	}
	if _, err := br.ReadBits(4); err != nil { // cpb_size_scale
		return err
	}
	for i := uint32(0); i <= cpbCntMinus1; i++ {
		if _, err := readGolombUnsigned(br); err != nil { // bit_rate_value_minus1
			return err
		}
		if _, err := readGolombUnsigned(br); err != nil { // cpb_size_value_minus1
			return err
		}
		if _, err := readFlag(br); err != nil { // cbr_flag
			return err
		}
	}
	v, err := br.ReadBits(5)
	if err != nil {
		return err
	}
	// initial_cpb_removal_delay_length_minus1, unused downstream
	_ = v
	v, err = br.ReadBits(5)
	if err != nil {
		return err
	}
	h.cpbRemovalDelayLengthMinus1 = uint8(v)
	v, err = br.ReadBits(5)
	if err != nil {
		return err
	}
	h.dpbOutputDelayLengthMinus1 = uint8(v)
	v, err = br.ReadBits(5)
	if err != nil {
		return err
	}
	h.timeOffsetLength = uint8(v)
	return nil
}

// vui is the subset of vui_parameters() that pic_timing SEI parsing
// depends on: whether HRD parameters are present (and their field
// lengths) and whether pic_struct is signalled.
type vui struct {
	picStructPresentFlag bool
	cpbDpbDelaysPresent  bool
	hrd                  hrdParams
}

func (v *vui) unmarshal(br *bitio.Reader) error { //nolint:gocognit
	aspectRatioInfoPresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if aspectRatioInfoPresentFlag {
		aspectRatioIdc, err := br.ReadBits(8)
		if err != nil {
			return err
		}
		if aspectRatioIdc == 255 {
			if _, err := br.ReadBits(32); err != nil { // sar_width, sar_height
				return err
			}
		}
	}

	overscanInfoPresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if overscanInfoPresentFlag {
		if _, err := readFlag(br); err != nil {
			return err
		}
	}

	videoSignalTypePresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if videoSignalTypePresentFlag {
		if _, err := br.ReadBits(3); err != nil { // video_format
			return err
		}
		if _, err := readFlag(br); err != nil { // video_full_range_flag
			return err
		}
		colourDescriptionPresentFlag, err := readFlag(br)
		if err != nil {
			return err
		}
		if colourDescriptionPresentFlag {
			if _, err := br.ReadBits(24); err != nil {
				return err
			}
		}
	}

	chromaLocInfoPresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if chromaLocInfoPresentFlag {
		if _, err := readGolombUnsigned(br); err != nil {
			return err
		}
		if _, err := readGolombUnsigned(br); err != nil {
			return err
		}
	}

	timingInfoPresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if timingInfoPresentFlag {
		if _, err := br.ReadBits(32); err != nil { // num_units_in_tick
			return err
		}
		if _, err := br.ReadBits(32); err != nil { // time_scale
			return err
		}
		if _, err := readFlag(br); err != nil { // fixed_frame_rate_flag
			return err
		}
	}

	nalHRDPresent, err := readFlag(br)
	if err != nil {
		return err
	}
	if nalHRDPresent {
		if err := v.hrd.unmarshal(br); err != nil {
			return err
		}
	}
	vclHRDPresent, err := readFlag(br)
	if err != nil {
		return err
	}
	if vclHRDPresent {
		if err := v.hrd.unmarshal(br); err != nil {
			return err
		}
	}
	v.cpbDpbDelaysPresent = nalHRDPresent || vclHRDPresent
	if v.cpbDpbDelaysPresent {
		if _, err := readFlag(br); err != nil { // low_delay_hrd_flag
			return err
		}
	}

	v.picStructPresentFlag, err = readFlag(br)
	if err != nil {
		return err
	}

	bitstreamRestrictionFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if bitstreamRestrictionFlag {
		if _, err := readFlag(br); err != nil {
			return err
		}
		for i := 0; i < 6; i++ {
			if _, err := readGolombUnsigned(br); err != nil {
				return err
			}
		}
	}

	return nil
}

// frameCropping is the frame_cropping() part of an SPS.
type frameCropping struct {
	left, right, top, bottom uint32
}

func (c *frameCropping) unmarshal(br *bitio.Reader) error {
	var err error
	if c.left, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if c.right, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if c.top, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if c.bottom, err = readGolombUnsigned(br); err != nil {
		return err
	}
	return nil
}

// SPS is a parsed H.264 sequence parameter set, trimmed to the fields the
// store needs: picture dimensions (§4.2 dimensions()), the RFC 6381 codec
// string, and enough of the VUI/HRD to size a pic_timing SEI (§4.4).
type SPS struct {
	ProfileIdc      uint8
	ConstraintFlags uint8 // raw SPS byte: constraint_set0_flag at bit 7 .. constraint_set5_flag at bit 2
	LevelIdc        uint8

	ChromaFormatIdc           uint32
	SeparateColourPlaneFlag   bool
	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnlyFlag          bool
	FrameCropping             *frameCropping

	VUI *vui
}

// Unmarshal parses an SPS from its raw NAL bytes (header byte included).
func (s *SPS) Unmarshal(buf []byte) error { //nolint:funlen
	if len(buf) < 4 {
		return ErrSPSTooShort
	}
	if Type(buf[0]) != NALUTypeSPS {
		return ErrSPSWrongType
	}

	s.ProfileIdc = buf[1]
	s.ConstraintFlags = buf[2]
	s.LevelIdc = buf[3]

	rbsp := RemoveEmulationPrevention(buf[4:])
	br := bitio.NewReader(bytes.NewReader(rbsp))

	if _, err := readGolombUnsigned(br); err != nil { // seq_parameter_set_id
		return err
	}

	if err := s.unmarshalChromaFormat(br); err != nil {
		return err
	}

	if _, err := readGolombUnsigned(br); err != nil { // log2_max_frame_num_minus4
		return err
	}
	picOrderCntType, err := readGolombUnsigned(br)
	if err != nil {
		return err
	}
	if err := unmarshalPicOrderCnt(br, picOrderCntType); err != nil {
		return err
	}

	if _, err := readGolombUnsigned(br); err != nil { // max_num_ref_frames
		return err
	}
	if _, err := readFlag(br); err != nil { // gaps_in_frame_num_value_allowed_flag
		return err
	}
	if s.PicWidthInMbsMinus1, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if s.PicHeightInMapUnitsMinus1, err = readGolombUnsigned(br); err != nil {
		return err
	}
	if s.FrameMbsOnlyFlag, err = readFlag(br); err != nil {
		return err
	}
	if !s.FrameMbsOnlyFlag {
		if _, err := readFlag(br); err != nil { // mb_adaptive_frame_field_flag
			return err
		}
	}
	if _, err := readFlag(br); err != nil { // direct_8x8_inference_flag
		return err
	}

	frameCroppingFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if frameCroppingFlag {
		s.FrameCropping = &frameCropping{}
		if err := s.FrameCropping.unmarshal(br); err != nil {
			return err
		}
	}

	vuiPresentFlag, err := readFlag(br)
	if err != nil {
		return err
	}
	if vuiPresentFlag {
		s.VUI = &vui{}
		if err := s.VUI.unmarshal(br); err != nil {
			return err
		}
	}

	return nil
}

func (s *SPS) unmarshalChromaFormat(br *bitio.Reader) error {
	switch s.ProfileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		var err error
		if s.ChromaFormatIdc, err = readGolombUnsigned(br); err != nil {
			return err
		}
		if s.ChromaFormatIdc == 3 {
			if s.SeparateColourPlaneFlag, err = readFlag(br); err != nil {
				return err
			}
		}
		if _, err := readGolombUnsigned(br); err != nil { // bit_depth_luma_minus8
			return err
		}
		if _, err := readGolombUnsigned(br); err != nil { // bit_depth_chroma_minus8
			return err
		}
		if _, err := readFlag(br); err != nil { // qpprime_y_zero_transform_bypass_flag
			return err
		}
		seqScalingMatrixPresentFlag, err := readFlag(br)
		if err != nil {
			return err
		}
		if seqScalingMatrixPresentFlag {
			lim := 8
			if s.ChromaFormatIdc == 3 {
				lim = 12
			}
			for i := 0; i < lim; i++ {
				present, err := readFlag(br)
				if err != nil {
					return err
				}
				if !present {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err := skipScalingList(br, size); err != nil {
					return err
				}
			}
		}
	default:
		s.ChromaFormatIdc = 1 // default: 4:2:0
	}
	return nil
}

func unmarshalPicOrderCnt(br *bitio.Reader, picOrderCntType uint32) error {
	switch picOrderCntType {
	case 0:
		if _, err := readGolombUnsigned(br); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return err
		}
	case 1:
		if _, err := readFlag(br); err != nil { // delta_pic_order_always_zero_flag
			return err
		}
		if _, err := readGolombSigned(br); err != nil { // offset_for_non_ref_pic
			return err
		}
		if _, err := readGolombSigned(br); err != nil { // offset_for_top_to_bottom_field
			return err
		}
		n, err := readGolombUnsigned(br)
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := readGolombSigned(br); err != nil {
				return err
			}
		}
	}
	return nil
}

// chromaSubsampling returns the horizontal/vertical subsampling shifts
// implied by chroma_format_idc, per §4.2: step_x = 1<<hsub, step_y =
// mul<<vsub, where mul accounts for a non-frame-only (field) coding.
func (s *SPS) chromaSubsampling() (hsub, vsub uint32) {
	switch s.ChromaFormatIdc {
	case 1: // 4:2:0
		return 1, 1
	case 2: // 4:2:2
		return 1, 0
	default: // 4:4:4 or monochrome: no subsampling
		return 0, 0
	}
}

// Dimensions derives pixel width/height from pic_width_in_mbs_minus1,
// pic_height_in_map_units_minus1, frame_mbs_only_flag and frame cropping,
// per §4.2.
func (s *SPS) Dimensions() (width, height uint32) {
	width = (s.PicWidthInMbsMinus1 + 1) * 16

	frameMbsOnly := uint32(0)
	if s.FrameMbsOnlyFlag {
		frameMbsOnly = 1
	}
	mapUnitHeight := (2 - frameMbsOnly) * (s.PicHeightInMapUnitsMinus1 + 1) * 16
	height = mapUnitHeight

	if s.FrameCropping != nil {
		hsub, vsub := s.chromaSubsampling()
		stepX := uint32(1) << hsub
		mul := uint32(2 - frameMbsOnly)
		stepY := mul << vsub
		width -= stepX * (s.FrameCropping.left + s.FrameCropping.right)
		height -= stepY * (s.FrameCropping.top + s.FrameCropping.bottom)
	}
	return width, height
}

// RFC6381Codec renders the avc1.PPCCLL codec string: profile_idc,
// constraint-flags byte, level_idc, each as two hex digits. Per §4.2 the
// flags byte packs the SPS constraint_set0_flag..constraint_set5_flag bits
// LSB-first (the reverse of their bit order in the SPS byte itself).
func (s *SPS) RFC6381Codec() string {
	flagsByte := reverseByte(s.ConstraintFlags)
	const hex = "0123456789abcdef"
	buf := make([]byte, 0, 14)
	buf = append(buf, "avc1."...)
	buf = append(buf, hex[s.ProfileIdc>>4], hex[s.ProfileIdc&0xf])
	buf = append(buf, hex[flagsByte>>4], hex[flagsByte&0xf])
	buf = append(buf, hex[s.LevelIdc>>4], hex[s.LevelIdc&0xf])
	return string(buf)
}

// reverseByte reverses the bit order of b, turning the SPS's MSB-first
// constraint flags (constraint_set0_flag at bit 7) into the LSB-first
// packing §4.2 requires (constraint_set0_flag at bit 0).
func reverseByte(b uint8) uint8 {
	var out uint8
	for i := 0; i < 8; i++ {
		out |= ((b >> i) & 1) << (7 - i)
	}
	return out
}

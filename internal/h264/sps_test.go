package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// sps720p is a hand-built baseline-profile SPS RBSP encoding a 1280x720,
// frame-only picture with no cropping and no VUI: seq_parameter_set_id=0,
// log2_max_frame_num_minus4=0, pic_order_cnt_type=0,
// log2_max_pic_order_cnt_lsb_minus4=0, max_num_ref_frames=0,
// gaps_in_frame_num_value_allowed_flag=0, pic_width_in_mbs_minus1=79,
// pic_height_in_map_units_minus1=44, frame_mbs_only_flag=1,
// direct_8x8_inference_flag=1, frame_cropping_flag=0,
// vui_parameters_present_flag=0.
var sps720p = []byte{0x67, 0x42, 0xc0, 0x1e, 0xf8, 0x0a, 0x00, 0xb7, 0x00}

func TestSPSUnmarshalDimensionsAndCodec(t *testing.T) {
	var sps SPS
	require.NoError(t, sps.Unmarshal(sps720p))

	require.EqualValues(t, 66, sps.ProfileIdc)
	require.EqualValues(t, 0xc0, sps.ConstraintFlags)
	require.EqualValues(t, 30, sps.LevelIdc)
	require.EqualValues(t, 79, sps.PicWidthInMbsMinus1)
	require.EqualValues(t, 44, sps.PicHeightInMapUnitsMinus1)
	require.True(t, sps.FrameMbsOnlyFlag)
	require.Nil(t, sps.FrameCropping)
	require.Nil(t, sps.VUI)

	width, height := sps.Dimensions()
	require.EqualValues(t, 1280, width)
	require.EqualValues(t, 720, height)

	require.Equal(t, "avc1.42031e", sps.RFC6381Codec())
}

func TestSPSUnmarshalRejectsShortBuffer(t *testing.T) {
	var sps SPS
	require.ErrorIs(t, sps.Unmarshal([]byte{0x67, 0x42, 0xc0}), ErrSPSTooShort)
}

func TestSPSUnmarshalRejectsWrongType(t *testing.T) {
	var sps SPS
	// NAL header byte 0x68 is type 8 (PPS), not 7 (SPS).
	require.ErrorIs(t, sps.Unmarshal([]byte{0x68, 0x42, 0xc0, 0x1e}), ErrSPSWrongType)
}

func TestTypeAndIsIDR(t *testing.T) {
	require.Equal(t, NALUTypeSPS, Type(0x67))
	require.Equal(t, NALUTypeIDR, Type(0x65))
	require.True(t, IsIDR(0x65))
	require.False(t, IsIDR(sps720p[0]))
}

func TestRemoveEmulationPrevention(t *testing.T) {
	in := []byte{0x00, 0x00, 0x03, 0x01, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00, 0x03}
	out := RemoveEmulationPrevention(in)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x02, 0x00, 0x00}, out)
}

package mp4

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEsdsSizeMatchesMarshaledLength(t *testing.T) {
	b := &Esds{ESID: 1, Config: []byte{0x11, 0x90, 0x56, 0xE5, 0x00}}

	buf := make([]byte, b.Size())
	pos := 0
	b.Marshal(buf, &pos)

	require.Equal(t, b.Size(), pos, "Marshal must write exactly Size() bytes")
}

func TestEsdsMarshalEmbedsConfigBytes(t *testing.T) {
	config := []byte{0x11, 0x90, 0x56, 0xE5, 0x00}
	b := &Esds{ESID: 2, Config: config}

	buf := make([]byte, b.Size())
	pos := 0
	b.Marshal(buf, &pos)

	idx := -1
	for i := 0; i+len(config) <= len(buf); i++ {
		if string(buf[i:i+len(config)]) == string(config) {
			idx = i
			break
		}
	}
	require.NotEqual(t, -1, idx, "Config bytes must appear verbatim in the marshaled output")
}

func TestEsdsViaBoxesTreeProducesConsistentHeader(t *testing.T) {
	b := Boxes{Box: &Esds{ESID: 1, Config: []byte{0xAA, 0xBB}}}
	buf := make([]byte, b.Size())
	pos := 0
	b.Marshal(buf, &pos)

	require.Equal(t, b.Size(), pos)
	require.Equal(t, []byte("esds"), buf[4:8])
}

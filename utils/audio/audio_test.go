package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPCMHeader(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms of 16kHz mono
	wav, err := WrapPCM(pcm, 1, 16000)
	require.NoError(t, err)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestWrapPCMRejectsBadInput(t *testing.T) {
	_, err := WrapPCM(nil, 1, 16000)
	assert.Error(t, err)
	_, err = WrapPCM([]byte{1, 2, 3}, 1, 16000)
	assert.Error(t, err, "odd length is not 16-bit PCM")
	_, err = WrapPCM([]byte{1, 2}, 3, 16000)
	assert.Error(t, err)
	_, err = WrapPCM([]byte{1, 2}, 1, 0)
	assert.Error(t, err)
}

func TestULawRoundTripSize(t *testing.T) {
	ulaw := []byte{0x00, 0x7f, 0xff, 0x80}
	pcm := ULawToPCM(ulaw)
	assert.Len(t, pcm, len(ulaw)*2, "each µ-law byte expands to one 16-bit sample")
}

func TestNormalizeForUpload(t *testing.T) {
	tests := []struct {
		name string
		enc  Encoding
		data []byte
	}{
		{name: "pcm", enc: EncodingPCM, data: make([]byte, 640)},
		{name: "ulaw", enc: EncodingUlaw, data: make([]byte, 320)},
		{name: "alaw", enc: EncodingAlaw, data: make([]byte, 320)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, mime, err := NormalizeForUpload(tt.data, tt.enc, 0)
			require.NoError(t, err)
			assert.Equal(t, "audio/wav", mime)
			assert.Equal(t, "RIFF", string(out[0:4]))
		})
	}

	passthrough := []byte("RIFFxxxxWAVE")
	out, mime, err := NormalizeForUpload(passthrough, EncodingWAV, 0)
	require.NoError(t, err)
	assert.Equal(t, passthrough, out)
	assert.Equal(t, "audio/wav", mime)

	_, _, err = NormalizeForUpload([]byte{1}, Encoding("mp3"), 0)
	assert.Error(t, err)
}

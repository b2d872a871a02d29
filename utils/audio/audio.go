// Package audio prepares captured audio for upload to the transcription
// service: G.711 telephone audio is decoded to linear PCM, and raw PCM is
// wrapped in a WAV container so every backend format strategy receives a
// self-describing file.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"
)

// Encoding identifies the coding of a captured audio payload.
type Encoding string

const (
	EncodingWAV  Encoding = "wav"  // already containerized, passed through
	EncodingPCM  Encoding = "pcm"  // 16-bit little-endian linear PCM
	EncodingUlaw Encoding = "ulaw" // G.711 µ-law, 8 kHz telephony
	EncodingAlaw Encoding = "alaw" // G.711 A-law, 8 kHz telephony
)

// ULawToPCM converts G.711 µ-law bytes to 16-bit linear PCM.
func ULawToPCM(in []byte) []byte {
	return g711.DecodeUlaw(in)
}

// ALawToPCM converts G.711 A-law bytes to 16-bit linear PCM.
func ALawToPCM(in []byte) []byte {
	return g711.DecodeAlaw(in)
}

// WrapPCM wraps 16-bit little-endian PCM in a minimal WAV container.
func WrapPCM(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("audio: empty PCM data")
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("audio: PCM length must be even (16-bit samples)")
	}
	if numChannels < 1 || numChannels > 2 {
		return nil, errors.New("audio: only mono or stereo supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("audio: sample rate must be positive")
	}

	const bitsPerSample = 16
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM format tag
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// NormalizeForUpload converts a captured payload into a WAV file plus its
// MIME type. WAV input passes through untouched; telephone codecs are
// decoded to PCM first at their native 8 kHz rate.
func NormalizeForUpload(data []byte, enc Encoding, sampleRate int) ([]byte, string, error) {
	switch enc {
	case EncodingWAV:
		return data, "audio/wav", nil
	case EncodingPCM:
		if sampleRate <= 0 {
			sampleRate = 16000
		}
		wav, err := WrapPCM(data, 1, sampleRate)
		if err != nil {
			return nil, "", err
		}
		return wav, "audio/wav", nil
	case EncodingUlaw:
		wav, err := WrapPCM(ULawToPCM(data), 1, 8000)
		if err != nil {
			return nil, "", err
		}
		return wav, "audio/wav", nil
	case EncodingAlaw:
		wav, err := WrapPCM(ALawToPCM(data), 1, 8000)
		if err != nil {
			return nil, "", err
		}
		return wav, "audio/wav", nil
	default:
		return nil, "", fmt.Errorf("audio: unknown encoding %q", enc)
	}
}

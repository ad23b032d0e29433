// Package audio converts between telephone μ-law and 16-bit linear PCM.
package audio

import (
	"bytes"
	"encoding/binary"
)

const (
	ulawBias = 0x84
	ulawClip = 32635

	// WAVHeaderSize is the canonical RIFF header length.
	WAVHeaderSize = 44
)

// ULawToLinear expands one G.711 μ-law sample.
func ULawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exp := (u >> 4) & 0x07
	mant := u & 0x0F
	value := (int(mant) << 3) + ulawBias
	value <<= uint(exp)
	value -= ulawBias
	if sign != 0 {
		return int16(-value)
	}
	return int16(value)
}

// LinearToULaw compresses one 16-bit sample.
func LinearToULaw(s int16) byte {
	v := int(s)
	var sign int
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > ulawClip {
		v = ulawClip
	}
	v += ulawBias

	exp := 7
	for mask := 0x4000; v&mask == 0 && exp > 0; mask >>= 1 {
		exp--
	}
	mant := (v >> (exp + 3)) & 0x0F
	return ^byte(sign | exp<<4 | mant)
}

// DecodeULaw turns a μ-law payload into little-endian PCM16.
func DecodeULaw(payload []byte) []byte {
	out := make([]byte, len(payload)*2)
	for i, b := range payload {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ULawToLinear(b)))
	}
	return out
}

// EncodeULaw turns little-endian PCM16 into μ-law. A trailing odd byte is
// dropped.
func EncodeULaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = LinearToULaw(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// StripWAVHeader returns the sample data of a RIFF/WAVE file. It walks the
// chunk list looking for "data" and falls back to skipping the canonical
// 44-byte header.
func StripWAVHeader(wav []byte) []byte {
	if len(wav) <= WAVHeaderSize {
		return wav
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return wav[WAVHeaderSize:]
	}
	off := 12
	for off+8 <= len(wav) {
		id := wav[off : off+4]
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := off + 8
		if bytes.Equal(id, []byte("data")) {
			end := body + size
			if size == 0 || end > len(wav) || end < body {
				end = len(wav)
			}
			return wav[body:end]
		}
		off = body + size + size%2
	}
	return wav[WAVHeaderSize:]
}

package audio

import (
	"encoding/binary"
	"testing"
)

func TestULaw_KnownValues(t *testing.T) {
	if got := LinearToULaw(0); got != 0xFF {
		t.Fatalf("LinearToULaw(0) = %#x, want 0xff", got)
	}
	if got := ULawToLinear(0xFF); got != 0 {
		t.Fatalf("ULawToLinear(0xff) = %d, want 0", got)
	}
	if got := ULawToLinear(0x00); got != -32124 {
		t.Fatalf("ULawToLinear(0x00) = %d, want -32124", got)
	}
}

func TestULaw_RoundTripWithinQuantization(t *testing.T) {
	for _, s := range []int16{1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000} {
		back := ULawToLinear(LinearToULaw(s))
		diff := int(back) - int(s)
		if diff < 0 {
			diff = -diff
		}
		mag := int(s)
		if mag < 0 {
			mag = -mag
		}
		// Step size grows with magnitude.
		limit := mag/16 + 16
		if diff > limit {
			t.Errorf("round trip %d -> %d (diff %d > %d)", s, back, diff, limit)
		}
	}
}

func TestEncodeULaw_DropsOddByte(t *testing.T) {
	pcm := make([]byte, 5)
	if got := len(EncodeULaw(pcm)); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	if got := len(DecodeULaw([]byte{0xFF, 0x7F, 0x00})); got != 6 {
		t.Fatalf("decoded len = %d, want 6", got)
	}
}

func wavFile(extra []byte, data []byte) []byte {
	b := []byte("RIFF\x00\x00\x00\x00WAVE")
	fmtChunk := make([]byte, 8+16)
	copy(fmtChunk, "fmt ")
	binary.LittleEndian.PutUint32(fmtChunk[4:], 16)
	b = append(b, fmtChunk...)
	b = append(b, extra...)
	hdr := make([]byte, 8)
	copy(hdr, "data")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(data)))
	b = append(b, hdr...)
	return append(b, data...)
}

func TestStripWAVHeader(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6}

	canonical := wavFile(nil, data)
	if got := StripWAVHeader(canonical); string(got) != string(data) {
		t.Fatalf("canonical: got %v", got)
	}

	list := []byte("LIST\x04\x00\x00\x00abcd")
	withList := wavFile(list, data)
	if got := StripWAVHeader(withList); string(got) != string(data) {
		t.Fatalf("with LIST chunk: got %v", got)
	}

	raw := make([]byte, 50)
	if got := len(StripWAVHeader(raw)); got != 6 {
		t.Fatalf("non-RIFF fallback len = %d, want 6", got)
	}

	short := []byte{1, 2, 3}
	if got := StripWAVHeader(short); len(got) != 3 {
		t.Fatalf("short input should pass through")
	}
}

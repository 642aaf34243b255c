// Package audio holds the pure audio primitives of the gateway: the
// ITU-T G.711 µ-law codec and the 8 kHz <-> 24 kHz PCM16 resampler.
// All functions operate on little-endian 16 bit mono PCM byte slices.
package audio

import (
	"io"
	"math/bits"
)

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// ulaw2lpcm is the full decode table, built once from decodeUlawFrame.
var ulaw2lpcm [256]int16

func init() {
	for i := 0; i < 256; i++ {
		ulaw2lpcm[i] = decodeUlawFrame(byte(i))
	}
}

// decodeUlawFrame expands one µ-law byte to a 16 bit linear sample.
func decodeUlawFrame(frame byte) int16 {
	u := ^frame

	sign := u & 0x80
	exponent := (u & 0x70) >> 4
	mantissa := u & 0x0F

	// Reconstruct in the 16 bit domain. This is the G.711 reference
	// table scale, the only one for which encode(decode(x)) == x.
	magnitude := (int32(mantissa)<<3 + ulawBias) << exponent
	magnitude -= ulawBias

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// encodeUlawFrame compresses one 16 bit linear sample to a µ-law byte.
func encodeUlawFrame(sample int16) byte {
	var sign byte
	s := int32(sample)
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	// Segment number is the position of the top bit of s>>7.
	var exponent byte
	if seg := s >> 7; seg > 0 {
		exponent = byte(bits.Len16(uint16(seg&0xFF))) - 1
	}

	var mantissa byte
	if exponent < 7 {
		mantissa = byte(s>>(exponent+3)) & 0x0F
	} else {
		mantissa = byte(s>>10) & 0x0F
	}

	return ^(sign | exponent<<4 | mantissa)
}

// DecodeUlaw decodes µ-law bytes to 16 bit little-endian PCM.
// Output is exactly twice the input length.
func DecodeUlaw(ulaw []byte) []byte {
	lpcm := make([]byte, len(ulaw)*2)
	DecodeUlawTo(lpcm, ulaw)
	return lpcm
}

// DecodeUlawTo decodes into an existing buffer and returns the number of
// PCM bytes written.
func DecodeUlawTo(lpcm []byte, ulaw []byte) (n int, err error) {
	if ulaw == nil {
		return 0, nil
	}
	if len(lpcm) < 2*len(ulaw) {
		return 0, io.ErrShortBuffer
	}
	for i, j := 0, 0; i < len(ulaw); i, j = i+1, j+2 {
		frame := ulaw2lpcm[ulaw[i]]
		lpcm[j] = byte(frame)
		lpcm[j+1] = byte(frame >> 8)
		n += 2
	}
	return n, nil
}

// EncodeUlaw encodes 16 bit little-endian PCM to µ-law bytes.
// An odd trailing byte is discarded.
func EncodeUlaw(lpcm []byte) []byte {
	ulaw := make([]byte, len(lpcm)/2)
	EncodeUlawTo(ulaw, lpcm)
	return ulaw
}

// EncodeUlawTo encodes into an existing buffer and returns the number of
// µ-law bytes written.
func EncodeUlawTo(ulaw []byte, lpcm []byte) (n int, err error) {
	if len(ulaw) < len(lpcm)/2 {
		return 0, io.ErrShortBuffer
	}
	for i, j := 0, 0; j <= len(lpcm)-2; i, j = i+1, j+2 {
		sample := int16(lpcm[j]) | int16(lpcm[j+1])<<8
		ulaw[i] = encodeUlawFrame(sample)
		n++
	}
	return n, nil
}

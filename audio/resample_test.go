package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmBytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func pcmSamples(b []byte) []int16 {
	if len(b) < 2 {
		return nil
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func TestUpsample8To24(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"Empty", nil, nil},
		{"SingleSample", []int16{1000}, []int16{1000, 1000, 1000}},
		{"Interpolated", []int16{0, 300}, []int16{0, 100, 200, 300, 300, 300}},
		{"Negative", []int16{-300, 0}, []int16{-300, -200, -100, 0, 0, 0}},
		{"Constant", []int16{42, 42, 42}, []int16{42, 42, 42, 42, 42, 42, 42, 42, 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Upsample8To24(pcmBytes(tt.in...))
			assert.Equal(t, tt.want, pcmSamples(got))
		})
	}
}

func TestDownsample24To8(t *testing.T) {
	tests := []struct {
		name string
		in   []int16
		want []int16
	}{
		{"Empty", nil, nil},
		{"TooShort", []int16{1, 2}, nil},
		{"Mean", []int16{0, 150, 300}, []int16{150}},
		{"TailDropped", []int16{0, 150, 300, 999}, []int16{150}},
		{"Negative", []int16{-100, -200, -300}, []int16{-200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downsample24To8(pcmBytes(tt.in...))
			assert.Equal(t, tt.want, pcmSamples(got))
		})
	}
}

func TestResampleLengths(t *testing.T) {
	// One RTP packet of µ-law expands to 160 samples at 8 kHz, 480 at
	// 24 kHz, and back.
	pcm8k := testGeneratePCM16(8000)
	require.Equal(t, 320, len(pcm8k))

	up := Upsample8To24(pcm8k)
	assert.Equal(t, 960, len(up))

	down := Downsample24To8(up)
	assert.Equal(t, 320, len(down))

	// Odd trailing byte is ignored.
	assert.Equal(t, 960, len(Upsample8To24(append(pcm8k, 0x7F))))
	assert.Equal(t, 320, len(Downsample24To8(append(up, 0x7F))))
}

func TestDownsampleConstantExact(t *testing.T) {
	in := make([]int16, 240)
	for i := range in {
		in[i] = -12345
	}
	out := pcmSamples(Downsample24To8(pcmBytes(in...)))
	require.Equal(t, 80, len(out))
	for _, s := range out {
		assert.Equal(t, int16(-12345), s)
	}
}

package audio

import "encoding/binary"

// Upsample8To24 converts PCM16 8 kHz to PCM16 24 kHz by emitting three
// samples per input sample, linearly interpolated towards the next input
// sample. The last sample is replicated three times. An odd trailing byte
// is ignored. Output length is input samples * 3 * 2 bytes.
func Upsample8To24(pcm8k []byte) []byte {
	samples := len(pcm8k) / 2
	if samples == 0 {
		return nil
	}

	out := make([]byte, samples*3*2)
	for i := 0; i < samples-1; i++ {
		cur := int32(int16(binary.LittleEndian.Uint16(pcm8k[i*2:])))
		next := int32(int16(binary.LittleEndian.Uint16(pcm8k[(i+1)*2:])))

		j := i * 3 * 2
		binary.LittleEndian.PutUint16(out[j:], uint16(int16(cur)))
		binary.LittleEndian.PutUint16(out[j+2:], uint16(int16((cur*2+next)/3)))
		binary.LittleEndian.PutUint16(out[j+4:], uint16(int16((cur+next*2)/3)))
	}

	last := binary.LittleEndian.Uint16(pcm8k[(samples-1)*2:])
	j := (samples - 1) * 3 * 2
	binary.LittleEndian.PutUint16(out[j:], last)
	binary.LittleEndian.PutUint16(out[j+2:], last)
	binary.LittleEndian.PutUint16(out[j+4:], last)

	return out
}

// Downsample24To8 converts PCM16 24 kHz to PCM16 8 kHz by averaging each
// group of three consecutive samples. Samples that do not complete a
// group, and an odd trailing byte, are discarded. Output length is
// input samples / 3 * 2 bytes.
func Downsample24To8(pcm24k []byte) []byte {
	samples := len(pcm24k) / 2
	groups := samples / 3
	if groups == 0 {
		return nil
	}

	out := make([]byte, groups*2)
	for i := 0; i < groups; i++ {
		j := i * 3 * 2
		s1 := int32(int16(binary.LittleEndian.Uint16(pcm24k[j:])))
		s2 := int32(int16(binary.LittleEndian.Uint16(pcm24k[j+2:])))
		s3 := int32(int16(binary.LittleEndian.Uint16(pcm24k[j+4:])))

		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((s1+s2+s3)/3)))
	}
	return out
}

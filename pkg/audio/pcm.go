// Package audio implements the capture and playback halves of a Parley
// session: microphone frames decimated and converted for the wire, and
// inbound agent speech scheduled gap-free onto a speaker timeline.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// DecodePCM16 converts little-endian signed 16-bit samples to float32 in
// [-1, 1).
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}

// EncodePCM16 converts float32 samples to little-endian signed 16-bit bytes,
// clamping anything outside the valid range.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		v := sample * math.MaxInt16
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// Duration reports how long a PCM16 payload plays for at the given rate.
func Duration(pcmBytes int, sampleRateHz, channels int) time.Duration {
	bytesPerSecond := sampleRateHz * channels * 2
	if bytesPerSecond <= 0 || pcmBytes <= 0 {
		return 0
	}
	return time.Duration(pcmBytes) * time.Second / time.Duration(bytesPerSecond)
}

// Downsample decimates samples from srcRate to dstRate by picking every
// round(srcRate/dstRate)-th sample. No filtering: realtime cost on the
// capture callback wins over reconstruction quality here. Equal rates
// return the input unchanged.
func Downsample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 {
		return samples
	}
	step := int(math.Round(float64(srcRate) / float64(dstRate)))
	if step <= 1 {
		return samples
	}
	out := make([]float32, 0, len(samples)/step+1)
	for i := 0; i < len(samples); i += step {
		out = append(out, samples[i])
	}
	return out
}

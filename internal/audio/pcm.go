package audio

import (
	"encoding/binary"
	"math"
)

// silenceFloor is reported for digital silence.
const silenceFloor = -96.0

// Level is the loudness of a PCM buffer in dBFS.
type Level struct {
	RMS  float64
	Peak float64
}

// MeasureLevel computes RMS and peak level of PCM16 LE data.
func MeasureLevel(pcm []byte) Level {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return Level{RMS: silenceFloor, Peak: silenceFloor}
	}
	var sum float64
	var peak float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return Level{
		RMS:  toDBFS(math.Sqrt(sum / float64(n))),
		Peak: toDBFS(peak),
	}
}

func toDBFS(v float64) float64 {
	if v <= 0 {
		return silenceFloor
	}
	db := 20 * math.Log10(v)
	if db < silenceFloor {
		return silenceFloor
	}
	return db
}

// DownmixStereo averages interleaved stereo PCM16 into mono.
func DownmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// EncodeInt16 writes samples into dst as PCM16 LE and returns the byte count.
// dst must hold at least 2*len(samples) bytes.
func EncodeInt16(dst []byte, samples []int16) int {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(s))
	}
	return len(samples) * 2
}

// Zero clears buf in place.
func Zero(buf []byte) {
	clear(buf)
}

// Resample converts mono PCM16 from one sample rate to another by linear
// interpolation. The input is returned unchanged when the rates match.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	in := len(pcm) / BytesPerSample
	if in == 0 {
		return nil
	}
	out := int(int64(in) * int64(to) / int64(from))
	dst := make([]byte, out*BytesPerSample)
	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	step := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		v := sample(j)
		if j+1 < in {
			frac := pos - float64(j)
			v += (sample(j+1) - v) * frac
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(math.Round(v))))
	}
	return dst
}

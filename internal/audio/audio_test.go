package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestMeasureLevel(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []byte
		wantRMS  float64
		wantPeak float64
		delta    float64
	}{
		{
			name:     "empty",
			pcm:      nil,
			wantRMS:  silenceFloor,
			wantPeak: silenceFloor,
		},
		{
			name:     "silence",
			pcm:      make([]byte, 64),
			wantRMS:  silenceFloor,
			wantPeak: silenceFloor,
		},
		{
			name:     "full scale square",
			pcm:      square(math.MinInt16, 64),
			wantRMS:  0,
			wantPeak: 0,
			delta:    0.01,
		},
		{
			name:     "half scale square",
			pcm:      square(-16384, 64),
			wantRMS:  -6.02,
			wantPeak: -6.02,
			delta:    0.01,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lvl := MeasureLevel(tt.pcm)
			if math.Abs(lvl.RMS-tt.wantRMS) > tt.delta {
				t.Errorf("RMS = %.2f, want %.2f", lvl.RMS, tt.wantRMS)
			}
			if math.Abs(lvl.Peak-tt.wantPeak) > tt.delta {
				t.Errorf("Peak = %.2f, want %.2f", lvl.Peak, tt.wantPeak)
			}
		})
	}
}

func TestMeasureLevelSine(t *testing.T) {
	lvl := MeasureLevel(generateTestAudio(16000, 100*time.Millisecond))
	// A sine at amplitude 16000 sits about 3 dB below its peak.
	if diff := lvl.Peak - lvl.RMS; diff < 2.5 || diff > 3.5 {
		t.Errorf("peak-RMS = %.2f dB, want about 3", diff)
	}
}

// square returns n samples alternating in sign at magnitude |v|. MinInt16 has
// no positive counterpart and is repeated as is.
func square(v int16, n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := v
		if i%2 == 1 && v != math.MinInt16 {
			s = -v
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDownmixStereo(t *testing.T) {
	in := make([]byte, 8)
	binary.LittleEndian.PutUint16(in[0:], uint16(int16(100)))
	binary.LittleEndian.PutUint16(in[2:], uint16(int16(300)))
	l1, r1 := int16(-1000), int16(-2000)
	binary.LittleEndian.PutUint16(in[4:], uint16(l1))
	binary.LittleEndian.PutUint16(in[6:], uint16(r1))

	out := DownmixStereo(in)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	if got := int16(binary.LittleEndian.Uint16(out[0:])); got != 200 {
		t.Errorf("frame 0 = %d, want 200", got)
	}
	if got := int16(binary.LittleEndian.Uint16(out[2:])); got != -1500 {
		t.Errorf("frame 1 = %d, want -1500", got)
	}
}

func TestEncodeInt16(t *testing.T) {
	dst := make([]byte, 6)
	n := EncodeInt16(dst, []int16{1, -1, 256})
	if n != 6 {
		t.Fatalf("n = %d, want 6", n)
	}
	want := []byte{1, 0, 0xff, 0xff, 0, 1}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst = %v, want %v", dst, want)
		}
	}

	Zero(dst)
	for _, b := range dst {
		if b != 0 {
			t.Fatal("Zero left non-zero bytes")
		}
	}
}

func TestResample(t *testing.T) {
	src := make([]byte, 8)
	EncodeInt16(src, []int16{0, 100, 200, 300})

	if got := Resample(src, 16000, 16000); &got[0] != &src[0] {
		t.Error("same-rate resample copied the buffer")
	}

	up := Resample(src, 8000, 16000)
	if len(up) != 16 {
		t.Fatalf("upsampled length = %d, want 16", len(up))
	}
	wantUp := []int16{0, 50, 100, 150, 200, 250, 300, 300}
	for i, want := range wantUp {
		if got := int16(binary.LittleEndian.Uint16(up[i*2:])); got != want {
			t.Errorf("up[%d] = %d, want %d", i, got, want)
		}
	}

	down := Resample(src, 16000, 8000)
	if len(down) != 4 {
		t.Fatalf("downsampled length = %d, want 4", len(down))
	}
	if got := int16(binary.LittleEndian.Uint16(down[2:])); got != 200 {
		t.Errorf("down[1] = %d, want 200", got)
	}

	if Resample(nil, 8000, 16000) != nil {
		t.Error("empty input produced output")
	}
}

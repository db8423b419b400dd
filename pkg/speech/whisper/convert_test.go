package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcmFromSamples(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestPcmToFloat32(t *testing.T) {
	pcm := pcmFromSamples([]int16{0, 16384, -16384, 32767, -32768})
	got := pcmToFloat32(pcm)

	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestPcmToFloat32OddTrailingByte(t *testing.T) {
	pcm := append(pcmFromSamples([]int16{100}), 0x7f)
	if got := pcmToFloat32(pcm); len(got) != 1 {
		t.Errorf("got %d samples, want 1", len(got))
	}
}

func TestPcmToFloat32Mono(t *testing.T) {
	t.Run("stereo averages channels", func(t *testing.T) {
		// Two frames: (16384, 0) and (-16384, -16384).
		pcm := pcmFromSamples([]int16{16384, 0, -16384, -16384})
		got := pcmToFloat32Mono(pcm, 2)
		want := []float32{0.25, -0.5}
		if len(got) != len(want) {
			t.Fatalf("got %d samples, want %d", len(got), len(want))
		}
		for i := range want {
			if math.Abs(float64(got[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
			}
		}
	})

	t.Run("mono passthrough", func(t *testing.T) {
		pcm := pcmFromSamples([]int16{16384, -16384})
		got := pcmToFloat32Mono(pcm, 1)
		if len(got) != 2 || got[0] != 0.5 || got[1] != -0.5 {
			t.Errorf("got %v, want [0.5 -0.5]", got)
		}
	})
}

func TestComputeRMS(t *testing.T) {
	t.Run("silence is zero", func(t *testing.T) {
		pcm := pcmFromSamples(make([]int16, 160))
		if got := computeRMS(pcm); got != 0 {
			t.Errorf("RMS = %f, want 0", got)
		}
	})

	t.Run("constant half amplitude", func(t *testing.T) {
		samples := make([]int16, 160)
		for i := range samples {
			samples[i] = 16384
		}
		got := computeRMS(pcmFromSamples(samples))
		if math.Abs(got-0.5) > 1e-6 {
			t.Errorf("RMS = %f, want 0.5", got)
		}
	})

	t.Run("empty chunk", func(t *testing.T) {
		if got := computeRMS(nil); got != 0 {
			t.Errorf("RMS = %f, want 0", got)
		}
	})
}

func TestChunkDurationMs(t *testing.T) {
	// 16 kHz mono 16-bit: 32 bytes per millisecond.
	if got := chunkDurationMs(make([]byte, 3200), 16000, 1); got != 100 {
		t.Errorf("duration = %d ms, want 100", got)
	}
	// Stereo doubles the byte rate.
	if got := chunkDurationMs(make([]byte, 3200), 16000, 2); got != 50 {
		t.Errorf("stereo duration = %d ms, want 50", got)
	}
	if got := chunkDurationMs(make([]byte, 100), 0, 1); got != 0 {
		t.Errorf("zero sample rate duration = %d, want 0", got)
	}
}

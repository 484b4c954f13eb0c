package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

// tone generates a PCM16 mono sine wave.
func tone(freqHz float64, rate, durationMs int, amplitude float64) []byte {
	samples := rate * durationMs / 1000
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := amplitude * math.Sin(2*math.Pi*freqHz*float64(i)/float64(rate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32000)))
	}
	return out
}

// dominantFreq estimates frequency from zero crossings.
func dominantFreq(pcm []byte, rate int) float64 {
	samples := len(pcm) / 2
	if samples < 2 {
		return 0
	}
	crossings := 0
	prev := int16(binary.LittleEndian.Uint16(pcm[:2]))
	for i := 1; i < samples; i++ {
		cur := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		if (prev < 0 && cur >= 0) || (prev >= 0 && cur < 0) {
			crossings++
		}
		prev = cur
	}
	duration := float64(samples) / float64(rate)
	return float64(crossings) / 2 / duration
}

func TestMulawRoundTrip_PreservesDominantFrequency(t *testing.T) {
	in := tone(440, ModelInputRate, 200, 0.5)

	frames, err := PCM16kToMulawFrames(in)
	if err != nil {
		t.Fatalf("PCM16kToMulawFrames: %v", err)
	}
	if len(frames) == 0 {
		t.Fatalf("expected mulaw frames, got none")
	}
	for i, f := range frames {
		if len(f) != TelephonyRate/1000*FrameMs {
			t.Fatalf("frame %d: len=%d, want %d", i, len(f), TelephonyRate/1000*FrameMs)
		}
	}
	// 200ms of audio is ten 20ms frames, allow one frame of resampler rounding.
	if got := len(frames); got < 9 || got > 10 {
		t.Fatalf("frame count=%d, want 9..10", got)
	}

	var mulaw []byte
	for _, f := range frames {
		mulaw = append(mulaw, f...)
	}
	back, err := MulawToPCM16k(mulaw)
	if err != nil {
		t.Fatalf("MulawToPCM16k: %v", err)
	}

	got := dominantFreq(back, ModelInputRate)
	if math.Abs(got-440) > 40 {
		t.Fatalf("dominant frequency after round trip = %.1fHz, want 440Hz +-40", got)
	}
}

func TestResample_SymmetryKeepsDuration(t *testing.T) {
	// Whole 20ms frames at 16kHz.
	in := tone(300, ModelInputRate, 100, 0.4)

	up, err := Resample(in, ModelInputRate, ModelOutputRate)
	if err != nil {
		t.Fatalf("16k->24k: %v", err)
	}
	down, err := Resample(up, ModelOutputRate, ModelInputRate)
	if err != nil {
		t.Fatalf("24k->16k: %v", err)
	}

	frame := FrameBytes(ModelInputRate)
	if diff := len(down) - len(in); diff > frame || diff < -frame {
		t.Fatalf("round-trip length %d, want %d +-%d", len(down), len(in), frame)
	}
}

func TestResample_SameRateCopies(t *testing.T) {
	in := tone(200, ModelInputRate, 20, 0.3)
	out, err := Resample(in, ModelInputRate, ModelInputRate)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len=%d, want %d", len(out), len(in))
	}
	// Must be a copy, not an alias.
	out[0] ^= 0xff
	if out[0] == in[0] {
		t.Fatalf("output aliases input")
	}
}

func TestFrame_DropsTrailingPartial(t *testing.T) {
	size := FrameBytes(ModelInputRate)

	full := make([]byte, size*3)
	if got := len(Frame(full, ModelInputRate)); got != 3 {
		t.Fatalf("frames=%d, want 3", got)
	}

	partial := make([]byte, size*3+size/2)
	frames := Frame(partial, ModelInputRate)
	if got := len(frames); got != 3 {
		t.Fatalf("frames=%d, want 3 (partial must be dropped)", got)
	}
	for i, f := range frames {
		if len(f) != size {
			t.Fatalf("frame %d: len=%d, want %d", i, len(f), size)
		}
	}

	if got := Frame(make([]byte, size-1), ModelInputRate); got != nil {
		t.Fatalf("sub-frame input should produce no frames, got %d", len(got))
	}
	if got := Frame(nil, ModelInputRate); got != nil {
		t.Fatalf("empty input should produce no frames")
	}
}

func TestMulawToPCM16k_EmptyInput(t *testing.T) {
	out, err := MulawToPCM16k(nil)
	if err != nil {
		t.Fatalf("MulawToPCM16k: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(out))
	}
}

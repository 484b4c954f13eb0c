// Package audio converts between the two fixed audio profiles the bridge
// speaks: 8kHz G.711 μ-law on the telephony side and 16-bit linear PCM at
// 16kHz (model input) or 24kHz (model output) on the AI side.
//
// Every conversion is stateless: resamplers are built fresh per call so no
// filter state leaks between invocations.
package audio

import (
	"bytes"
	"fmt"

	"github.com/zaf/g711"
	"github.com/zaf/resample"
)

// Fixed sample rates for the two supported profiles.
const (
	TelephonyRate   = 8000
	ModelInputRate  = 16000
	ModelOutputRate = 24000
)

// FrameMs is the frame duration used throughout the bridge. The μ-law
// framing toward the carrier and the VAD frame counts both assume 20ms.
const FrameMs = 20

// FrameBytes returns the size in bytes of one 20ms PCM16 mono frame at the
// given sample rate.
func FrameBytes(rate int) int {
	return rate / 1000 * FrameMs * 2
}

// DecodeMulaw converts 8kHz G.711 μ-law to 16-bit linear PCM at 8kHz.
func DecodeMulaw(b []byte) []byte {
	return g711.DecodeUlaw(b)
}

// EncodeMulaw converts 16-bit linear PCM at 8kHz to G.711 μ-law.
func EncodeMulaw(pcm []byte) []byte {
	return g711.EncodeUlaw(pcm)
}

// Resample converts 16-bit mono PCM between sample rates. A new soxr
// resampler is constructed per call and flushed on Close, so the output
// carries no state into the next invocation.
func Resample(pcm []byte, from, to int) ([]byte, error) {
	if from == to {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}
	if len(pcm) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	r, err := resample.New(&buf, float64(from), float64(to), 1, resample.I16, resample.HighQ)
	if err != nil {
		return nil, fmt.Errorf("create resampler %d->%d: %w", from, to, err)
	}
	if _, err := r.Write(pcm); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("resample %d->%d: %w", from, to, err)
	}
	// Close flushes the tail of the filter.
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("flush resampler %d->%d: %w", from, to, err)
	}
	return buf.Bytes(), nil
}

// Frame cuts PCM16 mono audio into fixed 20ms frames at the given rate.
// A trailing partial frame is dropped, not padded; downstream VAD frame
// counts depend on that.
func Frame(pcm []byte, rate int) [][]byte {
	size := FrameBytes(rate)
	if size <= 0 || len(pcm) < size {
		return nil
	}
	frames := make([][]byte, 0, len(pcm)/size)
	for len(pcm) >= size {
		frames = append(frames, pcm[:size:size])
		pcm = pcm[size:]
	}
	return frames
}

// MulawToPCM16k decodes an inbound carrier payload to 16kHz PCM16: μ-law
// 8k -> linear 8k -> linear 16k.
func MulawToPCM16k(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return Resample(DecodeMulaw(b), TelephonyRate, ModelInputRate)
}

// PCM16kToMulawFrames encodes outbound model audio for the carrier: linear
// 16k -> linear 8k, cut into 20ms frames, each frame encoded to μ-law.
// The trailing partial frame is dropped.
func PCM16kToMulawFrames(pcm []byte) ([][]byte, error) {
	pcm8k, err := Resample(pcm, ModelInputRate, TelephonyRate)
	if err != nil {
		return nil, err
	}
	frames := Frame(pcm8k, TelephonyRate)
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		out = append(out, EncodeMulaw(f))
	}
	return out, nil
}

// PCM24kTo16k downsamples model-native 24kHz output to the bridge's 16kHz
// working rate.
func PCM24kTo16k(pcm []byte) ([]byte, error) {
	return Resample(pcm, ModelOutputRate, ModelInputRate)
}

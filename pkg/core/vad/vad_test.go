package vad

import (
	"errors"
	"testing"

	"github.com/craftline/voicebridge/pkg/core/audio"
)

// fakeClassifier marks a frame voiced when its first byte is nonzero.
type fakeClassifier struct {
	err error
}

func (c *fakeClassifier) Classify(rate int, frame []byte) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return frame[0] != 0, nil
}

func chunk(voiced bool, frames int) []byte {
	size := audio.FrameBytes(audio.ModelInputRate)
	out := make([]byte, size*frames)
	if voiced {
		for i := 0; i < frames; i++ {
			out[i*size] = 1
		}
	}
	return out
}

func TestDetector_AllSilenceEmitsNothing(t *testing.T) {
	d := NewDetector(&fakeClassifier{})
	for i := 0; i < 50; i++ {
		if d.ProcessChunk(chunk(false, 3)) {
			t.Fatalf("chunk %d: barge-in on silence", i)
		}
	}
	if d.State() != StateIdle {
		t.Fatalf("state=%v, want idle", d.State())
	}
}

func TestDetector_OneSignalPerTransitionNotPerFrame(t *testing.T) {
	d := NewDetector(&fakeClassifier{})

	if d.ProcessChunk(chunk(false, 2)) {
		t.Fatalf("silence should not trigger")
	}
	// Many voiced frames in one chunk: exactly one signal.
	if !d.ProcessChunk(chunk(true, 10)) {
		t.Fatalf("expected barge-in on silence->voiced")
	}
	// Continued speech: no further signal.
	for i := 0; i < 5; i++ {
		if d.ProcessChunk(chunk(true, 10)) {
			t.Fatalf("chunk %d: repeated signal while already speaking", i)
		}
	}
	if d.State() != StateSpeaking {
		t.Fatalf("state=%v, want speaking", d.State())
	}

	// Back to silence, then voiced again: one more signal.
	if d.ProcessChunk(chunk(false, 2)) {
		t.Fatalf("voiced->silence should not signal")
	}
	if d.State() != StateIdle {
		t.Fatalf("state=%v, want idle after silent chunk", d.State())
	}
	if !d.ProcessChunk(chunk(true, 1)) {
		t.Fatalf("expected barge-in on second transition")
	}
}

func TestDetector_ClassifierErrorCountsAsSilence(t *testing.T) {
	d := NewDetector(&fakeClassifier{err: errors.New("model unavailable")})
	if d.ProcessChunk(chunk(true, 4)) {
		t.Fatalf("classifier errors must not trigger barge-in")
	}
	if d.State() != StateIdle {
		t.Fatalf("state=%v, want idle", d.State())
	}
}

func TestDetector_PartialFrameIgnored(t *testing.T) {
	d := NewDetector(&fakeClassifier{})
	// Less than one full frame: no classification, stays idle.
	short := make([]byte, audio.FrameBytes(audio.ModelInputRate)/2)
	short[0] = 1
	if d.ProcessChunk(short) {
		t.Fatalf("partial frame must not be classified")
	}
}

func TestNewWebRTCClassifier_RejectsBadAggressiveness(t *testing.T) {
	if _, err := NewWebRTCClassifier(4); err == nil {
		t.Fatalf("expected error for aggressiveness 4")
	}
	if _, err := NewWebRTCClassifier(-1); err == nil {
		t.Fatalf("expected error for aggressiveness -1")
	}
}

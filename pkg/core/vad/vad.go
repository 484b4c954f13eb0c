// Package vad classifies 20ms PCM frames as speech or silence and turns the
// classifications into barge-in signals.
//
// The decision is purely local: an Idle->Speaking transition fires without
// waiting for the upstream model to acknowledge anything, so the caller
// stops hearing stale audio even if the model has not yet reacted.
package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"github.com/craftline/voicebridge/pkg/core/audio"
)

// DefaultAggressiveness is the moderately aggressive WebRTC VAD mode.
const DefaultAggressiveness = 2

// Classifier decides whether a single 20ms frame contains speech.
type Classifier interface {
	Classify(rate int, frame []byte) (bool, error)
}

// WebRTCClassifier wraps the WebRTC voice-activity model at a fixed
// aggressiveness (0 least, 3 most aggressive).
type WebRTCClassifier struct {
	vad *webrtcvad.VAD
}

// NewWebRTCClassifier builds a classifier with the given aggressiveness.
func NewWebRTCClassifier(aggressiveness int) (*WebRTCClassifier, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad aggressiveness must be 0..3, got %d", aggressiveness)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}
	return &WebRTCClassifier{vad: v}, nil
}

// Classify implements Classifier.
func (c *WebRTCClassifier) Classify(rate int, frame []byte) (bool, error) {
	return c.vad.Process(rate, frame)
}

// State is the per-connection barge-in state.
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Detector runs the Idle/Speaking state machine over successive chunks of
// 16kHz PCM. It is owned by a single connection and is not safe for
// concurrent use.
type Detector struct {
	classifier Classifier
	rate       int
	state      State
}

// NewDetector creates a detector over 16kHz input.
func NewDetector(c Classifier) *Detector {
	return &Detector{
		classifier: c,
		rate:       audio.ModelInputRate,
		state:      StateIdle,
	}
}

// ProcessChunk classifies every full 20ms frame in the chunk and advances
// the state machine. It returns true exactly once per Idle->Speaking
// transition, never once per voiced frame. A chunk with zero voiced frames
// moves Speaking back to Idle. Classifier errors count the frame as
// silence.
func (d *Detector) ProcessChunk(pcm []byte) bool {
	voiced := false
	for _, frame := range audio.Frame(pcm, d.rate) {
		active, err := d.classifier.Classify(d.rate, frame)
		if err != nil {
			continue
		}
		if active {
			voiced = true
			break
		}
	}

	switch {
	case voiced && d.state == StateIdle:
		d.state = StateSpeaking
		return true
	case !voiced:
		d.state = StateIdle
	}
	return false
}

// State returns the current barge-in state.
func (d *Detector) State() State {
	return d.state
}

// Package speech wraps one bidirectional streaming connection to the
// speech-to-speech model. The session accepts raw 16kHz PCM frames and
// yields a typed event stream of transcripts and audio chunks.
package speech

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// DefaultModel is the live speech-to-speech model used when none is
// configured.
const DefaultModel = "gemini-2.0-flash-live-001"

// Config configures one speech session.
type Config struct {
	APIKey            string
	Model             string
	SystemInstruction string
}

// Stream is the session surface the media bridges consume. A Stream is
// opened once per bridge pair and must be closed on every exit path.
type Stream interface {
	// SendPCM forwards raw 16kHz PCM16 as realtime input, no extra framing.
	SendPCM(pcm []byte) error
	// Recv returns the next decoded event. It returns an error when the
	// session ends or fails.
	Recv() (Event, error)
	// Close releases the session. Safe to call more than once.
	Close() error
}

// Dialer opens speech sessions. The production implementation connects to
// the live model; tests substitute recording fakes.
type Dialer interface {
	Connect(ctx context.Context, cfg Config) (Stream, error)
}

// LiveDialer connects to the Gemini Live API.
type LiveDialer struct{}

// Connect opens one live connection configured for audio responses with
// input and output transcription, treating the start of caller audio
// activity as an interruption signal.
func (LiveDialer) Connect(ctx context.Context, cfg Config) (Stream, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("speech: api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: create client: %w", err)
	}

	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			ActivityHandling: genai.ActivityHandlingStartOfActivityInterrupts,
		},
	}
	if s := strings.TrimSpace(cfg.SystemInstruction); s != "" {
		connectCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s}},
		}
	}

	raw, err := client.Live.Connect(ctx, model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("speech: connect live session: %w", err)
	}
	return &liveStream{raw: raw}, nil
}

type liveStream struct {
	raw *genai.Session

	pending []Event

	closeOnce sync.Once
	closeErr  error
}

func (s *liveStream) SendPCM(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	err := s.raw.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: "audio/pcm;rate=16000",
		},
	})
	if err != nil {
		return fmt.Errorf("speech: send audio: %w", err)
	}
	return nil
}

// Recv yields decoded events in arrival order. One server message may
// expand into several events; the extras are buffered.
func (s *liveStream) Recv() (Event, error) {
	for len(s.pending) == 0 {
		msg, err := s.raw.Receive()
		if err != nil {
			return nil, err
		}
		s.pending = decodeServerMessage(msg)
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *liveStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.raw.Close()
	})
	return s.closeErr
}

// decodeServerMessage flattens one live server message into typed events.
func decodeServerMessage(msg *genai.LiveServerMessage) []Event {
	if msg == nil || msg.ServerContent == nil {
		return []Event{Other{}}
	}
	sc := msg.ServerContent

	var events []Event
	if sc.Interrupted {
		events = append(events, Interrupted{})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, InputTranscript{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, OutputTranscript{Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			events = append(events, AudioChunk{
				PCM:        part.InlineData.Data,
				SampleRate: rateFromMIME(part.InlineData.MIMEType),
			})
		}
	}
	if sc.TurnComplete {
		events = append(events, TurnComplete{})
	}
	if len(events) == 0 {
		return []Event{Other{}}
	}
	return events
}

// rateFromMIME extracts the sample rate from tags like "audio/pcm;rate=24000".
// The model's native output rate is assumed only when the tag is absent.
func rateFromMIME(mime string) int {
	for _, part := range strings.Split(mime, ";") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "rate="); ok {
			if n, err := strconv.Atoi(rest); err == nil && n > 0 {
				return n
			}
		}
	}
	return 24000
}

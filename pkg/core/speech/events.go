package speech

// Event is one decoded server event from the speech session. The provider's
// loosely-typed messages are decoded exactly once, at this boundary; bridge
// code switches on the concrete type instead of probing optional fields.
type Event interface {
	// EventType returns the event type string for logging.
	EventType() string
}

// InputTranscript carries recognized caller speech.
type InputTranscript struct {
	Text string
}

func (InputTranscript) EventType() string { return "input.transcript" }

// OutputTranscript carries the text of the AI's spoken reply.
type OutputTranscript struct {
	Text string
}

func (OutputTranscript) EventType() string { return "output.transcript" }

// AudioChunk carries synthesized PCM16 audio. SampleRate is taken from the
// payload's own MIME tag and may differ from the input rate; callers must
// branch on it, never assume a fixed rate.
type AudioChunk struct {
	PCM        []byte
	SampleRate int
}

func (AudioChunk) EventType() string { return "audio.chunk" }

// Interrupted signals that the model stopped generation because caller
// audio activity started.
type Interrupted struct{}

func (Interrupted) EventType() string { return "interrupted" }

// TurnComplete signals the end of one model turn.
type TurnComplete struct{}

func (TurnComplete) EventType() string { return "turn.complete" }

// Other is any server event the bridge has no use for.
type Other struct{}

func (Other) EventType() string { return "other" }

package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/craftline/voicebridge/pkg/bridge/session"
	"github.com/craftline/voicebridge/pkg/core"
	"github.com/craftline/voicebridge/pkg/core/audio"
	"github.com/craftline/voicebridge/pkg/core/duplex"
	"github.com/craftline/voicebridge/pkg/core/speech"
	"github.com/craftline/voicebridge/pkg/core/vad"
)

// Conn is the subset of the websocket connection the bridge drives.
// *websocket.Conn satisfies it; tests substitute scripted fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Bridge runs one phone call: media stream frames in, speech service
// events out, transcript rows on the side. One Bridge value is shared
// across calls; all per-call state lives in Run.
type Bridge struct {
	Log                *slog.Logger
	Dialer             speech.Dialer
	Speech             speech.Config
	Resolver           session.Resolver
	Recorder           session.Recorder
	VADAggressiveness  int
	MaxSessionDuration time.Duration
	WriteTimeout       time.Duration

	// Classifier overrides the default WebRTC frame classifier when set.
	Classifier vad.Classifier
}

// streamWriter serializes writes to the socket. The inbound loop writes
// clear frames on barge-in while the outbound loop writes media, and
// websocket connections allow only one concurrent writer.
type streamWriter struct {
	mu      sync.Mutex
	conn    Conn
	timeout time.Duration
}

func (w *streamWriter) writeText(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// callState is everything recorded about the call once the start frame
// arrives. SessionID stays Nil when session creation failed; transcript
// writes are skipped in that case but the call itself continues.
type callState struct {
	streamSID string
	sessionID uuid.UUID
	identity  session.Identity
}

// Run serves one media stream connection until the call ends. It blocks
// until both duplex loops have finished and the session row is closed.
func (b *Bridge) Run(ctx context.Context, conn Conn) error {
	start, err := b.awaitStart(conn)
	if err != nil {
		return err
	}
	if start == nil {
		return nil
	}

	from := start.Start.CustomParameters["from"]
	callSID := start.Start.CustomParameters["callSid"]
	if callSID == "" {
		callSID = start.Start.CallSID
	}
	log := b.Log.With("call_sid", callSID, "stream_sid", start.Start.StreamSID)

	state := callState{streamSID: start.Start.StreamSID}

	identity, err := b.Resolver.Resolve(ctx, from)
	if err != nil {
		log.Warn("caller resolution failed, continuing unlinked", "error", err)
	} else {
		state.identity = identity
	}

	sessionID, err := b.Recorder.CreateSession(ctx, session.NewSession{
		Channel:   session.ChannelTelephony,
		CallSID:   callSID,
		StreamSID: start.Start.StreamSID,
		FromPhone: from,
		ClientID:  state.identity.ClientID,
		UserID:    state.identity.UserID,
	})
	if err != nil {
		log.Error("session create failed, transcript disabled", "error", err)
	} else {
		state.sessionID = sessionID
	}
	defer b.closeSession(ctx, log, state.sessionID)

	if b.MaxSessionDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.MaxSessionDuration)
		defer cancel()
	}

	stream, err := b.Dialer.Connect(ctx, b.Speech)
	if err != nil {
		return core.NewAIServiceError(fmt.Sprintf("connect speech session: %v", err))
	}
	defer stream.Close()

	classifier := b.Classifier
	if classifier == nil {
		classifier, err = vad.NewWebRTCClassifier(b.VADAggressiveness)
		if err != nil {
			return err
		}
	}
	detector := vad.NewDetector(classifier)

	writer := &streamWriter{conn: conn, timeout: b.WriteTimeout}
	log.Info("call bridged", "linked", state.identity.Known())

	err = duplex.Run(ctx,
		func(ctx context.Context) error {
			return b.inboundLoop(ctx, conn, writer, stream, detector, state)
		},
		func(ctx context.Context) error {
			return b.outboundLoop(ctx, writer, stream, state, log)
		},
	)
	log.Info("call ended", "error", err)
	return err
}

// awaitStart reads frames until the start frame arrives. A stop frame or
// a normal socket close before start means the call never got going;
// that is a clean nil return, not an error.
func (b *Bridge) awaitStart(conn Conn) (*StartFrame, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if closedNormally(err) {
				return nil, nil
			}
			return nil, core.NewTransportError(fmt.Sprintf("read media stream: %v", err))
		}
		msg, err := DecodeStreamMessage(data)
		if err != nil {
			b.Log.Warn("dropping undecodable media stream frame", "error", err)
			continue
		}
		switch frame := msg.(type) {
		case StartFrame:
			return &frame, nil
		case StopFrame:
			return nil, nil
		default:
			// connected, stray media, unknown: keep waiting
		}
	}
}

// inboundLoop moves caller audio to the speech service. Each media frame
// is transcoded from mu-law 8k to PCM 16k, run through the voice
// detector, and forwarded. A detected start of speech sends a clear
// frame so buffered playback stops right away.
func (b *Bridge) inboundLoop(ctx context.Context, conn Conn, writer *streamWriter, stream speech.Stream, detector *vad.Detector, state callState) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || closedNormally(err) {
				return nil
			}
			return core.NewTransportError(fmt.Sprintf("read media stream: %v", err))
		}
		msg, err := DecodeStreamMessage(data)
		if err != nil {
			b.Log.Warn("dropping undecodable media stream frame", "error", err)
			continue
		}

		switch frame := msg.(type) {
		case MediaFrame:
			mulaw, err := frame.DecodePayload()
			if err != nil {
				b.Log.Warn("dropping bad media payload", "error", err)
				continue
			}
			pcm, err := audio.MulawToPCM16k(mulaw)
			if err != nil {
				return core.NewTransportError(fmt.Sprintf("transcode inbound audio: %v", err))
			}
			if detector.ProcessChunk(pcm) {
				clearFrame, err := EncodeClearFrame(state.streamSID)
				if err == nil {
					if err := writer.writeText(clearFrame); err != nil {
						return core.NewTransportError(fmt.Sprintf("send clear frame: %v", err))
					}
				}
			}
			if err := stream.SendPCM(pcm); err != nil {
				return core.NewAIServiceError(fmt.Sprintf("forward caller audio: %v", err))
			}
		case StopFrame:
			return nil
		default:
			// start duplicates, marks, unknown events: no action
		}
	}
}

// outboundLoop moves speech service events to the caller: audio chunks
// become mu-law media frames, transcripts become recorder rows, and an
// interruption becomes a clear frame.
func (b *Bridge) outboundLoop(ctx context.Context, writer *streamWriter, stream speech.Stream, state callState, log *slog.Logger) error {
	stop := context.AfterFunc(ctx, func() { stream.Close() })
	defer stop()

	for {
		ev, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return core.NewAIServiceError(fmt.Sprintf("receive speech event: %v", err))
		}

		switch ev := ev.(type) {
		case speech.AudioChunk:
			pcm := ev.PCM
			if ev.SampleRate != audio.ModelInputRate {
				pcm, err = audio.Resample(ev.PCM, ev.SampleRate, audio.ModelInputRate)
				if err != nil {
					return core.NewAIServiceError(fmt.Sprintf("transcode outbound audio: %v", err))
				}
			}
			frames, err := audio.PCM16kToMulawFrames(pcm)
			if err != nil {
				return core.NewAIServiceError(fmt.Sprintf("transcode outbound audio: %v", err))
			}
			for _, mulaw := range frames {
				data, err := EncodeMediaFrame(state.streamSID, mulaw)
				if err != nil {
					return core.NewTransportError(fmt.Sprintf("encode media frame: %v", err))
				}
				if err := writer.writeText(data); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return core.NewTransportError(fmt.Sprintf("send media frame: %v", err))
				}
			}
		case speech.InputTranscript:
			b.recordLine(ctx, log, state, session.SenderCaller, ev.Text)
		case speech.OutputTranscript:
			b.recordLine(ctx, log, state, session.SenderAI, ev.Text)
		case speech.Interrupted:
			clearFrame, err := EncodeClearFrame(state.streamSID)
			if err == nil {
				if err := writer.writeText(clearFrame); err != nil && ctx.Err() == nil {
					return core.NewTransportError(fmt.Sprintf("send clear frame: %v", err))
				}
			}
		default:
			// turn completion and unclassified events need no action
		}
	}
}

// recordLine persists one transcript line, mirroring it into the linked
// client's chat when the caller is known. Persistence failures are
// logged and swallowed.
func (b *Bridge) recordLine(ctx context.Context, log *slog.Logger, state callState, sender session.Sender, text string) {
	if text == "" || state.sessionID == uuid.Nil {
		return
	}
	if err := b.Recorder.AppendMessage(ctx, state.sessionID, sender, text); err != nil {
		log.Warn("transcript append failed", "error", err)
	}
	if state.identity.Known() {
		if err := b.Recorder.MirrorChatMessage(ctx, *state.identity.ClientID, sender, text); err != nil {
			log.Warn("chat mirror failed", "error", err)
		}
	}
}

// closeSession marks the session ended on a context detached from the
// call, since the call context is usually already cancelled by teardown.
func (b *Bridge) closeSession(ctx context.Context, log *slog.Logger, sessionID uuid.UUID) {
	if sessionID == uuid.Nil {
		return
	}
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := b.Recorder.EndSession(endCtx, sessionID); err != nil {
		log.Warn("session close failed", "error", err)
	}
}

func closedNormally(err error) bool {
	return errors.Is(err, io.EOF) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

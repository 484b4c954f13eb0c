package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
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
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Bridge runs one authenticated microphone session. The handler owns the
// handshake; Run starts after the voice token has been verified.
type Bridge struct {
	Log                *slog.Logger
	Dialer             speech.Dialer
	Speech             speech.Config
	Recorder           session.Recorder
	VADAggressiveness  int
	MaxSessionDuration time.Duration
	WriteTimeout       time.Duration

	// Classifier overrides the default WebRTC frame classifier when set.
	Classifier vad.Classifier
}

// Run serves one browser session until the client stops or either side
// fails. There is no carrier to send a clear frame to, so barge-in is
// handled by suppressing stale outbound audio until the speech service
// acknowledges the interruption.
func (b *Bridge) Run(ctx context.Context, conn Conn, identity session.Identity, correlationID string) error {
	log := b.Log.With("channel", "browser")
	if correlationID != "" {
		log = log.With("correlation_id", correlationID)
	}

	var metadata map[string]any
	if correlationID != "" {
		metadata = map[string]any{"correlation_id": correlationID}
	}
	sessionID, err := b.Recorder.CreateSession(ctx, session.NewSession{
		Channel:  session.ChannelBrowser,
		ClientID: identity.ClientID,
		UserID:   identity.UserID,
		Metadata: metadata,
	})
	if err != nil {
		log.Error("session create failed, transcript disabled", "error", err)
		sessionID = uuid.Nil
	}
	defer b.closeSession(ctx, log, sessionID)

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

	// Set while the user is talking over the assistant; cleared when the
	// speech service confirms the interruption or finishes the turn.
	var suppress atomic.Bool

	log.Info("browser session bridged", "linked", identity.Known())
	err = duplex.Run(ctx,
		func(ctx context.Context) error {
			return b.inboundLoop(ctx, conn, stream, detector, &suppress)
		},
		func(ctx context.Context) error {
			return b.outboundLoop(ctx, conn, stream, sessionID, identity, &suppress, log)
		},
	)
	log.Info("browser session ended", "error", err)
	return err
}

func (b *Bridge) inboundLoop(ctx context.Context, conn Conn, stream speech.Stream, detector *vad.Detector, suppress *atomic.Bool) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || closedNormally(err) {
				return nil
			}
			return core.NewTransportError(fmt.Sprintf("read browser socket: %v", err))
		}
		msg, err := DecodeClientMessage(data)
		if err != nil {
			return core.NewTransportError(err.Error())
		}

		switch msg := msg.(type) {
		case AudioMessage:
			pcm, err := msg.DecodeData()
			if err != nil {
				return core.NewTransportError(err.Error())
			}
			if detector.ProcessChunk(pcm) {
				suppress.Store(true)
			}
			if err := stream.SendPCM(pcm); err != nil {
				return core.NewAIServiceError(fmt.Sprintf("forward microphone audio: %v", err))
			}
		case StopMessage:
			return nil
		case StartMessage:
			// Duplicate start after the handshake carries nothing new.
		}
	}
}

func (b *Bridge) outboundLoop(ctx context.Context, conn Conn, stream speech.Stream, sessionID uuid.UUID, identity session.Identity, suppress *atomic.Bool, log *slog.Logger) error {
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
			if suppress.Load() {
				continue
			}
			pcm := ev.PCM
			if ev.SampleRate != audio.ModelInputRate {
				pcm, err = audio.Resample(ev.PCM, ev.SampleRate, audio.ModelInputRate)
				if err != nil {
					return core.NewAIServiceError(fmt.Sprintf("transcode outbound audio: %v", err))
				}
			}
			data, err := EncodeAudioMessage(pcm, audio.ModelInputRate)
			if err != nil {
				return core.NewTransportError(fmt.Sprintf("encode audio message: %v", err))
			}
			if b.WriteTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(b.WriteTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return core.NewTransportError(fmt.Sprintf("send audio message: %v", err))
			}
		case speech.InputTranscript:
			b.recordLine(ctx, log, sessionID, identity, session.SenderCaller, ev.Text)
		case speech.OutputTranscript:
			b.recordLine(ctx, log, sessionID, identity, session.SenderAI, ev.Text)
		case speech.Interrupted:
			suppress.Store(false)
		case speech.TurnComplete:
			suppress.Store(false)
		}
	}
}

func (b *Bridge) recordLine(ctx context.Context, log *slog.Logger, sessionID uuid.UUID, identity session.Identity, sender session.Sender, text string) {
	if text == "" || sessionID == uuid.Nil {
		return
	}
	if err := b.Recorder.AppendMessage(ctx, sessionID, sender, text); err != nil {
		log.Warn("transcript append failed", "error", err)
	}
	if identity.Known() {
		if err := b.Recorder.MirrorChatMessage(ctx, *identity.ClientID, sender, text); err != nil {
			log.Warn("chat mirror failed", "error", err)
		}
	}
}

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

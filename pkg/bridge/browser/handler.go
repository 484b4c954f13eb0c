package browser

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/craftline/voicebridge/pkg/bridge/auth"
	"github.com/craftline/voicebridge/pkg/bridge/lifecycle"
	"github.com/craftline/voicebridge/pkg/bridge/mw"
	"github.com/craftline/voicebridge/pkg/bridge/session"
	"github.com/craftline/voicebridge/pkg/core"
)

// Handler upgrades browser voice sockets, performs the start handshake
// and hands verified sessions to the Bridge. Everything before a valid
// token stays resource-free: no recorder call, no speech connection.
type Handler struct {
	Bridge      *Bridge
	Lifecycle   *lifecycle.Lifecycle
	Logger      *slog.Logger
	TokenSecret string

	HandshakeTimeout time.Duration
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, core.NewTransportError("method not allowed"))
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		mw.WriteJSONError(w, http.StatusServiceUnavailable, core.NewTransportError("draining"))
		return
	}

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.HandshakeTimeout,
		CheckOrigin:      func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	timeout := h.HandshakeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	start, claims, err := h.handshake(conn)
	if err != nil {
		h.rejectConn(conn, err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if err := h.Bridge.Run(r.Context(), conn, identityFromClaims(claims), start.CorrelationID); err != nil {
		h.Logger.Error("browser bridge failed", "error", err)
	}
}

// handshake reads the first frame and verifies the voice token. Any
// deviation is an error before a session exists.
func (h Handler) handshake(conn Conn) (StartMessage, *auth.VoiceClaims, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return StartMessage{}, nil, core.NewTransportError("failed to read start message")
	}
	msg, err := DecodeClientMessage(data)
	if err != nil {
		return StartMessage{}, nil, core.NewTransportError(err.Error())
	}
	start, ok := msg.(StartMessage)
	if !ok {
		return StartMessage{}, nil, core.NewTransportError("first message must be start")
	}
	claims, err := auth.VerifyVoiceToken(h.TokenSecret, start.Token)
	if err != nil {
		return StartMessage{}, nil, err
	}
	return start, claims, nil
}

func (h Handler) rejectConn(conn Conn, err error) {
	h.Logger.Warn("browser handshake rejected", "error", err)
	coreErr, ok := err.(*core.Error)
	if !ok {
		coreErr = core.NewTransportError("handshake failed")
	}
	_ = conn.WriteMessage(websocket.TextMessage, EncodeErrorMessage(coreErr))
	_ = conn.Close()
}

// identityFromClaims maps optional token claims to a session identity.
// Claims that do not parse as UUIDs are ignored rather than fatal; the
// token signature already proved who issued them.
func identityFromClaims(claims *auth.VoiceClaims) session.Identity {
	var identity session.Identity
	if id, err := uuid.Parse(claims.ClientID); err == nil {
		identity.ClientID = &id
	}
	if id, err := uuid.Parse(claims.UserID); err == nil {
		identity.UserID = &id
	}
	return identity
}

package browser

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/craftline/voicebridge/pkg/bridge/auth"
	"github.com/craftline/voicebridge/pkg/bridge/lifecycle"
	"github.com/craftline/voicebridge/pkg/core/speech"
)

const testSecret = "test-voice-secret"

func signVoiceToken(t *testing.T, secret, tokenUse string, ttl time.Duration, clientID string) string {
	t.Helper()
	claims := auth.VoiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		TokenUse: tokenUse,
		ClientID: clientID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestHandler(recorder *fakeRecorder, stream speech.Stream) Handler {
	return Handler{
		Bridge:           newTestBridge(fakeDialer{stream: stream}, recorder, false),
		Lifecycle:        &lifecycle.Lifecycle{},
		Logger:           slog.New(slog.DiscardHandler),
		TokenSecret:      testSecret,
		HandshakeTimeout: 2 * time.Second,
	}
}

func dialTestServer(t *testing.T, h Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readErrorFrame(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	var frame struct {
		Type  string `json:"type"`
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode error frame: %v", err)
	}
	if frame.Type != "error" {
		t.Fatalf("frame type = %q, want error", frame.Type)
	}
	return frame.Error.Type
}

func TestHandler_InvalidTokenCreatesNothing(t *testing.T) {
	recorder := &fakeRecorder{sessionID: uuid.New()}
	conn := dialTestServer(t, newTestHandler(recorder, newGatedStream()))

	start := `{"type":"start","token":"not-a-token"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(start)); err != nil {
		t.Fatalf("write start: %v", err)
	}

	if got := readErrorFrame(t, conn); got != "authentication_error" {
		t.Errorf("error type = %q, want authentication_error", got)
	}
	if len(recorder.createdSessions()) != 0 {
		t.Error("rejected handshake must create zero sessions")
	}
}

func TestHandler_ExpiredTokenCreatesNothing(t *testing.T) {
	recorder := &fakeRecorder{sessionID: uuid.New()}
	conn := dialTestServer(t, newTestHandler(recorder, newGatedStream()))

	token := signVoiceToken(t, testSecret, auth.TokenUse, -time.Hour, "")
	msg, _ := json.Marshal(map[string]string{"type": "start", "token": token})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write start: %v", err)
	}

	if got := readErrorFrame(t, conn); got != "authentication_error" {
		t.Errorf("error type = %q, want authentication_error", got)
	}
	if len(recorder.createdSessions()) != 0 {
		t.Error("expired token must create zero sessions")
	}
}

func TestHandler_FirstFrameMustBeStart(t *testing.T) {
	recorder := &fakeRecorder{sessionID: uuid.New()}
	conn := dialTestServer(t, newTestHandler(recorder, newGatedStream()))

	if err := conn.WriteMessage(websocket.TextMessage, audioMessageJSON(t, make([]byte, 640))); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	if got := readErrorFrame(t, conn); got != "transport_error" {
		t.Errorf("error type = %q, want transport_error", got)
	}
	if len(recorder.createdSessions()) != 0 {
		t.Error("bad first frame must create zero sessions")
	}
}

func TestHandler_ValidTokenBridges(t *testing.T) {
	clientID := uuid.New()
	recorder := &fakeRecorder{sessionID: uuid.New()}
	conn := dialTestServer(t, newTestHandler(recorder, newGatedStream()))

	token := signVoiceToken(t, testSecret, auth.TokenUse, time.Hour, clientID.String())
	msg, _ := json.Marshal(map[string]string{"type": "start", "token": token, "correlationId": "corr-9"})
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		t.Fatalf("write start: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(recorder.createdSessions()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	created := recorder.createdSessions()
	if len(created) != 1 {
		t.Fatalf("created sessions = %d, want 1", len(created))
	}
	if created[0].ClientID == nil || *created[0].ClientID != clientID {
		t.Errorf("session not linked to token client: %+v", created[0].ClientID)
	}
	if created[0].Metadata["correlation_id"] != "corr-9" {
		t.Errorf("metadata = %v, want correlation_id corr-9", created[0].Metadata)
	}
}

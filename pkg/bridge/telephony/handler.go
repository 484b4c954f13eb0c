package telephony

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/craftline/voicebridge/pkg/bridge/config"
	"github.com/craftline/voicebridge/pkg/bridge/lifecycle"
	"github.com/craftline/voicebridge/pkg/bridge/mw"
	"github.com/craftline/voicebridge/pkg/core"
)

// WebhookHandler answers the carrier's incoming-call webhook with TwiML.
type WebhookHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		mw.WriteJSONError(w, http.StatusMethodNotAllowed, core.NewTransportError("method not allowed"))
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		mw.WriteJSONError(w, http.StatusServiceUnavailable, core.NewTransportError("draining"))
		return
	}
	if h.Config.PublicHost == "" {
		h.Logger.Error("webhook rejected: public host not configured")
		mw.WriteJSONError(w, http.StatusInternalServerError,
			core.NewConfigurationErrorWithParam("public host is not configured", "VB_PUBLIC_HOST"))
		return
	}
	if err := r.ParseForm(); err != nil {
		mw.WriteJSONError(w, http.StatusBadRequest, core.NewTransportError("invalid form body"))
		return
	}

	requestURL := fmt.Sprintf("https://%s%s", h.Config.PublicHost, r.URL.RequestURI())
	if !VerifySignature(h.Config.TwilioAuthToken, requestURL, r.PostForm, r.Header.Get("X-Twilio-Signature")) {
		h.Logger.Warn("webhook rejected: bad signature", "call_sid", r.PostForm.Get("CallSid"))
		mw.WriteJSONError(w, http.StatusForbidden, core.NewAuthenticationError("invalid webhook signature"))
		return
	}

	from := r.PostForm.Get("From")
	callSID := r.PostForm.Get("CallSid")

	var body []byte
	var err error
	if h.Config.GeminiAPIKey == "" {
		h.Logger.Error("speech service not configured, apologizing to caller", "call_sid", callSID)
		body, err = ApologyTwiML("I'm sorry, our voice assistant is unavailable right now. Please try again later.")
	} else {
		body, err = ConnectStreamTwiML(h.Config.Greeting, h.Config.PublicHost, from, callSID)
	}
	if err != nil {
		mw.WriteJSONError(w, http.StatusInternalServerError, core.NewTransportError("twiml generation failed"))
		return
	}

	h.Logger.Info("incoming call answered", "call_sid", callSID)
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// MediaStreamHandler upgrades the carrier's media stream socket and runs
// a Bridge on it for the life of the call.
type MediaStreamHandler struct {
	Bridge    *Bridge
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger

	HandshakeTimeout time.Duration
}

func (h MediaStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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
		// The carrier does not send a browser Origin header.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := h.Bridge.Run(r.Context(), conn); err != nil {
		h.Logger.Error("media stream bridge failed", "error", err)
	}
}

// Package server wires the voice endpoints, health probes and middleware
// chain into one http.Handler.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/craftline/voicebridge/pkg/bridge/browser"
	"github.com/craftline/voicebridge/pkg/bridge/config"
	"github.com/craftline/voicebridge/pkg/bridge/lifecycle"
	"github.com/craftline/voicebridge/pkg/bridge/mw"
	"github.com/craftline/voicebridge/pkg/bridge/session"
	"github.com/craftline/voicebridge/pkg/bridge/telephony"
	"github.com/craftline/voicebridge/pkg/core/speech"
)

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	lifecycle *lifecycle.Lifecycle
	mux       *http.ServeMux
}

// Deps are the collaborators the handlers need. Dialer defaults to the
// live speech client when nil.
type Deps struct {
	Recorder session.Recorder
	Resolver session.Resolver
	Dialer   speech.Dialer
}

func New(cfg config.Config, logger *slog.Logger, lc *lifecycle.Lifecycle, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if lc == nil {
		lc = &lifecycle.Lifecycle{}
	}
	if deps.Dialer == nil {
		deps.Dialer = speech.LiveDialer{}
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		lifecycle: lc,
		mux:       http.NewServeMux(),
	}
	s.routes(deps)
	return s
}

func (s *Server) routes(deps Deps) {
	speechCfg := speech.Config{
		APIKey:            s.cfg.GeminiAPIKey,
		Model:             s.cfg.SpeechModel,
		SystemInstruction: s.cfg.SystemInstruction,
	}

	s.mux.Handle("/healthz", healthHandler{})
	s.mux.Handle("/readyz", readyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	s.mux.Handle("/voice/incoming", telephony.WebhookHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})
	s.mux.Handle("/voice/media-stream", telephony.MediaStreamHandler{
		Bridge: &telephony.Bridge{
			Log:                s.logger,
			Dialer:             deps.Dialer,
			Speech:             speechCfg,
			Resolver:           deps.Resolver,
			Recorder:           deps.Recorder,
			VADAggressiveness:  s.cfg.VADAggressiveness,
			MaxSessionDuration: s.cfg.MaxSessionDuration,
			WriteTimeout:       s.cfg.WSWriteTimeout,
		},
		Lifecycle:        s.lifecycle,
		Logger:           s.logger,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	})
	s.mux.Handle("/voice/browser", browser.Handler{
		Bridge: &browser.Bridge{
			Log:                s.logger,
			Dialer:             deps.Dialer,
			Speech:             speechCfg,
			Recorder:           deps.Recorder,
			VADAggressiveness:  s.cfg.VADAggressiveness,
			MaxSessionDuration: s.cfg.MaxSessionDuration,
			WriteTimeout:       s.cfg.WSWriteTimeout,
		},
		Lifecycle:        s.lifecycle,
		Logger:           s.logger,
		TokenSecret:      s.cfg.BrowserTokenSecret,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

type healthHandler struct{}

func (healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type readyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)
	if h.Lifecycle.IsDraining() {
		issues = append(issues, "draining")
	}
	if h.Config.PublicHost == "" {
		issues = append(issues, "public host not configured")
	}
	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "speech api key not configured")
	}
	if h.Config.VADAggressiveness < 0 || h.Config.VADAggressiveness > 3 {
		issues = append(issues, "vad aggressiveness out of range")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:       ok,
		Draining: h.Lifecycle.IsDraining(),
		Issues:   issues,
	})
}

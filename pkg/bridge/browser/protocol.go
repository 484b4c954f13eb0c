// Package browser bridges in-page microphone sessions to the speech
// service over a small typed JSON protocol. Unlike the telephony side
// there is no carrier in the middle: audio travels as 16k PCM both ways
// and authentication is a signed voice token in the first frame.
package browser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/craftline/voicebridge/pkg/core"
)

type StartMessage struct {
	Type          string `json:"type"`
	Token         string `json:"token"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type AudioMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// DecodeData decodes the base64 PCM payload.
func (m AudioMessage) DecodeData() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid audio data: %w", err)
	}
	return raw, nil
}

type StopMessage struct {
	Type string `json:"type"`
}

// DecodeClientMessage parses one client frame into its typed form. The
// browser protocol is ours end to end, so an unknown type is a protocol
// violation rather than something to skip.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid json frame: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)

	switch typ {
	case "start":
		var msg StartMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid start message: %w", err)
		}
		if msg.Token == "" {
			return nil, fmt.Errorf("start message missing token")
		}
		return msg, nil
	case "audio":
		var msg AudioMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid audio message: %w", err)
		}
		if msg.Data == "" {
			return nil, fmt.Errorf("audio message missing data")
		}
		return msg, nil
	case "stop":
		return StopMessage{Type: typ}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", typ)
	}
}

type serverAudio struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	SampleRate int    `json:"sampleRate"`
}

type serverError struct {
	Type  string      `json:"type"`
	Error *core.Error `json:"error"`
}

// EncodeAudioMessage builds a server audio frame.
func EncodeAudioMessage(pcm []byte, sampleRate int) ([]byte, error) {
	return json.Marshal(serverAudio{
		Type:       "audio",
		Data:       base64.StdEncoding.EncodeToString(pcm),
		SampleRate: sampleRate,
	})
}

// EncodeErrorMessage builds a server error frame. Marshal cannot fail on
// this shape, so the result is always usable.
func EncodeErrorMessage(err *core.Error) []byte {
	data, _ := json.Marshal(serverError{Type: "error", Error: err})
	return data
}

// Package telephony bridges Twilio phone calls to the speech service.
// It owns the webhook endpoint that answers an incoming call with TwiML
// and the media stream socket that carries the call audio both ways.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound media stream frames. Twilio sends JSON text frames with an
// "event" discriminator; the payload field layout depends on the event.

type StartFrame struct {
	Event string `json:"event"`
	Start struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		AccountSID       string            `json:"accountSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
}

type MediaFrame struct {
	Event string `json:"event"`
	Media struct {
		Track     string `json:"track"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media"`
}

type MarkFrame struct {
	Event string `json:"event"`
	Mark  struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type StopFrame struct {
	Event string `json:"event"`
	Stop  struct {
		CallSID string `json:"callSid"`
	} `json:"stop"`
}

// UnknownFrame stands in for events the bridge does not act on, such as
// the initial "connected" frame. Callers skip it and keep reading.
type UnknownFrame struct {
	Event string
}

// DecodeStreamMessage parses one inbound media stream frame into its
// typed form. Unrecognized events decode to UnknownFrame rather than an
// error so protocol additions on Twilio's side never kill a live call.
func DecodeStreamMessage(data []byte) (any, error) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid media stream frame: %w", err)
	}
	event := strings.TrimSpace(envelope.Event)

	switch event {
	case "start":
		var msg StartFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid start frame: %w", err)
		}
		if msg.Start.StreamSID == "" {
			return nil, fmt.Errorf("start frame missing streamSid")
		}
		return msg, nil
	case "media":
		var msg MediaFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid media frame: %w", err)
		}
		return msg, nil
	case "mark":
		var msg MarkFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid mark frame: %w", err)
		}
		return msg, nil
	case "stop":
		var msg StopFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid stop frame: %w", err)
		}
		return msg, nil
	default:
		return UnknownFrame{Event: event}, nil
	}
}

// DecodePayload decodes the base64 audio payload of a media frame.
func (m MediaFrame) DecodePayload() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("invalid media payload: %w", err)
	}
	return raw, nil
}

// Outbound frames. Every frame sent to Twilio carries the streamSid of
// the stream it addresses.

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// EncodeMediaFrame builds an outbound media frame carrying one mu-law
// audio chunk.
func EncodeMediaFrame(streamSID string, mulaw []byte) ([]byte, error) {
	var msg outboundMedia
	msg.Event = "media"
	msg.StreamSID = streamSID
	msg.Media.Payload = base64.StdEncoding.EncodeToString(mulaw)
	return json.Marshal(msg)
}

// EncodeClearFrame builds the frame that tells Twilio to drop any
// buffered playback for the stream. Sent on barge-in so the caller
// stops hearing the interrupted reply immediately.
func EncodeClearFrame(streamSID string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: "clear", StreamSID: streamSID})
}

package telephony

import (
	"encoding/xml"
	"fmt"
)

// TwiML document types, limited to the verbs this bridge emits.

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     []twimlSay    `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
	Hangup  *struct{}     `xml:"Hangup,omitempty"`
}

type twimlSay struct {
	Text string `xml:",chardata"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConnectStreamTwiML answers an incoming call: speak the greeting, then
// hand the call audio to the media stream socket. The caller's number
// and call SID travel as stream parameters so the socket side does not
// have to re-derive them.
func ConnectStreamTwiML(greeting, publicHost, from, callSID string) ([]byte, error) {
	doc := twimlResponse{
		Connect: &twimlConnect{
			Stream: twimlStream{
				URL: fmt.Sprintf("wss://%s/voice/media-stream", publicHost),
				Parameters: []twimlParameter{
					{Name: "from", Value: from},
					{Name: "callSid", Value: callSID},
				},
			},
		},
	}
	if greeting != "" {
		doc.Say = []twimlSay{{Text: greeting}}
	}
	return marshalTwiML(doc)
}

// ApologyTwiML speaks an apology and hangs up. Used when the speech
// service is not configured so callers hear an explanation instead of
// dead air.
func ApologyTwiML(message string) ([]byte, error) {
	doc := twimlResponse{
		Say:    []twimlSay{{Text: message}},
		Hangup: &struct{}{},
	}
	return marshalTwiML(doc)
}

func marshalTwiML(doc twimlResponse) ([]byte, error) {
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal twiml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

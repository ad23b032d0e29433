package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Media stream event names.
const (
	TwilioEventConnected = "connected"
	TwilioEventStart     = "start"
	TwilioEventMedia     = "media"
	TwilioEventStop      = "stop"
	TwilioEventMark      = "mark"
)

// TwilioStart is the payload of a start event.
type TwilioStart struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid"`
	AccountSID       string            `json:"accountSid"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TwilioMedia is one inbound audio chunk.
type TwilioMedia struct {
	Track   string `json:"track,omitempty"`
	Chunk   string `json:"chunk,omitempty"`
	Payload string `json:"payload"`
}

// TwilioEvent is an inbound media stream frame.
type TwilioEvent struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid,omitempty"`
	Start     *TwilioStart `json:"start,omitempty"`
	Media     *TwilioMedia `json:"media,omitempty"`
}

// DecodeTwilioEvent decodes one media stream frame.
func DecodeTwilioEvent(data []byte) (TwilioEvent, error) {
	var ev TwilioEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TwilioEvent{}, badRequest("invalid json frame", "")
	}
	ev.Event = strings.TrimSpace(ev.Event)
	switch ev.Event {
	case "":
		return TwilioEvent{}, badRequest("missing event", "event")
	case TwilioEventStart:
		if ev.Start == nil || strings.TrimSpace(ev.Start.StreamSID) == "" {
			return TwilioEvent{}, badRequest("start.streamSid is required", "start.streamSid")
		}
	case TwilioEventMedia:
		if ev.Media == nil || ev.Media.Payload == "" {
			return TwilioEvent{}, badRequest("media.payload is required", "media.payload")
		}
	}
	return ev, nil
}

// Payload decodes a media event's base64 audio.
func (ev TwilioEvent) Payload() ([]byte, error) {
	if ev.Media == nil {
		return nil, badRequest("not a media event", "media")
	}
	b, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
	if err != nil {
		return nil, badRequest("media.payload is not base64", "media.payload")
	}
	return b, nil
}

// SessionID returns the parent session id carried in the start event.
func (ev TwilioEvent) SessionID(param string) string {
	if ev.Start == nil {
		return ""
	}
	return strings.TrimSpace(ev.Start.CustomParameters[param])
}

type twilioOutboundMedia struct {
	Payload string `json:"payload"`
}

// TwilioOutbound is a frame sent to the carrier.
type TwilioOutbound struct {
	Event     string               `json:"event"`
	StreamSID string               `json:"streamSid"`
	Media     *twilioOutboundMedia `json:"media,omitempty"`
}

// NewTwilioMedia wraps mu-law audio for the given stream.
func NewTwilioMedia(streamSID string, ulaw []byte) TwilioOutbound {
	return TwilioOutbound{
		Event:     TwilioEventMedia,
		StreamSID: streamSID,
		Media:     &twilioOutboundMedia{Payload: base64.StdEncoding.EncodeToString(ulaw)},
	}
}

// NewTwilioClear drops audio the carrier has buffered for the stream.
func NewTwilioClear(streamSID string) TwilioOutbound {
	return TwilioOutbound{Event: "clear", StreamSID: streamSID}
}

package twilio

import (
	"encoding/xml"
	"strings"
)

// StreamParameterSessionID carries the parent session id into the media
// stream's start event.
const StreamParameterSessionID = "session_id"

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     *twimlSay     `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlSay struct {
	Voice string `xml:"voice,attr,omitempty"`
	Text  string `xml:",chardata"`
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

// StreamURL turns a public domain (with or without scheme) into the media
// stream websocket URL.
func StreamURL(domain string) string {
	d := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(domain), "https://"), "http://")
	return "wss://" + strings.Trim(d, "/") + "/ws/twilio"
}

// ConnectStreamTwiML bridges the answered call to a media stream tagged with
// the parent session id.
func ConnectStreamTwiML(streamURL, sessionID string) (string, error) {
	s := twimlStream{URL: streamURL}
	if sessionID != "" {
		s.Parameters = []twimlParameter{{Name: StreamParameterSessionID, Value: sessionID}}
	}
	return render(twimlResponse{Connect: &twimlConnect{Stream: s}})
}

// SayTwiML reads text aloud and hangs up.
func SayTwiML(text string) (string, error) {
	return render(twimlResponse{Say: &twimlSay{Voice: "alice", Text: text}})
}

func render(r twimlResponse) (string, error) {
	b, err := xml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

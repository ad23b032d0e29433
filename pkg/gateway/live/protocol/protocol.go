package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sanchita-suni/Calyx/pkg/core/crisis/state"
)

// Legacy plain-text commands sent by older browser clients.
const (
	LegacyLocationPrefix = "LOC:"
	LegacyTriggerSOS     = "TRIGGER_SOS"
	LegacyEndSession     = "END_SESSION"
	LegacyDownloadPrefix = "DOWNLOAD:"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// ClientUserProfile carries the user's name and emergency contacts.
type ClientUserProfile struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Contacts []state.Contact `json:"contacts"`
}

// Profile converts the message into a state.UserProfile.
func (m ClientUserProfile) Profile() state.UserProfile {
	p := state.UserProfile{Name: strings.TrimSpace(m.Name)}
	for _, c := range m.Contacts {
		c.Name = strings.TrimSpace(c.Name)
		c.Phone = strings.TrimSpace(c.Phone)
		if c.Phone == "" {
			continue
		}
		p.Contacts = append(p.Contacts, c)
	}
	return p
}

// ClientLocation is a location update. Coords is "lat,lng"; Lat/Lng are
// accepted when Coords is absent.
type ClientLocation struct {
	Type     string         `json:"type"`
	Coords   string         `json:"coords,omitempty"`
	Lat      *float64       `json:"lat,omitempty"`
	Lng      *float64       `json:"lng,omitempty"`
	Location state.Location `json:"-"`
}

type ClientSilentMode struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type ClientTextMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ClientCancelTimer struct {
	Type string `json:"type"`
}

type ClientSOS struct {
	Type string `json:"type"`
}

type ClientEndSession struct {
	Type string `json:"type"`
}

// DecodeClientMessage decodes one JSON text frame from the browser.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "user_profile":
		var msg ClientUserProfile
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid user_profile", "")
		}
		return msg, nil
	case "location":
		var msg ClientLocation
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid location", "")
		}
		loc, err := msg.resolve()
		if err != nil {
			return nil, err
		}
		msg.Location = loc
		return msg, nil
	case "silent_mode":
		var msg ClientSilentMode
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid silent_mode", "")
		}
		return msg, nil
	case "text_message":
		var msg ClientTextMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid text_message", "")
		}
		msg.Content = strings.TrimSpace(msg.Content)
		if msg.Content == "" {
			return nil, badRequest("text_message.content is required", "content")
		}
		return msg, nil
	case "cancel_timer":
		return ClientCancelTimer{Type: typ}, nil
	case "sos":
		return ClientSOS{Type: typ}, nil
	case "end_session":
		return ClientEndSession{Type: typ}, nil
	default:
		return nil, unsupported("unsupported message type", "type")
	}
}

func (m ClientLocation) resolve() (state.Location, error) {
	if strings.TrimSpace(m.Coords) != "" {
		loc, err := state.ParseLocation(m.Coords)
		if err != nil {
			return state.Location{}, badRequest("location.coords must be \"lat,lng\"", "coords")
		}
		return loc, nil
	}
	if m.Lat == nil || m.Lng == nil {
		return state.Location{}, badRequest("location requires coords or lat/lng", "coords")
	}
	loc, err := state.ParseLocation(fmt.Sprintf("%v,%v", *m.Lat, *m.Lng))
	if err != nil {
		return state.Location{}, badRequest("location out of range", "lat")
	}
	return loc, nil
}

// DecodeLegacyCommand parses a non-JSON text frame. ok is false for text
// that is not a known command.
func DecodeLegacyCommand(text string) (any, bool) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, LegacyLocationPrefix):
		loc, err := state.ParseLocation(strings.TrimPrefix(text, LegacyLocationPrefix))
		if err != nil {
			return nil, false
		}
		return ClientLocation{Type: "location", Location: loc}, true
	case text == LegacyTriggerSOS:
		return ClientSOS{Type: "sos"}, true
	case text == LegacyEndSession:
		return ClientEndSession{Type: "end_session"}, true
	default:
		return nil, false
	}
}

// Outbound messages.

type ServerMode struct {
	Type    string `json:"type"`
	Mode    string `json:"mode"`
	Persona string `json:"persona,omitempty"`
}

type ServerTimerStarted struct {
	Type    string `json:"type"`
	Seconds int    `json:"seconds"`
	Reason  string `json:"reason,omitempty"`
}

type ServerTimerCancelled struct {
	Type string `json:"type"`
}

type ServerAlertSent struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Contacts int    `json:"contacts"`
}

type ServerDownload struct {
	Type string `json:"type"`
	File string `json:"file"`
}

type ServerAITextResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Latency int    `json:"latency"`
}

type ServerSessionEnded struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServerClear tells the client to drop queued assistant audio.
type ServerClear struct {
	Type string `json:"type"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewMode(mode, persona string) ServerMode {
	return ServerMode{Type: "mode", Mode: mode, Persona: persona}
}

func NewTimerStarted(seconds int, reason string) ServerTimerStarted {
	return ServerTimerStarted{Type: "timer_started", Seconds: seconds, Reason: reason}
}

func NewTimerCancelled() ServerTimerCancelled {
	return ServerTimerCancelled{Type: "timer_cancelled"}
}

func NewAlertSent(contacts int) ServerAlertSent {
	return ServerAlertSent{Type: "alert_sent", Message: fmt.Sprintf("Calling %d contact(s)...", contacts), Contacts: contacts}
}

func NewDownload(file string) ServerDownload {
	return ServerDownload{Type: "download", File: file}
}

func NewAITextResponse(content string, latency int) ServerAITextResponse {
	return ServerAITextResponse{Type: "ai_text_response", Content: content, Latency: latency}
}

func NewSessionEnded(message string) ServerSessionEnded {
	return ServerSessionEnded{Type: "session_ended", Message: message}
}

func NewClear() ServerClear {
	return ServerClear{Type: "clear"}
}

func NewWarning(code, message string) ServerWarning {
	return ServerWarning{Type: "warning", Code: code, Message: message}
}

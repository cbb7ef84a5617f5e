// Package relay implements the websocket relay that ferries transcript, AI
// response, and audio events between a live call session and the browser.
// It provides both the client connection state machine and the server-side
// test relay.
package relay

import (
	"encoding/json"
	"fmt"
)

// Frame types. Inbound frames are discriminated by "type" with a fallback to
// the legacy "event" key.
const (
	TypeConnected             = "connected"
	TypeConnectionEstablished = "connection_established"
	TypeTranscript            = "transcript"
	TypeAudio                 = "audio"
	TypeAIResponse            = "ai_response"
	TypeAudioResponse         = "audio_response"
	TypeError                 = "error"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeEcho                  = "echo"
	TypeEchoResponse          = "echo_response"
	TypeTest                  = "test"
	TypeTestResponse          = "test_response"
	TypeUnknownResponse       = "unknown_message_response"
	TypeTextInput             = "text_input"
)

// Frame is the wire envelope for all relay messages. Fields are a union over
// the variants; which ones are meaningful depends on Kind.
type Frame struct {
	Type  string `json:"type,omitempty"`
	Event string `json:"event,omitempty"`

	// Session identifiers (handshake and welcome frames).
	UserID      string `json:"userId,omitempty"`
	CallID      string `json:"callId,omitempty"`
	AssistantID string `json:"assistantId,omitempty"`

	// Payload fields.
	Text    string `json:"text,omitempty"`    // transcript, ai_response, text_input
	IsFinal bool   `json:"isFinal,omitempty"` // transcript
	Audio   string `json:"audio,omitempty"`   // audio, audio_response; base64
	Error   string `json:"error,omitempty"`   // error
	Details string `json:"details,omitempty"` // error
	Message string `json:"message,omitempty"` // echo, test_response, unknown_message_response

	// Server bookkeeping.
	ConnectionID    string   `json:"connectionId,omitempty"`
	OriginalMessage string   `json:"originalMessage,omitempty"` // echo_response
	ReceivedType    string   `json:"receivedType,omitempty"`    // unknown_message_response
	Capabilities    []string `json:"capabilities,omitempty"`    // connection_established

	// Timestamp is epoch milliseconds, matching the browser client.
	Timestamp int64 `json:"timestamp,omitempty"`
}

// Kind returns the frame discriminator: Type, or the legacy Event key when
// Type is unset.
func (f *Frame) Kind() string {
	if f.Type != "" {
		return f.Type
	}
	return f.Event
}

// DecodeFrame parses a JSON frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("relay: decode frame: %w", err)
	}
	return &f, nil
}

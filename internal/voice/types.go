// Package voice tracks live outbound calls: it places them through the
// telephony provider, applies status webhooks to the persisted call rows,
// and accumulates the conversation transcript while the call is active.
package voice

import (
	"context"
	"time"

	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/pkg/models"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is a single utterance during a call.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	IsFinal   bool      `json:"is_final"`
}

// Session is the in-memory state of one live call. The manager owns all
// mutation; callers receive copies.
type Session struct {
	CallID         string            `json:"call_id"`
	ProviderCallID string            `json:"provider_call_id,omitempty"`
	UserID         string            `json:"user_id"`
	AssistantID    string            `json:"assistant_id,omitempty"`
	PhoneNumber    string            `json:"phone_number"`
	Status         models.CallStatus `json:"status"`
	StartedAt      time.Time         `json:"started_at"`
	AnsweredAt     *time.Time        `json:"answered_at,omitempty"`
	EndedAt        *time.Time        `json:"ended_at,omitempty"`
	Transcript     []TranscriptEntry `json:"transcript"`

	// Assistant snapshot taken at call start so webhook handling never
	// needs another store read.
	systemPrompt string
	model        string
	temperature  float64
	maxTokens    int
}

// Dialer places and terminates calls. *providers.SignalWire satisfies it.
type Dialer interface {
	InitiateCall(ctx context.Context, req *providers.CallRequest) (*providers.CallResult, error)
	HangupCall(ctx context.Context, providerCallID string) error
}

// Replier produces an assistant reply to a user utterance.
// *providers.OpenAI satisfies it.
type Replier interface {
	Reply(ctx context.Context, req *providers.ChatRequest) (string, error)
}

// terminalStatus reports whether a call status is final.
func terminalStatus(s models.CallStatus) bool {
	switch s {
	case models.CallStatusCompleted, models.CallStatusFailed,
		models.CallStatusBusy, models.CallStatusNoAnswer:
		return true
	}
	return false
}

// statusFromProvider maps a lowercase provider status onto the persisted
// call statuses. Unknown statuses pass through unchanged.
func statusFromProvider(s string) models.CallStatus {
	switch s {
	case "queued", "initiated":
		return models.CallStatusConnecting
	case "ringing":
		return models.CallStatusRinging
	case "answered", "in-progress":
		return models.CallStatusInProgress
	case "completed":
		return models.CallStatusCompleted
	case "busy":
		return models.CallStatusBusy
	case "no-answer":
		return models.CallStatusNoAnswer
	case "failed", "canceled":
		return models.CallStatusFailed
	}
	return models.CallStatus(s)
}

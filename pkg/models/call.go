package models

import "time"

// CallStatus is the persisted status of a call row. Provider webhooks report
// lowercase statuses which map onto these directly.
type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusConnecting CallStatus = "connecting"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no-answer"
)

// Call is a persisted call record. ProviderCallID holds the telephony
// provider's identifier (the SignalWire call SID) once the call is placed.
type Call struct {
	ID             string     `json:"id"`
	PhoneNumber    string     `json:"phone_number"`
	AssistantID    string     `json:"assistant_id,omitempty"`
	CampaignID     string     `json:"campaign_id,omitempty"`
	ContactID      string     `json:"contact_id,omitempty"`
	ProviderCallID string     `json:"provider_call_id,omitempty"`
	Status         CallStatus `json:"status"`
	DurationSec    int        `json:"duration,omitempty"`
	Transcript     string     `json:"transcript,omitempty"`
	UserID         string     `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

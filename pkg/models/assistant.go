package models

import "time"

// Assistant is a conversational configuration used for browser test calls
// and outbound campaigns.
type Assistant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SystemPrompt  string    `json:"system_prompt"`
	FirstMessage  string    `json:"first_message,omitempty"`
	VoiceID       string    `json:"voice_id,omitempty"`
	VoiceProvider string    `json:"voice_provider,omitempty"`
	Model         string    `json:"model"`
	Temperature   float64   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// VoiceAgent is the richer agent configuration exposed by the voice-agents API.
// It differs from Assistant by carrying a description and an active flag.
type VoiceAgent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	SystemPrompt  string    `json:"system_prompt"`
	VoiceID       string    `json:"voice_id,omitempty"`
	VoiceProvider string    `json:"voice_provider,omitempty"`
	Model         string    `json:"model"`
	Temperature   float64   `json:"temperature"`
	MaxTokens     int       `json:"max_tokens"`
	UserID        string    `json:"user_id"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

package models

import "time"

// CampaignStatus tracks a campaign's lifecycle.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Campaign groups outbound calls against a contact list.
type Campaign struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Status         CampaignStatus `json:"status"`
	TotalCalls     int            `json:"total_calls"`
	CompletedCalls int            `json:"completed_calls"`
	SuccessRate    float64        `json:"success_rate,omitempty"`
	UserID         string         `json:"user_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Contact is a dialable entry, optionally attached to a campaign.
type Contact struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	PhoneNumber  string            `json:"phone_number"`
	Email        string            `json:"email,omitempty"`
	CampaignID   string            `json:"campaign_id,omitempty"`
	CustomFields map[string]string `json:"custom_fields,omitempty"`
	UserID       string            `json:"user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

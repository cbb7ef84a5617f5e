// Package storage persists the gateway's domain entities. Two backends are
// provided: an in-memory set for tests and dev mode, and SQLite.
package storage

import (
	"context"
	"errors"

	"github.com/voxgate/voxgate/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidID rejects writes carrying a nil entity or empty ID.
	ErrInvalidID = errors.New("storage: id is required")
)

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// AssistantStore persists assistant configurations.
type AssistantStore interface {
	Create(ctx context.Context, a *models.Assistant) error
	Get(ctx context.Context, id string) (*models.Assistant, error)
	List(ctx context.Context, userID string) ([]*models.Assistant, error)
	Update(ctx context.Context, a *models.Assistant) error
	Delete(ctx context.Context, id string) error
}

// VoiceAgentStore persists voice agent configurations.
type VoiceAgentStore interface {
	Create(ctx context.Context, a *models.VoiceAgent) error
	Get(ctx context.Context, id string) (*models.VoiceAgent, error)
	List(ctx context.Context, userID string) ([]*models.VoiceAgent, error)
	Update(ctx context.Context, a *models.VoiceAgent) error
	Delete(ctx context.Context, id string) error
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	Create(ctx context.Context, c *models.Campaign) error
	Get(ctx context.Context, id string) (*models.Campaign, error)
	List(ctx context.Context, userID string) ([]*models.Campaign, error)
	Update(ctx context.Context, c *models.Campaign) error
	Delete(ctx context.Context, id string) error
}

// ContactStore persists contacts.
type ContactStore interface {
	Create(ctx context.Context, c *models.Contact) error
	Get(ctx context.Context, id string) (*models.Contact, error)
	List(ctx context.Context, userID, campaignID string) ([]*models.Contact, error)
	Delete(ctx context.Context, id string) error
}

// CallStore persists call rows. GetByProviderCallID resolves webhook
// callbacks that only carry the provider's SID.
type CallStore interface {
	Create(ctx context.Context, c *models.Call) error
	Get(ctx context.Context, id string) (*models.Call, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (*models.Call, error)
	List(ctx context.Context, userID string) ([]*models.Call, error)
	Update(ctx context.Context, c *models.Call) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Users       UserStore
	Assistants  AssistantStore
	VoiceAgents VoiceAgentStore
	Campaigns   CampaignStore
	Contacts    ContactStore
	Calls       CallStore

	closer func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/voxgate/voxgate/pkg/models"
)

// NewMemoryStores returns a StoreSet backed by in-process maps.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Users:       &memoryUserStore{users: map[string]*models.User{}},
		Assistants:  &memoryAssistantStore{items: map[string]*models.Assistant{}},
		VoiceAgents: &memoryVoiceAgentStore{items: map[string]*models.VoiceAgent{}},
		Campaigns:   &memoryCampaignStore{items: map[string]*models.Campaign{}},
		Contacts:    &memoryContactStore{items: map[string]*models.Contact{}},
		Calls:       &memoryCallStore{items: map[string]*models.Call{}},
	}
}

type memoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func (s *memoryUserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return ErrAlreadyExists
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return ErrAlreadyExists
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *memoryUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *memoryUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

type memoryAssistantStore struct {
	mu    sync.RWMutex
	items map[string]*models.Assistant
}

func (s *memoryAssistantStore) Create(ctx context.Context, a *models.Assistant) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[a.ID]; exists {
		return ErrAlreadyExists
	}
	s.items[a.ID] = a
	return nil
}

func (s *memoryAssistantStore) Get(ctx context.Context, id string) (*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *memoryAssistantStore) List(ctx context.Context, userID string) ([]*models.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Assistant, 0, len(s.items))
	for _, a := range s.items {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryAssistantStore) Update(ctx context.Context, a *models.Assistant) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[a.ID]; !exists {
		return ErrNotFound
	}
	s.items[a.ID] = a
	return nil
}

func (s *memoryAssistantStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type memoryVoiceAgentStore struct {
	mu    sync.RWMutex
	items map[string]*models.VoiceAgent
}

func (s *memoryVoiceAgentStore) Create(ctx context.Context, a *models.VoiceAgent) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[a.ID]; exists {
		return ErrAlreadyExists
	}
	s.items[a.ID] = a
	return nil
}

func (s *memoryVoiceAgentStore) Get(ctx context.Context, id string) (*models.VoiceAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *memoryVoiceAgentStore) List(ctx context.Context, userID string) ([]*models.VoiceAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.VoiceAgent, 0, len(s.items))
	for _, a := range s.items {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryVoiceAgentStore) Update(ctx context.Context, a *models.VoiceAgent) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[a.ID]; !exists {
		return ErrNotFound
	}
	s.items[a.ID] = a
	return nil
}

func (s *memoryVoiceAgentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type memoryCampaignStore struct {
	mu    sync.RWMutex
	items map[string]*models.Campaign
}

func (s *memoryCampaignStore) Create(ctx context.Context, c *models.Campaign) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return ErrAlreadyExists
	}
	s.items[c.ID] = c
	return nil
}

func (s *memoryCampaignStore) Get(ctx context.Context, id string) (*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *memoryCampaignStore) List(ctx context.Context, userID string) ([]*models.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Campaign, 0, len(s.items))
	for _, c := range s.items {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryCampaignStore) Update(ctx context.Context, c *models.Campaign) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; !exists {
		return ErrNotFound
	}
	s.items[c.ID] = c
	return nil
}

func (s *memoryCampaignStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type memoryContactStore struct {
	mu    sync.RWMutex
	items map[string]*models.Contact
}

func (s *memoryContactStore) Create(ctx context.Context, c *models.Contact) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return ErrAlreadyExists
	}
	s.items[c.ID] = c
	return nil
}

func (s *memoryContactStore) Get(ctx context.Context, id string) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *memoryContactStore) List(ctx context.Context, userID, campaignID string) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Contact, 0, len(s.items))
	for _, c := range s.items {
		if userID != "" && c.UserID != userID {
			continue
		}
		if campaignID != "" && c.CampaignID != campaignID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryContactStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[id]; !exists {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

type memoryCallStore struct {
	mu    sync.RWMutex
	items map[string]*models.Call
}

func (s *memoryCallStore) Create(ctx context.Context, c *models.Call) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return ErrAlreadyExists
	}
	s.items[c.ID] = c
	return nil
}

func (s *memoryCallStore) Get(ctx context.Context, id string) (*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *memoryCallStore) GetByProviderCallID(ctx context.Context, providerCallID string) (*models.Call, error) {
	if providerCallID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		if c.ProviderCallID == providerCallID {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryCallStore) List(ctx context.Context, userID string) ([]*models.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Call, 0, len(s.items))
	for _, c := range s.items {
		if userID == "" || c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryCallStore) Update(ctx context.Context, c *models.Call) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; !exists {
		return ErrNotFound
	}
	s.items[c.ID] = c
	return nil
}

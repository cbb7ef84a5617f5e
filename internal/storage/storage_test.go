package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxgate/voxgate/pkg/models"
)

// backends returns both store implementations so every case runs against
// memory and SQLite.
func backends(t *testing.T) map[string]StoreSet {
	t.Helper()
	sqlite, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]StoreSet{
		"memory": NewMemoryStores(),
		"sqlite": sqlite,
	}
}

func TestUserStore(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			user := &models.User{ID: "u-1", Username: "alice", Email: "a@example.com", PasswordHash: "x$y", CreatedAt: now, UpdatedAt: now}

			if err := stores.Users.Create(ctx, user); err != nil {
				t.Fatalf("create: %v", err)
			}
			if err := stores.Users.Create(ctx, user); !errors.Is(err, ErrAlreadyExists) {
				t.Errorf("duplicate create err = %v, want ErrAlreadyExists", err)
			}

			got, err := stores.Users.GetByUsername(ctx, "alice")
			if err != nil {
				t.Fatalf("get by username: %v", err)
			}
			if got.ID != "u-1" || got.PasswordHash != "x$y" {
				t.Errorf("got %+v", got)
			}

			if _, err := stores.Users.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing get err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestAssistantCRUD(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			a := &models.Assistant{
				ID: "a-1", Name: "Support", SystemPrompt: "You help.",
				Model: "gpt-4o", Temperature: 0.7, MaxTokens: 1000,
				UserID: "u-1", CreatedAt: now, UpdatedAt: now,
			}
			if err := stores.Assistants.Create(ctx, a); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := stores.Assistants.Get(ctx, "a-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Name != "Support" || got.Temperature != 0.7 {
				t.Errorf("got %+v", got)
			}

			got.Name = "Sales"
			got.UpdatedAt = now.Add(time.Minute)
			if err := stores.Assistants.Update(ctx, got); err != nil {
				t.Fatalf("update: %v", err)
			}
			updated, _ := stores.Assistants.Get(ctx, "a-1")
			if updated.Name != "Sales" {
				t.Errorf("name after update = %q", updated.Name)
			}

			list, err := stores.Assistants.List(ctx, "u-1")
			if err != nil || len(list) != 1 {
				t.Fatalf("list = %v items, err %v", len(list), err)
			}
			other, err := stores.Assistants.List(ctx, "u-2")
			if err != nil || len(other) != 0 {
				t.Errorf("list for other user = %d items, err %v", len(other), err)
			}

			if err := stores.Assistants.Delete(ctx, "a-1"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := stores.Assistants.Delete(ctx, "a-1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("double delete err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestVoiceAgentActiveFlag(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			agent := &models.VoiceAgent{
				ID: "va-1", Name: "Greeter", SystemPrompt: "Greet.",
				Model: "gpt-4o", Temperature: 0.5, MaxTokens: 500,
				UserID: "u-1", IsActive: true, CreatedAt: now, UpdatedAt: now,
			}
			if err := stores.VoiceAgents.Create(ctx, agent); err != nil {
				t.Fatalf("create: %v", err)
			}
			agent.IsActive = false
			if err := stores.VoiceAgents.Update(ctx, agent); err != nil {
				t.Fatalf("update: %v", err)
			}
			got, err := stores.VoiceAgents.Get(ctx, "va-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.IsActive {
				t.Error("is_active should be false after update")
			}
		})
	}
}

func TestContactCustomFieldsAndCampaignFilter(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			c1 := &models.Contact{
				ID: "c-1", Name: "Bob", PhoneNumber: "+15551230001",
				CampaignID: "camp-1", CustomFields: map[string]string{"tier": "gold"},
				UserID: "u-1", CreatedAt: now, UpdatedAt: now,
			}
			c2 := &models.Contact{
				ID: "c-2", Name: "Carol", PhoneNumber: "+15551230002",
				CampaignID: "camp-2", UserID: "u-1", CreatedAt: now, UpdatedAt: now,
			}
			for _, c := range []*models.Contact{c1, c2} {
				if err := stores.Contacts.Create(ctx, c); err != nil {
					t.Fatalf("create %s: %v", c.ID, err)
				}
			}

			got, err := stores.Contacts.Get(ctx, "c-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.CustomFields["tier"] != "gold" {
				t.Errorf("custom fields = %v", got.CustomFields)
			}

			filtered, err := stores.Contacts.List(ctx, "u-1", "camp-1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(filtered) != 1 || filtered[0].ID != "c-1" {
				t.Errorf("campaign filter returned %d items", len(filtered))
			}
		})
	}
}

func TestCallProviderLookup(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()
			call := &models.Call{
				ID: "call-1", PhoneNumber: "+15551234567", Status: models.CallStatusPending,
				UserID: "u-1", CreatedAt: now, UpdatedAt: now,
			}
			if err := stores.Calls.Create(ctx, call); err != nil {
				t.Fatalf("create: %v", err)
			}

			call.ProviderCallID = "SW-abc123"
			call.Status = models.CallStatusConnecting
			if err := stores.Calls.Update(ctx, call); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := stores.Calls.GetByProviderCallID(ctx, "SW-abc123")
			if err != nil {
				t.Fatalf("get by provider id: %v", err)
			}
			if got.ID != "call-1" || got.Status != models.CallStatusConnecting {
				t.Errorf("got %+v", got)
			}

			if _, err := stores.Calls.GetByProviderCallID(ctx, ""); !errors.Is(err, ErrNotFound) {
				t.Errorf("empty provider id err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestListOrdering(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now()
			for i, id := range []string{"camp-a", "camp-b", "camp-c"} {
				c := &models.Campaign{
					ID: id, Name: id, Status: models.CampaignStatusDraft,
					UserID:    "u-1",
					CreatedAt: base.Add(time.Duration(i) * time.Second),
					UpdatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := stores.Campaigns.Create(ctx, c); err != nil {
					t.Fatalf("create %s: %v", id, err)
				}
			}
			list, err := stores.Campaigns.List(ctx, "u-1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 3 || list[0].ID != "camp-c" {
				t.Errorf("newest-first ordering violated: %v", ids(list))
			}
		})
	}
}

func ids(cs []*models.Campaign) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestCreateRejectsMissingID(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cases := map[string]error{
				"nil user":      stores.Users.Create(ctx, nil),
				"blank user":    stores.Users.Create(ctx, &models.User{}),
				"nil assistant": stores.Assistants.Create(ctx, nil),
				"blank call":    stores.Calls.Create(ctx, &models.Call{}),
				"nil campaign":  stores.Campaigns.Create(ctx, nil),
				"blank contact": stores.Contacts.Create(ctx, &models.Contact{}),
			}
			for label, err := range cases {
				if !errors.Is(err, ErrInvalidID) {
					t.Errorf("%s err = %v, want ErrInvalidID", label, err)
				}
				// Bad input is the caller's fault, not an absent row.
				if errors.Is(err, ErrNotFound) {
					t.Errorf("%s err = %v, must not be ErrNotFound", label, err)
				}
			}

			if err := stores.Assistants.Update(ctx, nil); !errors.Is(err, ErrInvalidID) {
				t.Errorf("nil assistant update err = %v, want ErrInvalidID", err)
			}
		})
	}
}

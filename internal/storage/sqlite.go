package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxgate/voxgate/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT,
	password_hash TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assistants (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	system_prompt TEXT NOT NULL,
	first_message TEXT,
	voice_id TEXT,
	voice_provider TEXT,
	model TEXT NOT NULL,
	temperature REAL NOT NULL,
	max_tokens INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS voice_agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	system_prompt TEXT NOT NULL,
	voice_id TEXT,
	voice_provider TEXT,
	model TEXT NOT NULL,
	temperature REAL NOT NULL,
	max_tokens INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS campaigns (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL,
	total_calls INTEGER NOT NULL DEFAULT 0,
	completed_calls INTEGER NOT NULL DEFAULT 0,
	success_rate REAL,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	email TEXT,
	campaign_id TEXT,
	custom_fields TEXT,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	phone_number TEXT,
	assistant_id TEXT,
	campaign_id TEXT,
	contact_id TEXT,
	provider_call_id TEXT,
	status TEXT NOT NULL,
	duration_sec INTEGER,
	transcript TEXT,
	user_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_provider ON calls(provider_call_id);
CREATE INDEX IF NOT EXISTS idx_contacts_campaign ON contacts(campaign_id);
`

// OpenSQLite opens (and migrates) a SQLite-backed StoreSet. Path ":memory:"
// is accepted for tests.
func OpenSQLite(path string) (StoreSet, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return StoreSet{}, fmt.Errorf("storage: migrate: %w", err)
	}

	return StoreSet{
		Users:       &sqliteUserStore{db: db},
		Assistants:  &sqliteAssistantStore{db: db},
		VoiceAgents: &sqliteVoiceAgentStore{db: db},
		Campaigns:   &sqliteCampaignStore{db: db},
		Contacts:    &sqliteContactStore{db: db},
		Calls:       &sqliteCallStore{db: db},
		closer:      db.Close,
	}, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type sqliteUserStore struct{ db *sql.DB }

func (s *sqliteUserStore) Create(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, fmtTime(user.CreatedAt), fmtTime(user.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = ?`, id))
}

func (s *sqliteUserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE username = ?`, username))
}

func (s *sqliteUserStore) scanOne(row *sql.Row) (*models.User, error) {
	var u models.User
	var email sql.NullString
	var created, updated string
	err := row.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

type sqliteAssistantStore struct{ db *sql.DB }

func (s *sqliteAssistantStore) Create(ctx context.Context, a *models.Assistant) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assistants (id, name, system_prompt, first_message, voice_id, voice_provider, model, temperature, max_tokens, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.SystemPrompt, a.FirstMessage, a.VoiceID, a.VoiceProvider,
		a.Model, a.Temperature, a.MaxTokens, a.UserID, fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteAssistantStore) Get(ctx context.Context, id string) (*models.Assistant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, system_prompt, first_message, voice_id, voice_provider, model, temperature, max_tokens, user_id, created_at, updated_at
		 FROM assistants WHERE id = ?`, id)
	return scanAssistant(row.Scan)
}

func (s *sqliteAssistantStore) List(ctx context.Context, userID string) ([]*models.Assistant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, system_prompt, first_message, voice_id, voice_provider, model, temperature, max_tokens, user_id, created_at, updated_at
		 FROM assistants WHERE (? = '' OR user_id = ?) ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Assistant
	for rows.Next() {
		a, err := scanAssistant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteAssistantStore) Update(ctx context.Context, a *models.Assistant) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assistants SET name = ?, system_prompt = ?, first_message = ?, voice_id = ?, voice_provider = ?, model = ?, temperature = ?, max_tokens = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, a.SystemPrompt, a.FirstMessage, a.VoiceID, a.VoiceProvider,
		a.Model, a.Temperature, a.MaxTokens, fmtTime(a.UpdatedAt), a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteAssistantStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assistants WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanAssistant(scan func(dest ...any) error) (*models.Assistant, error) {
	var a models.Assistant
	var firstMsg, voiceID, voiceProvider sql.NullString
	var created, updated string
	err := scan(&a.ID, &a.Name, &a.SystemPrompt, &firstMsg, &voiceID, &voiceProvider,
		&a.Model, &a.Temperature, &a.MaxTokens, &a.UserID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.FirstMessage = firstMsg.String
	a.VoiceID = voiceID.String
	a.VoiceProvider = voiceProvider.String
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

type sqliteVoiceAgentStore struct{ db *sql.DB }

func (s *sqliteVoiceAgentStore) Create(ctx context.Context, a *models.VoiceAgent) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO voice_agents (id, name, description, system_prompt, voice_id, voice_provider, model, temperature, max_tokens, user_id, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Description, a.SystemPrompt, a.VoiceID, a.VoiceProvider,
		a.Model, a.Temperature, a.MaxTokens, a.UserID, boolToInt(a.IsActive),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteVoiceAgentStore) Get(ctx context.Context, id string) (*models.VoiceAgent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, system_prompt, voice_id, voice_provider, model, temperature, max_tokens, user_id, is_active, created_at, updated_at
		 FROM voice_agents WHERE id = ?`, id)
	return scanVoiceAgent(row.Scan)
}

func (s *sqliteVoiceAgentStore) List(ctx context.Context, userID string) ([]*models.VoiceAgent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, system_prompt, voice_id, voice_provider, model, temperature, max_tokens, user_id, is_active, created_at, updated_at
		 FROM voice_agents WHERE (? = '' OR user_id = ?) ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.VoiceAgent
	for rows.Next() {
		a, err := scanVoiceAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteVoiceAgentStore) Update(ctx context.Context, a *models.VoiceAgent) error {
	if a == nil || a.ID == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE voice_agents SET name = ?, description = ?, system_prompt = ?, voice_id = ?, voice_provider = ?, model = ?, temperature = ?, max_tokens = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		a.Name, a.Description, a.SystemPrompt, a.VoiceID, a.VoiceProvider,
		a.Model, a.Temperature, a.MaxTokens, boolToInt(a.IsActive), fmtTime(a.UpdatedAt), a.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteVoiceAgentStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM voice_agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanVoiceAgent(scan func(dest ...any) error) (*models.VoiceAgent, error) {
	var a models.VoiceAgent
	var description, voiceID, voiceProvider sql.NullString
	var active int
	var created, updated string
	err := scan(&a.ID, &a.Name, &description, &a.SystemPrompt, &voiceID, &voiceProvider,
		&a.Model, &a.Temperature, &a.MaxTokens, &a.UserID, &active, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Description = description.String
	a.VoiceID = voiceID.String
	a.VoiceProvider = voiceProvider.String
	a.IsActive = active != 0
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return &a, nil
}

type sqliteCampaignStore struct{ db *sql.DB }

func (s *sqliteCampaignStore) Create(ctx context.Context, c *models.Campaign) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, name, description, status, total_calls, completed_calls, success_rate, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Description, string(c.Status), c.TotalCalls, c.CompletedCalls,
		c.SuccessRate, c.UserID, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteCampaignStore) Get(ctx context.Context, id string) (*models.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, status, total_calls, completed_calls, success_rate, user_id, created_at, updated_at
		 FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row.Scan)
}

func (s *sqliteCampaignStore) List(ctx context.Context, userID string) ([]*models.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, status, total_calls, completed_calls, success_rate, user_id, created_at, updated_at
		 FROM campaigns WHERE (? = '' OR user_id = ?) ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteCampaignStore) Update(ctx context.Context, c *models.Campaign) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET name = ?, description = ?, status = ?, total_calls = ?, completed_calls = ?, success_rate = ?, updated_at = ?
		 WHERE id = ?`,
		c.Name, c.Description, string(c.Status), c.TotalCalls, c.CompletedCalls,
		c.SuccessRate, fmtTime(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteCampaignStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanCampaign(scan func(dest ...any) error) (*models.Campaign, error) {
	var c models.Campaign
	var description sql.NullString
	var successRate sql.NullFloat64
	var status, created, updated string
	err := scan(&c.ID, &c.Name, &description, &status, &c.TotalCalls, &c.CompletedCalls,
		&successRate, &c.UserID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Status = models.CampaignStatus(status)
	c.SuccessRate = successRate.Float64
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

type sqliteContactStore struct{ db *sql.DB }

func (s *sqliteContactStore) Create(ctx context.Context, c *models.Contact) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	fields, err := json.Marshal(c.CustomFields)
	if err != nil {
		return fmt.Errorf("storage: marshal custom fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contacts (id, name, phone_number, email, campaign_id, custom_fields, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.PhoneNumber, c.Email, c.CampaignID, string(fields),
		c.UserID, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteContactStore) Get(ctx context.Context, id string) (*models.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, phone_number, email, campaign_id, custom_fields, user_id, created_at, updated_at
		 FROM contacts WHERE id = ?`, id)
	return scanContact(row.Scan)
}

func (s *sqliteContactStore) List(ctx context.Context, userID, campaignID string) ([]*models.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone_number, email, campaign_id, custom_fields, user_id, created_at, updated_at
		 FROM contacts WHERE (? = '' OR user_id = ?) AND (? = '' OR campaign_id = ?) ORDER BY created_at DESC`,
		userID, userID, campaignID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteContactStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanContact(scan func(dest ...any) error) (*models.Contact, error) {
	var c models.Contact
	var email, campaignID, fields sql.NullString
	var created, updated string
	err := scan(&c.ID, &c.Name, &c.PhoneNumber, &email, &campaignID, &fields,
		&c.UserID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Email = email.String
	c.CampaignID = campaignID.String
	if fields.String != "" && fields.String != "null" {
		if err := json.Unmarshal([]byte(fields.String), &c.CustomFields); err != nil {
			return nil, fmt.Errorf("storage: unmarshal custom fields: %w", err)
		}
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

type sqliteCallStore struct{ db *sql.DB }

func (s *sqliteCallStore) Create(ctx context.Context, c *models.Call) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, phone_number, assistant_id, campaign_id, contact_id, provider_call_id, status, duration_sec, transcript, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PhoneNumber, c.AssistantID, c.CampaignID, c.ContactID, c.ProviderCallID,
		string(c.Status), c.DurationSec, c.Transcript, c.UserID, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *sqliteCallStore) Get(ctx context.Context, id string) (*models.Call, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, assistant_id, campaign_id, contact_id, provider_call_id, status, duration_sec, transcript, user_id, created_at, updated_at
		 FROM calls WHERE id = ?`, id)
	return scanCall(row.Scan)
}

func (s *sqliteCallStore) GetByProviderCallID(ctx context.Context, providerCallID string) (*models.Call, error) {
	if providerCallID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, phone_number, assistant_id, campaign_id, contact_id, provider_call_id, status, duration_sec, transcript, user_id, created_at, updated_at
		 FROM calls WHERE provider_call_id = ?`, providerCallID)
	return scanCall(row.Scan)
}

func (s *sqliteCallStore) List(ctx context.Context, userID string) ([]*models.Call, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone_number, assistant_id, campaign_id, contact_id, provider_call_id, status, duration_sec, transcript, user_id, created_at, updated_at
		 FROM calls WHERE (? = '' OR user_id = ?) ORDER BY created_at DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Call
	for rows.Next() {
		c, err := scanCall(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteCallStore) Update(ctx context.Context, c *models.Call) error {
	if c == nil || c.ID == "" {
		return ErrInvalidID
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE calls SET phone_number = ?, assistant_id = ?, campaign_id = ?, contact_id = ?, provider_call_id = ?, status = ?, duration_sec = ?, transcript = ?, updated_at = ?
		 WHERE id = ?`,
		c.PhoneNumber, c.AssistantID, c.CampaignID, c.ContactID, c.ProviderCallID,
		string(c.Status), c.DurationSec, c.Transcript, fmtTime(c.UpdatedAt), c.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanCall(scan func(dest ...any) error) (*models.Call, error) {
	var c models.Call
	var phone, assistantID, campaignID, contactID, providerCallID, transcript sql.NullString
	var duration sql.NullInt64
	var status, created, updated string
	err := scan(&c.ID, &phone, &assistantID, &campaignID, &contactID, &providerCallID,
		&status, &duration, &transcript, &c.UserID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.PhoneNumber = phone.String
	c.AssistantID = assistantID.String
	c.CampaignID = campaignID.String
	c.ContactID = contactID.String
	c.ProviderCallID = providerCallID.String
	c.Status = models.CallStatus(status)
	c.DurationSec = int(duration.Int64)
	c.Transcript = transcript.String
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

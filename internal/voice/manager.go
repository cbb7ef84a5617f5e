package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/pkg/models"
)

var (
	ErrCallNotFound = errors.New("voice: call not found")
	ErrCallEnded    = errors.New("voice: call has ended")
)

// ManagerConfig holds dependencies for the call manager.
type ManagerConfig struct {
	// Dialer places outbound calls (required).
	Dialer Dialer

	// Replier generates assistant replies. Optional; without it
	// GenerateReply returns an error.
	Replier Replier

	// Calls persists call rows (required).
	Calls storage.CallStore

	// Assistants resolves assistant configuration at call start. Optional.
	Assistants storage.AssistantStore

	// PublicURL is the externally reachable base URL used to build the
	// media stream and status callback addresses (required).
	PublicURL string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Manager owns the live call registry. Safe for concurrent use.
type Manager struct {
	dialer     Dialer
	replier    Replier
	calls      storage.CallStore
	assistants storage.AssistantStore
	publicURL  string
	logger     *slog.Logger
	metrics    *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager validates cfg and builds the manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Dialer == nil {
		return nil, errors.New("voice: dialer is required")
	}
	if cfg.Calls == nil {
		return nil, errors.New("voice: call store is required")
	}
	if cfg.PublicURL == "" {
		return nil, errors.New("voice: public url is required")
	}

	m := &Manager{
		dialer:     cfg.Dialer,
		replier:    cfg.Replier,
		calls:      cfg.Calls,
		assistants: cfg.Assistants,
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		sessions:   make(map[string]*Session),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// StartCallInput describes one outbound call.
type StartCallInput struct {
	UserID      string
	AssistantID string
	CampaignID  string
	ContactID   string
	To          string
}

// StartCall persists a pending call row, places the call, and registers the
// live session. On dial failure the row is marked failed and the error is
// returned alongside the record.
func (m *Manager) StartCall(ctx context.Context, in *StartCallInput) (*models.Call, error) {
	if in.To == "" {
		return nil, errors.New("voice: destination number is required")
	}

	var (
		greeting     string
		systemPrompt string
		model        string
		temperature  float64
		maxTokens    int
	)
	if in.AssistantID != "" && m.assistants != nil {
		assistant, err := m.assistants.Get(ctx, in.AssistantID)
		if err != nil {
			return nil, fmt.Errorf("voice: resolve assistant: %w", err)
		}
		greeting = assistant.FirstMessage
		if greeting == "" {
			greeting = fmt.Sprintf("Hello! This is %s, an AI assistant. How can I help you today?", assistant.Name)
		}
		systemPrompt = assistant.SystemPrompt
		model = assistant.Model
		temperature = assistant.Temperature
		maxTokens = assistant.MaxTokens
	}

	now := time.Now()
	call := &models.Call{
		ID:          uuid.New().String(),
		PhoneNumber: in.To,
		AssistantID: in.AssistantID,
		CampaignID:  in.CampaignID,
		ContactID:   in.ContactID,
		Status:      models.CallStatusPending,
		UserID:      in.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("voice: persist call: %w", err)
	}

	result, err := m.dialer.InitiateCall(ctx, &providers.CallRequest{
		To:                in.To,
		Greeting:          greeting,
		StreamURL:         m.streamURL(call.ID),
		StatusCallbackURL: m.publicURL + "/api/call-status",
	})
	if err != nil {
		call.Status = models.CallStatusFailed
		call.UpdatedAt = time.Now()
		if uerr := m.calls.Update(ctx, call); uerr != nil {
			m.logger.Warn("failed call row not updated", "call_id", call.ID, "error", uerr)
		}
		return call, fmt.Errorf("voice: initiate call: %w", err)
	}

	call.ProviderCallID = result.SID
	call.Status = models.CallStatusConnecting
	call.UpdatedAt = time.Now()
	if err := m.calls.Update(ctx, call); err != nil {
		return call, fmt.Errorf("voice: persist provider call id: %w", err)
	}

	m.mu.Lock()
	m.sessions[call.ID] = &Session{
		CallID:         call.ID,
		ProviderCallID: result.SID,
		UserID:         in.UserID,
		AssistantID:    in.AssistantID,
		PhoneNumber:    in.To,
		Status:         models.CallStatusConnecting,
		StartedAt:      now,
		Transcript:     []TranscriptEntry{},

		systemPrompt: systemPrompt,
		model:        model,
		temperature:  temperature,
		maxTokens:    maxTokens,
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.ActiveCalls.Inc()
	}

	m.logger.Info("call started",
		"call_id", call.ID, "provider_call_id", result.SID, "to", in.To)
	return call, nil
}

// ApplyStatus handles a provider status webhook: it resolves the call row by
// provider SID, updates its status, and on a terminal status closes the live
// session and flushes its transcript into the row.
func (m *Manager) ApplyStatus(ctx context.Context, providerCallID, status string) (*models.Call, error) {
	call, err := m.calls.GetByProviderCallID(ctx, providerCallID)
	if err != nil {
		return nil, fmt.Errorf("voice: resolve call %s: %w", providerCallID, err)
	}

	mapped := statusFromProvider(status)
	call.Status = mapped
	call.UpdatedAt = time.Now()

	m.mu.Lock()
	session, live := m.sessions[call.ID]
	if live {
		session.Status = mapped
		now := time.Now()
		if mapped == models.CallStatusInProgress && session.AnsweredAt == nil {
			session.AnsweredAt = &now
		}
		if terminalStatus(mapped) {
			session.EndedAt = &now
			if session.AnsweredAt != nil {
				call.DurationSec = int(now.Sub(*session.AnsweredAt).Round(time.Second) / time.Second)
			}
			call.Transcript = renderTranscript(session.Transcript)
			delete(m.sessions, call.ID)
			if m.metrics != nil {
				m.metrics.ActiveCalls.Dec()
			}
		}
	}
	m.mu.Unlock()

	if err := m.calls.Update(ctx, call); err != nil {
		return nil, fmt.Errorf("voice: persist status: %w", err)
	}

	m.logger.Info("call status applied",
		"call_id", call.ID, "provider_call_id", providerCallID, "status", mapped)
	return call, nil
}

// RecordUtterance appends one transcript entry to a live session. Interim
// (non-final) entries replace a preceding interim entry from the same
// speaker so the transcript holds at most one in-flight fragment.
func (m *Manager) RecordUtterance(callID string, speaker Speaker, text string, isFinal bool) error {
	if text == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[callID]
	if !ok {
		return ErrCallNotFound
	}

	entry := TranscriptEntry{
		Timestamp: time.Now(),
		Speaker:   speaker,
		Text:      text,
		IsFinal:   isFinal,
	}
	if n := len(session.Transcript); n > 0 {
		last := session.Transcript[n-1]
		if !last.IsFinal && last.Speaker == speaker {
			session.Transcript[n-1] = entry
			return nil
		}
	}
	session.Transcript = append(session.Transcript, entry)
	return nil
}

// GenerateReply produces the assistant's answer to userText, records both
// sides in the transcript, and returns the reply text.
func (m *Manager) GenerateReply(ctx context.Context, callID, userText string) (string, error) {
	if m.replier == nil {
		return "", errors.New("voice: no reply provider configured")
	}

	m.mu.RLock()
	session, ok := m.sessions[callID]
	if !ok {
		m.mu.RUnlock()
		return "", ErrCallNotFound
	}
	if terminalStatus(session.Status) {
		m.mu.RUnlock()
		return "", ErrCallEnded
	}
	req := &providers.ChatRequest{
		Model:        session.model,
		SystemPrompt: session.systemPrompt,
		Temperature:  float32(session.temperature),
		MaxTokens:    session.maxTokens,
		History:      chatHistory(session.Transcript),
		UserText:     userText,
	}
	m.mu.RUnlock()

	reply, err := m.replier.Reply(ctx, req)
	if err != nil {
		return "", err
	}

	if err := m.RecordUtterance(callID, SpeakerUser, userText, true); err != nil {
		return "", err
	}
	if err := m.RecordUtterance(callID, SpeakerAssistant, reply, true); err != nil {
		return "", err
	}
	return reply, nil
}

// EndCall hangs up a live call and applies the terminal status.
func (m *Manager) EndCall(ctx context.Context, callID string) error {
	m.mu.RLock()
	session, ok := m.sessions[callID]
	var providerCallID string
	if ok {
		providerCallID = session.ProviderCallID
	}
	m.mu.RUnlock()

	if !ok {
		return ErrCallNotFound
	}

	if err := m.dialer.HangupCall(ctx, providerCallID); err != nil {
		return fmt.Errorf("voice: hangup: %w", err)
	}
	_, err := m.ApplyStatus(ctx, providerCallID, "completed")
	return err
}

// GetSession returns a copy of a live session.
func (m *Manager) GetSession(callID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[callID]
	if !ok {
		return nil, false
	}
	return cloneSession(session), true
}

// ActiveSessions returns copies of every live session.
func (m *Manager) ActiveSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, cloneSession(s))
	}
	return out
}

// CleanupStaleCalls drops sessions stuck in a non-terminal state longer than
// olderThan. Terminal sessions leave the registry when their status webhook
// arrives; this sweep catches calls whose webhooks never came.
func (m *Manager) CleanupStaleCalls(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if session.StartedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		if m.metrics != nil {
			m.metrics.ActiveCalls.Sub(float64(removed))
		}
		m.logger.Info("stale call sessions swept", "removed", removed)
	}
	return removed
}

func (m *Manager) streamURL(callID string) string {
	u := m.publicURL
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + StreamPathPrefix + callID
}

func cloneSession(s *Session) *Session {
	out := *s
	out.Transcript = make([]TranscriptEntry, len(s.Transcript))
	copy(out.Transcript, s.Transcript)
	return &out
}

// chatHistory converts finalized transcript entries into chat turns.
func chatHistory(entries []TranscriptEntry) []providers.ChatMessage {
	history := make([]providers.ChatMessage, 0, len(entries))
	for _, e := range entries {
		if !e.IsFinal {
			continue
		}
		role := "user"
		if e.Speaker == SpeakerAssistant {
			role = "assistant"
		}
		history = append(history, providers.ChatMessage{Role: role, Content: e.Text})
	}
	return history
}

func renderTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		if !e.IsFinal {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", e.Speaker, e.Text)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

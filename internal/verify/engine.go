// Package verify runs simulated post-dial verification checks for outbound
// calls. Each session executes four checks strictly in order with a fixed
// pause before each one; the pass/fail roll stands in for real provider and
// webhook probes, so the random source is injectable for deterministic tests.
package verify

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/voxgate/voxgate/internal/observability"
)

const (
	// DefaultCheckDelay is the pause before each check executes.
	DefaultCheckDelay = time.Second

	// DefaultSessionTTL bounds how long a finished session stays resident
	// before Sweep discards it.
	DefaultSessionTTL = time.Hour

	// DefaultPassProbability is the simulated per-check pass rate.
	DefaultPassProbability = 0.8
)

var checkSequence = []string{
	CheckSignalWireAPI,
	CheckCallStatus,
	CheckWebhookResponse,
	CheckRingTimeout,
}

// Config configures an Engine. Zero values pick the defaults above.
type Config struct {
	CheckDelay      time.Duration
	SessionTTL      time.Duration
	PassProbability float64

	// Roll returns a value in [0, 1). Defaults to math/rand; tests inject
	// a deterministic source.
	Roll func() float64

	// Now is the clock. Defaults to time.Now; tests inject a fixed clock
	// to exercise the sweep boundary.
	Now func() time.Time

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Engine owns the in-memory session registry. Sessions are never evicted on
// their own; the host wires Sweep into a scheduler.
type Engine struct {
	delay    time.Duration
	ttl      time.Duration
	passProb float64
	roll     func() float64
	now      func() time.Time
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewEngine builds an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		delay:    cfg.CheckDelay,
		ttl:      cfg.SessionTTL,
		passProb: cfg.PassProbability,
		roll:     cfg.Roll,
		now:      cfg.Now,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		sessions: make(map[string]*Session),
	}
	if e.delay <= 0 {
		e.delay = DefaultCheckDelay
	}
	if e.ttl <= 0 {
		e.ttl = DefaultSessionTTL
	}
	if e.passProb <= 0 || e.passProb > 1 {
		e.passProb = DefaultPassProbability
	}
	if e.roll == nil {
		e.roll = rand.Float64
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// StartVerification registers a new session and kicks off its check sequence
// in the background. The returned identifier is derived from the current
// millisecond timestamp; two calls landing on the same millisecond collide
// and the later one wins the registry slot.
func (e *Engine) StartVerification(callID, phoneNumber string) string {
	now := e.now()
	sessionID := fmt.Sprintf("session-%d", now.UnixMilli())

	e.mu.Lock()
	e.sessions[sessionID] = &Session{
		SessionID:     sessionID,
		CallID:        callID,
		PhoneNumber:   phoneNumber,
		StartTime:     now,
		LastUpdate:    now,
		Status:        SessionRunning,
		OverallStatus: OverallChecking,
		Checks:        []Check{},
	}
	e.mu.Unlock()

	e.logger.Info("verification started",
		"session_id", sessionID, "call_id", callID, "phone_number", phoneNumber)
	if e.metrics != nil {
		e.metrics.VerificationSessions.WithLabelValues("started").Inc()
	}

	go e.runChecks(sessionID)
	return sessionID
}

// runChecks executes the four checks sequentially, pausing before each one.
// Checks within a session never overlap; concurrent sessions are independent.
func (e *Engine) runChecks(sessionID string) {
	allPassed := true
	for _, checkType := range checkSequence {
		time.Sleep(e.delay)

		passed := e.roll() > 1-e.passProb
		status := CheckPassed
		if !passed {
			status = CheckFailed
			allPassed = false
		}
		now := e.now()
		check := Check{
			ID:        fmt.Sprintf("check-%d", now.UnixMilli()),
			Type:      checkType,
			Status:    status,
			Details:   checkType + " check completed",
			Timestamp: now,
		}

		e.mu.Lock()
		session, ok := e.sessions[sessionID]
		if !ok {
			// Swept mid-run; drop the remaining checks.
			e.mu.Unlock()
			return
		}
		session.Checks = append(session.Checks, check)
		session.LastUpdate = now
		e.mu.Unlock()

		e.logger.Debug("verification check recorded",
			"session_id", sessionID, "check", checkType, "status", status)
		if e.metrics != nil {
			e.metrics.VerificationChecks.WithLabelValues(checkType, string(status)).Inc()
		}
	}

	overall := OverallVerified
	if !allPassed {
		overall = OverallFailed
	}

	e.mu.Lock()
	if session, ok := e.sessions[sessionID]; ok {
		session.OverallStatus = overall
		session.Status = SessionCompleted
		session.LastUpdate = e.now()
	}
	e.mu.Unlock()

	e.logger.Info("verification completed", "session_id", sessionID, "overall", overall)
	if e.metrics != nil {
		e.metrics.VerificationSessions.WithLabelValues(string(overall)).Inc()
	}
}

// GetAllSessions returns a snapshot of every session, in no particular order.
func (e *Engine) GetAllSessions() []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.clone())
	}
	return out
}

// GetSessionResults returns the current state of one session, or false when
// the identifier is unknown or already swept.
func (e *Engine) GetSessionResults(sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// ClearOldSessions drops sessions whose start time is more than the TTL in
// the past. A session exactly at the boundary is retained. Returns the
// number removed.
func (e *Engine) ClearOldSessions() int {
	cutoff := e.now().Add(-e.ttl)

	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, s := range e.sessions {
		if s.StartTime.Before(cutoff) {
			delete(e.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		e.logger.Info("verification sessions swept", "removed", removed)
	}
	return removed
}

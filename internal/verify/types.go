package verify

import "time"

// Check types, executed in this order for every session.
const (
	CheckSignalWireAPI   = "signalwire_api"
	CheckCallStatus      = "call_status"
	CheckWebhookResponse = "webhook_response"
	CheckRingTimeout     = "ring_timeout"
)

// CheckStatus is the outcome of a single verification check.
type CheckStatus string

const (
	CheckPassed CheckStatus = "passed"
	CheckFailed CheckStatus = "failed"
)

// SessionStatus tracks whether the check sequence is still executing.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
)

// OverallStatus is the aggregate verdict, computed once after all checks run.
type OverallStatus string

const (
	OverallChecking OverallStatus = "checking"
	OverallVerified OverallStatus = "verified"
	OverallFailed   OverallStatus = "failed"
)

// Check is one verification step. Immutable once appended to a session.
type Check struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    CheckStatus `json:"status"`
	Details   string      `json:"details"`
	Timestamp time.Time   `json:"timestamp"`
}

// Session is the in-memory record for one verification run.
type Session struct {
	SessionID     string        `json:"sessionId"`
	CallID        string        `json:"callId"`
	PhoneNumber   string        `json:"phoneNumber"`
	StartTime     time.Time     `json:"startTime"`
	LastUpdate    time.Time     `json:"lastUpdate"`
	Status        SessionStatus `json:"status"`
	OverallStatus OverallStatus `json:"overallStatus"`
	Checks        []Check       `json:"checks"`
}

// clone returns a deep copy so callers never observe a partially written
// checks slice while the engine is still appending.
func (s *Session) clone() *Session {
	out := *s
	out.Checks = make([]Check, len(s.Checks))
	copy(out.Checks, s.Checks)
	return &out
}

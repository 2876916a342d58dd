// Package callflow drives the inbound voice conversation: authenticate the
// caller, find the shift they mean, and collect a reschedule or a release.
// Each call is a small state machine persisted between webhook events.
package callflow

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the conversation state of one call.
type Phase string

const (
	PhaseGreeting         Phase = "greeting"
	PhaseAuthByPin        Phase = "auth_by_pin"
	PhaseProviderSelect   Phase = "provider_select"
	PhaseJobCode          Phase = "job_code"
	PhaseConfirmJobCode   Phase = "confirm_job_code"
	PhaseJobOptions       Phase = "job_options"
	PhaseOccurrenceSelect Phase = "occurrence_select"
	PhaseCollectDateTime  Phase = "collect_datetime"
	PhaseConfirmDateTime  Phase = "confirm_datetime"
	PhaseCollectReason    Phase = "collect_reason"
	PhaseConfirmRelease   Phase = "confirm_release"
	PhaseTransferred      Phase = "transferred"
	PhaseCompleted        Phase = "completed"
	PhaseAbandoned        Phase = "abandoned"
)

// Terminal reports whether the conversation is over.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseTransferred, PhaseCompleted, PhaseAbandoned:
		return true
	}
	return false
}

// Utterance is one line of the call transcript.
type Utterance struct {
	Role string    `json:"role"` // "caller" or "system"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the per-call conversation state. A single call's events arrive
// sequentially, so the session has exactly one writer at a time.
type Session struct {
	ID          string    `json:"id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	CallerPhone string    `json:"caller_phone"`
	Phase       Phase     `json:"phase"`

	EmployeeID *uuid.UUID `json:"employee_id,omitempty"`

	// CandidateProviders drives the provider menu when the caller's number
	// matches employees at more than one provider.
	CandidateProviders []uuid.UUID `json:"candidate_providers,omitempty"`

	JobCode    string     `json:"job_code,omitempty"`
	HeardCode  string     `json:"heard_code,omitempty"`
	TemplateID *uuid.UUID `json:"template_id,omitempty"`

	// Action is "reschedule" or "release", chosen at the options menu.
	Action string `json:"action,omitempty"`

	// Options are the enumerated occurrences the caller picks from.
	Options      []uuid.UUID `json:"options,omitempty"`
	OccurrenceID *uuid.UUID  `json:"occurrence_id,omitempty"`

	// DateTimeFragment accumulates partial utterances ("next tuesday", then
	// "at 3 pm") so the combined text can be re-parsed as one phrase.
	DateTimeFragment string    `json:"datetime_fragment,omitempty"`
	PendingAt        time.Time `json:"pending_at,omitempty"`

	Reason         string `json:"reason,omitempty"`
	ReasonCategory string `json:"reason_category,omitempty"`

	// ConfirmRetried limits ambiguous confirmations to one re-ask.
	ConfirmRetried bool `json:"confirm_retried,omitempty"`
	// AssignRetried limits the restate-and-loop after a rejected reschedule.
	AssignRetried bool `json:"assign_retried,omitempty"`

	Attempts    map[Phase]int `json:"attempts,omitempty"`
	Transcript  []Utterance   `json:"transcript,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	LastEventAt time.Time     `json:"last_event_at"`
}

// NewSession starts a session in the greeting phase.
func NewSession(callID, callerPhone string, now time.Time) *Session {
	return &Session{
		ID:          callID,
		CallerPhone: callerPhone,
		Phase:       PhaseGreeting,
		Attempts:    make(map[Phase]int),
		CreatedAt:   now,
		LastEventAt: now,
	}
}

// Enter moves to a new phase and resets its attempt counter.
func (s *Session) Enter(p Phase) {
	s.Phase = p
	if s.Attempts == nil {
		s.Attempts = make(map[Phase]int)
	}
	s.Attempts[p] = 0
	s.ConfirmRetried = false
}

// Resume moves back to a phase keeping its previous attempt count, used when
// a confirmation is answered "no" and the earlier phase retries.
func (s *Session) Resume(p Phase) {
	s.Phase = p
	s.ConfirmRetried = false
}

// Attempt increments and returns the attempt count for the current phase.
func (s *Session) Attempt() int {
	if s.Attempts == nil {
		s.Attempts = make(map[Phase]int)
	}
	s.Attempts[s.Phase]++
	return s.Attempts[s.Phase]
}

// Retried reports whether the current phase has already been attempted.
func (s *Session) Retried() bool {
	return s.Attempts[s.Phase] > 0
}

// Say appends one transcript line.
func (s *Session) Say(role, text string, at time.Time) {
	s.Transcript = append(s.Transcript, Utterance{Role: role, Text: text, At: at})
}

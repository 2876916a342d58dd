// Package assignment is the single point of truth for occurrence-status
// transitions. Every caller — voice flow, SMS replies, outbound dialer,
// admin portal — submits a typed Intent; the arbiter resolves it with exactly
// one compare-and-set and then runs the side-effect pipeline for the winner.
package assignment

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// Kind identifies the intent being submitted.
type Kind string

const (
	KindReschedule     Kind = "reschedule"
	KindRelease        Kind = "release"
	KindAccept         Kind = "accept"
	KindWavesExhausted Kind = "waves_exhausted"
	KindCallsExhausted Kind = "calls_exhausted"
)

// Rejection reasons. A rejected intent must never be retried; the state the
// caller acted on is gone.
const (
	RejectRaceLost        = "race_lost"
	RejectBadTransition   = "bad_transition"
	RejectNotInPool       = "not_in_pool"
	RejectInvalidDateTime = "invalid_datetime"
	RejectEmptyReason     = "empty_reason"
)

// Intent is one request to change an occurrence's status.
type Intent struct {
	Kind         Kind
	OccurrenceID uuid.UUID
	// EmployeeID is the acceptor for Accept, the releasing employee for
	// Release.
	EmployeeID uuid.UUID
	// Reschedule target, provider-local.
	NewDate  time.Time
	NewStart string
	NewEnd   string
	// Release details.
	Reason         string
	ReasonCategory string
	// Source tags logs: "voice", "sms", "outbound", "portal".
	Source string
}

// Decision is the arbiter's answer.
type Decision struct {
	Accepted bool
	// Reason is set on rejection.
	Reason string
}

func rejected(reason string) Decision { return Decision{Reason: reason} }

type occurrenceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*shifts.Occurrence, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next shifts.Status) (bool, error)
	SetSchedule(ctx context.Context, id uuid.UUID, date time.Time, start, end string) error
	SetAssignedEmployee(ctx context.Context, id, employeeID uuid.UUID) error
	SetReleaseReason(ctx context.Context, id uuid.UUID, reason, category string) error
}

type rosterStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*roster.Provider, error)
	GetEmployee(ctx context.Context, providerID, employeeID uuid.UUID) (*roster.Employee, error)
	GetPatient(ctx context.Context, providerID, patientID uuid.UUID) (*roster.Patient, error)
}

type jobCanceller interface {
	Cancel(ctx context.Context, prefix string) (int, error)
}

// WaveStarter kicks off Wave 1 after a release wins. Implemented by the
// notifications scheduler.
type WaveStarter interface {
	StartWaves(ctx context.Context, occ *shifts.Occurrence) error
}

// CallScheduler enqueues the first outbound call once the SMS waves are
// exhausted. Implemented by the outbound engine.
type CallScheduler interface {
	ScheduleFirstCall(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider) error
}

// Finalizer alerts administrators when an occurrence ends up unfilled.
type Finalizer interface {
	NotifyUnfilled(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider) error
}

// Arbiter resolves intents against the occurrence store.
type Arbiter struct {
	occurrences occurrenceStore
	roster      rosterStore
	queue       jobCanceller
	sender      messaging.Sender
	waves       WaveStarter
	calls       CallScheduler
	finalizer   Finalizer
	metrics     *obsmetrics.AssignmentMetrics
	logger      *logging.Logger
	now         func() time.Time
}

// Config wires the arbiter's collaborators. Occurrences and Roster are
// required; the rest degrade to logged no-ops when absent.
type Config struct {
	Occurrences occurrenceStore
	Roster      rosterStore
	Queue       jobCanceller
	Sender      messaging.Sender
	Waves       WaveStarter
	Calls       CallScheduler
	Finalizer   Finalizer
	Metrics     *obsmetrics.AssignmentMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

// New creates an Arbiter.
func New(cfg Config) *Arbiter {
	if cfg.Occurrences == nil {
		panic("assignment: occurrence store required")
	}
	if cfg.Roster == nil {
		panic("assignment: roster store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Arbiter{
		occurrences: cfg.Occurrences,
		roster:      cfg.Roster,
		queue:       cfg.Queue,
		sender:      cfg.Sender,
		waves:       cfg.Waves,
		calls:       cfg.Calls,
		finalizer:   cfg.Finalizer,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
	}
}

// SetWaveStarter breaks the construction cycle between the arbiter and the
// notifications scheduler; call once during bootstrap.
func (a *Arbiter) SetWaveStarter(w WaveStarter) { a.waves = w }

// SetCallScheduler wires the outbound engine; call once during bootstrap.
func (a *Arbiter) SetCallScheduler(c CallScheduler) { a.calls = c }

// Submit resolves one intent. The returned Decision reports acceptance or a
// rejection reason; an error means the store itself failed and the intent's
// outcome is unknown to the caller.
func (a *Arbiter) Submit(ctx context.Context, intent Intent) (Decision, error) {
	occ, err := a.occurrences.Get(ctx, intent.OccurrenceID)
	if err != nil {
		return Decision{}, fmt.Errorf("assignment: load occurrence: %w", err)
	}

	var decision Decision
	switch intent.Kind {
	case KindReschedule:
		decision, err = a.reschedule(ctx, occ, intent)
	case KindRelease:
		decision, err = a.release(ctx, occ, intent)
	case KindAccept:
		decision, err = a.accept(ctx, occ, intent)
	case KindWavesExhausted:
		decision, err = a.wavesExhausted(ctx, occ)
	case KindCallsExhausted:
		decision, err = a.callsExhausted(ctx, occ)
	default:
		return Decision{}, fmt.Errorf("assignment: unknown intent kind %q", intent.Kind)
	}
	if err != nil {
		a.metrics.ObserveIntent(string(intent.Kind), "error")
		return decision, err
	}

	result := "accepted"
	if !decision.Accepted {
		result = decision.Reason
	}
	a.metrics.ObserveIntent(string(intent.Kind), result)
	a.logger.Info("assignment: intent resolved",
		"kind", intent.Kind,
		"occurrence_id", occ.ID,
		"source", intent.Source,
		"accepted", decision.Accepted,
		"reason", decision.Reason,
	)
	return decision, nil
}

func (a *Arbiter) reschedule(ctx context.Context, occ *shifts.Occurrence, intent Intent) (Decision, error) {
	if intent.NewDate.IsZero() || intent.NewStart == "" {
		return rejected(RejectInvalidDateTime), nil
	}
	provider, err := a.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return Decision{}, fmt.Errorf("assignment: load provider: %w", err)
	}
	start, err := time.ParseInLocation("2006-01-02 15:04",
		intent.NewDate.Format("2006-01-02")+" "+intent.NewStart, provider.Location())
	if err != nil || !start.After(a.now()) {
		return rejected(RejectInvalidDateTime), nil
	}
	if !occ.Status.CanTransitionTo(shifts.StatusRescheduled) {
		return rejected(RejectBadTransition), nil
	}
	ok, err := a.occurrences.CompareAndSetStatus(ctx, occ.ID, occ.Status, shifts.StatusRescheduled)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return rejected(RejectRaceLost), nil
	}
	end := intent.NewEnd
	if end == "" {
		end = occ.EndTime
	}
	if err := a.occurrences.SetSchedule(ctx, occ.ID, intent.NewDate, intent.NewStart, end); err != nil {
		return Decision{}, err
	}
	return Decision{Accepted: true}, nil
}

func (a *Arbiter) release(ctx context.Context, occ *shifts.Occurrence, intent Intent) (Decision, error) {
	if intent.Reason == "" {
		return rejected(RejectEmptyReason), nil
	}
	if !occ.Status.CanTransitionTo(shifts.StatusOpen) {
		return rejected(RejectBadTransition), nil
	}
	ok, err := a.occurrences.CompareAndSetStatus(ctx, occ.ID, occ.Status, shifts.StatusOpen)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return rejected(RejectRaceLost), nil
	}
	if err := a.occurrences.SetReleaseReason(ctx, occ.ID, intent.Reason, intent.ReasonCategory); err != nil {
		a.logger.Error("assignment: record release reason failed", "error", err, "occurrence_id", occ.ID)
	}
	occ.Status = shifts.StatusOpen
	occ.ReleaseReason = intent.Reason
	occ.ReasonCategory = intent.ReasonCategory
	if a.waves != nil {
		if err := a.waves.StartWaves(ctx, occ); err != nil {
			a.logger.Error("assignment: wave start failed", "error", err, "occurrence_id", occ.ID)
		}
	}
	return Decision{Accepted: true}, nil
}

func (a *Arbiter) accept(ctx context.Context, occ *shifts.Occurrence, intent Intent) (Decision, error) {
	patient, err := a.roster.GetPatient(ctx, occ.ProviderID, occ.PatientID)
	if err != nil {
		return Decision{}, fmt.Errorf("assignment: load patient: %w", err)
	}
	if !slices.Contains(patient.StaffPool, intent.EmployeeID) {
		return rejected(RejectNotInPool), nil
	}
	if !occ.Status.CanTransitionTo(shifts.StatusAssigned) {
		return rejected(RejectRaceLost), nil
	}
	ok, err := a.occurrences.CompareAndSetStatus(ctx, occ.ID, occ.Status, shifts.StatusAssigned)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return rejected(RejectRaceLost), nil
	}

	// The win is durable from here; side effects log failures and move on.
	if a.queue != nil {
		if removed, err := a.queue.Cancel(ctx, shifts.QueueKeyPrefix(occ.ID)); err != nil {
			a.logger.Error("assignment: cancel pending jobs failed", "error", err, "occurrence_id", occ.ID)
		} else if removed > 0 {
			a.logger.Info("assignment: cancelled pending jobs", "occurrence_id", occ.ID, "removed", removed)
		}
	}
	if err := a.occurrences.SetAssignedEmployee(ctx, occ.ID, intent.EmployeeID); err != nil {
		a.logger.Error("assignment: record assignee failed", "error", err, "occurrence_id", occ.ID)
	}
	a.sendConfirmation(ctx, occ, patient, intent.EmployeeID)
	return Decision{Accepted: true}, nil
}

func (a *Arbiter) sendConfirmation(ctx context.Context, occ *shifts.Occurrence, patient *roster.Patient, employeeID uuid.UUID) {
	if a.sender == nil {
		return
	}
	provider, err := a.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		a.logger.Error("assignment: load provider for confirmation failed", "error", err, "occurrence_id", occ.ID)
		return
	}
	employee, err := a.roster.GetEmployee(ctx, occ.ProviderID, employeeID)
	if err != nil {
		a.logger.Error("assignment: load employee for confirmation failed", "error", err, "occurrence_id", occ.ID)
		return
	}
	body, err := messaging.RenderShift("confirm", messaging.DefaultConfirmTemplate, messaging.ShiftVars{
		EmployeeName: employee.DisplayName,
		PatientName:  patient.DisplayName,
		Date:         occ.ScheduledDate.Format("Monday 2 January"),
		StartTime:    occ.StartTime,
		EndTime:      occ.EndTime,
		Suburb:       patient.Suburb,
	})
	if err != nil {
		a.logger.Error("assignment: render confirmation failed", "error", err, "occurrence_id", occ.ID)
		return
	}
	err = a.sender.Send(ctx, messaging.Message{
		To:         employee.Phone,
		From:       provider.PhoneNumber,
		Body:       body,
		ProviderID: provider.ID.String(),
	})
	if err != nil {
		a.logger.Error("assignment: confirmation sms failed", "error", err,
			"occurrence_id", occ.ID, "employee_id", employeeID)
	}
}

func (a *Arbiter) wavesExhausted(ctx context.Context, occ *shifts.Occurrence) (Decision, error) {
	ok, err := a.occurrences.CompareAndSetStatus(ctx, occ.ID, shifts.StatusOpen, shifts.StatusUnfilledAfterSMS)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return rejected(RejectRaceLost), nil
	}
	occ.Status = shifts.StatusUnfilledAfterSMS

	provider, err := a.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		a.logger.Error("assignment: load provider after wave exhaustion failed", "error", err, "occurrence_id", occ.ID)
		return Decision{Accepted: true}, nil
	}
	if provider.Outbound.Enabled && provider.Outbound.Validate() == nil && a.calls != nil {
		if err := a.calls.ScheduleFirstCall(ctx, occ, provider); err != nil {
			a.logger.Error("assignment: schedule outbound failed", "error", err, "occurrence_id", occ.ID)
		}
		return Decision{Accepted: true}, nil
	}
	if provider.Outbound.Enabled {
		if err := provider.Outbound.Validate(); err != nil {
			a.logger.Warn("assignment: outbound config invalid, finalising instead", "error", err, "provider_id", provider.ID)
		}
	}
	a.finalize(ctx, occ, provider)
	return Decision{Accepted: true}, nil
}

func (a *Arbiter) callsExhausted(ctx context.Context, occ *shifts.Occurrence) (Decision, error) {
	ok, err := a.occurrences.CompareAndSetStatus(ctx, occ.ID, shifts.StatusUnfilledAfterSMS, shifts.StatusUnfilledAfterCalls)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return rejected(RejectRaceLost), nil
	}
	occ.Status = shifts.StatusUnfilledAfterCalls

	provider, err := a.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		a.logger.Error("assignment: load provider after call exhaustion failed", "error", err, "occurrence_id", occ.ID)
		return Decision{Accepted: true}, nil
	}
	a.finalize(ctx, occ, provider)
	return Decision{Accepted: true}, nil
}

func (a *Arbiter) finalize(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider) {
	if a.finalizer == nil {
		return
	}
	if err := a.finalizer.NotifyUnfilled(ctx, occ, provider); err != nil {
		a.logger.Error("assignment: unfilled notification failed", "error", err, "occurrence_id", occ.ID)
	}
}

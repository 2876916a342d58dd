// Package outbound escalates unfilled shifts to automated phone calls:
// sequential round-robin dialing through the patient's staff pool, a rendered
// offer script, and a single DTMF digit to accept or decline.
package outbound

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/calllog"
	"github.com/dajobrague/au-call-system-sub004/internal/jobqueue"
	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/phone"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/internal/telephony"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const (
	ringTimeout   = 30 * time.Second
	gatherTimeout = 10 * time.Second
	// clientStateKind tags our client state so inbound-call webhooks, which
	// carry no such state, are never mistaken for offer calls.
	clientStateKind = "shift-offer"

	defaultCallScript = "Hello {{.employeeName}}. A shift with {{.patientName}} on {{.date}} " +
		"from {{.startTime}} to {{.endTime}} needs cover."

	dtmfPrompt      = " Press 1 to accept this shift, or press 2 to decline."
	dtmfRetryPrompt = "Sorry, I didn't catch that. Press 1 to accept the shift, or 2 to decline."
	acceptedSpeech  = "You've got the shift. A confirmation text is on its way. Goodbye."
	filledSpeech    = "Sorry, that shift has just been filled. Goodbye."
	declinedSpeech  = "No problem, thanks for letting us know. Goodbye."
)

type occurrenceGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*shifts.Occurrence, error)
}

type rosterStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*roster.Provider, error)
	GetEmployee(ctx context.Context, providerID, employeeID uuid.UUID) (*roster.Employee, error)
	GetPatient(ctx context.Context, providerID, patientID uuid.UUID) (*roster.Patient, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) error
}

type intentSubmitter interface {
	Submit(ctx context.Context, intent assignment.Intent) (assignment.Decision, error)
}

type dialer interface {
	Dial(ctx context.Context, req telephony.DialRequest) (*telephony.DialResponse, error)
	Speak(ctx context.Context, callControlID, text string) error
	GatherDTMF(ctx context.Context, callControlID, prompt, validDigits string, maxDigits int, timeout time.Duration) error
	Hangup(ctx context.Context, callControlID string) error
}

// Engine places offer calls one at a time per occurrence and reacts to their
// webhook events. It is the queue handler for ":call:" jobs and the webhook
// handler for outbound call legs.
type Engine struct {
	occurrences occurrenceGetter
	roster      rosterStore
	queue       enqueuer
	dialer      dialer
	arbiter     intentSubmitter
	logs        *calllog.Store
	metrics     *obsmetrics.CallMetrics
	logger      *logging.Logger
	now         func() time.Time

	mu    sync.Mutex
	calls map[string]*callState
}

// Config wires the engine.
type Config struct {
	Occurrences occurrenceGetter
	Roster      rosterStore
	Queue       enqueuer
	Dialer      dialer
	Arbiter     intentSubmitter
	Logs        *calllog.Store
	Metrics     *obsmetrics.CallMetrics
	Logger      *logging.Logger
	Now         func() time.Time
}

// NewEngine creates the outbound call engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Occurrences == nil {
		panic("outbound: occurrence store required")
	}
	if cfg.Roster == nil {
		panic("outbound: roster store required")
	}
	if cfg.Queue == nil {
		panic("outbound: queue required")
	}
	if cfg.Dialer == nil {
		panic("outbound: dialer required")
	}
	if cfg.Arbiter == nil {
		panic("outbound: arbiter required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		occurrences: cfg.Occurrences,
		roster:      cfg.Roster,
		queue:       cfg.Queue,
		dialer:      cfg.Dialer,
		arbiter:     cfg.Arbiter,
		logs:        cfg.Logs,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
		calls:       make(map[string]*callState),
	}
}

var _ assignment.CallScheduler = (*Engine)(nil)

// callJob is the queue payload for one dial attempt. The pool snapshot is
// frozen when escalation starts so roster edits don't reshuffle mid-round.
type callJob struct {
	OccurrenceID uuid.UUID   `json:"occurrence_id"`
	Round        int         `json:"round"`
	PoolIndex    int         `json:"pool_index"`
	Pool         []uuid.UUID `json:"pool"`
}

// callState travels through the telephony client state and, while the call is
// live, lives in memory to hold the retry flag.
type callState struct {
	Kind         string      `json:"k"`
	OccurrenceID uuid.UUID   `json:"occ"`
	EmployeeID   uuid.UUID   `json:"emp"`
	Round        int         `json:"round"`
	PoolIndex    int         `json:"idx"`
	Pool         []uuid.UUID `json:"pool"`

	retried bool
	done    bool
}

func encodeState(st *callState) string {
	b, _ := json.Marshal(st)
	return base64.StdEncoding.EncodeToString(b)
}

func decodeState(raw string) *callState {
	if raw == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var st callState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil
	}
	if st.Kind != clientStateKind || st.OccurrenceID == uuid.Nil {
		return nil
	}
	return &st
}

// ScheduleFirstCall enqueues round 1 against the patient's pool snapshot,
// delayed by the provider's configured wait. Called by the arbiter once the
// SMS waves are spent.
func (e *Engine) ScheduleFirstCall(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider) error {
	patient, err := e.roster.GetPatient(ctx, occ.ProviderID, occ.PatientID)
	if err != nil {
		return fmt.Errorf("outbound: load patient: %w", err)
	}
	if len(patient.StaffPool) == 0 {
		return e.submitCallsExhausted(ctx, occ.ID)
	}
	payload, _ := json.Marshal(callJob{
		OccurrenceID: occ.ID,
		Round:        1,
		PoolIndex:    0,
		Pool:         patient.StaffPool,
	})
	delay := time.Duration(provider.Outbound.WaitMinutes) * time.Minute
	if err := e.queue.Enqueue(ctx, shifts.CallKey(occ.ID, 1, 0), payload, delay); err != nil {
		return fmt.Errorf("outbound: enqueue first call: %w", err)
	}
	e.logger.Info("outbound: escalation scheduled",
		"occurrence_id", occ.ID, "pool_size", len(patient.StaffPool), "delay", delay)
	return nil
}

// HandleCall is the queue handler for one dial attempt. The status re-read
// makes duplicate or stale deliveries benign: once the shift is no longer
// UnfilledAfterSMS no call is placed.
func (e *Engine) HandleCall(ctx context.Context, job jobqueue.Job) error {
	var cj callJob
	if err := json.Unmarshal(job.Payload, &cj); err != nil {
		return fmt.Errorf("outbound: decode call job %s: %w", job.Key, err)
	}

	occ, err := e.occurrences.Get(ctx, cj.OccurrenceID)
	if err != nil {
		return fmt.Errorf("outbound: load occurrence: %w", err)
	}
	if occ.Status != shifts.StatusUnfilledAfterSMS {
		e.logger.Info("outbound: call dropped, occurrence resolved",
			"occurrence_id", occ.ID, "status", occ.Status, "round", cj.Round)
		return nil
	}
	provider, err := e.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return fmt.Errorf("outbound: load provider: %w", err)
	}

	// Only ring staff while the provider is on call. A job that lands
	// outside the window (long waitMinutes, a backlog drain) waits for the
	// next opening instead of being dropped.
	if !provider.OnCallAt(e.now()) {
		opens := provider.NextOnCallStart(e.now())
		payload, _ := json.Marshal(cj)
		if err := e.queue.Enqueue(ctx, job.Key, payload, opens.Sub(e.now())); err != nil {
			return fmt.Errorf("outbound: defer call to on-call window: %w", err)
		}
		e.logger.Info("outbound: call deferred to on-call window",
			"occurrence_id", occ.ID, "round", cj.Round, "opens_at", opens)
		return nil
	}

	// Walk forward past members we cannot call.
	idx := cj.PoolIndex
	var employee *roster.Employee
	for idx < len(cj.Pool) {
		emp, err := e.roster.GetEmployee(ctx, occ.ProviderID, cj.Pool[idx])
		if err != nil {
			e.logger.Warn("outbound: pool member lookup failed, skipping",
				"occurrence_id", occ.ID, "employee_id", cj.Pool[idx], "error", err)
			idx++
			continue
		}
		if !emp.Active || !emp.OutboundOptIn || !phone.IsValid(emp.Phone) {
			e.logger.Info("outbound: skipping pool member",
				"occurrence_id", occ.ID, "employee_id", emp.ID,
				"active", emp.Active, "opt_in", emp.OutboundOptIn)
			idx++
			continue
		}
		employee = emp
		break
	}
	if employee == nil {
		return e.advanceRound(ctx, occ.ID, provider, cj)
	}

	st := &callState{
		Kind:         clientStateKind,
		OccurrenceID: occ.ID,
		EmployeeID:   employee.ID,
		Round:        cj.Round,
		PoolIndex:    idx,
		Pool:         cj.Pool,
	}
	entry := &calllog.Entry{
		Direction:    calllog.DirectionOutbound,
		ProviderID:   occ.ProviderID,
		EmployeeID:   &employee.ID,
		PatientID:    &occ.PatientID,
		OccurrenceID: &occ.ID,
		Purpose:      calllog.PurposeOutboundShiftOffer,
		AttemptRound: cj.Round,
	}

	resp, err := e.dialer.Dial(ctx, telephony.DialRequest{
		From:        provider.PhoneNumber,
		To:          employee.Phone,
		ClientState: encodeState(st),
		TimeoutSecs: int(ringTimeout.Seconds()),
	})
	if err != nil {
		e.logger.Error("outbound: dial failed",
			"error", err, "occurrence_id", occ.ID, "employee_id", employee.ID, "round", cj.Round)
		e.metrics.ObserveOutcome(calllog.PurposeOutboundShiftOffer, calllog.OutcomeError)
		cj.PoolIndex = idx
		return e.advancePool(ctx, occ.ID, provider, cj)
	}

	entry.CallID = resp.CallControlID
	if err := e.logs.Start(ctx, entry); err != nil {
		e.logger.Error("outbound: call log failed", "error", err, "call_id", resp.CallControlID)
	}
	e.mu.Lock()
	e.calls[resp.CallControlID] = st
	e.mu.Unlock()
	e.logger.Info("outbound: offer call placed",
		"occurrence_id", occ.ID, "employee_id", employee.ID,
		"round", cj.Round, "pool_index", idx, "call_id", resp.CallControlID)
	return nil
}

// HandleEvent reacts to a webhook event for an offer call. Events that don't
// carry offer-call state are ignored so the caller can fan every call webhook
// through here safely.
func (e *Engine) HandleEvent(ctx context.Context, evt telephony.Event) error {
	st := e.stateFor(evt)
	if st == nil {
		return nil
	}

	switch evt.Kind {
	case telephony.EventCallAnswered:
		return e.onAnswered(ctx, evt, st)
	case telephony.EventDTMF:
		return e.onDTMF(ctx, evt, st)
	case telephony.EventMachine:
		e.hangup(ctx, evt.CallControlID)
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeNoAnswer, "", true)
	case telephony.EventHangup:
		if st.done {
			e.forget(evt.CallControlID)
			return nil
		}
		// unanswered, busy, or the callee hung up mid-gather: all no input
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeNoAnswer, "", true)
	}
	return nil
}

func (e *Engine) onAnswered(ctx context.Context, evt telephony.Event, st *callState) error {
	occ, err := e.occurrences.Get(ctx, st.OccurrenceID)
	if err != nil {
		return fmt.Errorf("outbound: load occurrence: %w", err)
	}
	if occ.Status != shifts.StatusUnfilledAfterSMS {
		// accepted while ringing; do not advance, the race is over
		e.speak(ctx, evt.CallControlID, filledSpeech)
		e.hangup(ctx, evt.CallControlID)
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeNoAnswer, "", false)
	}

	script, err := e.renderScript(ctx, occ, st.EmployeeID)
	if err != nil {
		e.logger.Error("outbound: script render failed", "error", err, "occurrence_id", occ.ID)
		e.hangup(ctx, evt.CallControlID)
		cj := callJob{OccurrenceID: st.OccurrenceID, Round: st.Round, PoolIndex: st.PoolIndex, Pool: st.Pool}
		provider, perr := e.roster.GetProvider(ctx, occ.ProviderID)
		if perr != nil {
			return fmt.Errorf("outbound: load provider: %w", perr)
		}
		if rerr := e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeError, "", false); rerr != nil {
			return rerr
		}
		return e.advancePool(ctx, st.OccurrenceID, provider, cj)
	}
	if err := e.dialer.GatherDTMF(ctx, evt.CallControlID, script+dtmfPrompt, "12", 1, gatherTimeout); err != nil {
		return fmt.Errorf("outbound: gather: %w", err)
	}
	return nil
}

func (e *Engine) onDTMF(ctx context.Context, evt telephony.Event, st *callState) error {
	switch evt.Digits {
	case "1":
		decision, err := e.arbiter.Submit(ctx, assignment.Intent{
			Kind:         assignment.KindAccept,
			OccurrenceID: st.OccurrenceID,
			EmployeeID:   st.EmployeeID,
			Source:       "outbound",
		})
		if err != nil {
			return fmt.Errorf("outbound: submit accept: %w", err)
		}
		if decision.Accepted {
			e.speak(ctx, evt.CallControlID, acceptedSpeech)
			e.hangup(ctx, evt.CallControlID)
			return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeAccepted, "1", false)
		}
		// pressed 1 but someone else already won; dtmf "1" disambiguates
		e.speak(ctx, evt.CallControlID, filledSpeech)
		e.hangup(ctx, evt.CallControlID)
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeDeclined, "1", false)
	case "2":
		e.speak(ctx, evt.CallControlID, declinedSpeech)
		e.hangup(ctx, evt.CallControlID)
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeDeclined, "2", true)
	default:
		// timeout or stray digit: one retry prompt, then give up
		if !st.retried {
			st.retried = true
			e.remember(evt.CallControlID, st)
			if err := e.dialer.GatherDTMF(ctx, evt.CallControlID, dtmfRetryPrompt, "12", 1, gatherTimeout); err != nil {
				return fmt.Errorf("outbound: gather retry: %w", err)
			}
			return nil
		}
		e.hangup(ctx, evt.CallControlID)
		return e.resolve(ctx, evt.CallControlID, st, calllog.OutcomeNoAnswer, evt.Digits, true)
	}
}

// resolve finalises the call log, records the outcome, and optionally moves
// to the next pool member.
func (e *Engine) resolve(ctx context.Context, callID string, st *callState, outcome, dtmf string, advance bool) error {
	st.done = true
	e.remember(callID, st)
	if err := e.logs.Finalize(ctx, callID, calllog.Finalization{
		Outcome:      outcome,
		DTMFResponse: dtmf,
		EmployeeID:   &st.EmployeeID,
		OccurrenceID: &st.OccurrenceID,
	}); err != nil {
		e.logger.Error("outbound: finalize log failed", "error", err, "call_id", callID)
	}
	e.metrics.ObserveOutcome(calllog.PurposeOutboundShiftOffer, outcome)
	e.logger.Info("outbound: offer call resolved",
		"occurrence_id", st.OccurrenceID, "employee_id", st.EmployeeID,
		"round", st.Round, "outcome", outcome)

	if !advance {
		return nil
	}
	provider, err := e.providerFor(ctx, st.OccurrenceID)
	if err != nil {
		return err
	}
	cj := callJob{OccurrenceID: st.OccurrenceID, Round: st.Round, PoolIndex: st.PoolIndex, Pool: st.Pool}
	return e.advancePool(ctx, st.OccurrenceID, provider, cj)
}

// advancePool enqueues the next member of the current round, or rolls over to
// the next round when the pool is spent.
func (e *Engine) advancePool(ctx context.Context, occID uuid.UUID, provider *roster.Provider, cj callJob) error {
	next := cj.PoolIndex + 1
	if next < len(cj.Pool) {
		cj.PoolIndex = next
		payload, _ := json.Marshal(cj)
		if err := e.queue.Enqueue(ctx, shifts.CallKey(occID, cj.Round, next), payload, 0); err != nil {
			return fmt.Errorf("outbound: enqueue next call: %w", err)
		}
		return nil
	}
	return e.advanceRound(ctx, occID, provider, cj)
}

func (e *Engine) advanceRound(ctx context.Context, occID uuid.UUID, provider *roster.Provider, cj callJob) error {
	if cj.Round < provider.Outbound.MaxRounds {
		cj.Round++
		cj.PoolIndex = 0
		payload, _ := json.Marshal(cj)
		if err := e.queue.Enqueue(ctx, shifts.CallKey(occID, cj.Round, 0), payload, 0); err != nil {
			return fmt.Errorf("outbound: enqueue next round: %w", err)
		}
		e.logger.Info("outbound: starting next round", "occurrence_id", occID, "round", cj.Round)
		return nil
	}
	return e.submitCallsExhausted(ctx, occID)
}

func (e *Engine) submitCallsExhausted(ctx context.Context, occID uuid.UUID) error {
	decision, err := e.arbiter.Submit(ctx, assignment.Intent{
		Kind:         assignment.KindCallsExhausted,
		OccurrenceID: occID,
		Source:       "outbound",
	})
	if err != nil {
		return fmt.Errorf("outbound: submit calls exhausted: %w", err)
	}
	if !decision.Accepted {
		e.logger.Info("outbound: calls exhausted lost the race",
			"occurrence_id", occID, "reason", decision.Reason)
	}
	return nil
}

func (e *Engine) renderScript(ctx context.Context, occ *shifts.Occurrence, employeeID uuid.UUID) (string, error) {
	provider, err := e.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return "", fmt.Errorf("outbound: load provider: %w", err)
	}
	patient, err := e.roster.GetPatient(ctx, occ.ProviderID, occ.PatientID)
	if err != nil {
		return "", fmt.Errorf("outbound: load patient: %w", err)
	}
	employee, err := e.roster.GetEmployee(ctx, occ.ProviderID, employeeID)
	if err != nil {
		return "", fmt.Errorf("outbound: load employee: %w", err)
	}
	tmpl := provider.Outbound.MessageTemplate
	if tmpl == "" {
		tmpl = defaultCallScript
	}
	return messaging.RenderShift("call-script", tmpl, messaging.ShiftVars{
		EmployeeName: employee.DisplayName,
		PatientName:  patient.DisplayName,
		Date:         occ.ScheduledDate.Format("Monday 2 January"),
		StartTime:    occ.StartTime,
		EndTime:      occ.EndTime,
		Suburb:       patient.Suburb,
	})
}

func (e *Engine) providerFor(ctx context.Context, occID uuid.UUID) (*roster.Provider, error) {
	occ, err := e.occurrences.Get(ctx, occID)
	if err != nil {
		return nil, fmt.Errorf("outbound: load occurrence: %w", err)
	}
	provider, err := e.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("outbound: load provider: %w", err)
	}
	return provider, nil
}

func (e *Engine) stateFor(evt telephony.Event) *callState {
	e.mu.Lock()
	st, ok := e.calls[evt.CallControlID]
	e.mu.Unlock()
	if ok {
		return st
	}
	// process restarted mid-call; the dial-time snapshot still rides the
	// webhook, only the retry flag is lost
	return decodeState(evt.ClientState)
}

func (e *Engine) remember(callID string, st *callState) {
	e.mu.Lock()
	e.calls[callID] = st
	e.mu.Unlock()
}

func (e *Engine) forget(callID string) {
	e.mu.Lock()
	delete(e.calls, callID)
	e.mu.Unlock()
}

func (e *Engine) speak(ctx context.Context, callID, text string) {
	if err := e.dialer.Speak(ctx, callID, text); err != nil {
		e.logger.Warn("outbound: speak failed", "error", err, "call_id", callID)
	}
}

func (e *Engine) hangup(ctx context.Context, callID string) {
	if err := e.dialer.Hangup(ctx, callID); err != nil {
		e.logger.Warn("outbound: hangup failed", "error", err, "call_id", callID)
	}
}

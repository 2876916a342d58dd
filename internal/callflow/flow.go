package callflow

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/calllog"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/internal/speech"
	"github.com/dajobrague/au-call-system-sub004/internal/telephony"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const (
	maxPhaseAttempts = 3
	maxOptionCount   = 3
	callDeadline     = 10 * time.Minute
	gatherTimeout    = 7 * time.Second
	minReasonLength  = 5
	callLockShards   = 64
)

type rosterStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*roster.Provider, error)
	GetProviderByNumber(ctx context.Context, number string) (*roster.Provider, error)
	ListProvidersForPhone(ctx context.Context, callerPhone string) ([]roster.Provider, error)
	FindEmployeeByPhone(ctx context.Context, providerID uuid.UUID, callerPhone string) (*roster.Employee, error)
	FindEmployeeByPin(ctx context.Context, providerID uuid.UUID, pin string) (*roster.Employee, bool, error)
	FindShiftTemplate(ctx context.Context, providerID uuid.UUID, jobCode string) (*roster.ShiftTemplate, error)
}

type occurrenceStore interface {
	Get(ctx context.Context, id uuid.UUID) (*shifts.Occurrence, error)
	ListUpcomingForEmployee(ctx context.Context, providerID, employeeID uuid.UUID, templateID *uuid.UUID, now time.Time) ([]shifts.Occurrence, error)
}

type intentSubmitter interface {
	Submit(ctx context.Context, intent assignment.Intent) (assignment.Decision, error)
}

// caller is the slice of the telephony client the flow drives.
type caller interface {
	Answer(ctx context.Context, callControlID string) error
	Speak(ctx context.Context, callControlID, text string) error
	GatherSpeech(ctx context.Context, callControlID, prompt string, timeout time.Duration) error
	Transfer(ctx context.Context, callControlID, to string) error
	Hangup(ctx context.Context, callControlID string) error
}

// reasonTagger categorises a free-text release reason.
type reasonTagger interface {
	Classify(ctx context.Context, text string) string
}

// transcriptArchiver persists a finished call's transcript for later review.
type transcriptArchiver interface {
	ArchiveCall(ctx context.Context, s *Session, outcome string) error
}

// Flow is the inbound-call state machine. One instance serves all calls;
// per-call state lives in the session store.
type Flow struct {
	roster      rosterStore
	occurrences occurrenceStore
	arbiter     intentSubmitter
	sessions    SessionStore
	dialer      caller
	logs        *calllog.Store
	reasons     reasonTagger
	archiver    transcriptArchiver
	metrics     *obsmetrics.CallMetrics
	logger      *logging.Logger
	now         func() time.Time

	// locks serialise the get-handle-put sequence per call: the carrier can
	// deliver events for one call concurrently (retries, a gather result
	// racing a hangup), and a lost session write drops an attempt counter or
	// phase change. Sharded by call ID hash.
	locks [callLockShards]sync.Mutex
}

// Config wires the flow.
type Config struct {
	Roster      rosterStore
	Occurrences occurrenceStore
	Arbiter     intentSubmitter
	Sessions    SessionStore
	Dialer      caller
	Logs        *calllog.Store
	// Reasons optionally upgrades reason tagging (e.g. an LLM classifier);
	// keyword rules are the fallback.
	Reasons reasonTagger
	// Archiver optionally persists transcripts once a call finishes.
	Archiver transcriptArchiver
	Metrics  *obsmetrics.CallMetrics
	Logger   *logging.Logger
	Now      func() time.Time
}

// New creates the call flow.
func New(cfg Config) *Flow {
	if cfg.Roster == nil {
		panic("callflow: roster store required")
	}
	if cfg.Occurrences == nil {
		panic("callflow: occurrence store required")
	}
	if cfg.Arbiter == nil {
		panic("callflow: arbiter required")
	}
	if cfg.Sessions == nil {
		panic("callflow: session store required")
	}
	if cfg.Dialer == nil {
		panic("callflow: telephony client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Flow{
		roster:      cfg.Roster,
		occurrences: cfg.Occurrences,
		arbiter:     cfg.Arbiter,
		sessions:    cfg.Sessions,
		dialer:      cfg.Dialer,
		logs:        cfg.Logs,
		reasons:     cfg.Reasons,
		archiver:    cfg.Archiver,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
	}
}

// HandleEvent processes one webhook event for an inbound call. Events for
// calls without a session (outbound offer calls, expired sessions) are
// ignored.
func (f *Flow) HandleEvent(ctx context.Context, evt telephony.Event) error {
	mu := f.lockFor(evt.CallControlID)
	mu.Lock()
	defer mu.Unlock()

	if evt.Kind == telephony.EventCallInitiated {
		if evt.Direction != "incoming" {
			return nil
		}
		return f.onCallStart(ctx, evt)
	}

	session, err := f.sessions.Get(ctx, evt.CallControlID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.Phase.Terminal() {
		return nil
	}
	session.LastEventAt = f.now()

	switch evt.Kind {
	case telephony.EventCallAnswered:
		err = f.onAnswered(ctx, session)
	case telephony.EventSpeech:
		err = f.onInput(ctx, session, evt.Transcript, evt.Confidence)
	case telephony.EventDTMF:
		err = f.onInput(ctx, session, evt.Digits, 1)
	case telephony.EventHangup:
		return f.onHangup(ctx, session)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if session.Phase.Terminal() {
		return nil
	}
	return f.sessions.Put(ctx, session)
}

func (f *Flow) lockFor(callID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(callID))
	return &f.locks[h.Sum32()%callLockShards]
}

// onCallStart resolves the provider, matches the caller's number, answers the
// call and opens the call log. The greeting itself waits for the answered
// event.
func (f *Flow) onCallStart(ctx context.Context, evt telephony.Event) error {
	session := NewSession(evt.CallControlID, evt.From, f.now())

	provider, err := f.roster.GetProviderByNumber(ctx, evt.To)
	switch {
	case err == nil:
		session.ProviderID = provider.ID
	case errors.Is(err, roster.ErrNotFound):
		// a shared inbound number: find the caller across providers
		candidates, listErr := f.roster.ListProvidersForPhone(ctx, evt.From)
		if listErr != nil {
			return fmt.Errorf("callflow: list providers for caller: %w", listErr)
		}
		if len(candidates) == 1 {
			session.ProviderID = candidates[0].ID
		} else {
			for _, p := range candidates {
				session.CandidateProviders = append(session.CandidateProviders, p.ID)
			}
		}
	default:
		return fmt.Errorf("callflow: resolve provider: %w", err)
	}

	if session.ProviderID != uuid.Nil {
		emp, err := f.roster.FindEmployeeByPhone(ctx, session.ProviderID, evt.From)
		if err == nil {
			session.EmployeeID = &emp.ID
		} else if !errors.Is(err, roster.ErrNotFound) {
			return fmt.Errorf("callflow: match caller: %w", err)
		}
	}

	if err := f.logs.Start(ctx, &calllog.Entry{
		CallID:     evt.CallControlID,
		Direction:  calllog.DirectionInbound,
		ProviderID: session.ProviderID,
		EmployeeID: session.EmployeeID,
		Purpose:    calllog.PurposeInboundCoverage,
	}); err != nil {
		f.logger.Error("callflow: call log failed", "error", err, "call_id", evt.CallControlID)
	}
	if err := f.sessions.Put(ctx, session); err != nil {
		return err
	}
	if err := f.dialer.Answer(ctx, evt.CallControlID); err != nil {
		return fmt.Errorf("callflow: answer: %w", err)
	}
	f.logger.Info("callflow: inbound call",
		"call_id", evt.CallControlID, "provider_id", session.ProviderID,
		"known_caller", session.EmployeeID != nil)
	return nil
}

func (f *Flow) onAnswered(ctx context.Context, s *Session) error {
	switch {
	case len(s.CandidateProviders) > 1:
		f.say(ctx, s, defaultGreeting)
		s.Enter(PhaseProviderSelect)
		menu, err := f.providerMenu(ctx, s)
		if err != nil {
			return err
		}
		return f.gather(ctx, s, menu)
	case s.ProviderID == uuid.Nil:
		f.say(ctx, s, speechNoProvider)
		f.hangup(ctx, s.ID)
		return f.finish(ctx, s, PhaseAbandoned, calllog.OutcomeError)
	case s.EmployeeID != nil:
		f.say(ctx, s, f.greeting(ctx, s))
		return f.enterJobCode(ctx, s)
	default:
		f.say(ctx, s, f.greeting(ctx, s))
		s.Enter(PhaseAuthByPin)
		return f.gather(ctx, s, promptPin)
	}
}

func (f *Flow) onInput(ctx context.Context, s *Session, text string, confidence float64) error {
	s.Say("caller", text, f.now())
	if f.now().Sub(s.CreatedAt) > callDeadline {
		f.say(ctx, s, speechTakingTooLong)
		return f.transfer(ctx, s)
	}
	// a transcription the engine itself doubts is not worth parsing
	if confidence > 0 && confidence < speech.ConfirmFloorConfidence {
		return f.retry(ctx, s)
	}

	switch s.Phase {
	case PhaseAuthByPin:
		return f.onPin(ctx, s, text)
	case PhaseProviderSelect:
		return f.onProviderSelect(ctx, s, text)
	case PhaseJobCode:
		return f.onJobCode(ctx, s, text)
	case PhaseConfirmJobCode:
		return f.onConfirmJobCode(ctx, s, text)
	case PhaseJobOptions:
		return f.onJobOptions(ctx, s, text)
	case PhaseOccurrenceSelect:
		return f.onOccurrenceSelect(ctx, s, text)
	case PhaseCollectDateTime:
		return f.onCollectDateTime(ctx, s, text)
	case PhaseConfirmDateTime:
		return f.onConfirmDateTime(ctx, s, text)
	case PhaseCollectReason:
		return f.onCollectReason(ctx, s, text)
	case PhaseConfirmRelease:
		return f.onConfirmRelease(ctx, s, text)
	default:
		f.logger.Warn("callflow: input in unexpected phase", "call_id", s.ID, "phase", s.Phase)
		return nil
	}
}

func (f *Flow) onHangup(ctx context.Context, s *Session) error {
	if s.Phase.Terminal() {
		return f.sessions.Delete(ctx, s.ID)
	}
	f.logger.Info("callflow: caller hung up", "call_id", s.ID, "phase", s.Phase)
	return f.finish(ctx, s, PhaseAbandoned, calllog.OutcomeAbandoned)
}

// --- phase handlers ---

func (f *Flow) onPin(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseDigits(text, 4)
	if err != nil || parsed.Confidence < speech.ConfirmFloorConfidence {
		return f.retry(ctx, s)
	}
	emp, ambiguous, err := f.roster.FindEmployeeByPin(ctx, s.ProviderID, parsed.Token)
	if errors.Is(err, roster.ErrNotFound) {
		return f.retry(ctx, s)
	}
	if err != nil {
		return fmt.Errorf("callflow: pin lookup: %w", err)
	}
	if ambiguous {
		f.logger.Warn("callflow: pin matched more than one employee",
			"call_id", s.ID, "provider_id", s.ProviderID)
	}
	s.EmployeeID = &emp.ID
	return f.enterJobCode(ctx, s)
}

func (f *Flow) onProviderSelect(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseDigits(text, 1)
	if err != nil {
		return f.retry(ctx, s)
	}
	choice, _ := strconv.Atoi(parsed.Token)
	if choice < 1 || choice > len(s.CandidateProviders) {
		return f.retry(ctx, s)
	}
	s.ProviderID = s.CandidateProviders[choice-1]
	emp, err := f.roster.FindEmployeeByPhone(ctx, s.ProviderID, s.CallerPhone)
	if errors.Is(err, roster.ErrNotFound) {
		s.Enter(PhaseAuthByPin)
		return f.gather(ctx, s, promptPin)
	}
	if err != nil {
		return fmt.Errorf("callflow: match caller: %w", err)
	}
	s.EmployeeID = &emp.ID
	return f.enterJobCode(ctx, s)
}

func (f *Flow) onJobCode(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseCode(text)
	if err != nil || parsed.Confidence < speech.ConfirmFloorConfidence {
		return f.retry(ctx, s)
	}
	tmpl, err := f.roster.FindShiftTemplate(ctx, s.ProviderID, parsed.Token)
	if errors.Is(err, roster.ErrNotFound) {
		f.say(ctx, s, "I couldn't find a job with code "+speech.SpellOut(parsed.Token)+".")
		return f.retry(ctx, s)
	}
	if err != nil {
		return fmt.Errorf("callflow: job code lookup: %w", err)
	}
	s.HeardCode = parsed.Token
	s.TemplateID = &tmpl.ID
	if parsed.Confidence >= speech.AutoAcceptConfidence {
		s.JobCode = parsed.Token
		return f.enterJobOptions(ctx, s)
	}
	s.Enter(PhaseConfirmJobCode)
	return f.gather(ctx, s, "I heard "+speech.SpellOut(parsed.Token)+". Is that right?")
}

func (f *Flow) onConfirmJobCode(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseYesNo(text)
	if err != nil {
		if !s.ConfirmRetried {
			s.ConfirmRetried = true
			return f.gather(ctx, s, "Sorry, was that a yes or a no?")
		}
		return f.rehearJobCode(ctx, s)
	}
	if parsed.Token == speech.Yes {
		s.JobCode = s.HeardCode
		return f.enterJobOptions(ctx, s)
	}
	return f.rehearJobCode(ctx, s)
}

// rehearJobCode returns to the job-code phase keeping its attempt count, so a
// caller cannot loop forever by answering "no".
func (f *Flow) rehearJobCode(ctx context.Context, s *Session) error {
	s.HeardCode = ""
	s.TemplateID = nil
	s.Resume(PhaseJobCode)
	return f.retry(ctx, s)
}

func (f *Flow) onJobOptions(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseAction(text)
	if err != nil {
		return f.retry(ctx, s)
	}
	switch parsed.Token {
	case speech.ActionTransfer:
		return f.transfer(ctx, s)
	case speech.ActionReschedule, speech.ActionRelease:
		s.Action = parsed.Token
		return f.enterOccurrenceSelect(ctx, s)
	default:
		return f.retry(ctx, s)
	}
}

func (f *Flow) onOccurrenceSelect(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseDigits(text, 1)
	if err != nil {
		return f.retry(ctx, s)
	}
	choice, _ := strconv.Atoi(parsed.Token)
	if choice < 1 || choice > len(s.Options) {
		return f.retry(ctx, s)
	}
	id := s.Options[choice-1]
	s.OccurrenceID = &id

	if s.Action == speech.ActionRelease {
		s.Enter(PhaseCollectReason)
		return f.gather(ctx, s, promptReason)
	}
	s.Enter(PhaseCollectDateTime)
	return f.gather(ctx, s, promptDateTime)
}

func (f *Flow) onCollectDateTime(ctx context.Context, s *Session, text string) error {
	loc, err := f.providerLocation(ctx, s)
	if err != nil {
		return err
	}
	now := f.now().In(loc)

	combined := strings.TrimSpace(s.DateTimeFragment + " " + text)
	dt, parseErr := speech.ParseDateTime(combined, now)
	if parseErr != nil && s.DateTimeFragment != "" {
		// the accumulated fragment may be poisoning the phrase; try alone
		dt, parseErr = speech.ParseDateTime(text, now)
		combined = text
	}
	if parseErr != nil {
		return f.retry(ctx, s)
	}

	switch {
	case dt.NeedsTime:
		s.DateTimeFragment = combined
		return f.gather(ctx, s, promptNeedTime)
	case dt.NeedsDate:
		s.DateTimeFragment = combined
		return f.gather(ctx, s, promptNeedDate)
	case dt.Invalid != "":
		s.DateTimeFragment = ""
		f.say(ctx, s, "That time "+dt.Invalid+".")
		return f.retry(ctx, s)
	}

	s.DateTimeFragment = ""
	s.PendingAt = dt.At
	s.Enter(PhaseConfirmDateTime)
	return f.gather(ctx, s, "I heard "+spokenDateTime(dt.At)+". Shall I move the shift?")
}

func (f *Flow) onConfirmDateTime(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseYesNo(text)
	if err != nil {
		if !s.ConfirmRetried {
			s.ConfirmRetried = true
			return f.gather(ctx, s, "Sorry, was that a yes or a no?")
		}
		s.Enter(PhaseCollectDateTime)
		return f.gather(ctx, s, promptDateTimeSimple)
	}
	if parsed.Token == speech.No {
		s.Enter(PhaseCollectDateTime)
		return f.gather(ctx, s, promptDateTime)
	}

	decision, err := f.arbiter.Submit(ctx, assignment.Intent{
		Kind:         assignment.KindReschedule,
		OccurrenceID: *s.OccurrenceID,
		NewDate:      s.PendingAt,
		NewStart:     s.PendingAt.Format("15:04"),
		Source:       "voice",
	})
	if err != nil {
		f.logger.Error("callflow: reschedule failed", "error", err, "call_id", s.ID)
		return f.transfer(ctx, s)
	}
	if !decision.Accepted {
		if decision.Reason == assignment.RejectRaceLost || decision.Reason == assignment.RejectBadTransition {
			f.say(ctx, s, speechShiftFilled)
			return f.transfer(ctx, s)
		}
		if !s.AssignRetried {
			s.AssignRetried = true
			f.say(ctx, s, "Sorry, I couldn't book that time.")
			s.Enter(PhaseCollectDateTime)
			return f.gather(ctx, s, promptDateTimeSimple)
		}
		return f.transfer(ctx, s)
	}

	f.say(ctx, s, "Done. Your shift has been moved to "+spokenDateTime(s.PendingAt)+". Goodbye.")
	f.hangup(ctx, s.ID)
	return f.finish(ctx, s, PhaseCompleted, calllog.OutcomeRescheduled)
}

func (f *Flow) onCollectReason(ctx context.Context, s *Session, text string) error {
	if len(speech.ReasonContent(text)) < minReasonLength {
		if s.Attempt() >= maxPhaseAttempts {
			return f.transfer(ctx, s)
		}
		return f.gather(ctx, s, promptReasonMore)
	}
	s.Reason = strings.TrimSpace(text)
	s.ReasonCategory = f.tagReason(ctx, text)
	s.Enter(PhaseConfirmRelease)
	return f.gather(ctx, s,
		"To confirm, you can't make this shift and we should offer it to your team. Is that right?")
}

func (f *Flow) onConfirmRelease(ctx context.Context, s *Session, text string) error {
	parsed, err := speech.ParseYesNo(text)
	if err != nil {
		if !s.ConfirmRetried {
			s.ConfirmRetried = true
			return f.gather(ctx, s, "Sorry, was that a yes or a no?")
		}
		s.Enter(PhaseCollectReason)
		return f.gather(ctx, s, promptReason)
	}
	if parsed.Token == speech.No {
		s.Enter(PhaseCollectReason)
		return f.gather(ctx, s, promptReason)
	}

	decision, err := f.arbiter.Submit(ctx, assignment.Intent{
		Kind:           assignment.KindRelease,
		OccurrenceID:   *s.OccurrenceID,
		EmployeeID:     *s.EmployeeID,
		Reason:         s.Reason,
		ReasonCategory: s.ReasonCategory,
		Source:         "voice",
	})
	if err != nil {
		f.logger.Error("callflow: release failed", "error", err, "call_id", s.ID)
		return f.transfer(ctx, s)
	}
	if !decision.Accepted {
		f.say(ctx, s, speechShiftFilled)
		return f.transfer(ctx, s)
	}

	f.say(ctx, s, speechReleaseDone)
	f.hangup(ctx, s.ID)
	return f.finish(ctx, s, PhaseCompleted, calllog.OutcomeReleased)
}

// --- phase entries ---

func (f *Flow) enterJobCode(ctx context.Context, s *Session) error {
	s.Enter(PhaseJobCode)
	return f.gather(ctx, s, promptJobCode)
}

func (f *Flow) enterJobOptions(ctx context.Context, s *Session) error {
	s.Enter(PhaseJobOptions)
	return f.gather(ctx, s, promptOptions)
}

func (f *Flow) enterOccurrenceSelect(ctx context.Context, s *Session) error {
	loc, err := f.providerLocation(ctx, s)
	if err != nil {
		return err
	}
	occs, err := f.occurrences.ListUpcomingForEmployee(
		ctx, s.ProviderID, *s.EmployeeID, s.TemplateID, f.now().In(loc))
	if err != nil {
		return fmt.Errorf("callflow: list occurrences: %w", err)
	}
	if len(occs) == 0 {
		f.say(ctx, s, speechNoShifts)
		return f.transfer(ctx, s)
	}
	if len(occs) > maxOptionCount {
		occs = occs[:maxOptionCount]
	}

	var b strings.Builder
	b.WriteString("I found these shifts. ")
	s.Options = s.Options[:0]
	for i, occ := range occs {
		s.Options = append(s.Options, occ.ID)
		fmt.Fprintf(&b, "Option %d: %s from %s to %s. ",
			i+1, occ.ScheduledDate.Format("Monday 2 January"),
			spokenClock(occ.StartTime), spokenClock(occ.EndTime))
	}
	b.WriteString("Say or press the option number.")
	s.Enter(PhaseOccurrenceSelect)
	return f.gather(ctx, s, b.String())
}

// --- shared plumbing ---

// retry re-prompts the current phase with its simplified variant, and gives
// up to a human after the attempt budget.
func (f *Flow) retry(ctx context.Context, s *Session) error {
	if s.Attempt() >= maxPhaseAttempts {
		return f.transfer(ctx, s)
	}
	return f.gather(ctx, s, f.simplifiedPrompt(s))
}

func (f *Flow) simplifiedPrompt(s *Session) string {
	switch s.Phase {
	case PhaseAuthByPin:
		return promptPinSimple
	case PhaseProviderSelect:
		return "Please say just the number of your provider."
	case PhaseJobCode:
		return promptJobCodeSimple
	case PhaseConfirmJobCode, PhaseConfirmDateTime, PhaseConfirmRelease:
		return "Please say yes or no."
	case PhaseJobOptions:
		return promptOptionsSimple
	case PhaseOccurrenceSelect:
		return "Please say just the option number."
	case PhaseCollectDateTime:
		return promptDateTimeSimple
	case PhaseCollectReason:
		return promptReasonMore
	default:
		return "Sorry, I didn't catch that."
	}
}

func (f *Flow) transfer(ctx context.Context, s *Session) error {
	provider, err := f.roster.GetProvider(ctx, s.ProviderID)
	if err != nil || provider.TransferNumber == nil || *provider.TransferNumber == "" {
		if err != nil {
			f.logger.Error("callflow: load provider for transfer", "error", err, "call_id", s.ID)
		}
		f.say(ctx, s, speechTransferNoNum)
		f.hangup(ctx, s.ID)
		return f.finish(ctx, s, PhaseTransferred, calllog.OutcomeTransferFailedNoNumber)
	}
	f.say(ctx, s, speechTransferring)
	if err := f.dialer.Transfer(ctx, s.ID, *provider.TransferNumber); err != nil {
		f.logger.Error("callflow: transfer failed", "error", err, "call_id", s.ID)
		f.say(ctx, s, speechTransferNoNum)
		f.hangup(ctx, s.ID)
		return f.finish(ctx, s, PhaseTransferred, calllog.OutcomeTransferFailedNoNumber)
	}
	return f.finish(ctx, s, PhaseTransferred, calllog.OutcomeTransferred)
}

func (f *Flow) finish(ctx context.Context, s *Session, phase Phase, outcome string) error {
	s.Phase = phase
	if err := f.logs.Finalize(ctx, s.ID, calllog.Finalization{
		Outcome:      outcome,
		EmployeeID:   s.EmployeeID,
		OccurrenceID: s.OccurrenceID,
	}); err != nil {
		f.logger.Error("callflow: finalize log failed", "error", err, "call_id", s.ID)
	}
	f.metrics.ObserveOutcome(calllog.PurposeInboundCoverage, outcome)
	if f.archiver != nil {
		if err := f.archiver.ArchiveCall(ctx, s, outcome); err != nil {
			f.logger.Warn("callflow: archive transcript failed", "error", err, "call_id", s.ID)
		}
	}
	f.logger.Info("callflow: call finished",
		"call_id", s.ID, "phase", phase, "outcome", outcome)
	return f.sessions.Delete(ctx, s.ID)
}

func (f *Flow) greeting(ctx context.Context, s *Session) string {
	provider, err := f.roster.GetProvider(ctx, s.ProviderID)
	if err != nil {
		f.logger.Error("callflow: load provider for greeting", "error", err, "call_id", s.ID)
		return defaultGreeting
	}
	if provider.IVRGreeting != "" {
		return provider.IVRGreeting
	}
	return "Welcome to the " + provider.Name + " after hours line."
}

func (f *Flow) providerMenu(ctx context.Context, s *Session) (string, error) {
	var b strings.Builder
	b.WriteString("Which provider are you calling about? ")
	for i, id := range s.CandidateProviders {
		provider, err := f.roster.GetProvider(ctx, id)
		if err != nil {
			return "", fmt.Errorf("callflow: load provider %s: %w", id, err)
		}
		fmt.Fprintf(&b, "Press %d for %s. ", i+1, provider.Name)
	}
	return strings.TrimSpace(b.String()), nil
}

func (f *Flow) providerLocation(ctx context.Context, s *Session) (*time.Location, error) {
	provider, err := f.roster.GetProvider(ctx, s.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("callflow: load provider: %w", err)
	}
	return provider.Location(), nil
}

func (f *Flow) tagReason(ctx context.Context, text string) string {
	if f.reasons != nil {
		return f.reasons.Classify(ctx, text)
	}
	return speech.CategorizeReason(text)
}

func (f *Flow) say(ctx context.Context, s *Session, text string) {
	s.Say("system", text, f.now())
	if err := f.dialer.Speak(ctx, s.ID, text); err != nil {
		f.logger.Warn("callflow: speak failed", "error", err, "call_id", s.ID)
	}
}

func (f *Flow) gather(ctx context.Context, s *Session, prompt string) error {
	s.Say("system", prompt, f.now())
	if err := f.dialer.GatherSpeech(ctx, s.ID, prompt, gatherTimeout); err != nil {
		return fmt.Errorf("callflow: gather: %w", err)
	}
	return nil
}

func (f *Flow) hangup(ctx context.Context, callID string) {
	if err := f.dialer.Hangup(ctx, callID); err != nil {
		f.logger.Warn("callflow: hangup failed", "error", err, "call_id", callID)
	}
}

// spokenClock turns a stored "15:04" into a readable "3:04 pm".
func spokenClock(hm string) string {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return hm
	}
	if t.Minute() == 0 {
		return t.Format("3 pm")
	}
	return t.Format("3:04 pm")
}

func spokenDateTime(at time.Time) string {
	if at.Minute() == 0 {
		return at.Format("Monday 2 January at 3 pm")
	}
	return at.Format("Monday 2 January at 3:04 pm")
}

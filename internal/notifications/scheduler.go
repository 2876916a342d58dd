// Package notifications runs the SMS wave pipeline for released shifts:
// wave 1 immediately, waves 2 and 3 on provider-configured delays, and the
// hand-off to the assignment arbiter once all waves are spent.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/jobqueue"
	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/phone"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

const waveCount = 3

type occurrenceGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*shifts.Occurrence, error)
}

type rosterStore interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*roster.Provider, error)
	GetPatient(ctx context.Context, providerID, patientID uuid.UUID) (*roster.Patient, error)
	ListEmployeesByID(ctx context.Context, providerID uuid.UUID, ids []uuid.UUID) ([]roster.Employee, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, key string, payload []byte, delay time.Duration) error
}

type intentSubmitter interface {
	Submit(ctx context.Context, intent assignment.Intent) (assignment.Decision, error)
}

type offerRecorder interface {
	RecordOffer(ctx context.Context, occurrenceID, employeeID, providerID uuid.UUID, sentAt time.Time) error
}

// Scheduler drives SMS waves for one or more occurrences.
type Scheduler struct {
	occurrences occurrenceGetter
	roster      rosterStore
	queue       enqueuer
	sender      messaging.Sender
	arbiter     intentSubmitter
	offers      offerRecorder
	metrics     *obsmetrics.SMSMetrics
	logger      *logging.Logger

	wave2Default time.Duration
	wave3Default time.Duration
	now          func() time.Time
}

// Config wires the scheduler.
type Config struct {
	Occurrences occurrenceGetter
	Roster      rosterStore
	Queue       enqueuer
	Sender      messaging.Sender
	Arbiter     intentSubmitter
	Offers      offerRecorder
	Metrics     *obsmetrics.SMSMetrics
	Logger      *logging.Logger
	// Wave2Delay and Wave3Delay apply when the provider has no override.
	Wave2Delay time.Duration
	Wave3Delay time.Duration
	Now        func() time.Time
}

// NewScheduler creates a wave scheduler.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Occurrences == nil {
		panic("notifications: occurrence store required")
	}
	if cfg.Roster == nil {
		panic("notifications: roster store required")
	}
	if cfg.Queue == nil {
		panic("notifications: queue required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	wave2 := cfg.Wave2Delay
	if wave2 <= 0 {
		wave2 = 15 * time.Minute
	}
	wave3 := cfg.Wave3Delay
	if wave3 <= 0 {
		wave3 = 30 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		occurrences:  cfg.Occurrences,
		roster:       cfg.Roster,
		queue:        cfg.Queue,
		sender:       cfg.Sender,
		arbiter:      cfg.Arbiter,
		offers:       cfg.Offers,
		metrics:      cfg.Metrics,
		logger:       logger,
		wave2Default: wave2,
		wave3Default: wave3,
		now:          now,
	}
}

var _ assignment.WaveStarter = (*Scheduler)(nil)

// waveJob is the queue payload for waves 2 and 3. The pool snapshot is frozen
// at release time so later roster edits don't change who gets offered.
type waveJob struct {
	OccurrenceID uuid.UUID   `json:"occurrence_id"`
	Wave         int         `json:"wave"`
	Pool         []uuid.UUID `json:"pool"`
}

// StartWaves runs Wave 1 now and schedules waves 2 and 3. Called by the
// arbiter after a release wins. An empty staff pool submits WavesExhausted
// immediately so the shift surfaces to administrators instead of sitting
// silently Open.
func (s *Scheduler) StartWaves(ctx context.Context, occ *shifts.Occurrence) error {
	provider, err := s.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return fmt.Errorf("notifications: load provider: %w", err)
	}
	patient, err := s.roster.GetPatient(ctx, occ.ProviderID, occ.PatientID)
	if err != nil {
		return fmt.Errorf("notifications: load patient: %w", err)
	}

	if len(patient.StaffPool) == 0 {
		s.logger.Warn("notifications: empty staff pool, shift goes straight to unfilled",
			"occurrence_id", occ.ID, "patient_id", patient.ID)
		return s.submitWavesExhausted(ctx, occ)
	}

	if err := s.sendWave(ctx, occ, provider, patient, 1, patient.StaffPool); err != nil {
		return err
	}

	payload := func(wave int) []byte {
		b, _ := json.Marshal(waveJob{OccurrenceID: occ.ID, Wave: wave, Pool: patient.StaffPool})
		return b
	}
	if err := s.queue.Enqueue(ctx, shifts.WaveKey(occ.ID, 2), payload(2), provider.Wave2Delay(s.wave2Default)); err != nil {
		return fmt.Errorf("notifications: enqueue wave 2: %w", err)
	}
	if err := s.queue.Enqueue(ctx, shifts.WaveKey(occ.ID, 3), payload(3), provider.Wave3Delay(s.wave3Default)); err != nil {
		return fmt.Errorf("notifications: enqueue wave 3: %w", err)
	}
	s.logger.Info("notifications: waves scheduled",
		"occurrence_id", occ.ID, "pool_size", len(patient.StaffPool))
	return nil
}

// HandleWave is the queue handler for wave jobs. The status re-read makes a
// stale delivery a no-op: once someone accepted, remaining waves drop out.
func (s *Scheduler) HandleWave(ctx context.Context, job jobqueue.Job) error {
	var wj waveJob
	if err := json.Unmarshal(job.Payload, &wj); err != nil {
		return fmt.Errorf("notifications: decode wave job %s: %w", job.Key, err)
	}
	if wj.Wave < 2 || wj.Wave > waveCount {
		return fmt.Errorf("notifications: wave job %s has wave %d out of range", job.Key, wj.Wave)
	}

	occ, err := s.occurrences.Get(ctx, wj.OccurrenceID)
	if err != nil {
		return fmt.Errorf("notifications: load occurrence: %w", err)
	}
	if occ.Status != shifts.StatusOpen {
		s.logger.Info("notifications: wave dropped, occurrence no longer open",
			"occurrence_id", occ.ID, "wave", wj.Wave, "status", occ.Status)
		return nil
	}

	provider, err := s.roster.GetProvider(ctx, occ.ProviderID)
	if err != nil {
		return fmt.Errorf("notifications: load provider: %w", err)
	}
	patient, err := s.roster.GetPatient(ctx, occ.ProviderID, occ.PatientID)
	if err != nil {
		return fmt.Errorf("notifications: load patient: %w", err)
	}
	if err := s.sendWave(ctx, occ, provider, patient, wj.Wave, wj.Pool); err != nil {
		return err
	}

	if wj.Wave == waveCount {
		return s.submitWavesExhausted(ctx, occ)
	}
	return nil
}

func (s *Scheduler) submitWavesExhausted(ctx context.Context, occ *shifts.Occurrence) error {
	if s.arbiter == nil {
		return fmt.Errorf("notifications: arbiter not wired")
	}
	decision, err := s.arbiter.Submit(ctx, assignment.Intent{
		Kind:         assignment.KindWavesExhausted,
		OccurrenceID: occ.ID,
		Source:       "waves",
	})
	if err != nil {
		return fmt.Errorf("notifications: submit waves exhausted: %w", err)
	}
	if !decision.Accepted {
		// someone accepted between our status check and the CAS; benign
		s.logger.Info("notifications: waves exhausted lost the race",
			"occurrence_id", occ.ID, "reason", decision.Reason)
	}
	return nil
}

func (s *Scheduler) sendWave(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider, patient *roster.Patient, wave int, pool []uuid.UUID) error {
	if s.sender == nil {
		return fmt.Errorf("notifications: sms sender not configured")
	}
	employees, err := s.roster.ListEmployeesByID(ctx, occ.ProviderID, pool)
	if err != nil {
		return fmt.Errorf("notifications: load pool employees: %w", err)
	}

	tmpl := provider.WaveSMSTemplate
	if tmpl == "" {
		tmpl = messaging.DefaultOfferTemplate
	}
	waveLabel := fmt.Sprintf("%d", wave)
	sent := 0
	for _, emp := range employees {
		if !emp.Active || !phone.IsValid(emp.Phone) {
			s.logger.Warn("notifications: skipping pool member",
				"occurrence_id", occ.ID, "employee_id", emp.ID, "active", emp.Active)
			s.metrics.ObserveWaveSend(waveLabel, "skipped")
			continue
		}
		body, err := messaging.RenderShift("offer", tmpl, messaging.ShiftVars{
			EmployeeName: emp.DisplayName,
			PatientName:  patient.DisplayName,
			Date:         occ.ScheduledDate.Format("Monday 2 January"),
			StartTime:    occ.StartTime,
			EndTime:      occ.EndTime,
			Suburb:       patient.Suburb,
		})
		if err != nil {
			return fmt.Errorf("notifications: render offer: %w", err)
		}
		if err := s.sender.Send(ctx, messaging.Message{
			To:         emp.Phone,
			From:       provider.PhoneNumber,
			Body:       body,
			ProviderID: provider.ID.String(),
		}); err != nil {
			s.logger.Error("notifications: wave send failed",
				"error", err, "occurrence_id", occ.ID, "employee_id", emp.ID, "wave", wave)
			s.metrics.ObserveWaveSend(waveLabel, "error")
			continue
		}
		s.metrics.ObserveWaveSend(waveLabel, "sent")
		sent++
		if wave == 1 && s.offers != nil {
			if err := s.offers.RecordOffer(ctx, occ.ID, emp.ID, provider.ID, s.now()); err != nil {
				s.logger.Error("notifications: record offer failed",
					"error", err, "occurrence_id", occ.ID, "employee_id", emp.ID)
			}
		}
	}
	s.logger.Info("notifications: wave sent",
		"occurrence_id", occ.ID, "wave", wave, "sent", sent, "pool_size", len(pool))
	return nil
}

package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/jobqueue"
	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

type fakeOccs struct {
	occ *shifts.Occurrence
}

func (f *fakeOccs) Get(context.Context, uuid.UUID) (*shifts.Occurrence, error) {
	copied := *f.occ
	return &copied, nil
}

type fakeRoster struct {
	provider  *roster.Provider
	patient   *roster.Patient
	employees []roster.Employee
}

func (f *fakeRoster) GetProvider(context.Context, uuid.UUID) (*roster.Provider, error) {
	return f.provider, nil
}

func (f *fakeRoster) GetPatient(context.Context, uuid.UUID, uuid.UUID) (*roster.Patient, error) {
	return f.patient, nil
}

func (f *fakeRoster) ListEmployeesByID(context.Context, uuid.UUID, []uuid.UUID) ([]roster.Employee, error) {
	return f.employees, nil
}

type enqueued struct {
	key   string
	delay time.Duration
	pool  []uuid.UUID
}

type fakeQueue struct {
	jobs []enqueued
}

func (f *fakeQueue) Enqueue(_ context.Context, key string, payload []byte, delay time.Duration) error {
	var wj waveJob
	_ = json.Unmarshal(payload, &wj)
	f.jobs = append(f.jobs, enqueued{key: key, delay: delay, pool: wj.Pool})
	return nil
}

type fakeArbiter struct {
	intents []assignment.Intent
}

func (f *fakeArbiter) Submit(_ context.Context, intent assignment.Intent) (assignment.Decision, error) {
	f.intents = append(f.intents, intent)
	return assignment.Decision{Accepted: true}, nil
}

type recordingSender struct {
	sent []messaging.Message
}

func (r *recordingSender) Send(_ context.Context, msg messaging.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

type fakeOffers struct {
	recorded []uuid.UUID
}

func (f *fakeOffers) RecordOffer(_ context.Context, _ uuid.UUID, employeeID uuid.UUID, _ uuid.UUID, _ time.Time) error {
	f.recorded = append(f.recorded, employeeID)
	return nil
}

type fixture struct {
	scheduler *Scheduler
	occs      *fakeOccs
	queue     *fakeQueue
	arbiter   *fakeArbiter
	sender    *recordingSender
	offers    *fakeOffers
	ros       *fakeRoster
}

func newFixture(t *testing.T, poolSize int) *fixture {
	t.Helper()
	providerID := uuid.New()
	patientID := uuid.New()

	var pool []uuid.UUID
	var employees []roster.Employee
	for i := 0; i < poolSize; i++ {
		id := uuid.New()
		pool = append(pool, id)
		employees = append(employees, roster.Employee{
			ID: id, ProviderID: providerID, Active: true,
			DisplayName: "Worker", Phone: "+61491570006",
		})
	}

	occs := &fakeOccs{occ: &shifts.Occurrence{
		ID:            uuid.New(),
		ProviderID:    providerID,
		PatientID:     patientID,
		ScheduledDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "14:00",
		EndTime:       "18:00",
		Status:        shifts.StatusOpen,
	}}
	ros := &fakeRoster{
		provider: &roster.Provider{
			ID: providerID, Name: "Harbour Care", PhoneNumber: "+61280001000",
			Wave2DelayMinutes: 20, Wave3DelayMinutes: 40,
		},
		patient: &roster.Patient{
			ID: patientID, ProviderID: providerID, DisplayName: "Mr C",
			Suburb: "Parramatta", StaffPool: pool,
		},
		employees: employees,
	}
	queue := &fakeQueue{}
	arbiter := &fakeArbiter{}
	sender := &recordingSender{}
	offers := &fakeOffers{}

	scheduler := NewScheduler(Config{
		Occurrences: occs,
		Roster:      ros,
		Queue:       queue,
		Sender:      sender,
		Arbiter:     arbiter,
		Offers:      offers,
		Logger:      logging.New("error"),
	})
	return &fixture{scheduler: scheduler, occs: occs, queue: queue, arbiter: arbiter, sender: sender, offers: offers, ros: ros}
}

func TestStartWavesSendsAndSchedules(t *testing.T) {
	f := newFixture(t, 3)

	require.NoError(t, f.scheduler.StartWaves(context.Background(), f.occs.occ))

	assert.Len(t, f.sender.sent, 3, "wave 1 goes to the whole pool")
	assert.Contains(t, f.sender.sent[0].Body, "needs cover")
	assert.Len(t, f.offers.recorded, 3, "wave 1 offers anchor the reply window")

	require.Len(t, f.queue.jobs, 2)
	assert.Equal(t, shifts.WaveKey(f.occs.occ.ID, 2), f.queue.jobs[0].key)
	assert.Equal(t, 20*time.Minute, f.queue.jobs[0].delay, "provider override beats default")
	assert.Equal(t, shifts.WaveKey(f.occs.occ.ID, 3), f.queue.jobs[1].key)
	assert.Equal(t, 40*time.Minute, f.queue.jobs[1].delay)
	assert.Len(t, f.queue.jobs[1].pool, 3, "pool snapshot travels with the job")

	assert.Empty(t, f.arbiter.intents)
}

func TestStartWavesEmptyPoolGoesStraightToUnfilled(t *testing.T) {
	f := newFixture(t, 0)

	require.NoError(t, f.scheduler.StartWaves(context.Background(), f.occs.occ))

	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.queue.jobs)
	require.Len(t, f.arbiter.intents, 1)
	assert.Equal(t, assignment.KindWavesExhausted, f.arbiter.intents[0].Kind)
}

func TestHandleWaveDropsWhenNotOpen(t *testing.T) {
	f := newFixture(t, 2)
	f.occs.occ.Status = shifts.StatusAssigned

	payload, _ := json.Marshal(waveJob{OccurrenceID: f.occs.occ.ID, Wave: 2, Pool: f.ros.patient.StaffPool})
	err := f.scheduler.HandleWave(context.Background(), jobqueue.Job{
		Key: shifts.WaveKey(f.occs.occ.ID, 2), Payload: payload,
	})
	require.NoError(t, err)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.arbiter.intents)
}

func TestHandleWaveTwoSendsWithoutExhausting(t *testing.T) {
	f := newFixture(t, 2)

	payload, _ := json.Marshal(waveJob{OccurrenceID: f.occs.occ.ID, Wave: 2, Pool: f.ros.patient.StaffPool})
	err := f.scheduler.HandleWave(context.Background(), jobqueue.Job{
		Key: shifts.WaveKey(f.occs.occ.ID, 2), Payload: payload,
	})
	require.NoError(t, err)
	assert.Len(t, f.sender.sent, 2)
	assert.Empty(t, f.arbiter.intents)
	assert.Empty(t, f.offers.recorded, "only wave 1 records offers")
}

func TestHandleWaveThreeSubmitsExhaustion(t *testing.T) {
	f := newFixture(t, 2)

	payload, _ := json.Marshal(waveJob{OccurrenceID: f.occs.occ.ID, Wave: 3, Pool: f.ros.patient.StaffPool})
	err := f.scheduler.HandleWave(context.Background(), jobqueue.Job{
		Key: shifts.WaveKey(f.occs.occ.ID, 3), Payload: payload,
	})
	require.NoError(t, err)
	assert.Len(t, f.sender.sent, 2)
	require.Len(t, f.arbiter.intents, 1)
	assert.Equal(t, assignment.KindWavesExhausted, f.arbiter.intents[0].Kind)
	assert.Equal(t, f.occs.occ.ID, f.arbiter.intents[0].OccurrenceID)
}

func TestSendWaveSkipsInactiveAndBadPhones(t *testing.T) {
	f := newFixture(t, 3)
	f.ros.employees[0].Active = false
	f.ros.employees[1].Phone = "not-a-number"

	require.NoError(t, f.scheduler.StartWaves(context.Background(), f.occs.occ))
	assert.Len(t, f.sender.sent, 1, "only the valid active member is texted")
}

func TestHandleWaveRejectsMalformedJob(t *testing.T) {
	f := newFixture(t, 1)

	err := f.scheduler.HandleWave(context.Background(), jobqueue.Job{Key: "shift:x:wave:2", Payload: []byte("{")})
	assert.Error(t, err)

	payload, _ := json.Marshal(waveJob{OccurrenceID: f.occs.occ.ID, Wave: 7})
	err = f.scheduler.HandleWave(context.Background(), jobqueue.Job{Key: "shift:x:wave:7", Payload: payload})
	assert.Error(t, err)
}

func TestCustomProviderTemplate(t *testing.T) {
	f := newFixture(t, 1)
	f.ros.provider.WaveSMSTemplate = "Cover needed {{.date}} {{.startTime}}-{{.endTime}} ({{.suburb}})"

	require.NoError(t, f.scheduler.StartWaves(context.Background(), f.occs.occ))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Cover needed Tuesday 10 March 14:00-18:00 (Parramatta)", f.sender.sent[0].Body)
}

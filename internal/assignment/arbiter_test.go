package assignment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

type fakeOccStore struct {
	mu       sync.Mutex
	occ      map[uuid.UUID]*shifts.Occurrence
	schedule map[uuid.UUID]string
	assigned map[uuid.UUID]uuid.UUID
	reasons  map[uuid.UUID]string
}

func newFakeOccStore(occs ...*shifts.Occurrence) *fakeOccStore {
	s := &fakeOccStore{
		occ:      map[uuid.UUID]*shifts.Occurrence{},
		schedule: map[uuid.UUID]string{},
		assigned: map[uuid.UUID]uuid.UUID{},
		reasons:  map[uuid.UUID]string{},
	}
	for _, o := range occs {
		s.occ[o.ID] = o
	}
	return s
}

func (s *fakeOccStore) Get(_ context.Context, id uuid.UUID) (*shifts.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occ[id]
	if !ok {
		return nil, shifts.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *fakeOccStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next shifts.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.occ[id]
	if !ok || o.Status != expected {
		return false, nil
	}
	o.Status = next
	return true, nil
}

func (s *fakeOccStore) SetSchedule(_ context.Context, id uuid.UUID, date time.Time, start, end string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule[id] = date.Format("2006-01-02") + " " + start + "-" + end
	return nil
}

func (s *fakeOccStore) SetAssignedEmployee(_ context.Context, id, employeeID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned[id] = employeeID
	return nil
}

func (s *fakeOccStore) SetReleaseReason(_ context.Context, id uuid.UUID, reason, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons[id] = category + ": " + reason
	return nil
}

func (s *fakeOccStore) status(id uuid.UUID) shifts.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occ[id].Status
}

type fakeRoster struct {
	provider *roster.Provider
	employee *roster.Employee
	patient  *roster.Patient
}

func (f *fakeRoster) GetProvider(context.Context, uuid.UUID) (*roster.Provider, error) {
	return f.provider, nil
}

func (f *fakeRoster) GetEmployee(context.Context, uuid.UUID, uuid.UUID) (*roster.Employee, error) {
	return f.employee, nil
}

func (f *fakeRoster) GetPatient(context.Context, uuid.UUID, uuid.UUID) (*roster.Patient, error) {
	return f.patient, nil
}

type fakeQueue struct {
	mu       sync.Mutex
	prefixes []string
}

func (f *fakeQueue) Cancel(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefix)
	return 2, nil
}

type fakeWaves struct{ started int }

func (f *fakeWaves) StartWaves(context.Context, *shifts.Occurrence) error {
	f.started++
	return nil
}

type fakeCalls struct{ scheduled int }

func (f *fakeCalls) ScheduleFirstCall(context.Context, *shifts.Occurrence, *roster.Provider) error {
	f.scheduled++
	return nil
}

type fakeFinalizer struct{ notified int }

func (f *fakeFinalizer) NotifyUnfilled(context.Context, *shifts.Occurrence, *roster.Provider) error {
	f.notified++
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []messaging.Message
}

func (r *recordingSender) Send(_ context.Context, msg messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
}

func testFixture(status shifts.Status) (*shifts.Occurrence, *fakeRoster) {
	providerID := uuid.New()
	employeeID := uuid.New()
	patientID := uuid.New()
	occ := &shifts.Occurrence{
		ID:            uuid.New(),
		ProviderID:    providerID,
		PatientID:     patientID,
		ScheduledDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime:     "14:00",
		EndTime:       "18:00",
		Status:        status,
	}
	ros := &fakeRoster{
		provider: &roster.Provider{
			ID:          providerID,
			Name:        "Harbour Care",
			PhoneNumber: "+61280001000",
			Timezone:    "Australia/Sydney",
			Outbound:    roster.OutboundCallConfig{Enabled: true, WaitMinutes: 15, MaxRounds: 3, MessageTemplate: "shift open"},
		},
		employee: &roster.Employee{ID: employeeID, ProviderID: providerID, DisplayName: "Maya", Phone: "+61491570006"},
		patient: &roster.Patient{
			ID: patientID, ProviderID: providerID, DisplayName: "Mr C", Suburb: "Parramatta",
			StaffPool: []uuid.UUID{employeeID},
		},
	}
	return occ, ros
}

func newArbiter(store *fakeOccStore, ros *fakeRoster, opts ...func(*Config)) (*Arbiter, *fakeQueue, *fakeWaves, *fakeCalls, *fakeFinalizer, *recordingSender) {
	queue := &fakeQueue{}
	waves := &fakeWaves{}
	calls := &fakeCalls{}
	finalizer := &fakeFinalizer{}
	sender := &recordingSender{}
	cfg := Config{
		Occurrences: store,
		Roster:      ros,
		Queue:       queue,
		Sender:      sender,
		Waves:       waves,
		Calls:       calls,
		Finalizer:   finalizer,
		Logger:      logging.New("error"),
		Now:         fixedNow,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg), queue, waves, calls, finalizer, sender
}

func TestRescheduleHappyPath(t *testing.T) {
	occ, ros := testFixture(shifts.StatusScheduled)
	store := newFakeOccStore(occ)
	arb, _, _, _, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:         KindReschedule,
		OccurrenceID: occ.ID,
		NewDate:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		NewStart:     "10:00",
		Source:       "voice",
	})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, shifts.StatusRescheduled, store.status(occ.ID))
	assert.Equal(t, "2026-03-10 10:00-18:00", store.schedule[occ.ID], "end time carried over")
}

func TestRescheduleRejectsPast(t *testing.T) {
	occ, ros := testFixture(shifts.StatusScheduled)
	store := newFakeOccStore(occ)
	arb, _, _, _, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:         KindReschedule,
		OccurrenceID: occ.ID,
		NewDate:      time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		NewStart:     "10:00",
	})
	require.NoError(t, err)
	assert.False(t, decision.Accepted)
	assert.Equal(t, RejectInvalidDateTime, decision.Reason)
	assert.Equal(t, shifts.StatusScheduled, store.status(occ.ID))
}

func TestRescheduleFromTerminalStatusRejected(t *testing.T) {
	occ, ros := testFixture(shifts.StatusUnfilledAfterCalls)
	store := newFakeOccStore(occ)
	arb, _, _, _, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:         KindReschedule,
		OccurrenceID: occ.ID,
		NewDate:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		NewStart:     "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, RejectBadTransition, decision.Reason)
}

func TestReleaseStartsWaves(t *testing.T) {
	occ, ros := testFixture(shifts.StatusAssigned)
	store := newFakeOccStore(occ)
	arb, _, waves, _, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:           KindRelease,
		OccurrenceID:   occ.ID,
		Reason:         "I'm sick today",
		ReasonCategory: "illness",
	})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, shifts.StatusOpen, store.status(occ.ID))
	assert.Equal(t, "illness: I'm sick today", store.reasons[occ.ID])
	assert.Equal(t, 1, waves.started)
}

func TestReleaseRequiresReason(t *testing.T) {
	occ, ros := testFixture(shifts.StatusAssigned)
	store := newFakeOccStore(occ)
	arb, _, waves, _, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{Kind: KindRelease, OccurrenceID: occ.ID})
	require.NoError(t, err)
	assert.Equal(t, RejectEmptyReason, decision.Reason)
	assert.Zero(t, waves.started)
}

func TestAcceptWinCancelsJobsAndConfirms(t *testing.T) {
	occ, ros := testFixture(shifts.StatusOpen)
	store := newFakeOccStore(occ)
	arb, queue, _, _, _, sender := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:         KindAccept,
		OccurrenceID: occ.ID,
		EmployeeID:   ros.employee.ID,
		Source:       "sms",
	})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, shifts.StatusAssigned, store.status(occ.ID))
	assert.Equal(t, ros.employee.ID, store.assigned[occ.ID])
	require.Len(t, queue.prefixes, 1)
	assert.Equal(t, shifts.QueueKeyPrefix(occ.ID), queue.prefixes[0])
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+61491570006", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "Maya")
	assert.Contains(t, sender.sent[0].Body, "confirmed")
}

func TestAcceptRejectsOutsidePool(t *testing.T) {
	occ, ros := testFixture(shifts.StatusOpen)
	store := newFakeOccStore(occ)
	arb, queue, _, _, _, sender := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{
		Kind:         KindAccept,
		OccurrenceID: occ.ID,
		EmployeeID:   uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, RejectNotInPool, decision.Reason)
	assert.Equal(t, shifts.StatusOpen, store.status(occ.ID))
	assert.Empty(t, queue.prefixes)
	assert.Empty(t, sender.sent)
}

func TestAcceptAtMostOneWinner(t *testing.T) {
	occ, ros := testFixture(shifts.StatusUnfilledAfterSMS)
	store := newFakeOccStore(occ)
	arb, _, _, _, _, sender := newArbiter(store, ros)

	const racers = 8
	var wg sync.WaitGroup
	accepted := make([]bool, racers)
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision, err := arb.Submit(context.Background(), Intent{
				Kind:         KindAccept,
				OccurrenceID: occ.ID,
				EmployeeID:   ros.employee.ID,
			})
			accepted[i], errs[i] = decision.Accepted, err
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	wins := 0
	for _, won := range accepted {
		if won {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one accept may win")
	assert.Len(t, sender.sent, 1, "one confirmation SMS")
	assert.Equal(t, shifts.StatusAssigned, store.status(occ.ID))
}

func TestWavesExhaustedSchedulesOutbound(t *testing.T) {
	occ, ros := testFixture(shifts.StatusOpen)
	store := newFakeOccStore(occ)
	arb, _, _, calls, finalizer, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{Kind: KindWavesExhausted, OccurrenceID: occ.ID})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, shifts.StatusUnfilledAfterSMS, store.status(occ.ID))
	assert.Equal(t, 1, calls.scheduled)
	assert.Zero(t, finalizer.notified)
}

func TestWavesExhaustedFinalisesWhenOutboundDisabled(t *testing.T) {
	occ, ros := testFixture(shifts.StatusOpen)
	ros.provider.Outbound.Enabled = false
	store := newFakeOccStore(occ)
	arb, _, _, calls, finalizer, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{Kind: KindWavesExhausted, OccurrenceID: occ.ID})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Zero(t, calls.scheduled)
	assert.Equal(t, 1, finalizer.notified)
}

func TestWavesExhaustedLosesToAcceptedShift(t *testing.T) {
	occ, ros := testFixture(shifts.StatusAssigned)
	store := newFakeOccStore(occ)
	arb, _, _, calls, _, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{Kind: KindWavesExhausted, OccurrenceID: occ.ID})
	require.NoError(t, err)
	assert.Equal(t, RejectRaceLost, decision.Reason)
	assert.Equal(t, shifts.StatusAssigned, store.status(occ.ID))
	assert.Zero(t, calls.scheduled)
}

func TestCallsExhaustedFinalises(t *testing.T) {
	occ, ros := testFixture(shifts.StatusUnfilledAfterSMS)
	store := newFakeOccStore(occ)
	arb, _, _, _, finalizer, _ := newArbiter(store, ros)

	decision, err := arb.Submit(context.Background(), Intent{Kind: KindCallsExhausted, OccurrenceID: occ.ID})
	require.NoError(t, err)
	assert.True(t, decision.Accepted)
	assert.Equal(t, shifts.StatusUnfilledAfterCalls, store.status(occ.ID))
	assert.Equal(t, 1, finalizer.notified)
}

func TestSubmitUnknownOccurrence(t *testing.T) {
	_, ros := testFixture(shifts.StatusOpen)
	store := newFakeOccStore()
	arb, _, _, _, _, _ := newArbiter(store, ros)

	_, err := arb.Submit(context.Background(), Intent{Kind: KindAccept, OccurrenceID: uuid.New()})
	assert.ErrorIs(t, err, shifts.ErrNotFound)
}

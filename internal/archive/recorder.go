package archive

import (
	"context"
	"time"

	"github.com/dajobrague/au-call-system-sub004/internal/callflow"
	"github.com/dajobrague/au-call-system-sub004/internal/calllog"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// Recorder turns a finished inbound-call session into a scrubbed CallRecord
// and hands it to the store. It plugs into the call flow's archive hook.
type Recorder struct {
	store  *Store
	logger *logging.Logger
	now    func() time.Time
}

// NewRecorder creates a transcript recorder.
func NewRecorder(store *Store, logger *logging.Logger) *Recorder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// ArchiveCall archives the session transcript. A disabled store makes this a
// no-op, so callers never gate on configuration.
func (r *Recorder) ArchiveCall(ctx context.Context, s *callflow.Session, outcome string) error {
	if r == nil || !r.store.Enabled() {
		return nil
	}

	turns := make([]Turn, 0, len(s.Transcript))
	for _, u := range s.Transcript {
		turns = append(turns, Turn{Role: u.Role, Content: u.Text, Timestamp: u.At})
	}
	ScrubTurns(turns)

	record := &CallRecord{
		Version:         "1.0",
		CallID:          s.ID,
		ProviderID:      s.ProviderID,
		EmployeeID:      s.EmployeeID,
		OccurrenceID:    s.OccurrenceID,
		Direction:       string(calllog.DirectionInbound),
		PhoneHash:       HashPhone(s.CallerPhone),
		ArchivedAt:      r.now().UTC(),
		DurationSeconds: int(s.LastEventAt.Sub(s.CreatedAt).Seconds()),
		Outcome:         outcome,
		FinalPhase:      string(s.Phase),
		Action:          s.Action,
		ReasonCategory:  s.ReasonCategory,
		TurnCount:       len(turns),
		Turns:           turns,
	}
	return r.store.ArchiveCall(ctx, record)
}

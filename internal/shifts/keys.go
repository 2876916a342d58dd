package shifts

import (
	"fmt"

	"github.com/google/uuid"
)

// Queue key layout for per-occurrence jobs. Everything scheduled for an
// occurrence shares the QueueKeyPrefix so a single prefix cancellation clears
// waves and calls together.

// QueueKeyPrefix returns the cancellation prefix for an occurrence.
func QueueKeyPrefix(occurrenceID uuid.UUID) string {
	return fmt.Sprintf("shift:%s:", occurrenceID)
}

// WaveKey returns the job key for SMS wave n (1-based).
func WaveKey(occurrenceID uuid.UUID, wave int) string {
	return fmt.Sprintf("shift:%s:wave:%d", occurrenceID, wave)
}

// CallKey returns the job key for one outbound call attempt, identified by
// round (1-based) and position in the pool snapshot (0-based).
func CallKey(occurrenceID uuid.UUID, round, poolIndex int) string {
	return fmt.Sprintf("shift:%s:call:%d:%d", occurrenceID, round, poolIndex)
}

package shifts

// Status is the lifecycle state of a shift occurrence. The string values are
// part of the external contract; the admin portal filters on them.
type Status string

const (
	StatusScheduled          Status = "Scheduled"
	StatusAssigned           Status = "Assigned"
	StatusRescheduled        Status = "Rescheduled"
	StatusOpen               Status = "Open"
	StatusUnfilledAfterSMS   Status = "UnfilledAfterSMS"
	StatusUnfilledAfterCalls Status = "UnfilledAfterCalls"
	StatusCompleted          Status = "Completed"
	StatusCancelled          Status = "Cancelled"
)

// allowedTransitions is the status DAG. The arbiter drives the coverage
// edges (Rescheduled, Open, Assigned, the two Unfilled states) with a single
// compare-and-set per intent. The remaining edges belong to the admin
// portal: closing out a shift as Completed or Cancelled, and manually
// assigning one that escalation could not fill. Portal writes use the same
// compare-and-set, so they race cleanly with in-flight coverage.
var allowedTransitions = map[Status][]Status{
	StatusScheduled:          {StatusRescheduled, StatusOpen, StatusCompleted, StatusCancelled},
	StatusAssigned:           {StatusRescheduled, StatusOpen, StatusCompleted, StatusCancelled},
	StatusRescheduled:        {StatusOpen, StatusCompleted, StatusCancelled},
	StatusOpen:               {StatusAssigned, StatusUnfilledAfterSMS, StatusCancelled},
	StatusUnfilledAfterSMS:   {StatusAssigned, StatusUnfilledAfterCalls, StatusCancelled},
	StatusUnfilledAfterCalls: {StatusAssigned, StatusCancelled},
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the enum values.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusAssigned, StatusRescheduled, StatusOpen,
		StatusUnfilledAfterSMS, StatusUnfilledAfterCalls, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

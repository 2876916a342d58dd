package shifts

import (
	"time"

	"github.com/google/uuid"
)

// Occurrence is one instance of a shift at a specific date and time. It may
// derive from a template or be assigned directly.
type Occurrence struct {
	ID                 uuid.UUID
	TemplateID         *uuid.UUID
	ProviderID         uuid.UUID
	PatientID          uuid.UUID
	AssignedEmployeeID *uuid.UUID
	ScheduledDate      time.Time
	StartTime          string
	EndTime            string
	Status             Status
	ReleaseReason      string
	ReasonCategory     string
}

// StartsAt combines the scheduled date and start time in the given location.
func (o *Occurrence) StartsAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("15:04", o.StartTime, loc)
	if err != nil {
		return time.Date(o.ScheduledDate.Year(), o.ScheduledDate.Month(), o.ScheduledDate.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(o.ScheduledDate.Year(), o.ScheduledDate.Month(), o.ScheduledDate.Day(),
		t.Hour(), t.Minute(), 0, 0, loc)
}

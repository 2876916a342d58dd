package roster

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboundCallConfig controls the automated call escalation for a provider.
type OutboundCallConfig struct {
	Enabled         bool
	WaitMinutes     int
	MaxRounds       int
	MessageTemplate string
}

// Validate enforces the admin-portal bounds on escalation settings.
func (c OutboundCallConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.WaitMinutes < 1 || c.WaitMinutes > 120 {
		return fmt.Errorf("roster: outbound wait minutes %d out of range [1,120]", c.WaitMinutes)
	}
	if c.MaxRounds < 1 || c.MaxRounds > 5 {
		return fmt.Errorf("roster: outbound max rounds %d out of range [1,5]", c.MaxRounds)
	}
	if c.MessageTemplate == "" {
		return fmt.Errorf("roster: outbound calling enabled with empty message template")
	}
	if len(c.MessageTemplate) > 500 {
		return fmt.Errorf("roster: outbound message template exceeds 500 chars")
	}
	return nil
}

// Provider is the tenancy boundary. Every other entity belongs to exactly one provider.
type Provider struct {
	ID             uuid.UUID
	Name           string
	PhoneNumber    string
	Timezone       string
	TransferNumber *string
	IVRGreeting    string
	OnCallStart    string
	OnCallEnd      string

	Outbound          OutboundCallConfig
	WaveSMSTemplate   string
	Wave2DelayMinutes int
	Wave3DelayMinutes int

	AdminEmail string
}

// Location resolves the provider's IANA timezone, falling back to UTC when unset
// or unknown. All "tomorrow"/weekday resolution happens in this location.
func (p *Provider) Location() *time.Location {
	if p == nil || p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OnCallAt reports whether t falls inside the provider's on-call window.
// After-hours windows usually wrap midnight (17:00 to 09:00). An unset or
// malformed window means always on call.
func (p *Provider) OnCallAt(t time.Time) bool {
	start, end, ok := p.onCallMinutes()
	if !ok || start == end {
		return true
	}
	local := t.In(p.Location())
	m := local.Hour()*60 + local.Minute()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// NextOnCallStart returns the next moment at or after t when the window
// opens; t itself when already on call.
func (p *Provider) NextOnCallStart(t time.Time) time.Time {
	start, _, ok := p.onCallMinutes()
	if !ok || p.OnCallAt(t) {
		return t
	}
	local := t.In(p.Location())
	opens := time.Date(local.Year(), local.Month(), local.Day(), start/60, start%60, 0, 0, p.Location())
	if !opens.After(local) {
		opens = opens.AddDate(0, 0, 1)
	}
	return opens
}

func (p *Provider) onCallMinutes() (int, int, bool) {
	if p == nil || p.OnCallStart == "" || p.OnCallEnd == "" {
		return 0, 0, false
	}
	s, err := time.Parse("15:04", p.OnCallStart)
	if err != nil {
		return 0, 0, false
	}
	e, err := time.Parse("15:04", p.OnCallEnd)
	if err != nil {
		return 0, 0, false
	}
	return s.Hour()*60 + s.Minute(), e.Hour()*60 + e.Minute(), true
}

// Wave2Delay returns the provider's wave 2 delay, or def when unconfigured.
func (p *Provider) Wave2Delay(def time.Duration) time.Duration {
	if p == nil || p.Wave2DelayMinutes <= 0 {
		return def
	}
	return time.Duration(p.Wave2DelayMinutes) * time.Minute
}

// Wave3Delay returns the provider's wave 3 delay, or def when unconfigured.
func (p *Provider) Wave3Delay(def time.Duration) time.Duration {
	if p == nil || p.Wave3DelayMinutes <= 0 {
		return def
	}
	return time.Duration(p.Wave3DelayMinutes) * time.Minute
}

// Employee is a care worker employed by a single provider.
type Employee struct {
	ID            uuid.UUID
	ProviderID    uuid.UUID
	DisplayName   string
	Phone         string
	AltPhone      *string
	PIN           string
	Active        bool
	OutboundOptIn bool
}

// Patient is a care recipient. The staff pool is the ordered set of employees
// authorised to cover the patient's shifts.
type Patient struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	DisplayName string
	Phone       string
	Suburb      string
	DOB         time.Time
	StaffPool   []uuid.UUID
}

// ShiftTemplate is a recurring shift definition identified by a spoken job code.
type ShiftTemplate struct {
	ID                uuid.UUID
	ProviderID        uuid.UUID
	PatientID         uuid.UUID
	DefaultEmployeeID *uuid.UUID
	JobCode           string
	DayStart          string
	DayEnd            string
}

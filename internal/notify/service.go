package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

// patientGetter resolves the patient a shift covers, for richer alert emails.
type patientGetter interface {
	GetPatient(ctx context.Context, providerID, patientID uuid.UUID) (*roster.Patient, error)
}

// Service emails the provider's administrator when a shift ends up unfilled
// after the SMS waves and the call rounds have both run dry.
type Service struct {
	email    EmailSender
	patients patientGetter
	logger   *logging.Logger
}

// NewService creates an unfilled-shift alert service. A nil sender degrades
// to logging only, so the arbiter never has to care whether email is wired.
func NewService(email EmailSender, patients patientGetter, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:    email,
		patients: patients,
		logger:   logger,
	}
}

// NotifyUnfilled alerts the provider's administrator that an occurrence has
// exhausted automated coverage and needs a human to fill it.
func (s *Service) NotifyUnfilled(ctx context.Context, occ *shifts.Occurrence, provider *roster.Provider) error {
	if occ == nil || provider == nil {
		return fmt.Errorf("notify: occurrence and provider required")
	}
	if s.email == nil || provider.AdminEmail == "" {
		s.logger.Warn("notify: unfilled shift with no alert route",
			"occurrence_id", occ.ID, "provider_id", provider.ID,
			"email_configured", s.email != nil)
		return nil
	}

	loc := provider.Location()
	when := fmt.Sprintf("%s %s-%s",
		occ.ScheduledDate.In(loc).Format("Monday 2 January"), occ.StartTime, occ.EndTime)

	patientName := "unknown patient"
	if s.patients != nil {
		if patient, err := s.patients.GetPatient(ctx, occ.ProviderID, occ.PatientID); err == nil && patient != nil {
			patientName = patient.DisplayName
			if patient.Suburb != "" {
				patientName += " (" + patient.Suburb + ")"
			}
		}
	}

	msg := EmailMessage{
		To:      provider.AdminEmail,
		ToName:  provider.Name,
		Subject: fmt.Sprintf("Unfilled shift: %s", when),
		Body:    s.renderBody(occ, provider, when, patientName),
		HTML:    s.renderHTML(occ, when, patientName),
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: unfilled alert: %w", err)
	}
	s.logger.Info("notify: unfilled shift alert sent",
		"occurrence_id", occ.ID, "to", provider.AdminEmail, "status", occ.Status)
	return nil
}

func (s *Service) renderBody(occ *shifts.Occurrence, provider *roster.Provider, when, patientName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A shift could not be filled automatically and needs manual follow-up.\n\n")
	fmt.Fprintf(&b, "Shift: %s\n", when)
	fmt.Fprintf(&b, "Patient: %s\n", patientName)
	fmt.Fprintf(&b, "Outcome: %s\n", outcomeLine(occ.Status))
	if occ.ReleaseReason != "" {
		fmt.Fprintf(&b, "Released because: %s", occ.ReleaseReason)
		if occ.ReasonCategory != "" {
			fmt.Fprintf(&b, " (%s)", occ.ReasonCategory)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nNo further automated attempts will be made.\n\n— %s after hours line", provider.Name)
	return b.String()
}

func (s *Service) renderHTML(occ *shifts.Occurrence, when, patientName string) string {
	reason := occ.ReleaseReason
	if reason == "" {
		reason = "not recorded"
	}
	return fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #dc2626;">Unfilled shift</h2>
<p>A shift could not be filled automatically and needs manual follow-up.</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Shift:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Patient:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Outcome:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Released because:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
</table>
<p>No further automated attempts will be made.</p>
</div>`, when, patientName, outcomeLine(occ.Status), reason)
}

func outcomeLine(status shifts.Status) string {
	switch status {
	case shifts.StatusUnfilledAfterSMS:
		return "no one responded to the SMS offers"
	case shifts.StatusUnfilledAfterCalls:
		return "no one accepted during the call rounds"
	default:
		return string(status)
	}
}

var _ assignment.Finalizer = (*Service)(nil)

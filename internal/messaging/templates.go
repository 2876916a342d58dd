package messaging

import (
	"bytes"
	"fmt"
	"text/template"
)

// Default bodies for coverage traffic. Providers may override the offer text
// per tenant; the variable set stays the same.
const (
	// DefaultOfferTemplate invites a pool member to pick up an open shift.
	DefaultOfferTemplate = "Hi {{.employeeName}}, a shift with {{.patientName}} on {{.date}} from {{.startTime}} to {{.endTime}} in {{.suburb}} needs cover. Reply YES to take it."
	// DefaultConfirmTemplate confirms the shift to the winning employee.
	DefaultConfirmTemplate = "Thanks {{.employeeName}}, you're confirmed for {{.patientName}} on {{.date}} from {{.startTime}} to {{.endTime}} in {{.suburb}}."
	// DefaultFilledTemplate tells late repliers the shift is gone.
	DefaultFilledTemplate = "Thanks for replying - that shift has already been filled."
)

// ShiftVars carries the substitution values for shift message templates.
type ShiftVars struct {
	EmployeeName string
	PatientName  string
	Date         string
	StartTime    string
	EndTime      string
	Suburb       string
}

func (v ShiftVars) data() map[string]string {
	return map[string]string{
		"employeeName": v.EmployeeName,
		"patientName":  v.PatientName,
		"date":         v.Date,
		// "time" is the short form provider templates may use for the start.
		"time":      v.StartTime,
		"startTime": v.StartTime,
		"endTime":   v.EndTime,
		"suburb":    v.Suburb,
	}
}

// RenderShift compiles the template text with strict missing-key semantics,
// so a provider-supplied template referencing an unknown variable fails
// loudly instead of sending "<no value>" to staff.
func RenderShift(name, tmpl string, vars ShiftVars) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("messaging: template text required")
	}
	t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("messaging: parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars.data()); err != nil {
		return "", fmt.Errorf("messaging: execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

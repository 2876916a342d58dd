package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dajobrague/au-call-system-sub004/internal/calllog"
	"github.com/dajobrague/au-call-system-sub004/internal/http/middleware"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

type unfilledLister interface {
	ListUnfilled(ctx context.Context, providerID uuid.UUID) ([]shifts.Occurrence, error)
}

type pendingLister interface {
	Pending(ctx context.Context, prefix string) ([]string, error)
}

type callLogLister interface {
	ListForOccurrence(ctx context.Context, occurrenceID uuid.UUID) ([]calllog.Entry, error)
}

// AdminHandler serves the read-only admin API: which shifts need a human,
// what the queue still holds for them, and what calls were made.
type AdminHandler struct {
	shifts unfilledLister
	queue  pendingLister
	logs   callLogLister
	logger *logging.Logger
}

// NewAdminHandler creates the admin API handler.
func NewAdminHandler(shiftStore unfilledLister, queue pendingLister, logs callLogLister, logger *logging.Logger) *AdminHandler {
	if shiftStore == nil {
		panic("handlers: shift store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{shifts: shiftStore, queue: queue, logs: logs, logger: logger}
}

type unfilledShift struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patient_id"`
	ScheduledDate  string    `json:"scheduled_date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	Status         string    `json:"status"`
	ReleaseReason  string    `json:"release_reason,omitempty"`
	ReasonCategory string    `json:"reason_category,omitempty"`
}

// ListUnfilledShifts returns occurrences stuck in an unfilled status for the
// provider in the URL.
func (h *AdminHandler) ListUnfilledShifts(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		http.Error(w, "invalid provider id", http.StatusBadRequest)
		return
	}
	if claims, ok := middleware.AdminClaimsFromContext(r.Context()); ok && !claims.AllowsProvider(providerID.String()) {
		http.Error(w, "token not valid for this provider", http.StatusForbidden)
		return
	}
	occs, err := h.shifts.ListUnfilled(r.Context(), providerID)
	if err != nil {
		h.logger.Error("admin: list unfilled failed", "error", err, "provider_id", providerID)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	out := make([]unfilledShift, 0, len(occs))
	for _, occ := range occs {
		out = append(out, unfilledShift{
			ID:             occ.ID,
			PatientID:      occ.PatientID,
			ScheduledDate:  occ.ScheduledDate.Format("2006-01-02"),
			StartTime:      occ.StartTime,
			EndTime:        occ.EndTime,
			Status:         string(occ.Status),
			ReleaseReason:  occ.ReleaseReason,
			ReasonCategory: occ.ReasonCategory,
		})
	}
	writeJSON(w, map[string]any{"shifts": out})
}

// ListOccurrenceJobs returns the queue keys still pending for an occurrence.
func (h *AdminHandler) ListOccurrenceJobs(w http.ResponseWriter, r *http.Request) {
	occID, err := uuid.Parse(chi.URLParam(r, "occurrenceID"))
	if err != nil {
		http.Error(w, "invalid occurrence id", http.StatusBadRequest)
		return
	}
	if h.queue == nil {
		writeJSON(w, map[string]any{"jobs": []string{}})
		return
	}
	keys, err := h.queue.Pending(r.Context(), shifts.QueueKeyPrefix(occID))
	if err != nil {
		h.logger.Error("admin: list pending jobs failed", "error", err, "occurrence_id", occID)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, map[string]any{"jobs": keys})
}

type callLogEntry struct {
	CallID       string     `json:"call_id"`
	Direction    string     `json:"direction"`
	EmployeeID   *uuid.UUID `json:"employee_id,omitempty"`
	StartedAt    string     `json:"started_at"`
	EndedAt      string     `json:"ended_at,omitempty"`
	Purpose      string     `json:"purpose"`
	Outcome      string     `json:"outcome,omitempty"`
	DTMFResponse string     `json:"dtmf_response,omitempty"`
	AttemptRound int        `json:"attempt_round,omitempty"`
}

// ListOccurrenceCalls returns the call log entries tied to an occurrence.
func (h *AdminHandler) ListOccurrenceCalls(w http.ResponseWriter, r *http.Request) {
	occID, err := uuid.Parse(chi.URLParam(r, "occurrenceID"))
	if err != nil {
		http.Error(w, "invalid occurrence id", http.StatusBadRequest)
		return
	}
	if h.logs == nil {
		writeJSON(w, map[string]any{"calls": []callLogEntry{}})
		return
	}
	entries, err := h.logs.ListForOccurrence(r.Context(), occID)
	if err != nil {
		h.logger.Error("admin: list call logs failed", "error", err, "occurrence_id", occID)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	out := make([]callLogEntry, 0, len(entries))
	for _, e := range entries {
		entry := callLogEntry{
			CallID:       e.CallID,
			Direction:    string(e.Direction),
			EmployeeID:   e.EmployeeID,
			StartedAt:    e.StartedAt.Format(time.RFC3339),
			Purpose:      e.Purpose,
			Outcome:      e.Outcome,
			DTMFResponse: e.DTMFResponse,
			AttemptRound: e.AttemptRound,
		}
		if e.EndedAt != nil {
			entry.EndedAt = e.EndedAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJSON(w, map[string]any{"calls": out})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

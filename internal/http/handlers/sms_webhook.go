package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dajobrague/au-call-system-sub004/internal/assignment"
	"github.com/dajobrague/au-call-system-sub004/internal/messaging"
	"github.com/dajobrague/au-call-system-sub004/internal/notifications"
	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/phone"
	"github.com/dajobrague/au-call-system-sub004/internal/roster"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

var smsWebhookTracer = otel.Tracer("coverage.internal.handlers.sms_webhook")

// offerWindow bounds how long after a Wave 1 send a "yes" reply still counts.
const offerWindow = 24 * time.Hour

type employeeFinder interface {
	ListEmployeesByPhone(ctx context.Context, rawPhone string) ([]roster.Employee, error)
	SetEmployeeOptOut(ctx context.Context, employeeID uuid.UUID, optIn bool) error
}

type offerFinder interface {
	FindActiveOffers(ctx context.Context, employeeIDs []uuid.UUID, since time.Time) ([]notifications.ActiveOffer, error)
}

type intentSubmitter interface {
	Submit(ctx context.Context, intent assignment.Intent) (assignment.Decision, error)
}

// SMSWebhookHandler receives inbound SMS replies (Twilio-shaped form POST)
// and routes acceptance keywords to the assignment arbiter.
type SMSWebhookHandler struct {
	roster  employeeFinder
	offers  offerFinder
	arbiter intentSubmitter
	metrics *obsmetrics.SMSMetrics
	logger  *logging.Logger
	now     func() time.Time
}

// NewSMSWebhookHandler creates the inbound SMS handler.
func NewSMSWebhookHandler(rosterStore employeeFinder, offers offerFinder, arbiter intentSubmitter, metrics *obsmetrics.SMSMetrics, logger *logging.Logger) *SMSWebhookHandler {
	if rosterStore == nil {
		panic("handlers: roster store required")
	}
	if offers == nil {
		panic("handlers: offer store required")
	}
	if arbiter == nil {
		panic("handlers: arbiter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SMSWebhookHandler{
		roster:  rosterStore,
		offers:  offers,
		arbiter: arbiter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleInbound processes one inbound message: {From, To, Body, MessageSid}.
// The response is an empty TwiML document; the confirmation SMS on a winning
// accept is sent by the arbiter's side-effect pipeline, not here.
func (h *SMSWebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	from := r.FormValue("From")
	body := r.FormValue("Body")
	sid := r.FormValue("MessageSid")

	kind := messaging.ClassifyReply(body)
	h.observeReply(kind)

	ctx, span := smsWebhookTracer.Start(r.Context(), "handlers.sms_webhook")
	defer span.End()
	span.SetAttributes(attribute.String("coverage.reply_kind", replyLabel(kind)))

	switch kind {
	case messaging.ReplyAffirmative:
		h.handleAccept(ctx, from, sid)
	case messaging.ReplyOptOut:
		h.handleOptOut(ctx, from)
	default:
		h.logger.Debug("sms webhook: reply ignored", "from", phone.Mask(from), "sid", sid)
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("<Response></Response>"))
}

// handleAccept maps the sender to employee identities, finds their offers
// inside the 24 h window and submits an Accept for the newest. A lost race
// falls through to the next-newest offer for a different occurrence.
func (h *SMSWebhookHandler) handleAccept(ctx context.Context, from, sid string) {
	employees, err := h.roster.ListEmployeesByPhone(ctx, from)
	if err != nil {
		h.logger.Error("sms webhook: employee lookup failed", "error", err, "from", phone.Mask(from))
		return
	}
	if len(employees) == 0 {
		h.logger.Info("sms webhook: yes from unknown number", "from", phone.Mask(from), "sid", sid)
		return
	}

	ids := make([]uuid.UUID, 0, len(employees))
	for _, emp := range employees {
		ids = append(ids, emp.ID)
	}
	offers, err := h.offers.FindActiveOffers(ctx, ids, h.now().Add(-offerWindow))
	if err != nil {
		h.logger.Error("sms webhook: offer lookup failed", "error", err, "from", phone.Mask(from))
		return
	}
	if len(offers) == 0 {
		h.logger.Info("sms webhook: yes with no active offer", "from", phone.Mask(from), "sid", sid)
		return
	}

	tried := make(map[uuid.UUID]bool, len(offers))
	for _, offer := range offers {
		if tried[offer.OccurrenceID] {
			continue
		}
		tried[offer.OccurrenceID] = true

		decision, err := h.arbiter.Submit(ctx, assignment.Intent{
			Kind:         assignment.KindAccept,
			OccurrenceID: offer.OccurrenceID,
			EmployeeID:   offer.EmployeeID,
			Source:       "sms",
		})
		if err != nil {
			h.logger.Error("sms webhook: accept failed",
				"error", err, "occurrence_id", offer.OccurrenceID, "sid", sid)
			return
		}
		if decision.Accepted {
			h.logger.Info("sms webhook: shift accepted",
				"occurrence_id", offer.OccurrenceID, "employee_id", offer.EmployeeID, "sid", sid)
			return
		}
		h.logger.Info("sms webhook: accept rejected",
			"occurrence_id", offer.OccurrenceID, "reason", decision.Reason, "sid", sid)
	}
}

func (h *SMSWebhookHandler) handleOptOut(ctx context.Context, from string) {
	employees, err := h.roster.ListEmployeesByPhone(ctx, from)
	if err != nil {
		h.logger.Error("sms webhook: employee lookup failed", "error", err, "from", phone.Mask(from))
		return
	}
	for _, emp := range employees {
		if err := h.roster.SetEmployeeOptOut(ctx, emp.ID, false); err != nil {
			h.logger.Error("sms webhook: opt out failed", "error", err, "employee_id", emp.ID)
			continue
		}
		h.logger.Info("sms webhook: employee opted out", "employee_id", emp.ID)
	}
}

func (h *SMSWebhookHandler) observeReply(kind messaging.ReplyKind) {
	h.metrics.ObserveReply(replyLabel(kind))
}

func replyLabel(kind messaging.ReplyKind) string {
	switch kind {
	case messaging.ReplyAffirmative:
		return "affirmative"
	case messaging.ReplyOptOut:
		return "opt_out"
	default:
		return "other"
	}
}

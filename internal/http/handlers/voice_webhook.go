// Package handlers holds the HTTP surface: telephony and SMS webhooks plus
// the admin read API.
package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	obsmetrics "github.com/dajobrague/au-call-system-sub004/internal/observability/metrics"
	"github.com/dajobrague/au-call-system-sub004/internal/telephony"
	"github.com/dajobrague/au-call-system-sub004/pkg/logging"
)

var voiceWebhookTracer = otel.Tracer("coverage.internal.handlers.voice_webhook")

const maxWebhookBody = 1 << 20

// callEventHandler consumes one normalised call event. Both the inbound call
// flow and the outbound engine implement it; each ignores the other's calls.
type callEventHandler interface {
	HandleEvent(ctx context.Context, evt telephony.Event) error
}

// signatureVerifier checks the webhook HMAC. Implemented by telephony.Client.
type signatureVerifier interface {
	VerifyWebhookSignature(timestamp, signature string, payload []byte) error
}

// VoiceWebhookHandler receives Telnyx call webhooks and fans each event out
// to every registered call handler.
type VoiceWebhookHandler struct {
	verifier signatureVerifier
	handlers []callEventHandler
	metrics  *obsmetrics.CallMetrics
	logger   *logging.Logger
}

// NewVoiceWebhookHandler creates the voice webhook handler.
func NewVoiceWebhookHandler(verifier signatureVerifier, metrics *obsmetrics.CallMetrics, logger *logging.Logger, handlers ...callEventHandler) *VoiceWebhookHandler {
	if verifier == nil {
		panic("handlers: signature verifier required")
	}
	if len(handlers) == 0 {
		panic("handlers: at least one call event handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceWebhookHandler{
		verifier: verifier,
		handlers: handlers,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleVoice processes one webhook delivery. Handler errors return 500 so
// the carrier redelivers; every consumer is idempotent against duplicates.
func (h *VoiceWebhookHandler) HandleVoice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.VerifyWebhookSignature(
		r.Header.Get("Telnyx-Timestamp"), r.Header.Get("Telnyx-Signature"), body); err != nil {
		h.logger.Warn("voice webhook: signature rejected", "error", err)
		h.metrics.ObserveWebhook("voice", "rejected")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	evt, err := telephony.ParseEvent(body)
	if err != nil {
		h.logger.Warn("voice webhook: unparsable payload", "error", err)
		h.metrics.ObserveWebhook("voice", "bad_payload")
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	if evt.Kind == "" {
		// Lifecycle noise (bridging, recording, ...) we don't consume.
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx, span := voiceWebhookTracer.Start(r.Context(), "handlers.voice_webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("coverage.event", string(evt.Kind)),
		attribute.String("coverage.call_id", evt.CallControlID),
	)

	for _, handler := range h.handlers {
		if err := handler.HandleEvent(ctx, evt); err != nil {
			span.RecordError(err)
			h.logger.Error("voice webhook: handler failed",
				"error", err, "event", evt.Kind, "call_id", evt.CallControlID)
			h.metrics.ObserveWebhook(string(evt.Kind), "error")
			http.Error(w, "handler error", http.StatusInternalServerError)
			return
		}
	}

	h.metrics.ObserveWebhook(string(evt.Kind), "ok")
	h.metrics.ObserveWebhookLatency(string(evt.Kind), time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}

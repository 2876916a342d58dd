package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dajobrague/au-call-system-sub004/internal/telephony"
)

type fakeVerifier struct{ err error }

func (f *fakeVerifier) VerifyWebhookSignature(string, string, []byte) error { return f.err }

type recordingCallHandler struct {
	events []telephony.Event
	err    error
}

func (r *recordingCallHandler) HandleEvent(_ context.Context, evt telephony.Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func webhookBody(eventType, callControlID string) string {
	return fmt.Sprintf(`{"data":{"id":"evt-1","event_type":%q,"payload":{"call_control_id":%q,"from":"+61491570006","to":"+61280001000","direction":"incoming"}}}`,
		eventType, callControlID)
}

func postVoice(h *VoiceWebhookHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx/voice", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleVoice(rec, req)
	return rec
}

func TestVoiceWebhookFansOut(t *testing.T) {
	inbound := &recordingCallHandler{}
	outbound := &recordingCallHandler{}
	h := NewVoiceWebhookHandler(&fakeVerifier{}, nil, nil, inbound, outbound)

	rec := postVoice(h, webhookBody("call.initiated", "cc-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, inbound.events, 1)
	require.Len(t, outbound.events, 1)
	assert.Equal(t, telephony.EventCallInitiated, inbound.events[0].Kind)
	assert.Equal(t, "cc-1", inbound.events[0].CallControlID)
}

func TestVoiceWebhookRejectsBadSignature(t *testing.T) {
	inbound := &recordingCallHandler{}
	h := NewVoiceWebhookHandler(&fakeVerifier{err: errors.New("signature mismatch")}, nil, nil, inbound)

	rec := postVoice(h, webhookBody("call.initiated", "cc-1"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, inbound.events)
}

func TestVoiceWebhookBadPayload(t *testing.T) {
	h := NewVoiceWebhookHandler(&fakeVerifier{}, nil, nil, &recordingCallHandler{})
	rec := postVoice(h, `{"data":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVoiceWebhookIgnoresUnknownEventTypes(t *testing.T) {
	inbound := &recordingCallHandler{}
	h := NewVoiceWebhookHandler(&fakeVerifier{}, nil, nil, inbound)

	rec := postVoice(h, webhookBody("call.recording.saved", "cc-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, inbound.events)
}

func TestVoiceWebhookHandlerErrorReturns500(t *testing.T) {
	inbound := &recordingCallHandler{err: errors.New("redis down")}
	h := NewVoiceWebhookHandler(&fakeVerifier{}, nil, nil, inbound)

	rec := postVoice(h, webhookBody("call.hangup", "cc-1"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

package telephony

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the normalised class of a call webhook.
type EventKind string

const (
	EventCallInitiated EventKind = "call.initiated"
	EventCallAnswered  EventKind = "call.answered"
	EventSpeech        EventKind = "call.speech.gathered"
	EventDTMF          EventKind = "call.dtmf.gathered"
	EventHangup        EventKind = "call.hangup"
	EventMachine       EventKind = "call.machine.detected"
)

// Event is a provider webhook reduced to the fields the call flow consumes.
type Event struct {
	ID            string
	Kind          EventKind
	CallControlID string
	From          string
	To            string
	Direction     string
	// Transcript and Confidence are set on speech events.
	Transcript string
	Confidence float64
	// Digits is set on DTMF events; empty means the gather timed out.
	Digits string
	// HangupCause is set on hangup events (normal_clearing, timeout, busy...).
	HangupCause string
	// ClientState is the opaque state given at dial time, echoed back.
	ClientState string
	OccurredAt  time.Time
}

// Unanswered reports whether a hangup cause means the callee never picked up.
func (e Event) Unanswered() bool {
	switch e.HangupCause {
	case "timeout", "no_answer", "busy", "rejected", "originator_cancel":
		return true
	}
	return false
}

type webhookEnvelope struct {
	Data struct {
		ID         string          `json:"id"`
		EventType  string          `json:"event_type"`
		OccurredAt time.Time       `json:"occurred_at"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"data"`
}

type callPayload struct {
	CallControlID string  `json:"call_control_id"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Direction     string  `json:"direction"`
	ClientState   string  `json:"client_state"`
	Digits        string  `json:"digits"`
	Status        string  `json:"status"`
	Transcript    string  `json:"transcript"`
	Confidence    float64 `json:"confidence"`
	HangupCause   string  `json:"hangup_cause"`
	Result        string  `json:"result"`
}

// ParseEvent decodes a Telnyx call webhook into a normalised Event. Event
// types outside the call lifecycle return an Event with an empty Kind; the
// handler acknowledges and ignores those.
func ParseEvent(body []byte) (Event, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, fmt.Errorf("telephony: decode webhook: %w", err)
	}
	if envelope.Data.EventType == "" {
		return Event{}, fmt.Errorf("telephony: webhook missing event type")
	}

	var payload callPayload
	if len(envelope.Data.Payload) > 0 {
		if err := json.Unmarshal(envelope.Data.Payload, &payload); err != nil {
			return Event{}, fmt.Errorf("telephony: decode webhook payload: %w", err)
		}
	}

	evt := Event{
		ID:            envelope.Data.ID,
		CallControlID: payload.CallControlID,
		From:          payload.From,
		To:            payload.To,
		Direction:     payload.Direction,
		ClientState:   payload.ClientState,
		OccurredAt:    envelope.Data.OccurredAt,
	}

	switch envelope.Data.EventType {
	case "call.initiated":
		evt.Kind = EventCallInitiated
	case "call.answered":
		evt.Kind = EventCallAnswered
	case "call.transcription", "call.speech.gathered":
		evt.Kind = EventSpeech
		evt.Transcript = payload.Transcript
		evt.Confidence = payload.Confidence
	case "call.gather.ended":
		evt.Kind = EventDTMF
		evt.Digits = payload.Digits
	case "call.hangup":
		evt.Kind = EventHangup
		evt.HangupCause = payload.HangupCause
	case "call.machine.detection.ended":
		if payload.Result == "machine" {
			evt.Kind = EventMachine
		}
	}
	return evt, nil
}

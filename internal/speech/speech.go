// Package speech turns transcribed caller utterances into typed tokens.
// Parsers are stateless; the call flow decides what grammar to expect and
// how to treat the returned confidence.
package speech

import "errors"

// Confidence thresholds consumed by the call flow. Kept as named constants so
// they can be tuned without touching the state machine.
const (
	// AutoAcceptConfidence and above: accept the token without confirmation.
	AutoAcceptConfidence = 0.85
	// ConfirmFloorConfidence up to AutoAcceptConfidence: ask one confirmation.
	// Below the floor: re-prompt without confirming.
	ConfirmFloorConfidence = 0.5
)

// ErrUnparsable indicates the utterance did not match the expected grammar.
var ErrUnparsable = errors.New("speech: unparsable")

// Parsed is the outcome of a successful parse.
type Parsed struct {
	Token        string
	Confidence   float64
	Alternatives []string
}

const (
	exactConfidence = 0.95
	fuzzyConfidence = 0.8
)

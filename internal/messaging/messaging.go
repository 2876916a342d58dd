// Package messaging sends and interprets SMS. Outbound traffic goes through
// a provider-agnostic Sender; inbound replies are classified by keyword.
package messaging

import (
	"context"
	"strings"
)

// Message is a single outbound SMS.
type Message struct {
	To   string
	From string
	Body string
	// ProviderID tags logs and traces with the tenant the message belongs to.
	ProviderID string
	// Metadata, when non-nil, receives provider message IDs after a send.
	Metadata map[string]string
}

// Sender dispatches one SMS.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ReplyKind classifies an inbound SMS reply.
type ReplyKind int

const (
	ReplyOther ReplyKind = iota
	ReplyAffirmative
	ReplyOptOut
)

var affirmativeReplies = map[string]bool{
	"yes": true, "y": true, "yep": true, "yeah": true, "yup": true,
	"accept": true, "ok": true, "okay": true, "sure": true, "confirm": true,
}

var optOutReplies = map[string]bool{
	"stop": true, "stopall": true, "unsubscribe": true, "cancel": true,
	"end": true, "quit": true,
}

// ClassifyReply reduces an inbound SMS body to a reply kind. Acceptance
// matches on the first word so "yes please" still counts; opt-out keywords
// must be the whole message per carrier rules.
func ClassifyReply(body string) ReplyKind {
	trimmed := strings.ToLower(strings.TrimSpace(body))
	if trimmed == "" {
		return ReplyOther
	}
	first := trimmed
	if i := strings.IndexAny(trimmed, " \t\n.,!"); i > 0 {
		first = trimmed[:i]
	}
	switch {
	case optOutReplies[trimmed]:
		return ReplyOptOut
	case affirmativeReplies[first]:
		return ReplyAffirmative
	default:
		return ReplyOther
	}
}

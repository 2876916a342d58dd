package archive

import (
	"crypto/sha256"
	"fmt"
	"regexp"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Australian numbers in national (04xx, 02 area) or E.164 (+61) form.
	phoneRe = regexp.MustCompile(`(\+?61|0)[-.\s]?\d(?:[-.\s]?\d){7,9}`)
)

// HashPhone returns the hex-encoded SHA-256 hash of a phone number.
func HashPhone(phone string) string {
	h := sha256.Sum256([]byte(phone))
	return fmt.Sprintf("%x", h)
}

// ScrubPII replaces emails with [EMAIL] and phone numbers with [PHONE].
// Names stay: reviewers need them to follow the conversation.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// ScrubTurns applies PII scrubbing to all transcript turns in-place.
func ScrubTurns(turns []Turn) {
	for i := range turns {
		turns[i].Content = ScrubPII(turns[i].Content)
	}
}

package speech

// Canonical menu actions a staff member can pick for a shift.
const (
	ActionReschedule = "RESCHEDULE"
	ActionRelease    = "RELEASE"
	ActionTransfer   = "TRANSFER"
)

var actionWords = map[string]string{
	"reschedule": ActionReschedule, "rescheduling": ActionReschedule,
	"change": ActionReschedule, "move": ActionReschedule, "rebook": ActionReschedule,
	"one": ActionReschedule, "1": ActionReschedule,

	"open": ActionRelease, "leave": ActionRelease, "cancel": ActionRelease,
	"cant": ActionRelease, "unable": ActionRelease, "release": ActionRelease,
	"two": ActionRelease, "2": ActionRelease,

	"person": ActionTransfer, "rep": ActionTransfer, "representative": ActionTransfer,
	"human": ActionTransfer, "agent": ActionTransfer, "transfer": ActionTransfer,
	"operator": ActionTransfer,
	"three": ActionTransfer, "3": ActionTransfer,
}

// ParseAction classifies the caller's menu choice. Utterances that hit more
// than one action, or none, are Unparsable.
func ParseAction(text string) (Parsed, error) {
	words := splitWords(text)
	hits := map[string]bool{}
	for _, word := range words {
		if action := actionWords[word]; action != "" {
			hits[action] = true
		}
	}
	if len(hits) != 1 {
		return Parsed{}, ErrUnparsable
	}
	for action := range hits {
		return Parsed{Token: action, Confidence: exactConfidence}, nil
	}
	return Parsed{}, ErrUnparsable
}

package speech

// Canonical yes/no tokens.
const (
	Yes = "YES"
	No  = "NO"
)

var yesWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "yup": true, "correct": true,
	"right": true, "sure": true, "ok": true, "okay": true, "affirmative": true,
	"confirm": true, "confirmed": true, "absolutely": true, "definitely": true,
}

var noWords = map[string]bool{
	"no": true, "nope": true, "nah": true, "incorrect": true, "wrong": true,
	"negative": true, "cancel": true, "never": true,
}

// ParseYesNo classifies an utterance as an affirmation or denial. Utterances
// containing signals for both, or neither, are Unparsable.
func ParseYesNo(text string) (Parsed, error) {
	words := splitWords(text)
	sawYes, sawNo := false, false
	for _, word := range words {
		if yesWords[word] {
			sawYes = true
		}
		if noWords[word] {
			sawNo = true
		}
	}
	switch {
	case sawYes && !sawNo:
		return Parsed{Token: Yes, Confidence: exactConfidence}, nil
	case sawNo && !sawYes:
		return Parsed{Token: No, Confidence: exactConfidence}, nil
	default:
		return Parsed{}, ErrUnparsable
	}
}

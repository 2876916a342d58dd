package speech

import (
	"strings"
)

// digitWords maps spoken digit words, including common STT homophones, to digits.
var digitWords = map[string]string{
	"zero": "0", "oh": "0", "o": "0",
	"one": "1", "won": "1",
	"two": "2", "to": "2", "too": "2",
	"three": "3", "tree": "3",
	"four": "4", "for": "4", "fore": "4",
	"five": "5",
	"six":  "6",
	"seven": "7",
	"eight": "8", "ate": "8",
	"nine": "9", "niner": "9",
}

// homophone digit words carry less certainty than literal digits.
var fuzzyDigitWords = map[string]bool{
	"won": true, "to": true, "too": true, "for": true, "fore": true,
	"ate": true, "tree": true, "oh": true, "o": true, "niner": true,
}

// compoundTens maps two-digit number words to their digit pairs.
var compoundTens = map[string]string{
	"ten": "10", "eleven": "11", "twelve": "12", "thirteen": "13",
	"fourteen": "14", "fifteen": "15", "sixteen": "16", "seventeen": "17",
	"eighteen": "18", "nineteen": "19",
}

// tensPrefix maps "twenty".."ninety" to their leading digit.
var tensPrefix = map[string]string{
	"twenty": "2", "thirty": "3", "forty": "4", "fifty": "5",
	"sixty": "6", "seventy": "7", "eighty": "8", "ninety": "9",
}

// ParseDigits extracts exactly n digits from the utterance. It accepts literal
// digits, spoken digit words and two-digit compounds ("twelve", "thirty-four").
// Anything else, or the wrong count, is Unparsable.
func ParseDigits(text string, n int) (Parsed, error) {
	if n <= 0 {
		return Parsed{}, ErrUnparsable
	}
	words := splitWords(text)
	var digits strings.Builder
	fuzzy := false

	i := 0
	for i < len(words) {
		word := words[i]
		switch {
		case allASCIIDigits(word):
			digits.WriteString(word)
		case digitWords[word] != "":
			digits.WriteString(digitWords[word])
			if fuzzyDigitWords[word] {
				fuzzy = true
			}
		case compoundTens[word] != "":
			digits.WriteString(compoundTens[word])
			fuzzy = true
		case tensPrefix[word] != "":
			digits.WriteString(tensPrefix[word])
			fuzzy = true
			// "thirty four" consumes the following unit when present
			if i+1 < len(words) && digitWords[words[i+1]] != "" && digitWords[words[i+1]] != "0" {
				digits.WriteString(digitWords[words[i+1]])
				i++
			} else {
				digits.WriteString("0")
			}
		default:
			return Parsed{}, ErrUnparsable
		}
		i++
	}

	out := digits.String()
	if len(out) != n {
		return Parsed{}, ErrUnparsable
	}
	confidence := exactConfidence
	if fuzzy {
		confidence = fuzzyConfidence
	}
	return Parsed{Token: out, Confidence: confidence}, nil
}

func splitWords(text string) []string {
	// apostrophes vanish ("can't" -> "cant"); everything else non-alphanumeric
	// acts as a separator.
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '\'', r == '’':
			return -1
		default:
			return ' '
		}
	}, text)
	return strings.Fields(cleaned)
}

func allASCIIDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

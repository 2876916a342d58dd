package speech

import "strings"

// letterWords maps NATO phonetic words plus the informal aliases callers
// actually use to the letter they spell.
var letterWords = map[string]string{
	"alpha": "A", "alfa": "A", "able": "A", "adam": "A", "apple": "A",
	"bravo": "B", "boy": "B", "ball": "B", "baker": "B",
	"charlie": "C", "cat": "C",
	"delta": "D", "dog": "D", "david": "D",
	"echo": "E", "edward": "E", "easy": "E",
	"foxtrot": "F", "fox": "F", "frank": "F",
	"golf": "G", "george": "G",
	"hotel": "H", "henry": "H", "harry": "H",
	"india": "I", "ida": "I",
	"juliet": "J", "juliett": "J", "john": "J",
	"kilo": "K", "king": "K",
	"lima": "L", "lincoln": "L", "love": "L",
	"mike": "M", "mary": "M",
	"november": "N", "nancy": "N", "nora": "N",
	"oscar": "O", "ocean": "O",
	"papa": "P", "peter": "P", "paul": "P",
	"quebec": "Q", "queen": "Q",
	"romeo": "R", "robert": "R", "roger": "R",
	"sierra": "S", "sam": "S", "sugar": "S",
	"tango": "T", "tom": "T",
	"uniform": "U", "uncle": "U",
	"victor": "V", "victory": "V",
	"whiskey": "W", "william": "W",
	"xray": "X", "x": "X",
	"yankee": "Y", "young": "Y",
	"zulu": "Z", "zebra": "Z",
}

const (
	codeMinLen = 2
	codeMaxLen = 8
)

// ParseCode extracts a short alphanumeric code such as a shift code. Letters
// arrive as single characters, NATO words or common name aliases; digits as
// literals or digit words. The result is uppercased. Codes outside 2..8
// characters are Unparsable.
func ParseCode(text string) (Parsed, error) {
	words := splitWords(text)
	var code strings.Builder
	fuzzy := false

	for _, word := range words {
		switch {
		case allASCIIDigits(word):
			code.WriteString(word)
		case len(word) == 1 && word[0] >= 'a' && word[0] <= 'z':
			code.WriteByte(word[0] - ('a' - 'A'))
		case letterWords[word] != "":
			code.WriteString(letterWords[word])
			fuzzy = true
		case digitWords[word] != "":
			code.WriteString(digitWords[word])
			if fuzzyDigitWords[word] {
				fuzzy = true
			}
		case isAlnumRun(word):
			// STT often fuses spelled codes into one token ("ab12", "ab")
			for i := 0; i < len(word); i++ {
				c := word[i]
				if c >= 'a' && c <= 'z' {
					c -= 'a' - 'A'
				}
				code.WriteByte(c)
			}
		default:
			return Parsed{}, ErrUnparsable
		}
	}

	out := code.String()
	if len(out) < codeMinLen || len(out) > codeMaxLen {
		return Parsed{}, ErrUnparsable
	}
	confidence := exactConfidence
	if fuzzy {
		confidence = fuzzyConfidence
	}
	return Parsed{Token: out, Confidence: confidence}, nil
}

func isAlnumRun(word string) bool {
	if len(word) > codeMaxLen {
		return false
	}
	for i := 0; i < len(word); i++ {
		c := word[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return len(word) > 0
}

// SpellOut renders a code character by character for voice readback,
// "AB12" becoming "A B 1 2".
func SpellOut(code string) string {
	var b strings.Builder
	for i, r := range code {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

package speech

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDigits(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"literal digits", "1234", 4, "1234"},
		{"spaced digits", "1 2 3 4", 4, "1234"},
		{"digit words", "one two three four", 4, "1234"},
		{"homophones", "won to tree for", 4, "1234"},
		{"ate and niner", "ate niner oh won", 4, "8901"},
		{"compound teen", "twelve thirty four", 4, "1234"},
		{"tens rounds down", "four five twenty", 4, "4520"},
		{"single digit menu", "2", 1, "2"},
		{"word menu choice", "two", 1, "2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDigits(tt.in, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Token)
			assert.GreaterOrEqual(t, got.Confidence, ConfirmFloorConfidence)
		})
	}
}

func TestParseDigitsRejectsWrongLength(t *testing.T) {
	_, err := ParseDigits("one two three", 4)
	assert.ErrorIs(t, err, ErrUnparsable)

	_, err = ParseDigits("1 2 3 4 5", 4)
	assert.ErrorIs(t, err, ErrUnparsable)

	_, err = ParseDigits("hello there", 4)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestParseDigitsHomophonesLowerConfidence(t *testing.T) {
	exact, err := ParseDigits("1 2 3 4", 4)
	require.NoError(t, err)
	fuzzy, err := ParseDigits("won to three four", 4)
	require.NoError(t, err)
	assert.Greater(t, exact.Confidence, fuzzy.Confidence)
	assert.GreaterOrEqual(t, exact.Confidence, AutoAcceptConfidence)
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain letters and digits", "a b 1 2", "AB12"},
		{"nato", "alpha bravo one two", "AB12"},
		{"aliases", "adam ball won to", "AB12"},
		{"apple boy", "apple boy 1 2", "AB12"},
		{"hyphenated", "AB-12", "AB12"},
		{"mixed case run", "ab12", "AB12"},
		{"two chars", "x y", "XY"},
		{"eight chars", "a b c d 1 2 3 4", "ABCD1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Token)
		})
	}
}

func TestParseCodeRejectsBadLengths(t *testing.T) {
	_, err := ParseCode("a")
	assert.ErrorIs(t, err, ErrUnparsable, "one character is too short")

	_, err = ParseCode("a b c d e 1 2 3 4")
	assert.ErrorIs(t, err, ErrUnparsable, "nine characters is too long")

	_, err = ParseCode("the quick brown fox spoke")
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestSpellOut(t *testing.T) {
	assert.Equal(t, "A B 1 2", SpellOut("AB12"))
	assert.Equal(t, "", SpellOut(""))
}

func TestParseYesNo(t *testing.T) {
	for _, in := range []string{"yes", "yeah", "yep", "yup", "correct", "that's right", "ok sure"} {
		got, err := ParseYesNo(in)
		require.NoError(t, err, in)
		assert.Equal(t, Yes, got.Token, in)
	}
	for _, in := range []string{"no", "nope", "nah", "that's wrong", "incorrect"} {
		got, err := ParseYesNo(in)
		require.NoError(t, err, in)
		assert.Equal(t, No, got.Token, in)
	}
	for _, in := range []string{"maybe", "", "yes no", "banana"} {
		_, err := ParseYesNo(in)
		assert.ErrorIs(t, err, ErrUnparsable, in)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I'd like to reschedule", ActionReschedule},
		{"change it please", ActionReschedule},
		{"move my visit", ActionReschedule},
		{"leave it open", ActionRelease},
		{"I can't make it", ActionRelease},
		{"just cancel it", ActionRelease},
		{"a real person please", ActionTransfer},
		{"representative", ActionTransfer},
		{"talk to a human", ActionTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAction(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Token)
		})
	}

	_, err := ParseAction("the weather is nice")
	assert.ErrorIs(t, err, ErrUnparsable)

	// mixed signals stay ambiguous
	_, err = ParseAction("cancel no wait reschedule")
	assert.ErrorIs(t, err, ErrUnparsable)
}

// Monday 2026-03-02 10:00 in Sydney.
func dtNow(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	require.NoError(t, err)
	return time.Date(2026, time.March, 2, 10, 0, 0, 0, loc)
}

func TestParseDateTimeComplete(t *testing.T) {
	now := dtNow(t)
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"tomorrow afternoon", "tomorrow afternoon", time.Date(2026, 3, 3, 14, 0, 0, 0, now.Location())},
		{"tomorrow morning", "tomorrow morning", time.Date(2026, 3, 3, 9, 0, 0, 0, now.Location())},
		{"tomorrow with time", "tomorrow at 10:30 am", time.Date(2026, 3, 3, 10, 30, 0, 0, now.Location())},
		{"next tuesday", "next tuesday at 10 am", time.Date(2026, 3, 3, 10, 0, 0, 0, now.Location())},
		{"next monday skips today", "next monday at 9 am", time.Date(2026, 3, 9, 9, 0, 0, 0, now.Location())},
		{"bare weekday", "wednesday at 2 pm", time.Date(2026, 3, 4, 14, 0, 0, 0, now.Location())},
		{"month and ordinal day", "march 5th at 9 am", time.Date(2026, 3, 5, 9, 0, 0, 0, now.Location())},
		{"month day rolls to next year", "january 5 at 10 am", time.Date(2027, 1, 5, 10, 0, 0, 0, now.Location())},
		{"the ordinal", "the 21st at 2 pm", time.Date(2026, 3, 21, 14, 0, 0, 0, now.Location())},
		{"ordinal rolls to next month", "the 1st at 10 am", time.Date(2026, 4, 1, 10, 0, 0, 0, now.Location())},
		{"bare small hour means afternoon", "tomorrow at 3", time.Date(2026, 3, 3, 15, 0, 0, 0, now.Location())},
		{"spoken hour", "tomorrow at ten am", time.Date(2026, 3, 3, 10, 0, 0, 0, now.Location())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDateTime(tt.in, now)
			require.NoError(t, err)
			require.True(t, got.Complete())
			assert.True(t, got.At.Equal(tt.want), "got %v want %v", got.At, tt.want)
		})
	}
}

func TestParseDateTimePartial(t *testing.T) {
	now := dtNow(t)

	got, err := ParseDateTime("at 3 pm", now)
	require.NoError(t, err)
	assert.True(t, got.NeedsDate)
	assert.False(t, got.NeedsTime)

	got, err = ParseDateTime("tomorrow", now)
	require.NoError(t, err)
	assert.True(t, got.NeedsTime)
	assert.False(t, got.NeedsDate)

	got, err = ParseDateTime("next friday", now)
	require.NoError(t, err)
	assert.True(t, got.NeedsTime)

	_, err = ParseDateTime("blah blah", now)
	assert.ErrorIs(t, err, ErrUnparsable)
}

func TestParseDateTimePolicyFlags(t *testing.T) {
	now := dtNow(t)

	got, err := ParseDateTime("next saturday at 10 am", now)
	require.NoError(t, err)
	require.True(t, got.Complete())
	assert.Equal(t, InvalidWeekend, got.Invalid)
	assert.False(t, got.Valid())

	got, err = ParseDateTime("tomorrow evening", now)
	require.NoError(t, err)
	assert.Equal(t, InvalidOffHours, got.Invalid, "18:00 is past closing")

	got, err = ParseDateTime("tomorrow at 6 am", now)
	require.NoError(t, err)
	assert.Equal(t, InvalidOffHours, got.Invalid)

	// today at 9 am is already behind a 10:00 now
	got, err = ParseDateTime("today at 9 am", now)
	require.NoError(t, err)
	assert.Equal(t, InvalidPast, got.Invalid)

	got, err = ParseDateTime("tomorrow at 10 am", now)
	require.NoError(t, err)
	assert.True(t, got.Valid())
}

func TestParseDateTimeThisWeekdayPrefersFuture(t *testing.T) {
	now := dtNow(t) // Monday 10:00

	// this monday at 2 pm is still ahead today
	got, err := ParseDateTime("this monday at 2 pm", now)
	require.NoError(t, err)
	assert.Equal(t, now.Day(), got.At.Day())

	// this monday at 9 am already passed, so it lands next week
	got, err = ParseDateTime("this monday at 9 am", now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 7).Day(), got.At.Day())
}

func TestCategorizeReason(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I'm sick today", ReasonIllness},
		{"got the flu", ReasonIllness},
		{"family emergency with my daughter", ReasonFamilyEmergency},
		{"my car broke down", ReasonTransportation},
		{"I'm double booked that day", ReasonSchedulingConflict},
		{"my other job needs me", ReasonWorkConflict},
		{"I have a personal appointment", ReasonPersonal},
		{"just because", ReasonOther},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeReason(tt.in))
		})
	}
}

func TestReasonContentStripsFiller(t *testing.T) {
	assert.Equal(t, "", ReasonContent("um uh like"))
	assert.Equal(t, "im sick", ReasonContent("um, I'm... sick"))
}

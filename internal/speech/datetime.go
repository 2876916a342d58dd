package speech

import (
	"strconv"
	"strings"
	"time"
)

// Invalid-datetime reasons surfaced to the call flow for readback.
const (
	InvalidPast     = "in the past"
	InvalidWeekend  = "falls on a weekend"
	InvalidOffHours = "outside business hours"
)

// Business-hours policy for rescheduled visits: provider-local weekdays,
// starting from 07:00 and strictly before 18:00.
const (
	businessOpenHour  = 7
	businessCloseHour = 18
)

// DateTime is the result of parsing a natural spoken date and time. Either
// half may be missing; the call flow re-prompts for the missing one. A
// complete result outside the business-hours policy is returned with Invalid
// set rather than rejected, so the caller can hear why it was refused.
type DateTime struct {
	At        time.Time
	NeedsDate bool
	NeedsTime bool
	Invalid   string
}

// Complete reports whether both date and time were resolved.
func (d DateTime) Complete() bool { return !d.NeedsDate && !d.NeedsTime }

// Valid reports whether the result is complete and within policy.
func (d DateTime) Valid() bool { return d.Complete() && d.Invalid == "" }

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

// buckets are spoken times of day mapped to a default hour.
var buckets = map[string]int{
	"morning": 9, "afternoon": 14, "evening": 18, "night": 18,
}

// ParseDateTime resolves utterances like "next tuesday at 10 am", "tomorrow
// afternoon", "march 5th at 9", "the 21st at 2 pm" or bare halves such as
// "at 3 pm". The reference instant supplies "now" and the provider-local
// timezone; all resolution happens in that location.
func ParseDateTime(text string, now time.Time) (DateTime, error) {
	words := splitWords(text)

	var (
		haveDate    bool
		year        int
		month       time.Month
		day         int
		weekdayMode string // "", "next", "this", "bare"
		weekday     time.Weekday

		haveTime bool
		hour     int
		minute   int
		meridiem string // "", "am", "pm"
		bucket   int    = -1
	)

	setDay := func(t time.Time) {
		haveDate = true
		year, month, day = t.Date()
	}

	for i := 0; i < len(words); i++ {
		word := words[i]
		switch {
		case word == "tomorrow":
			setDay(now.AddDate(0, 0, 1))
		case word == "today":
			setDay(now)
		case word == "tonight":
			setDay(now)
			bucket = buckets["evening"]
		case word == "next" || word == "this":
			if i+1 < len(words) {
				if wd, ok := weekdays[words[i+1]]; ok {
					weekdayMode = word
					weekday = wd
					i++
				}
			}
		case weekdays[word] != 0 || word == "sunday":
			if weekdayMode == "" {
				weekdayMode = "bare"
				weekday = weekdays[word]
			}
		case months[word] != 0:
			if i+1 < len(words) {
				if d, ok := parseDayNumber(words[i+1]); ok {
					if d < 1 || d > 31 {
						return DateTime{}, ErrUnparsable
					}
					haveDate = true
					month, day = months[word], d
					year = now.Year()
					if month < now.Month() || (month == now.Month() && day < now.Day()) {
						year++
					}
					i++
				}
			}
		case word == "the":
			if i+1 < len(words) {
				if d, ok := parseDayNumber(words[i+1]); ok && !haveDate {
					if d < 1 || d > 31 {
						return DateTime{}, ErrUnparsable
					}
					base := now
					if d < now.Day() {
						base = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
					}
					haveDate = true
					year, month, day = base.Year(), base.Month(), d
					i++
				}
			}
		case bucket < 0 && buckets[word] != 0:
			bucket = buckets[word]
		case word == "noon" || word == "midday":
			haveTime, hour, minute = true, 12, 0
		case word == "midnight":
			haveTime, hour, minute = true, 0, 0
		case word == "am" || word == "pm":
			meridiem = word
		case word == "oclock" || word == "at" || word == "on":
			// connectives
		default:
			if h, ok := parseHourNumber(word); ok && !haveTime {
				haveTime, hour = true, h
				// optional minutes: "10 30", originally "10:30"
				if i+1 < len(words) {
					if m, err := strconv.Atoi(words[i+1]); err == nil && len(words[i+1]) == 2 && m < 60 {
						minute = m
						i++
					}
				}
			}
		}
	}

	// resolve a spoken weekday against the calendar
	if !haveDate && weekdayMode != "" {
		ahead := (int(weekday) - int(now.Weekday()) + 7) % 7
		switch weekdayMode {
		case "next":
			// strictly the next occurrence, even if today is that weekday
			if ahead == 0 {
				ahead = 7
			}
		default:
			// soonest occurrence; today only counts while the slot is still ahead
			if ahead == 0 && haveTime {
				candidate := time.Date(now.Year(), now.Month(), now.Day(),
					resolveHour(hour, meridiem), minute, 0, 0, now.Location())
				if !candidate.After(now) {
					ahead = 7
				}
			}
		}
		setDay(now.AddDate(0, 0, ahead))
	}

	if !haveTime && bucket >= 0 {
		haveTime, hour, minute, meridiem = true, bucket, 0, ""
		if bucket >= 12 {
			meridiem = "pm" // bucket hours are already 24h
			hour = bucket - 12
			if hour == 0 {
				hour = 12
			}
		}
	}

	if !haveDate && !haveTime {
		return DateTime{}, ErrUnparsable
	}

	out := DateTime{NeedsDate: !haveDate, NeedsTime: !haveTime}
	if !out.Complete() {
		return out, nil
	}

	if hour > 23 || minute > 59 {
		return DateTime{}, ErrUnparsable
	}
	out.At = time.Date(year, month, day, resolveHour(hour, meridiem), minute, 0, 0, now.Location())

	switch {
	case !out.At.After(now):
		out.Invalid = InvalidPast
	case out.At.Weekday() == time.Saturday || out.At.Weekday() == time.Sunday:
		out.Invalid = InvalidWeekend
	case out.At.Hour() < businessOpenHour || out.At.Hour() >= businessCloseHour:
		out.Invalid = InvalidOffHours
	}
	return out, nil
}

// resolveHour applies the meridiem, defaulting bare small hours to the
// afternoon (callers saying "at 3" mean 15:00, not 03:00).
func resolveHour(hour int, meridiem string) int {
	switch meridiem {
	case "pm":
		if hour < 12 {
			return hour + 12
		}
	case "am":
		if hour == 12 {
			return 0
		}
	default:
		if hour >= 1 && hour <= 6 {
			return hour + 12
		}
	}
	return hour
}

func parseDayNumber(word string) (int, bool) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(
		word, "st"), "nd"), "rd"), "th")
	if !allASCIIDigits(trimmed) {
		return 0, false
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseHourNumber(word string) (int, bool) {
	if allASCIIDigits(word) && len(word) <= 2 {
		n, _ := strconv.Atoi(word)
		if n <= 23 {
			return n, true
		}
		return 0, false
	}
	if d, ok := compoundTens[word]; ok {
		n, _ := strconv.Atoi(d)
		return n, true
	}
	if d, ok := digitWords[word]; ok && word != "to" && word != "for" && word != "oh" && word != "o" {
		n, _ := strconv.Atoi(d)
		if n >= 1 {
			return n, true
		}
	}
	return 0, false
}
